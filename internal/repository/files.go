package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/filevault/internal/database"
	"github.com/filevault/internal/models"
)

var fileColumns = []string{"id", "user_id", "folder_id", "filename", "storage_key", "url", "mime_type", "size", "created_at", "updated_at"}

// FileFilter narrows List. Zero value lists every file of the user.
type FileFilter struct {
	// TypePrefix matches the start of the MIME type, case-insensitively.
	TypePrefix string
	// FolderID restricts to one folder when FolderSet is true; nil means unfiled.
	FolderID  *string
	FolderSet bool
}

type FileRepository struct {
	db database.Runner
}

func NewFileRepository(db database.Runner) *FileRepository {
	return &FileRepository{db: db}
}

// WithRunner returns a repository bound to run, typically a transaction.
func (r *FileRepository) WithRunner(run database.Runner) *FileRepository {
	return &FileRepository{db: run}
}

func (r *FileRepository) Create(ctx context.Context, file *models.File) error {
	stmt := database.NewInsertBuilder("files").
		Columns(fileColumns...).
		Values(file.ID, file.UserID, nullString(file.FolderID), file.Filename, file.StorageKey,
			file.URL, file.MimeType, file.Size, file.CreatedAt, file.UpdatedAt)

	if _, err := r.db.Exec(ctx, stmt); err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

func (r *FileRepository) GetByID(ctx context.Context, userID, id string) (*models.File, error) {
	stmt := database.NewSelectBuilder("files", fileColumns...).
		Where("id = ?", id).
		Where("user_id = ?", userID)

	file, err := scanFile(r.db.QueryRow(ctx, stmt))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get file: %w", err)
	}
	return file, nil
}

// List returns the user's files, newest first.
func (r *FileRepository) List(ctx context.Context, userID string, filter FileFilter) ([]*models.File, error) {
	stmt := database.NewSelectBuilder("files", fileColumns...).Where("user_id = ?", userID)

	if filter.TypePrefix != "" {
		stmt.Where(`LOWER(mime_type) LIKE ? ESCAPE '\'`, likePrefix(strings.ToLower(filter.TypePrefix)))
	}
	if filter.FolderSet {
		if filter.FolderID == nil {
			stmt.Where("folder_id IS NULL")
		} else {
			stmt.Where("folder_id = ?", *filter.FolderID)
		}
	}
	stmt.OrderBy("created_at DESC", "id DESC")

	rows, err := r.db.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	files := make([]*models.File, 0)
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return files, nil
}

// CountInFolder counts files placed directly in folderID.
func (r *FileRepository) CountInFolder(ctx context.Context, userID, folderID string) (int, error) {
	stmt := database.NewSelectBuilder("files", "COUNT(*)").
		Where("user_id = ?", userID).
		Where("folder_id = ?", folderID)

	var count int
	if err := r.db.QueryRow(ctx, stmt).Scan(&count); err != nil {
		return 0, fmt.Errorf("count files: %w", err)
	}
	return count, nil
}

// SetFolder moves a file into folderID, or unfiles it when nil.
func (r *FileRepository) SetFolder(ctx context.Context, userID, id string, folderID *string, updatedAt time.Time) error {
	stmt := database.NewUpdateBuilder("files").
		Set("folder_id", nullString(folderID)).
		Set("updated_at", updatedAt).
		Where("id = ?", id).
		Where("user_id = ?", userID)

	res, err := r.db.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("move file: %w", err)
	}
	return expectAffected(res)
}

func (r *FileRepository) Delete(ctx context.Context, userID, id string) error {
	stmt := database.NewDeleteBuilder("files").
		Where("id = ?", id).
		Where("user_id = ?", userID)

	res, err := r.db.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return expectAffected(res)
}

func scanFile(row scanner) (*models.File, error) {
	file := &models.File{}
	var folderID sql.NullString
	err := row.Scan(&file.ID, &file.UserID, &folderID, &file.Filename, &file.StorageKey,
		&file.URL, &file.MimeType, &file.Size, &file.CreatedAt, &file.UpdatedAt)
	if err != nil {
		return nil, err
	}
	file.FolderID = stringPtr(folderID)
	return file, nil
}
