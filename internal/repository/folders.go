package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/filevault/internal/database"
	"github.com/filevault/internal/models"
)

var folderColumns = []string{"id", "user_id", "parent_id", "name", "color", "created_at", "updated_at"}

type FolderRepository struct {
	db database.Runner
}

func NewFolderRepository(db database.Runner) *FolderRepository {
	return &FolderRepository{db: db}
}

// WithRunner returns a repository bound to run, typically a transaction.
func (r *FolderRepository) WithRunner(run database.Runner) *FolderRepository {
	return &FolderRepository{db: run}
}

// LockTree holds the owner's row lock until the surrounding transaction
// ends, so tree moves of one user run one at a time.
func (r *FolderRepository) LockTree(ctx context.Context, userID string) error {
	stmt := database.NewUpdateBuilder("users").
		SetExpr("updated_at", "updated_at").
		Where("id = ?", userID)

	res, err := r.db.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("lock folder tree: %w", err)
	}
	return expectAffected(res)
}

// Create inserts a folder. A sibling with the same name yields ErrDuplicate;
// the unique index is the only uniqueness check.
func (r *FolderRepository) Create(ctx context.Context, folder *models.Folder) error {
	stmt := database.NewInsertBuilder("folders").
		Columns(folderColumns...).
		Values(folder.ID, folder.UserID, nullString(folder.ParentID), folder.Name, folder.Color, folder.CreatedAt, folder.UpdatedAt)

	if _, err := r.db.Exec(ctx, stmt); err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert folder: %w", err)
	}
	return nil
}

func (r *FolderRepository) GetByID(ctx context.Context, userID, id string) (*models.Folder, error) {
	stmt := database.NewSelectBuilder("folders", folderColumns...).
		Where("id = ?", id).
		Where("user_id = ?", userID)

	folder, err := scanFolder(r.db.QueryRow(ctx, stmt))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get folder: %w", err)
	}
	return folder, nil
}

// ListByParent returns the direct children of parentID (root when nil),
// ordered by name.
func (r *FolderRepository) ListByParent(ctx context.Context, userID string, parentID *string) ([]*models.Folder, error) {
	stmt := database.NewSelectBuilder("folders", folderColumns...).Where("user_id = ?", userID)
	if parentID == nil {
		stmt.Where("parent_id IS NULL")
	} else {
		stmt.Where("parent_id = ?", *parentID)
	}
	stmt.OrderBy("name ASC")

	rows, err := r.db.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	folders := make([]*models.Folder, 0)
	for rows.Next() {
		folder, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		folders = append(folders, folder)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate folders: %w", err)
	}
	return folders, nil
}

// Update writes name, color, parent and updated_at of an existing folder.
func (r *FolderRepository) Update(ctx context.Context, folder *models.Folder) error {
	stmt := database.NewUpdateBuilder("folders").
		Set("name", folder.Name).
		Set("color", folder.Color).
		Set("parent_id", nullString(folder.ParentID)).
		Set("updated_at", folder.UpdatedAt).
		Where("id = ?", folder.ID).
		Where("user_id = ?", folder.UserID)

	res, err := r.db.Exec(ctx, stmt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update folder: %w", err)
	}
	return expectAffected(res)
}

func (r *FolderRepository) Delete(ctx context.Context, userID, id string) error {
	stmt := database.NewDeleteBuilder("folders").
		Where("id = ?", id).
		Where("user_id = ?", userID)

	res, err := r.db.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}
	return expectAffected(res)
}

// CountChildren counts folders whose direct parent is id.
func (r *FolderRepository) CountChildren(ctx context.Context, userID, id string) (int, error) {
	stmt := database.NewSelectBuilder("folders", "COUNT(*)").
		Where("user_id = ?", userID).
		Where("parent_id = ?", id)

	var count int
	if err := r.db.QueryRow(ctx, stmt).Scan(&count); err != nil {
		return 0, fmt.Errorf("count subfolders: %w", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFolder(row scanner) (*models.Folder, error) {
	folder := &models.Folder{}
	var parentID sql.NullString
	if err := row.Scan(&folder.ID, &folder.UserID, &parentID, &folder.Name, &folder.Color, &folder.CreatedAt, &folder.UpdatedAt); err != nil {
		return nil, err
	}
	folder.ParentID = stringPtr(parentID)
	return folder, nil
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
