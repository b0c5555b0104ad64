// Package files is the registry of uploaded blobs: batch upload with
// per-item isolation, listing, moving between folders and deletion.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/filevault/internal/apperr"
	"github.com/filevault/internal/database"
	"github.com/filevault/internal/models"
	"github.com/filevault/internal/repository"
	"github.com/filevault/internal/storage"
)

const (
	DefaultMaxFiles    = 10
	DefaultConcurrency = 4
)

// Upload is one item of a batch. Open may be called more than once.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// Filter narrows List.
type Filter struct {
	TypePrefix string
	FolderID   *string
	// FolderSet selects by FolderID; nil FolderID then means unfiled.
	FolderSet bool
}

// FolderLookup resolves a folder owned by a user.
type FolderLookup interface {
	GetByID(ctx context.Context, userID, id string) (*models.Folder, error)
}

type Options struct {
	MaxFiles    int
	MaxFileSize int64
	Concurrency int
}

type Service struct {
	db      *database.DB
	files   *repository.FileRepository
	folders FolderLookup
	store   storage.Gateway
	opts    Options
	logger  logrus.FieldLogger
	now     func() time.Time
}

func NewService(db *database.DB, files *repository.FileRepository, folders FolderLookup, store storage.Gateway, opts Options, logger logrus.FieldLogger) *Service {
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = DefaultMaxFiles
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Service{
		db:      db,
		files:   files,
		folders: folders,
		store:   store,
		opts:    opts,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// UploadMany stores every item independently. A failing item is reported in
// the result and never affects the others.
func (s *Service) UploadMany(ctx context.Context, userID string, folderID *string, uploads []Upload) (*BatchResult, error) {
	if len(uploads) == 0 {
		return nil, apperr.Validation("No files provided")
	}
	if len(uploads) > s.opts.MaxFiles {
		return nil, apperr.Validation(fmt.Sprintf("Too many files, at most %d per upload", s.opts.MaxFiles))
	}

	if folderID != nil && *folderID != "" {
		if _, err := s.folders.GetByID(ctx, userID, *folderID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperr.NotFound("Folder not found")
			}
			return nil, apperr.Internal(err)
		}
	} else {
		folderID = nil
	}

	outcomes := make([]outcome, len(uploads))

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i := range uploads {
		i := i
		g.Go(func() error {
			file, err := s.uploadOne(ctx, userID, folderID, uploads[i])
			outcomes[i] = outcome{file: file, err: err}
			return nil
		})
	}
	_ = g.Wait()

	result := &BatchResult{
		Files:  make([]*models.File, 0, len(uploads)),
		Errors: make([]models.UploadError, 0),
	}
	for i, o := range outcomes {
		if o.err != nil {
			s.logger.WithFields(logrus.Fields{
				"user_id":  userID,
				"filename": uploads[i].Filename,
				"error":    o.err,
			}).Warn("file upload failed")

			result.Errors = append(result.Errors, models.UploadError{
				Filename: uploads[i].Filename,
				Error:    apperr.PublicMessage(o.err),
			})
			continue
		}
		result.Files = append(result.Files, o.file)
	}
	return result, nil
}

type outcome struct {
	file *models.File
	err  error
}

// uploadOne writes the blob and then the row. When the row cannot be
// written the blob is removed again.
func (s *Service) uploadOne(ctx context.Context, userID string, folderID *string, up Upload) (*models.File, error) {
	if s.opts.MaxFileSize > 0 && up.Size > s.opts.MaxFileSize {
		return nil, apperr.Validation("File exceeds the maximum upload size")
	}

	contentType, err := s.contentType(up)
	if err != nil {
		return nil, apperr.Upstream("Failed to read file", err)
	}

	key := storage.NewKey(userID, contentType)

	body, err := up.Open()
	if err != nil {
		return nil, apperr.Upstream("Failed to read file", err)
	}
	url, err := s.store.Put(ctx, key, body, up.Size, contentType)
	body.Close()
	if err != nil {
		return nil, apperr.Upstream("Failed to store file", err)
	}

	now := s.now()
	file := &models.File{
		ID:         uuid.NewString(),
		Filename:   up.Filename,
		StorageKey: key,
		URL:        url,
		MimeType:   contentType,
		Size:       up.Size,
		UserID:     userID,
		FolderID:   folderID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.files.Create(ctx, file); err != nil {
		if derr := s.store.Delete(context.WithoutCancel(ctx), key); derr != nil {
			s.logger.WithFields(logrus.Fields{
				"user_id":  userID,
				"file_key": key,
				"error":    derr,
			}).Error("orphan blob left after failed insert")
		}
		return nil, apperr.Internal(fmt.Errorf("record file: %w", err))
	}

	return file, nil
}

// contentType trusts the client header unless it is missing or generic,
// in which case the content is sniffed.
func (s *Service) contentType(up Upload) (string, error) {
	ct := strings.TrimSpace(up.ContentType)
	if ct != "" && ct != "application/octet-stream" {
		return ct, nil
	}

	r, err := up.Open()
	if err != nil {
		return "", err
	}
	defer r.Close()

	mt, err := mimetype.DetectReader(r)
	if err != nil {
		return "", err
	}
	return mt.String(), nil
}

// List returns the user's files, newest first.
func (s *Service) List(ctx context.Context, userID string, filter Filter) ([]*models.File, error) {
	f := repository.FileFilter{
		TypePrefix: strings.TrimSpace(filter.TypePrefix),
		FolderID:   filter.FolderID,
		FolderSet:  filter.FolderSet,
	}
	if f.FolderSet && f.FolderID != nil && *f.FolderID == "" {
		f.FolderID = nil
	}

	files, err := s.files.List(ctx, userID, f)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return files, nil
}

// Move files a file into folderID, or unfiles it when nil or empty.
func (s *Service) Move(ctx context.Context, userID, fileID string, folderID *string) (*models.File, error) {
	if folderID != nil && *folderID == "" {
		folderID = nil
	}

	file, err := s.get(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}

	if folderID != nil {
		if _, err := s.folders.GetByID(ctx, userID, *folderID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperr.NotFound("Folder not found")
			}
			return nil, apperr.Internal(err)
		}
	}

	now := s.now()
	if err := s.files.SetFolder(ctx, userID, fileID, folderID, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("File not found")
		}
		return nil, apperr.Internal(err)
	}

	file.FolderID = folderID
	file.UpdatedAt = now
	return file, nil
}

// Delete removes the row inside a transaction, deletes the blob, then
// commits. A failing blob delete rolls the row back.
func (s *Service) Delete(ctx context.Context, userID, fileID string) error {
	file, err := s.get(ctx, userID, fileID)
	if err != nil {
		return err
	}

	err = s.db.WithTx(ctx, func(ctx context.Context, tx database.Runner) error {
		if err := s.files.WithRunner(tx).Delete(ctx, userID, fileID); err != nil {
			return err
		}
		if err := s.store.Delete(ctx, file.StorageKey); err != nil {
			return apperr.Upstream("Failed to delete file from storage", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("File not found")
		}
		if _, ok := apperr.As(err); ok {
			return err
		}
		s.logger.WithFields(logrus.Fields{
			"user_id":  userID,
			"file_key": file.StorageKey,
			"error":    err,
		}).Error("file delete failed")
		return apperr.Internal(err)
	}
	return nil
}

func (s *Service) get(ctx context.Context, userID, fileID string) (*models.File, error) {
	file, err := s.files.GetByID(ctx, userID, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("File not found")
		}
		return nil, apperr.Internal(err)
	}
	return file, nil
}
