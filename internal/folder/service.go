// Package folder manages each user's folder tree: creation, listing,
// renaming, moving with cycle detection and guarded deletion.
package folder

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/filevault/internal/apperr"
	"github.com/filevault/internal/database"
	"github.com/filevault/internal/models"
	"github.com/filevault/internal/repository"
)

const (
	msgNameRequired   = "Folder name is required"
	msgDuplicate      = "Folder with this name already exists"
	msgParentNotFound = "Parent folder not found"
	msgNotFound       = "Folder not found"
	msgMoveIntoSelf   = "Cannot move folder into itself"
	msgMoveIntoChild  = "Cannot move folder into one of its subfolders"
	msgHasFiles       = "Cannot delete folder that contains files. Move or delete files first."
	msgHasSubfolders  = "Cannot delete folder that contains subfolders. Delete subfolders first."
)

// FileCounter reports how many files sit directly in a folder.
type FileCounter interface {
	CountInFolder(ctx context.Context, userID, folderID string) (int, error)
}

type Service struct {
	db      *database.DB
	folders *repository.FolderRepository
	files   FileCounter
	logger  logrus.FieldLogger
	now     func() time.Time
}

func NewService(db *database.DB, folders *repository.FolderRepository, files FileCounter, logger logrus.FieldLogger) *Service {
	return &Service{
		db:      db,
		folders: folders,
		files:   files,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create adds a folder under parentID (root when nil or empty).
func (s *Service) Create(ctx context.Context, userID string, req models.CreateFolderRequest) (*models.Folder, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation(msgNameRequired)
	}

	parentID := normalizeID(req.ParentID)
	if parentID != nil {
		if _, err := s.folders.GetByID(ctx, userID, *parentID); err != nil {
			return nil, translate(err, msgParentNotFound)
		}
	}

	color := strings.TrimSpace(req.Color)
	if color == "" {
		color = models.DefaultFolderColor
	}

	now := s.now()
	folder := &models.Folder{
		ID:        uuid.NewString(),
		Name:      name,
		UserID:    userID,
		ParentID:  parentID,
		Color:     color,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.folders.Create(ctx, folder); err != nil {
		return nil, translate(err, msgNotFound)
	}

	s.logger.WithFields(logrus.Fields{"user_id": userID, "folder_id": folder.ID}).Debug("folder created")
	return folder, nil
}

// List returns the direct children of parentID ordered by name.
func (s *Service) List(ctx context.Context, userID string, parentID *string) ([]*models.Folder, error) {
	folders, err := s.folders.ListByParent(ctx, userID, normalizeID(parentID))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return folders, nil
}

func (s *Service) Get(ctx context.Context, userID, id string) (*models.Folder, error) {
	folder, err := s.folders.GetByID(ctx, userID, id)
	if err != nil {
		return nil, translate(err, msgNotFound)
	}
	return folder, nil
}

// Path returns the chain of folders from the root down to id.
func (s *Service) Path(ctx context.Context, userID, id string) ([]*models.Folder, error) {
	folder, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	chain := []*models.Folder{folder}
	seen := map[string]bool{folder.ID: true}
	for !folder.IsRoot() {
		if seen[*folder.ParentID] {
			return nil, apperr.Internal(errors.New("folder tree contains a cycle"))
		}
		folder, err = s.folders.GetByID(ctx, userID, *folder.ParentID)
		if err != nil {
			return nil, translate(err, msgNotFound)
		}
		seen[folder.ID] = true
		chain = append(chain, folder)
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Update renames, recolors or moves a folder. Only fields present in req
// change. A move locks the owner's tree so the ancestor check and the write
// see the same tree.
func (s *Service) Update(ctx context.Context, userID, id string, req models.UpdateFolderRequest) (*models.Folder, error) {
	var updated *models.Folder
	err := s.db.WithTx(ctx, func(ctx context.Context, tx database.Runner) error {
		folders := s.folders.WithRunner(tx)
		if req.ParentID.Set {
			if err := folders.LockTree(ctx, userID); err != nil {
				return translate(err, msgNotFound)
			}
		}

		folder, err := folders.GetByID(ctx, userID, id)
		if err != nil {
			return translate(err, msgNotFound)
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return apperr.Validation(msgNameRequired)
			}
			folder.Name = name
		}

		if req.Color != nil && strings.TrimSpace(*req.Color) != "" {
			folder.Color = strings.TrimSpace(*req.Color)
		}

		if req.ParentID.Set {
			parentID := req.ParentID.Normalized()
			if parentID != nil {
				if err := checkMove(ctx, folders, userID, folder.ID, *parentID); err != nil {
					return err
				}
			}
			folder.ParentID = parentID
		}

		folder.UpdatedAt = s.now()
		if err := folders.Update(ctx, folder); err != nil {
			return translate(err, msgNotFound)
		}
		updated = folder
		return nil
	})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		return nil, apperr.Internal(err)
	}
	return updated, nil
}

// checkMove rejects a new parent that is missing, the folder itself, or any
// of its descendants. It walks up from the target parent to the root.
func checkMove(ctx context.Context, folders *repository.FolderRepository, userID, id, parentID string) error {
	if parentID == id {
		return apperr.Validation(msgMoveIntoSelf)
	}

	parent, err := folders.GetByID(ctx, userID, parentID)
	if err != nil {
		return translate(err, msgParentNotFound)
	}

	seen := map[string]bool{parent.ID: true}
	for !parent.IsRoot() {
		if *parent.ParentID == id {
			return apperr.Validation(msgMoveIntoChild)
		}
		if seen[*parent.ParentID] {
			return apperr.Internal(errors.New("folder tree contains a cycle"))
		}
		parent, err = folders.GetByID(ctx, userID, *parent.ParentID)
		if err != nil {
			return translate(err, msgParentNotFound)
		}
		seen[parent.ID] = true
	}
	return nil
}

// Delete removes an empty folder. Folders holding files or subfolders are
// refused.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.folders.GetByID(ctx, userID, id); err != nil {
		return translate(err, msgNotFound)
	}

	files, err := s.files.CountInFolder(ctx, userID, id)
	if err != nil {
		return apperr.Internal(err)
	}
	if files > 0 {
		return apperr.Validation(msgHasFiles)
	}

	children, err := s.folders.CountChildren(ctx, userID, id)
	if err != nil {
		return apperr.Internal(err)
	}
	if children > 0 {
		return apperr.Validation(msgHasSubfolders)
	}

	if err := s.folders.Delete(ctx, userID, id); err != nil {
		return translate(err, msgNotFound)
	}

	s.logger.WithFields(logrus.Fields{"user_id": userID, "folder_id": id}).Debug("folder deleted")
	return nil
}

func normalizeID(id *string) *string {
	if id == nil || strings.TrimSpace(*id) == "" {
		return nil
	}
	v := strings.TrimSpace(*id)
	return &v
}

func translate(err error, notFound string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound(notFound)
	case errors.Is(err, repository.ErrDuplicate):
		return apperr.Conflict(msgDuplicate)
	default:
		return apperr.Internal(err)
	}
}
