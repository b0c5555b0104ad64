package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/filevault/internal/database"
	"github.com/filevault/internal/models"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(ctx))
	return db
}

func createUser(t *testing.T, db *database.DB, email string) *models.User {
	t.Helper()
	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Name:         "tester",
		Email:        email,
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, NewUserRepository(db).Create(context.Background(), user))
	return user
}

func newFolder(userID string, parentID *string, name string) *models.Folder {
	now := time.Now().UTC()
	return &models.Folder{
		ID:        uuid.NewString(),
		Name:      name,
		UserID:    userID,
		ParentID:  parentID,
		Color:     models.DefaultFolderColor,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newFile(userID string, folderID *string, name, mime string, createdAt time.Time) *models.File {
	id := uuid.NewString()
	return &models.File{
		ID:         id,
		Filename:   name,
		StorageKey: userID + "/" + id + ".bin",
		URL:        "http://blobs/" + id,
		MimeType:   mime,
		Size:       42,
		UserID:     userID,
		FolderID:   folderID,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
}
