package folder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filevault/internal/apperr"
	"github.com/filevault/internal/database"
	"github.com/filevault/internal/models"
	"github.com/filevault/internal/repository"
)

type fixture struct {
	db    *database.DB
	svc   *Service
	files *repository.FileRepository
	user  string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(ctx))

	now := time.Now().UTC()
	user := &models.User{ID: uuid.NewString(), Name: "u", Email: "u@example.com", PasswordHash: "h", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repository.NewUserRepository(db).Create(ctx, user))

	files := repository.NewFileRepository(db)
	logger, _ := test.NewNullLogger()
	return &fixture{
		db:    db,
		svc:   NewService(db, repository.NewFolderRepository(db), files, logger),
		files: files,
		user:  user.ID,
	}
}

func (f *fixture) mkdir(t *testing.T, name string, parent *string) *models.Folder {
	t.Helper()
	folder, err := f.svc.Create(context.Background(), f.user, models.CreateFolderRequest{Name: name, ParentID: parent})
	require.NoError(t, err)
	return folder
}

func assertCode(t *testing.T, err error, code apperr.Code, msg string) {
	t.Helper()
	require.Error(t, err)
	typed, ok := apperr.As(err)
	require.True(t, ok, "untyped error %v", err)
	assert.Equal(t, code, typed.Code)
	if msg != "" {
		assert.Equal(t, msg, typed.Message)
	}
}

func ptr(s string) *string { return &s }

func TestCreate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	work := f.mkdir(t, "  Work ", nil)
	assert.Equal(t, "Work", work.Name)
	assert.Equal(t, models.DefaultFolderColor, work.Color)
	assert.Nil(t, work.ParentID)

	child, err := f.svc.Create(ctx, f.user, models.CreateFolderRequest{Name: "Sub", ParentID: &work.ID, Color: "#EF4444"})
	require.NoError(t, err)
	assert.Equal(t, "#EF4444", child.Color)
	assert.Equal(t, work.ID, *child.ParentID)

	t.Run("EmptyParentMeansRoot", func(t *testing.T) {
		folder, err := f.svc.Create(ctx, f.user, models.CreateFolderRequest{Name: "Top", ParentID: ptr("")})
		require.NoError(t, err)
		assert.Nil(t, folder.ParentID)
	})

	t.Run("BlankName", func(t *testing.T) {
		_, err := f.svc.Create(ctx, f.user, models.CreateFolderRequest{Name: "   "})
		assertCode(t, err, apperr.CodeValidation, "Folder name is required")
	})

	t.Run("MissingParent", func(t *testing.T) {
		_, err := f.svc.Create(ctx, f.user, models.CreateFolderRequest{Name: "X", ParentID: ptr("nope")})
		assertCode(t, err, apperr.CodeNotFound, "Parent folder not found")
	})

	t.Run("ForeignParent", func(t *testing.T) {
		_, err := f.svc.Create(ctx, "someone-else", models.CreateFolderRequest{Name: "X", ParentID: &work.ID})
		assertCode(t, err, apperr.CodeNotFound, "Parent folder not found")
	})

	t.Run("DuplicateSibling", func(t *testing.T) {
		_, err := f.svc.Create(ctx, f.user, models.CreateFolderRequest{Name: "Work"})
		assertCode(t, err, apperr.CodeConflict, "Folder with this name already exists")
	})

	t.Run("SameNameElsewhere", func(t *testing.T) {
		_, err := f.svc.Create(ctx, f.user, models.CreateFolderRequest{Name: "Work", ParentID: &work.ID})
		assert.NoError(t, err)
	})
}

func TestCreate_ConcurrentDuplicates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Create(ctx, f.user, models.CreateFolderRequest{Name: "Race"})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, apperr.Is(err, apperr.CodeConflict), "got %v", err)
	}
	assert.Equal(t, 1, ok)
}

func TestList(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	b := f.mkdir(t, "b", nil)
	f.mkdir(t, "a", nil)
	f.mkdir(t, "c", &b.ID)

	roots, err := f.svc.List(ctx, f.user, nil)
	require.NoError(t, err)
	require.Len(t, roots, 2)
	assert.Equal(t, "a", roots[0].Name)
	assert.Equal(t, "b", roots[1].Name)

	roots, err = f.svc.List(ctx, f.user, ptr(""))
	require.NoError(t, err)
	assert.Len(t, roots, 2)

	children, err := f.svc.List(ctx, f.user, &b.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "c", children[0].Name)

	none, err := f.svc.List(ctx, "another-user", nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPath(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a := f.mkdir(t, "A", nil)
	b := f.mkdir(t, "B", &a.ID)
	c := f.mkdir(t, "C", &b.ID)

	path, err := f.svc.Path(ctx, f.user, c.ID)
	require.NoError(t, err)
	require.Len(t, path, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{path[0].Name, path[1].Name, path[2].Name})

	_, err = f.svc.Path(ctx, f.user, "missing")
	assertCode(t, err, apperr.CodeNotFound, "Folder not found")
}

func TestUpdate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a := f.mkdir(t, "A", nil)
	b := f.mkdir(t, "B", &a.ID)
	c := f.mkdir(t, "C", &b.ID)
	d := f.mkdir(t, "D", nil)

	t.Run("RenameAndColor", func(t *testing.T) {
		updated, err := f.svc.Update(ctx, f.user, d.ID, models.UpdateFolderRequest{Name: ptr("Docs"), Color: ptr("#111111")})
		require.NoError(t, err)
		assert.Equal(t, "Docs", updated.Name)
		assert.Equal(t, "#111111", updated.Color)
		assert.Nil(t, updated.ParentID)
		assert.False(t, updated.UpdatedAt.Before(d.UpdatedAt))
	})

	t.Run("AbsentParentKeepsParent", func(t *testing.T) {
		updated, err := f.svc.Update(ctx, f.user, c.ID, models.UpdateFolderRequest{Name: ptr("C2")})
		require.NoError(t, err)
		require.NotNil(t, updated.ParentID)
		assert.Equal(t, b.ID, *updated.ParentID)
	})

	t.Run("MoveIntoItself", func(t *testing.T) {
		_, err := f.svc.Update(ctx, f.user, a.ID, models.UpdateFolderRequest{ParentID: models.Some(a.ID)})
		assertCode(t, err, apperr.CodeValidation, "Cannot move folder into itself")
	})

	t.Run("MoveIntoDescendant", func(t *testing.T) {
		_, err := f.svc.Update(ctx, f.user, a.ID, models.UpdateFolderRequest{ParentID: models.Some(c.ID)})
		assertCode(t, err, apperr.CodeValidation, "Cannot move folder into one of its subfolders")

		_, err = f.svc.Update(ctx, f.user, a.ID, models.UpdateFolderRequest{ParentID: models.Some(b.ID)})
		assertCode(t, err, apperr.CodeValidation, "Cannot move folder into one of its subfolders")
	})

	t.Run("MissingParent", func(t *testing.T) {
		_, err := f.svc.Update(ctx, f.user, a.ID, models.UpdateFolderRequest{ParentID: models.Some("nope")})
		assertCode(t, err, apperr.CodeNotFound, "Parent folder not found")
	})

	t.Run("MoveAcross", func(t *testing.T) {
		updated, err := f.svc.Update(ctx, f.user, c.ID, models.UpdateFolderRequest{ParentID: models.Some(d.ID)})
		require.NoError(t, err)
		assert.Equal(t, d.ID, *updated.ParentID)
	})

	t.Run("MoveToRoot", func(t *testing.T) {
		updated, err := f.svc.Update(ctx, f.user, c.ID, models.UpdateFolderRequest{ParentID: models.Null()})
		require.NoError(t, err)
		assert.Nil(t, updated.ParentID)

		updated, err = f.svc.Update(ctx, f.user, b.ID, models.UpdateFolderRequest{ParentID: models.Some("")})
		require.NoError(t, err)
		assert.Nil(t, updated.ParentID)
	})

	t.Run("BlankName", func(t *testing.T) {
		_, err := f.svc.Update(ctx, f.user, a.ID, models.UpdateFolderRequest{Name: ptr(" ")})
		assertCode(t, err, apperr.CodeValidation, "Folder name is required")
	})

	t.Run("NameCollision", func(t *testing.T) {
		_, err := f.svc.Update(ctx, f.user, a.ID, models.UpdateFolderRequest{Name: ptr("Docs")})
		assertCode(t, err, apperr.CodeConflict, "Folder with this name already exists")
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := f.svc.Update(ctx, f.user, "missing", models.UpdateFolderRequest{Name: ptr("X")})
		assertCode(t, err, apperr.CodeNotFound, "Folder not found")
	})
}

func TestUpdate_ConcurrentOppositeMoves(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for round := 0; round < 5; round++ {
		x := f.mkdir(t, "X"+uuid.NewString(), nil)
		y := f.mkdir(t, "Y"+uuid.NewString(), nil)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		moves := [][2]string{{x.ID, y.ID}, {y.ID, x.ID}}
		for i, m := range moves {
			wg.Add(1)
			go func(i int, id, parent string) {
				defer wg.Done()
				_, errs[i] = f.svc.Update(ctx, f.user, id, models.UpdateFolderRequest{ParentID: models.Some(parent)})
			}(i, m[0], m[1])
		}
		wg.Wait()

		ok := 0
		for _, err := range errs {
			if err == nil {
				ok++
				continue
			}
			assertCode(t, err, apperr.CodeValidation, "Cannot move folder into one of its subfolders")
		}
		assert.Equal(t, 1, ok)

		for _, id := range []string{x.ID, y.ID} {
			_, err := f.svc.Path(ctx, f.user, id)
			assert.NoError(t, err)
		}
	}
}

func TestDelete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	parent := f.mkdir(t, "Parent", nil)
	child := f.mkdir(t, "Child", &parent.ID)

	err := f.svc.Delete(ctx, f.user, parent.ID)
	assertCode(t, err, apperr.CodeValidation, "Cannot delete folder that contains subfolders. Delete subfolders first.")

	now := time.Now().UTC()
	file := &models.File{
		ID: uuid.NewString(), Filename: "a.txt", StorageKey: f.user + "/a.txt", URL: "u",
		MimeType: "text/plain", Size: 1, UserID: f.user, FolderID: &child.ID, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, f.files.Create(ctx, file))

	err = f.svc.Delete(ctx, f.user, child.ID)
	assertCode(t, err, apperr.CodeValidation, "Cannot delete folder that contains files. Move or delete files first.")

	require.NoError(t, f.files.Delete(ctx, f.user, file.ID))
	require.NoError(t, f.svc.Delete(ctx, f.user, child.ID))
	require.NoError(t, f.svc.Delete(ctx, f.user, parent.ID))

	err = f.svc.Delete(ctx, f.user, parent.ID)
	assertCode(t, err, apperr.CodeNotFound, "Folder not found")
}
