package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filevault/internal/auth"
	"github.com/filevault/internal/config"
	"github.com/filevault/internal/files"
	"github.com/filevault/internal/models"
	"github.com/filevault/internal/repository"
	"github.com/filevault/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// flakyGateway fails every blob whose content is "boom".
type flakyGateway struct {
	storage.Gateway
}

func (g flakyGateway) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if string(data) == "boom" {
		return "", errors.New("bucket unavailable")
	}
	return g.Gateway.Put(ctx, key, bytes.NewReader(data), size, contentType)
}

type testServer struct {
	t      *testing.T
	cfg    *config.Config
	router *gin.Engine
}

func newTestServer(t *testing.T, opts ...func(*config.Config)) *testServer {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{
			APIPrefix:         "/api",
			MaxUploadFiles:    10,
			MaxUploadSize:     1 << 20,
			UploadConcurrency: 2,
			CORSOrigins:       []string{"http://localhost:3000"},
		},
		Auth: config.AuthConfig{
			AccessSecret:  "access",
			RefreshSecret: "refresh",
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 7 * 24 * time.Hour,
			CookieName:    "refreshToken",
			BcryptCost:    4,
		},
		Storage: config.StorageConfig{
			Type:  "local",
			Local: config.LocalConfig{RootPath: t.TempDir()},
		},
		Database:  config.DatabaseConfig{Type: "sqlite", SQLite: config.SQLiteConfig{Path: ":memory:"}},
		Cache:     config.CacheConfig{Type: "memory"},
		RateLimit: config.RateLimitConfig{AuthPerMinute: 1000},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	logger, _ := test.NewNullLogger()
	a, err := newApp(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	a.store = flakyGateway{Gateway: a.store}
	a.files = files.NewService(a.db, repository.NewFileRepository(a.db), repository.NewFolderRepository(a.db), a.store,
		files.Options{MaxFiles: 10, Concurrency: 2}, logger)

	return &testServer{t: t, cfg: cfg, router: newRouter(a)}
}

func (s *testServer) do(method, path, token string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	s.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

type part struct {
	name, contentType, body string
}

func (s *testServer) upload(token string, folderID string, parts ...part) *httptest.ResponseRecorder {
	s.t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, p.name))
		h.Set("Content-Type", p.contentType)
		pw, err := mw.CreatePart(h)
		require.NoError(s.t, err)
		_, err = pw.Write([]byte(p.body))
		require.NoError(s.t, err)
	}
	if folderID != "" {
		require.NoError(s.t, mw.WriteField("folderId", folderID))
	}
	require.NoError(s.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func refreshCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == "refreshToken" {
			return c
		}
	}
	return nil
}

func (s *testServer) register(email string) (string, *http.Cookie) {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/auth/register", "", models.RegisterRequest{Name: "Tester", Email: email, Password: "secret1"})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[models.AuthResponse](s.t, w)
	return resp.AccessToken, refreshCookie(w)
}

// expiredIssuer signs tokens with the server's secrets that are already
// past their expiry.
func (s *testServer) expiredIssuer() *auth.TokenIssuer {
	return auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  s.cfg.Auth.AccessSecret,
		RefreshSecret: s.cfg.Auth.RefreshSecret,
		AccessExpiry:  -time.Minute,
		RefreshExpiry: -time.Minute,
	})
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode[map[string]any](t, w)["status"])
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/auth/register", "", models.RegisterRequest{Name: "A", Email: "A@Example.com", Password: "secret1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[models.AuthResponse](t, w)
	assert.Equal(t, "a@example.com", resp.Email)
	assert.NotEmpty(t, resp.AccessToken)

	cookie := refreshCookie(w)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/api/auth", cookie.Path)
	assert.Equal(t, 7*24*3600, cookie.MaxAge)

	t.Run("DuplicateRegister", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/auth/register", "", models.RegisterRequest{Name: "B", Email: "a@example.com", Password: "secret2"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"message":"User already exists"}`, w.Body.String())
	})

	t.Run("LoginBadPassword", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/auth/login", "", models.LoginRequest{Email: "a@example.com", Password: "wrong"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"message":"Invalid credentials"}`, w.Body.String())
	})

	t.Run("Login", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/auth/login", "", models.LoginRequest{Email: "a@example.com", Password: "secret1"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotNil(t, refreshCookie(w))
	})

	t.Run("Refresh", func(t *testing.T) {
		for _, path := range []string{"/api/auth/refresh-token", "/api/auth/refresh"} {
			w := s.do(http.MethodGet, path, "", nil, cookie)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			refreshed := decode[models.RefreshResponse](t, w)
			assert.Equal(t, "a@example.com", refreshed.User.Email)

			me := s.do(http.MethodGet, "/api/auth/me", refreshed.Token, nil)
			assert.Equal(t, http.StatusOK, me.Code)
		}
	})

	t.Run("RefreshWithoutCookie", func(t *testing.T) {
		w := s.do(http.MethodGet, "/api/auth/refresh-token", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("RefreshWithAccessToken", func(t *testing.T) {
		bogus := &http.Cookie{Name: "refreshToken", Value: resp.AccessToken}
		w := s.do(http.MethodGet, "/api/auth/refresh-token", "", nil, bogus)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("RefreshWithExpiredCookie", func(t *testing.T) {
		me := decode[models.User](t, s.do(http.MethodGet, "/api/auth/me", resp.AccessToken, nil))
		stale, err := s.expiredIssuer().IssueRefresh(me.ID)
		require.NoError(t, err)

		w := s.do(http.MethodGet, "/api/auth/refresh-token", "", nil, &http.Cookie{Name: "refreshToken", Value: stale})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"message":"Invalid or expired refresh token"}`, w.Body.String())
		assert.NotContains(t, decode[map[string]any](t, w), "token")
	})

	t.Run("Logout", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/auth/logout", "", nil, cookie)
		require.Equal(t, http.StatusOK, w.Code)
		cleared := refreshCookie(w)
		require.NotNil(t, cleared)
		assert.True(t, cleared.MaxAge < 0)
	})
}

func TestProtectedRoutes(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/files", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"message":"No token provided"}`, w.Body.String())

	w = s.do(http.MethodGet, "/api/folders", "tampered.token.value", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"message":"Invalid or expired token"}`, w.Body.String())

	token, _ := s.register("a@example.com")
	me := decode[models.User](t, s.do(http.MethodGet, "/api/auth/me", token, nil))
	expired, err := s.expiredIssuer().IssueAccess(me.ID)
	require.NoError(t, err)

	w = s.do(http.MethodGet, "/api/files", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"message":"Invalid or expired token"}`, w.Body.String())
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		path string
		body any
		want string
	}{
		{"RegisterMissingName", "/api/auth/register", map[string]string{"email": "a@example.com", "password": "secret1"}, "Name is required"},
		{"RegisterBadEmail", "/api/auth/register", map[string]string{"name": "A", "email": "not-an-email", "password": "secret1"}, "Invalid email address"},
		{"RegisterShortPassword", "/api/auth/register", map[string]string{"name": "A", "email": "a@example.com", "password": "12345"}, "Password must be at least 6 characters"},
		{"LoginMissingPassword", "/api/auth/login", map[string]string{"email": "a@example.com"}, "Password is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, tt.path, "", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.JSONEq(t, fmt.Sprintf(`{"message":%q}`, tt.want), w.Body.String())
		})
	}

	t.Run("MalformedBody", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString("{"))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"message":"Invalid request body"}`, w.Body.String())
	})

	t.Run("FolderName", func(t *testing.T) {
		token, _ := s.register("folders@example.com")
		for _, name := range []string{"", "   "} {
			w := s.do(http.MethodPost, "/api/folders", token, models.CreateFolderRequest{Name: name})
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.JSONEq(t, `{"message":"Folder name is required"}`, w.Body.String())
		}
	})
}

func TestFolderEndpoints(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.register("a@example.com")

	w := s.do(http.MethodPost, "/api/folders", token, models.CreateFolderRequest{Name: "Docs"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	docs := decode[models.Folder](t, w)
	assert.Equal(t, models.DefaultFolderColor, docs.Color)

	w = s.do(http.MethodPost, "/api/folders", token, models.CreateFolderRequest{Name: "Docs"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"message":"Folder with this name already exists"}`, w.Body.String())

	w = s.do(http.MethodGet, "/api/folders", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Folder](t, w), 1)

	missing := "nope"
	w = s.do(http.MethodPost, "/api/folders", token, models.CreateFolderRequest{Name: "X", ParentID: &missing})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/api/folders", token, models.CreateFolderRequest{Name: "Sub", ParentID: &docs.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	sub := decode[models.Folder](t, w)

	w = s.do(http.MethodGet, "/api/folders?parentId="+docs.ID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Folder](t, w), 1)

	w = s.do(http.MethodGet, "/api/folders/"+sub.ID+"/path", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	path := decode[[]models.Folder](t, w)
	require.Len(t, path, 2)
	assert.Equal(t, "Docs", path[0].Name)

	w = s.do(http.MethodPut, "/api/folders/"+docs.ID, token, map[string]any{"parentId": sub.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"message":"Cannot move folder into one of its subfolders"}`, w.Body.String())

	w = s.do(http.MethodPut, "/api/folders/"+sub.ID, token, map[string]any{"parentId": nil, "name": "Moved"})
	require.Equal(t, http.StatusOK, w.Code)
	moved := decode[models.Folder](t, w)
	assert.Nil(t, moved.ParentID)
	assert.Equal(t, "Moved", moved.Name)

	w = s.do(http.MethodDelete, "/api/folders/"+docs.ID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/folders/"+docs.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteFolderWithSubfolderHoldingFile(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.register("a@example.com")

	a := decode[models.Folder](t, s.do(http.MethodPost, "/api/folders", token, models.CreateFolderRequest{Name: "A"}))
	b := decode[models.Folder](t, s.do(http.MethodPost, "/api/folders", token, models.CreateFolderRequest{Name: "B", ParentID: &a.ID}))

	w := s.upload(token, b.ID, part{"note.txt", "text/plain", "hi"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodDelete, "/api/folders/"+a.ID, token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"message":"Cannot delete folder that contains subfolders. Delete subfolders first."}`, w.Body.String())

	w = s.do(http.MethodDelete, "/api/folders/"+b.ID, token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"message":"Cannot delete folder that contains files. Move or delete files first."}`, w.Body.String())
}

func TestUploadEndpoint(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.register("a@example.com")

	t.Run("PartialBatch", func(t *testing.T) {
		w := s.upload(token, "",
			part{"one.png", "image/png", "1"},
			part{"two.png", "image/png", "boom"},
			part{"three.txt", "text/plain", "3"},
		)
		require.Equal(t, http.StatusMultiStatus, w.Code, w.Body.String())
		resp := decode[models.UploadResponse](t, w)
		assert.Len(t, resp.Files, 2)
		require.Len(t, resp.Errors, 1)
		assert.Equal(t, "two.png", resp.Errors[0].Filename)
	})

	t.Run("AllFailed", func(t *testing.T) {
		w := s.upload(token, "", part{"bad.txt", "text/plain", "boom"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decode[models.UploadResponse](t, w)
		assert.Empty(t, resp.Files)
		assert.Len(t, resp.Errors, 1)
	})

	t.Run("NoFiles", func(t *testing.T) {
		w := s.upload(token, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"message":"No files provided"}`, w.Body.String())
	})

	t.Run("NotMultipart", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/files/upload", token, map[string]string{"files": "x"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"message":"No files provided"}`, w.Body.String())
	})

	t.Run("ListAndFilter", func(t *testing.T) {
		w := s.do(http.MethodGet, "/api/files", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]models.File](t, w), 2)

		w = s.do(http.MethodGet, "/api/files?type=image", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		images := decode[[]models.File](t, w)
		require.Len(t, images, 1)
		assert.Equal(t, "one.png", images[0].Filename)
	})
}

func TestUploadBodyLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.MaxUploadFiles = 1
		cfg.Server.MaxUploadSize = 1024
	})
	token, _ := s.register("a@example.com")

	w := s.upload(token, "", part{"big.bin", "application/octet-stream", string(bytes.Repeat([]byte("x"), 64<<10))})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.JSONEq(t, `{"message":"Upload exceeds the maximum request size"}`, w.Body.String())

	w = s.do(http.MethodGet, "/api/files", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]models.File](t, w))

	w = s.upload(token, "", part{"small.txt", "text/plain", "ok"})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestFileMoveAndDelete(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.register("a@example.com")

	folder := decode[models.Folder](t, s.do(http.MethodPost, "/api/folders", token, models.CreateFolderRequest{Name: "Docs"}))
	uploaded := decode[models.UploadResponse](t, s.upload(token, "", part{"a.txt", "text/plain", "a"}))
	require.Len(t, uploaded.Files, 1)
	file := uploaded.Files[0]

	w := s.do(http.MethodPut, "/api/files/"+file.ID, token, models.MoveFileRequest{FolderID: &folder.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, folder.ID, *decode[models.File](t, w).FolderID)

	w = s.do(http.MethodGet, "/api/files?folderId="+folder.ID, token, nil)
	assert.Len(t, decode[[]models.File](t, w), 1)

	other, _ := s.register("b@example.com")
	w = s.do(http.MethodDelete, "/api/files/"+file.ID, other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodDelete, "/api/files/"+file.ID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"File deleted"}`, w.Body.String())

	w = s.do(http.MethodDelete, "/api/files/"+file.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"message":"File not found"}`, w.Body.String())
}
