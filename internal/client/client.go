// Package client is a typed HTTP client for the filevault API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/filevault/internal/models"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the server.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// Client talks to one server. The cookie jar carries the refresh cookie;
// the access token is kept in memory.
type Client struct {
	baseURL *url.URL
	prefix  string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAPIPrefix overrides the default "/api" route prefix.
func WithAPIPrefix(prefix string) Option {
	return func(c *Client) { c.prefix = strings.TrimRight(prefix, "/") }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	c := &Client{
		baseURL: u,
		prefix:  "/api",
		http:    &http.Client{Jar: jar, Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		c.http.Jar = jar
	}
	return c, nil
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// RefreshCookie returns the refresh cookie held by the jar, if any.
func (c *Client) RefreshCookie(name string) *http.Cookie {
	for _, ck := range c.http.Jar.Cookies(c.endpoint("/auth/refresh-token")) {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

// RestoreCookie puts a previously saved refresh cookie back into the jar.
func (c *Client) RestoreCookie(ck *http.Cookie) {
	if ck == nil {
		return
	}
	ck.Path = c.prefix + "/auth"
	c.http.Jar.SetCookies(c.endpoint("/auth"), []*http.Cookie{ck})
}

func (c *Client) Register(ctx context.Context, name, email, password string) (*models.AuthResponse, error) {
	var resp models.AuthResponse
	body := models.RegisterRequest{Name: name, Email: email, Password: password}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/register", body, &resp, false); err != nil {
		return nil, err
	}
	c.SetToken(resp.AccessToken)
	return &resp, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	var resp models.AuthResponse
	body := models.LoginRequest{Email: email, Password: password}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", body, &resp, false); err != nil {
		return nil, err
	}
	c.SetToken(resp.AccessToken)
	return &resp, nil
}

// Refresh exchanges the refresh cookie for a new access token.
func (c *Client) Refresh(ctx context.Context) (*models.RefreshResponse, error) {
	var resp models.RefreshResponse
	if err := c.doJSON(ctx, http.MethodGet, "/auth/refresh-token", nil, &resp, false); err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

func (c *Client) Logout(ctx context.Context) error {
	err := c.doJSON(ctx, http.MethodPost, "/auth/logout", nil, nil, false)
	c.SetToken("")
	return err
}

func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.doJSON(ctx, http.MethodGet, "/auth/me", nil, &user, true); err != nil {
		return nil, err
	}
	return &user, nil
}

// UploadFiles sends paths as one multipart batch. A 207 answer is not an
// error: the response carries both stored files and per-file errors.
func (c *Client) UploadFiles(ctx context.Context, folderID *string, paths ...string) (*models.UploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for _, p := range paths {
		if err := addFilePart(mw, p); err != nil {
			return nil, err
		}
	}
	if folderID != nil && *folderID != "" {
		if err := mw.WriteField("folderId", *folderID); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/files/upload", &buf, true)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp struct {
		models.UploadResponse
		Message string `json:"message"`
	}
	status, err := c.send(req, &resp, http.StatusMultiStatus, http.StatusBadRequest)
	if err != nil {
		return nil, err
	}
	// a 400 without per-file errors rejected the request as a whole
	if status == http.StatusBadRequest && len(resp.Errors) == 0 {
		msg := resp.Message
		if msg == "" {
			msg = "File upload failed"
		}
		return nil, &APIError{Status: status, Message: msg}
	}
	return &resp.UploadResponse, nil
}

func addFilePart(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return fmt.Errorf("detect type of %s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, filepath.Base(path)))
	h.Set("Content-Type", mt.String())

	w, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

// ListFiles lists files filtered by MIME prefix and, when folderID is
// non-nil, by folder ("" for unfiled).
func (c *Client) ListFiles(ctx context.Context, typePrefix string, folderID *string) ([]models.File, error) {
	q := url.Values{}
	if typePrefix != "" {
		q.Set("type", typePrefix)
	}
	if folderID != nil {
		q.Set("folderId", *folderID)
	}

	var files []models.File
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/files", q), nil, &files, true); err != nil {
		return nil, err
	}
	return files, nil
}

func (c *Client) MoveFile(ctx context.Context, id string, folderID *string) (*models.File, error) {
	var file models.File
	body := models.MoveFileRequest{FolderID: folderID}
	if err := c.doJSON(ctx, http.MethodPut, "/files/"+url.PathEscape(id), body, &file, true); err != nil {
		return nil, err
	}
	return &file, nil
}

func (c *Client) DeleteFile(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/files/"+url.PathEscape(id), nil, nil, true)
}

func (c *Client) CreateFolder(ctx context.Context, req models.CreateFolderRequest) (*models.Folder, error) {
	var folder models.Folder
	if err := c.doJSON(ctx, http.MethodPost, "/folders", req, &folder, true); err != nil {
		return nil, err
	}
	return &folder, nil
}

// ListFolders lists children of parentID, root folders when nil.
func (c *Client) ListFolders(ctx context.Context, parentID *string) ([]models.Folder, error) {
	q := url.Values{}
	if parentID != nil && *parentID != "" {
		q.Set("parentId", *parentID)
	}

	var folders []models.Folder
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/folders", q), nil, &folders, true); err != nil {
		return nil, err
	}
	return folders, nil
}

func (c *Client) FolderPath(ctx context.Context, id string) ([]models.Folder, error) {
	var path []models.Folder
	if err := c.doJSON(ctx, http.MethodGet, "/folders/"+url.PathEscape(id)+"/path", nil, &path, true); err != nil {
		return nil, err
	}
	return path, nil
}

func (c *Client) UpdateFolder(ctx context.Context, id string, req models.UpdateFolderRequest) (*models.Folder, error) {
	var folder models.Folder
	if err := c.doJSON(ctx, http.MethodPut, "/folders/"+url.PathEscape(id), req, &folder, true); err != nil {
		return nil, err
	}
	return &folder, nil
}

func (c *Client) DeleteFolder(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/folders/"+url.PathEscape(id), nil, nil, true)
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

func (c *Client) endpoint(path string) *url.URL {
	ref, _ := url.Parse(c.prefix + path)
	return c.baseURL.ResolveReference(ref)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, authed bool) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path).String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if authed {
		if token := c.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any, authed bool) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, body, authed)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	_, err = c.send(req, out)
	return err
}

// send executes req and decodes a 2xx body into out. Statuses listed in
// accept are decoded as well instead of becoming an APIError.
func (c *Client) send(req *http.Request, out any, accept ...int) (int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	for _, s := range accept {
		if resp.StatusCode == s {
			ok = true
		}
	}

	if !ok {
		var msg models.MessageResponse
		if json.Unmarshal(data, &msg) != nil || msg.Message == "" {
			msg.Message = http.StatusText(resp.StatusCode)
		}
		return resp.StatusCode, &APIError{Status: resp.StatusCode, Message: msg.Message}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
