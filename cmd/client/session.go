package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/filevault/internal/client"
	"github.com/filevault/internal/client/state"
)

const (
	defaultServer     = "http://localhost:5000"
	refreshCookieName = "refreshToken"
)

// session is what the CLI keeps between invocations.
type session struct {
	Server       string      `json:"server"`
	RefreshToken string      `json:"refreshToken,omitempty"`
	State        state.State `json:"state"`

	path   string
	client *client.Client
}

func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".filevault-state.json"
	}
	return filepath.Join(home, ".filevault", "state.json")
}

func loadSession() (*session, error) {
	s := &session{path: sessionFile}

	data, err := os.ReadFile(sessionFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read state: %w", err)
	default:
		if err := json.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("parse state %s: %w", sessionFile, err)
		}
	}

	if serverURL != "" {
		s.Server = serverURL
	}
	if s.Server == "" {
		s.Server = defaultServer
	}

	c, err := client.New(s.Server, client.WithToken(s.State.Auth.Token))
	if err != nil {
		return nil, err
	}
	if s.RefreshToken != "" {
		c.RestoreCookie(&http.Cookie{Name: refreshCookieName, Value: s.RefreshToken})
	}
	s.client = c
	return s, nil
}

func (s *session) dispatch(a state.Action) {
	s.State = state.Reduce(s.State, a)
}

func (s *session) save() error {
	if ck := s.client.RefreshCookie(refreshCookieName); ck != nil {
		s.RefreshToken = ck.Value
	}
	if !s.State.Auth.LoggedIn() {
		s.RefreshToken = ""
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	return os.WriteFile(s.path, data, 0o600)
}

// authorized runs fn and, on a 401, refreshes the access token once and
// retries.
func (s *session) authorized(ctx context.Context, fn func() error) error {
	err := fn()
	if !client.IsUnauthorized(err) || s.client.RefreshCookie(refreshCookieName) == nil {
		return err
	}

	resp, rerr := s.client.Refresh(ctx)
	if rerr != nil {
		s.dispatch(state.RefreshRejected{})
		return fmt.Errorf("session expired, please log in again: %w", rerr)
	}
	s.dispatch(state.RefreshFulfilled{Email: resp.User.Email, Token: resp.Token})
	return fn()
}
