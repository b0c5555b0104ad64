// Package state is the client-side state container. State is a plain value
// and Reduce is a pure function: it never mutates its input.
package state

import (
	"fmt"
	"slices"

	"github.com/filevault/internal/models"
)

type AuthState struct {
	Email   string `json:"email,omitempty"`
	Token   string `json:"token,omitempty"`
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

// LoggedIn reports whether an access token is held.
func (a AuthState) LoggedIn() bool {
	return a.Token != ""
}

type FilesState struct {
	Items   []models.File `json:"items"`
	Loading bool          `json:"loading"`
	Error   string        `json:"error,omitempty"`
}

type FoldersState struct {
	Items           []models.Folder `json:"items"`
	CurrentFolderID *string         `json:"currentFolderId"`
	Path            []models.Folder `json:"path"`
	Loading         bool            `json:"loading"`
	Error           string          `json:"error,omitempty"`
}

type State struct {
	Auth    AuthState    `json:"auth"`
	Files   FilesState   `json:"files"`
	Folders FoldersState `json:"folders"`
}

// Action is one event folded into State by Reduce.
type Action interface {
	action()
}

type (
	AuthPending   struct{}
	AuthFulfilled struct {
		Email string
		Token string
	}
	AuthRejected     struct{ Error string }
	RefreshFulfilled struct {
		Email string
		Token string
	}
	RefreshRejected struct{}
	LoggedOut       struct{}

	FilesPending  struct{}
	FilesFetched  struct{ Files []models.File }
	FilesRejected struct{ Error string }
	UploadPending struct{}
	FilesUploaded struct {
		Files  []models.File
		Errors []models.UploadError
	}
	UploadRejected struct{ Error string }
	FileDeleted    struct{ ID string }
	FileMoved      struct{ File models.File }
	FilesCleared   struct{}

	FoldersPending  struct{}
	FoldersFetched  struct{ Folders []models.Folder }
	FoldersRejected struct{ Error string }
	FolderCreated   struct{ Folder models.Folder }
	FolderUpdated   struct{ Folder models.Folder }
	FolderDeleted   struct{ ID string }
	// FolderNavigated opens a folder; nil FolderID is the root.
	FolderNavigated struct {
		FolderID *string
		Path     []models.Folder
	}
)

func (AuthPending) action()      {}
func (AuthFulfilled) action()    {}
func (AuthRejected) action()     {}
func (RefreshFulfilled) action() {}
func (RefreshRejected) action()  {}
func (LoggedOut) action()        {}
func (FilesPending) action()     {}
func (FilesFetched) action()     {}
func (FilesRejected) action()    {}
func (UploadPending) action()    {}
func (FilesUploaded) action()    {}
func (UploadRejected) action()   {}
func (FileDeleted) action()      {}
func (FileMoved) action()        {}
func (FilesCleared) action()     {}
func (FoldersPending) action()   {}
func (FoldersFetched) action()   {}
func (FoldersRejected) action()  {}
func (FolderCreated) action()    {}
func (FolderUpdated) action()    {}
func (FolderDeleted) action()    {}
func (FolderNavigated) action()  {}

// Reduce returns the state after applying a. Unknown actions return s.
func Reduce(s State, a Action) State {
	return State{
		Auth:    reduceAuth(s.Auth, a),
		Files:   reduceFiles(s.Files, a),
		Folders: reduceFolders(s.Folders, a),
	}
}

func reduceAuth(s AuthState, a Action) AuthState {
	switch a := a.(type) {
	case AuthPending:
		s.Loading = true
		s.Error = ""
	case AuthFulfilled:
		s.Loading = false
		s.Email = a.Email
		s.Token = a.Token
	case AuthRejected:
		s.Loading = false
		s.Error = a.Error
	case RefreshFulfilled:
		s.Email = a.Email
		s.Token = a.Token
	case RefreshRejected, LoggedOut:
		s.Email = ""
		s.Token = ""
	}
	return s
}

func reduceFiles(s FilesState, a Action) FilesState {
	switch a := a.(type) {
	case FilesPending, UploadPending:
		s.Loading = true
		s.Error = ""
	case FilesFetched:
		s.Loading = false
		s.Items = slices.Clone(a.Files)
	case FilesRejected:
		s.Loading = false
		s.Error = orDefault(a.Error, "Failed to fetch files")
	case FilesUploaded:
		s.Loading = false
		if len(a.Files) > 0 {
			s.Items = append(slices.Clone(a.Files), s.Items...)
		}
		if len(a.Errors) > 0 {
			s.Error = fmt.Sprintf("%d files failed to upload", len(a.Errors))
		}
	case UploadRejected:
		s.Loading = false
		s.Error = orDefault(a.Error, "File upload failed")
	case FileDeleted:
		s.Items = slices.DeleteFunc(slices.Clone(s.Items), func(f models.File) bool { return f.ID == a.ID })
	case FileMoved:
		s.Items = replaceFile(s.Items, a.File)
	case FilesCleared, LoggedOut, RefreshRejected:
		s = FilesState{}
	}
	return s
}

func reduceFolders(s FoldersState, a Action) FoldersState {
	switch a := a.(type) {
	case FoldersPending:
		s.Loading = true
		s.Error = ""
	case FoldersFetched:
		s.Loading = false
		s.Items = slices.Clone(a.Folders)
	case FoldersRejected:
		s.Loading = false
		s.Error = orDefault(a.Error, "Failed to fetch folders")
	case FolderCreated:
		s.Items = append(slices.Clone(s.Items), a.Folder)
	case FolderUpdated:
		s.Items = replaceFolder(s.Items, a.Folder)
		s.Path = replaceFolder(s.Path, a.Folder)
	case FolderDeleted:
		s.Items = slices.DeleteFunc(slices.Clone(s.Items), func(f models.Folder) bool { return f.ID == a.ID })
	case FolderNavigated:
		if a.FolderID == nil {
			s.CurrentFolderID = nil
		} else {
			id := *a.FolderID
			s.CurrentFolderID = &id
		}
		s.Path = slices.Clone(a.Path)
	case LoggedOut, RefreshRejected:
		s = FoldersState{}
	}
	return s
}

func replaceFile(items []models.File, file models.File) []models.File {
	out := slices.Clone(items)
	if i := slices.IndexFunc(out, func(f models.File) bool { return f.ID == file.ID }); i >= 0 {
		out[i] = file
	}
	return out
}

func replaceFolder(items []models.Folder, folder models.Folder) []models.Folder {
	out := slices.Clone(items)
	if i := slices.IndexFunc(out, func(f models.Folder) bool { return f.ID == folder.ID }); i >= 0 {
		out[i] = folder
	}
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
