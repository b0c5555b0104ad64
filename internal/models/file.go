package models

import (
	"time"
)

// File is the registry record of one uploaded blob.
type File struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	StorageKey string    `json:"key"`
	URL        string    `json:"url"`
	MimeType   string    `json:"mimetype"`
	Size       int64     `json:"size"`
	UserID     string    `json:"userId"`
	FolderID   *string   `json:"folderId"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// UploadError reports one failed item of a batch upload.
type UploadError struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

type UploadResponse struct {
	Files  []*File       `json:"files"`
	Errors []UploadError `json:"errors"`
}

type MoveFileRequest struct {
	FolderID *string `json:"folderId"`
}
