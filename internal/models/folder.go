package models

import (
	"encoding/json"
	"time"
)

const DefaultFolderColor = "#3B82F6"

// Folder is a node of a user's folder tree. ParentID nil means root level.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UserID    string    `json:"userId"`
	ParentID  *string   `json:"parentId"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsRoot returns true if the folder is at the root level.
func (f *Folder) IsRoot() bool {
	return f.ParentID == nil
}

type CreateFolderRequest struct {
	Name     string  `json:"name" binding:"required"`
	ParentID *string `json:"parentId"`
	Color    string  `json:"color"`
}

// UpdateFolderRequest carries optional fields. ParentID distinguishes an
// absent key (keep current parent) from an explicit null or "" (move to root).
type UpdateFolderRequest struct {
	Name     *string        `json:"name"`
	Color    *string        `json:"color"`
	ParentID OptionalString `json:"parentId"`
}

// MarshalJSON omits fields that are not being changed.
func (r UpdateFolderRequest) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, 3)
	if r.Name != nil {
		body["name"] = *r.Name
	}
	if r.Color != nil {
		body["color"] = *r.Color
	}
	if r.ParentID.Set {
		body["parentId"] = r.ParentID.Value
	}
	return json.Marshal(body)
}
