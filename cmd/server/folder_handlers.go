package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/filevault/internal/folder"
	"github.com/filevault/internal/middleware"
	"github.com/filevault/internal/models"
)

func handleCreateFolder(folderService *folder.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CreateFolderRequest
		if !bindJSON(c, &req) {
			return
		}

		created, err := folderService.Create(c.Request.Context(), middleware.UserID(c), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, created)
	}
}

// handleListFolders lists children of ?parentId=, or root folders without it.
func handleListFolders(folderService *folder.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var parentID *string
		if p := c.Query("parentId"); p != "" && p != "null" {
			parentID = &p
		}

		list, err := folderService.List(c.Request.Context(), middleware.UserID(c), parentID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

func handleGetFolder(folderService *folder.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, err := folderService.Get(c.Request.Context(), middleware.UserID(c), c.Param("folderId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, f)
	}
}

func handleFolderPath(folderService *folder.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		path, err := folderService.Path(c.Request.Context(), middleware.UserID(c), c.Param("folderId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, path)
	}
}

func handleUpdateFolder(folderService *folder.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.UpdateFolderRequest
		if !bindJSON(c, &req) {
			return
		}

		updated, err := folderService.Update(c.Request.Context(), middleware.UserID(c), c.Param("folderId"), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

func handleDeleteFolder(folderService *folder.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := folderService.Delete(c.Request.Context(), middleware.UserID(c), c.Param("folderId")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.MessageResponse{Message: "Folder deleted"})
	}
}
