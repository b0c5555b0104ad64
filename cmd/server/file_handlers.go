package main

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/filevault/internal/apperr"
	"github.com/filevault/internal/files"
	"github.com/filevault/internal/middleware"
	"github.com/filevault/internal/models"
)

// multipartOverhead covers part headers and boundaries of one form part.
const multipartOverhead = 16 << 10

// uploadBodyLimit caps a whole upload request; zero means no cap.
func uploadBodyLimit(maxFiles int, maxFileSize int64) int64 {
	if maxFiles <= 0 || maxFileSize <= 0 {
		return 0
	}
	return int64(maxFiles)*(maxFileSize+multipartOverhead) + multipartOverhead
}

// handleUpload stores the multipart "files" field. 201 when every file was
// stored, 207 for a mixed result, 400 when none was.
func handleUpload(fileService *files.Service, maxBody int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBody > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
		}

		form, err := c.MultipartForm()
		if err != nil {
			var tooLarge *http.MaxBytesError
			switch {
			case errors.As(err, &tooLarge):
				respondError(c, apperr.TooLarge("Upload exceeds the maximum request size"))
			case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
				badRequest(c, "No files provided")
			default:
				badRequest(c, "Invalid multipart form")
			}
			return
		}

		headers := form.File["files"]
		uploads := make([]files.Upload, 0, len(headers))
		for _, fh := range headers {
			uploads = append(uploads, uploadFromHeader(fh))
		}

		var folderID *string
		if vals := form.Value["folderId"]; len(vals) > 0 && vals[0] != "" {
			folderID = &vals[0]
		}

		result, err := fileService.UploadMany(c.Request.Context(), middleware.UserID(c), folderID, uploads)
		if err != nil {
			respondError(c, err)
			return
		}

		status := http.StatusCreated
		if err := result.Err(); err != nil {
			status = apperr.HTTPStatus(err)
		}
		c.JSON(status, result.Response())
	}
}

func uploadFromHeader(fh *multipart.FileHeader) files.Upload {
	return files.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// handleListFiles supports ?type=<mime prefix> and ?folderId= (empty or
// "null" for unfiled files).
func handleListFiles(fileService *files.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := files.Filter{TypePrefix: c.Query("type")}
		if folderID, ok := c.GetQuery("folderId"); ok {
			filter.FolderSet = true
			if folderID != "" && folderID != "null" {
				filter.FolderID = &folderID
			}
		}

		list, err := fileService.List(c.Request.Context(), middleware.UserID(c), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

func handleMoveFile(fileService *files.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.MoveFileRequest
		if !bindJSON(c, &req) {
			return
		}

		file, err := fileService.Move(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.FolderID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, file)
	}
}

func handleDeleteFile(fileService *files.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := fileService.Delete(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.MessageResponse{Message: "File deleted"})
	}
}
