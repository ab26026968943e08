package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"legalmatch-backend/models"
	"legalmatch-backend/repository"
	"legalmatch-backend/service"
	"legalmatch-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// FileRecords reads and removes uploaded file records
type FileRecords interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.File, error)
	List(ctx context.Context, limit int) ([]*models.File, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// FileBlobs reads and removes stored file contents
type FileBlobs interface {
	Download(ctx context.Context, storagePath string) (io.ReadCloser, error)
	Delete(ctx context.Context, storagePath string) error
}

// FileHandler handles source document uploads and downloads
type FileHandler struct {
	articles *service.ArticleService
	files    FileRecords
	storage  FileBlobs
}

// NewFileHandler creates a new file handler
func NewFileHandler(articles *service.ArticleService, files FileRecords, storage FileBlobs) *FileHandler {
	return &FileHandler{
		articles: articles,
		files:    files,
		storage:  storage,
	}
}

// UploadArticles handles POST /api/legal/articles/upload. The multipart
// form carries the document in "file" plus "type", "subclass" and an
// optional "user_id".
func (h *FileHandler) UploadArticles(c *gin.Context) {
	var uploadedBy *uuid.UUID
	if raw := c.PostForm("user_id"); raw != "" {
		uid, err := uuid.Parse(raw)
		if err != nil {
			badRequest(c, "INVALID_USER_ID", "Invalid user_id format")
			return
		}
		uploadedBy = &uid
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "MISSING_FILE", "File is required")
		return
	}
	if fileHeader.Size > service.MaxUploadSize {
		badRequest(c, "FILE_TOO_LARGE", fmt.Sprintf("File size exceeds maximum of %d bytes", service.MaxUploadSize))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, fmt.Errorf("failed to open upload: %w", err))
		return
	}
	defer file.Close()

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = storage.ContentType(fileHeader.Filename)
	}

	result, err := h.articles.ExtractAndInsert(c.Request.Context(), service.UploadRequest{
		Type:       c.PostForm("type"),
		Subclass:   c.PostForm("subclass"),
		Filename:   fileHeader.Filename,
		MimeType:   mimeType,
		Size:       fileHeader.Size,
		Content:    file,
		UploadedBy: uploadedBy,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	writeBatchReport(c, result.Report, result)
}

// GetFile handles GET /api/files/:id and streams the stored document
func (h *FileHandler) GetFile(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	file, ok := h.lookup(c, id)
	if !ok {
		return
	}

	reader, err := h.storage.Download(c.Request.Context(), file.StoragePath)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(c, fmt.Errorf("%w: stored file", service.ErrNotFound))
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	defer reader.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.DataFromReader(http.StatusOK, file.Size, file.MimeType, reader, nil)
}

// ListFiles handles GET /api/files?limit=
func (h *FileHandler) ListFiles(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 100 {
		limit = 50
	}

	files, err := h.files.List(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if files == nil {
		files = []*models.File{}
	}
	respondOK(c, http.StatusOK, files)
}

// DeleteFile handles DELETE /api/files/:id. The stored object is removed
// before the record so a failed delete can be retried.
func (h *FileHandler) DeleteFile(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	file, ok := h.lookup(c, id)
	if !ok {
		return
	}
	if err := h.storage.Delete(c.Request.Context(), file.StoragePath); err != nil {
		respondError(c, fmt.Errorf("%w: delete stored file: %w", service.ErrStorage, err))
		return
	}
	if err := h.files.Delete(c.Request.Context(), id); err != nil && !errors.Is(err, repository.ErrNotFound) {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *FileHandler) lookup(c *gin.Context, id uuid.UUID) (*models.File, bool) {
	file, err := h.files.GetByID(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		respondError(c, fmt.Errorf("%w: file", service.ErrNotFound))
		return nil, false
	}
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return file, true
}
