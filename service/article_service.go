package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"legalmatch-backend/ai"
	"legalmatch-backend/logger"
	"legalmatch-backend/models"
	"legalmatch-backend/repository"
	"legalmatch-backend/retry"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultBatchSize is the number of articles appended per batch
	DefaultBatchSize = 50
	// MaxUploadSize bounds uploaded source documents
	MaxUploadSize = 10 * 1024 * 1024

	defaultPageLimit = 20
	maxPageLimit     = 100
)

// ArticleService manages the legal article store
type ArticleService struct {
	articles  ArticleStore
	files     FileStore
	storage   FileStorage
	model     ai.Model
	log       *logrus.Logger
	retryOpts []retry.Option
	batchSize int
}

// ArticleServiceOption is a functional option for ArticleService
type ArticleServiceOption func(*ArticleService)

// ArticlesWithStore sets the article store
func ArticlesWithStore(store ArticleStore) ArticleServiceOption {
	return func(s *ArticleService) {
		s.articles = store
	}
}

// ArticlesWithFileRepository sets the uploaded file records repository
func ArticlesWithFileRepository(files FileStore) ArticleServiceOption {
	return func(s *ArticleService) {
		s.files = files
	}
}

// ArticlesWithStorage sets the uploaded document storage
func ArticlesWithStorage(st FileStorage) ArticleServiceOption {
	return func(s *ArticleService) {
		s.storage = st
	}
}

// ArticlesWithModel sets the AI model used for document extraction
func ArticlesWithModel(model ai.Model) ArticleServiceOption {
	return func(s *ArticleService) {
		s.model = model
	}
}

// ArticlesWithLogger sets the logger
func ArticlesWithLogger(log *logrus.Logger) ArticleServiceOption {
	return func(s *ArticleService) {
		s.log = log
	}
}

// ArticlesWithRetryOptions tunes the backoff around extraction calls
func ArticlesWithRetryOptions(opts ...retry.Option) ArticleServiceOption {
	return func(s *ArticleService) {
		s.retryOpts = append(s.retryOpts, opts...)
	}
}

// ArticlesWithBatchSize overrides DefaultBatchSize
func ArticlesWithBatchSize(n int) ArticleServiceOption {
	return func(s *ArticleService) {
		s.batchSize = n
	}
}

// NewArticleService creates a new article service
func NewArticleService(opts ...ArticleServiceOption) *ArticleService {
	s := &ArticleService{log: logger.Discard(), batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(s)
	}
	if s.batchSize <= 0 {
		s.batchSize = DefaultBatchSize
	}
	return s
}

// Categories lists the (type, subclass) pairs present in the store
func (s *ArticleService) Categories(ctx context.Context) ([]models.Category, error) {
	if s.articles == nil {
		return nil, notSet("article store")
	}
	categories, err := s.articles.Categories(ctx)
	if err != nil {
		return nil, storageErr("list categories", err)
	}
	if categories == nil {
		categories = []models.Category{}
	}
	return categories, nil
}

// ArticlePage is one page of a (type, subclass) article listing
type ArticlePage struct {
	Type       models.LegalType `json:"type"`
	Subclass   string           `json:"subclass"`
	Articles   []models.Article `json:"articles"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	Total      int              `json:"total"`
	TotalPages int              `json:"total_pages"`
}

// ListArticles returns a page of articles. page defaults to 1 and limit to
// 20, capped at 100.
func (s *ArticleService) ListArticles(ctx context.Context, legalType, subclass string, page, limit int) (*ArticlePage, error) {
	if s.articles == nil {
		return nil, notSet("article store")
	}
	t, ok := models.NormalizeLegalType(legalType)
	if !ok {
		return nil, invalid("type", fmt.Sprintf("unknown legal type %q", legalType))
	}
	subclass = strings.TrimSpace(subclass)
	if subclass == "" {
		return nil, required("subclass")
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	articles, total, err := s.articles.ListArticles(ctx, t, subclass, (page-1)*limit, limit)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: no articles filed under %s/%s", ErrNotFound, t, subclass)
	}
	if err != nil {
		return nil, storageErr("list articles", err)
	}
	if articles == nil {
		articles = []models.Article{}
	}

	return &ArticlePage{
		Type:       t,
		Subclass:   subclass,
		Articles:   articles,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

// InsertArticlesRequest is a direct JSON article insert
type InsertArticlesRequest struct {
	Type     string           `json:"type"`
	Subclass string           `json:"subclass"`
	Articles []models.Article `json:"articles"`
}

// Validate checks the request and returns the stored legal type
func (r InsertArticlesRequest) Validate() (models.LegalType, error) {
	t, ok := models.NormalizeLegalType(r.Type)
	if !ok {
		if strings.TrimSpace(r.Type) == "" {
			return "", required("type")
		}
		return "", invalid("type", fmt.Sprintf("unknown legal type %q", r.Type))
	}
	if strings.TrimSpace(r.Subclass) == "" {
		return "", required("subclass")
	}
	if len(r.Articles) == 0 {
		return "", required("articles")
	}
	for i, a := range r.Articles {
		if err := a.Validate(); err != nil {
			return "", invalid(fmt.Sprintf("articles[%d]", i), err.Error())
		}
	}
	return t, nil
}

// BatchFailure describes one rejected batch
type BatchFailure struct {
	Batch int    `json:"batch"`
	Count int    `json:"count"`
	Error string `json:"error"`
}

// BatchReport is the per-batch outcome of an insert. Batches are numbered
// from 1.
type BatchReport struct {
	TotalArticles    int            `json:"total_articles"`
	InsertedArticles int            `json:"inserted_articles"`
	TotalBatches     int            `json:"total_batches"`
	Successful       []int          `json:"successful_batches"`
	Failed           []BatchFailure `json:"failed_batches"`
	Suggestion       string         `json:"suggestion,omitempty"`
}

// BatchOutcome summarises a BatchReport
type BatchOutcome int

const (
	BatchComplete BatchOutcome = iota
	BatchPartial
	BatchFailed
)

// Outcome reports whether every, some or no batch was inserted
func (r *BatchReport) Outcome() BatchOutcome {
	switch {
	case len(r.Failed) == 0:
		return BatchComplete
	case len(r.Successful) == 0:
		return BatchFailed
	default:
		return BatchPartial
	}
}

func batchSuggestion(failed []BatchFailure) string {
	switch len(failed) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("Retry batch %d", failed[0].Batch)
	default:
		return "Review the errors for the failed batches before retrying"
	}
}

// InsertArticles appends the articles to their (type, subclass) document
// in batches. A failed batch does not stop the following ones; the
// report lists what went in and what did not.
func (s *ArticleService) InsertArticles(ctx context.Context, req InsertArticlesRequest) (*BatchReport, error) {
	t, err := req.Validate()
	if err != nil {
		return nil, err
	}
	if s.articles == nil {
		return nil, notSet("article store")
	}
	subclass := strings.TrimSpace(req.Subclass)

	report := &BatchReport{
		TotalArticles: len(req.Articles),
		Successful:    []int{},
		Failed:        []BatchFailure{},
	}

	for start, n := 0, 1; start < len(req.Articles); start, n = start+s.batchSize, n+1 {
		end := min(start+s.batchSize, len(req.Articles))
		batch := req.Articles[start:end]
		report.TotalBatches++

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := s.articles.AppendArticles(ctx, t, subclass, batch); err != nil {
			s.log.WithFields(logrus.Fields{
				"type":     t,
				"subclass": subclass,
				"batch":    n,
				"error":    err,
			}).Warn("Article batch rejected")
			report.Failed = append(report.Failed, BatchFailure{Batch: n, Count: len(batch), Error: err.Error()})
			continue
		}
		report.Successful = append(report.Successful, n)
		report.InsertedArticles += len(batch)
	}

	report.Suggestion = batchSuggestion(report.Failed)
	s.log.WithFields(logrus.Fields{
		"type":     t,
		"subclass": subclass,
		"inserted": report.InsertedArticles,
		"failed":   len(report.Failed),
	}).Info("Articles inserted")
	return report, nil
}

// UploadRequest is a source document submitted for article extraction
type UploadRequest struct {
	Type       string
	Subclass   string
	Filename   string
	MimeType   string
	Size       int64
	Content    io.Reader
	UploadedBy *uuid.UUID
}

// ExtractResult is the outcome of ExtractAndInsert
type ExtractResult struct {
	File      *models.File `json:"file"`
	Extracted int          `json:"extracted"`
	Skipped   int          `json:"skipped"`
	Report    *BatchReport `json:"report"`
}

// IsTextDocument reports whether an upload is a plain text source
func IsTextDocument(filename, mimeType string) bool {
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md":
		return true
	}
	return false
}

// ExtractAndInsert stores an uploaded legal text, asks the model to pull
// its articles out as JSON and inserts them like InsertArticles
func (s *ArticleService) ExtractAndInsert(ctx context.Context, req UploadRequest) (*ExtractResult, error) {
	t, ok := models.NormalizeLegalType(req.Type)
	if !ok {
		return nil, invalid("type", fmt.Sprintf("unknown legal type %q", req.Type))
	}
	subclass := strings.TrimSpace(req.Subclass)
	if subclass == "" {
		return nil, required("subclass")
	}
	if req.Content == nil {
		return nil, required("file")
	}
	if !IsTextDocument(req.Filename, req.MimeType) {
		return nil, fmt.Errorf("%w: %s (only plain text documents are accepted)", ErrUnsupportedMedia, req.MimeType)
	}
	if req.Size > MaxUploadSize {
		return nil, invalid("file", fmt.Sprintf("exceeds maximum of %d bytes", MaxUploadSize))
	}
	if s.storage == nil || s.files == nil {
		return nil, notSet("file storage")
	}
	if s.model == nil {
		return nil, notSet("AI model")
	}

	content, err := io.ReadAll(io.LimitReader(req.Content, MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(content) > MaxUploadSize {
		return nil, invalid("file", fmt.Sprintf("exceeds maximum of %d bytes", MaxUploadSize))
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, invalid("file", "is empty")
	}

	fileID := uuid.New()
	storagePath, err := s.storage.Upload(ctx, fileID, req.Filename, bytes.NewReader(content))
	if err != nil {
		return nil, storageErr("upload source document", err)
	}

	record := &models.File{
		ID:          fileID,
		UploadedBy:  req.UploadedBy,
		Filename:    req.Filename,
		MimeType:    req.MimeType,
		Size:        int64(len(content)),
		StoragePath: storagePath,
	}
	if err := s.files.Create(ctx, record); err != nil {
		if delErr := s.storage.Delete(ctx, storagePath); delErr != nil {
			s.log.WithError(delErr).WithField("path", storagePath).Warn("Failed to clean up uploaded file")
		}
		return nil, storageErr("save file record", err)
	}

	text, err := callModel(ctx, s.model, extractionPrompt(t, subclass, string(content)), s.log, s.retryOpts)
	if err != nil {
		return nil, fmt.Errorf("article extraction failed: %w", err)
	}

	var extracted []models.Article
	if err := ai.DecodeJSONArray(text, &extracted); err != nil {
		return nil, fmt.Errorf("article extraction failed: %w", err)
	}

	valid := make([]models.Article, 0, len(extracted))
	for _, a := range extracted {
		a.ArticleNumber = strings.TrimSpace(a.ArticleNumber)
		if a.Validate() != nil {
			continue
		}
		valid = append(valid, a)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("article extraction failed: %w", ai.ErrMalformedResponse)
	}

	report, err := s.InsertArticles(ctx, InsertArticlesRequest{Type: string(t), Subclass: subclass, Articles: valid})
	if err != nil {
		return nil, err
	}

	return &ExtractResult{
		File:      record,
		Extracted: len(valid),
		Skipped:   len(extracted) - len(valid),
		Report:    report,
	}, nil
}

func extractionPrompt(t models.LegalType, subclass, text string) string {
	return fmt.Sprintf(`The following document contains %s law provisions about %s.
Extract every numbered article as a JSON array, in document order, where each element is
{"article_number": "<number as written>", "title": "<heading or empty>", "description": "<full text>"}.
Return only the JSON array.

Document:
%s`, t, subclass, text)
}
