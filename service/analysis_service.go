package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"legalmatch-backend/ai"
	"legalmatch-backend/cache"
	"legalmatch-backend/logger"
	"legalmatch-backend/metrics"
	"legalmatch-backend/models"
	"legalmatch-backend/repository"
	"legalmatch-backend/retry"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	// maxMatchedDocuments caps the database answer
	maxMatchedDocuments = 3
	// keywordCount is how many leading query words are matched against
	// article descriptions
	keywordCount = 3
)

// AnalysisService answers legal queries from the response cache, the
// article store or the AI model, in that order
type AnalysisService struct {
	articles  ArticleStore
	model     ai.Model
	cache     *cache.ResponseCache
	log       *logrus.Logger
	retryOpts []retry.Option
	flight    singleflight.Group
}

// AnalysisServiceOption is a functional option for AnalysisService
type AnalysisServiceOption func(*AnalysisService)

// AnalysisWithArticleStore sets the article store
func AnalysisWithArticleStore(store ArticleStore) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.articles = store
	}
}

// AnalysisWithModel sets the AI model
func AnalysisWithModel(model ai.Model) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.model = model
	}
}

// AnalysisWithCache sets the response cache
func AnalysisWithCache(c *cache.ResponseCache) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.cache = c
	}
}

// AnalysisWithLogger sets the logger
func AnalysisWithLogger(log *logrus.Logger) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.log = log
	}
}

// AnalysisWithRetryOptions tunes the backoff around model calls
func AnalysisWithRetryOptions(opts ...retry.Option) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.retryOpts = append(s.retryOpts, opts...)
	}
}

// NewAnalysisService creates a new analysis service
func NewAnalysisService(opts ...AnalysisServiceOption) *AnalysisService {
	s := &AnalysisService{log: logger.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AnalyzeRequest is the body of an analyze call. Language is optional.
type AnalyzeRequest struct {
	Query    string `json:"query"`
	Type     string `json:"type"`
	Subclass string `json:"subclass"`
	Language string `json:"language"`
}

// Validate checks the required fields
func (r AnalyzeRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return required("query")
	}
	if strings.TrimSpace(r.Type) == "" {
		return required("type")
	}
	if strings.TrimSpace(r.Subclass) == "" {
		return required("subclass")
	}
	return nil
}

// Analyze produces the legal analysis for req. Only invalid input and
// article store failures are returned as errors; model failures degrade
// into a fallback result.
func (s *AnalysisService) Analyze(ctx context.Context, req AnalyzeRequest) (*models.AnalysisResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if s.cache == nil {
		return nil, notSet("response cache")
	}
	if s.articles == nil {
		return nil, notSet("article store")
	}

	key := cache.NewKey(req.Type, req.Subclass, req.Query, req.Language)
	fields := logrus.Fields{"type": req.Type, "subclass": req.Subclass, "language": req.Language}

	if cached, ok := s.cache.Get(key); ok {
		cached.IsCached = true
		metrics.AnalysisRequests.WithLabelValues(metrics.PathCached).Inc()
		s.log.WithFields(fields).WithField("path", metrics.PathCached).Debug("Serving analysis from cache")
		return cached, nil
	}

	for {
		v, err, shared := s.flight.Do(key.String(), func() (interface{}, error) {
			result, path, err := s.compute(ctx, req)
			if err != nil {
				return nil, err
			}
			s.cache.Set(key, result)
			metrics.AnalysisRequests.WithLabelValues(path).Inc()
			s.log.WithFields(fields).WithField("path", path).Info("Analysis produced")
			return result, nil
		})
		if err != nil && shared && isContextErr(err) && ctx.Err() == nil {
			// The flight ran under another caller's context, which was cancelled.
			s.log.WithFields(fields).Debug("Shared analysis cancelled, running again")
			continue
		}
		if err != nil {
			return nil, err
		}
		return v.(*models.AnalysisResult).Clone(), nil
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// compute runs the database match and, on a miss, the model call
func (s *AnalysisService) compute(ctx context.Context, req AnalyzeRequest) (*models.AnalysisResult, string, error) {
	docs, err := s.articles.FindMatching(ctx, repository.ArticleQuery{
		Type:     models.StoredLegalType(req.Type),
		Subclass: strings.TrimSpace(req.Subclass),
		Keywords: firstWords(req.Query, keywordCount),
		Limit:    maxMatchedDocuments,
	})
	if err != nil {
		return nil, "", storageErr("find matching articles", err)
	}
	if len(docs) > maxMatchedDocuments {
		docs = docs[:maxMatchedDocuments]
	}
	if len(docs) > 0 {
		return databaseAnswer(req.Subclass, docs), metrics.PathDatabase, nil
	}

	text, err := s.generate(ctx, analysisPrompt(req))
	if err == nil {
		citations := ai.ScanCitations(text)
		if len(citations) > 0 {
			return aiAnswer(text, citations), metrics.PathAI, nil
		}
		err = fmt.Errorf("%w: no article citations in model output", ai.ErrMalformedResponse)
	}

	// A cancelled request must not leave a degraded answer in the cache.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, "", ctxErr
	}

	s.log.WithFields(logrus.Fields{
		"type":     req.Type,
		"subclass": req.Subclass,
		"error":    err,
	}).Warn("AI analysis unavailable, returning fallback")
	return degradedAnswer(req.Type, req.Subclass), metrics.PathDegraded, nil
}

// generate calls the model through the retry controller
func (s *AnalysisService) generate(ctx context.Context, prompt string) (string, error) {
	if s.model == nil {
		return "", notSet("AI model")
	}
	return callModel(ctx, s.model, prompt, s.log, s.retryOpts)
}

// callModel is the shared retrying model call of every AI backed service
func callModel(ctx context.Context, model ai.Model, prompt string, log *logrus.Logger, retryOpts []retry.Option) (string, error) {
	provider := model.Name()
	opts := append([]retry.Option{
		retry.WithOnRetry(func(attempt int, delay time.Duration, err error) {
			metrics.AIRetries.Inc()
			log.WithFields(logrus.Fields{
				"provider": provider,
				"attempt":  attempt,
				"delay":    delay,
			}).Warn("AI model rate limited, backing off")
		}),
	}, retryOpts...)

	return retry.RetryWithBackoff(ctx, func(ctx context.Context) (string, error) {
		text, err := model.Generate(ctx, prompt)
		metrics.AICalls.WithLabelValues(provider, callOutcome(err)).Inc()
		return text, err
	}, opts...)
}

func callOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case ai.IsRateLimited(err):
		return metrics.OutcomeRateLimited
	case errors.Is(err, ai.ErrMalformedResponse):
		return metrics.OutcomeMalformed
	default:
		return metrics.OutcomeError
	}
}

// firstWords returns the first n whitespace separated words of s
func firstWords(s string, n int) []string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return words
}

func analysisPrompt(req AnalyzeRequest) string {
	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = "English"
	}
	return fmt.Sprintf(`You are a legal assistant specialised in %s law, in the area of %s.

A user asks:
"""
%s
"""

Explain the legal position clearly for a non-lawyer and suggest practical next steps.
Cite every provision you rely on in the form "Article <number>".
Answer in %s.`, req.Type, req.Subclass, req.Query, language)
}

func databaseAnswer(subclass string, docs []models.LegalArticle) *models.AnalysisResult {
	var b strings.Builder
	fmt.Fprintf(&b, "Based on the %s provisions on record, the following articles apply to your situation:", subclass)

	refs := []models.ArticleRef{}
	for _, doc := range docs {
		for i := range doc.Articles {
			article := doc.Articles[i]
			fmt.Fprintf(&b, "\n\nArticle %s: %s", article.ArticleNumber, article.Description)
			refs = append(refs, models.ArticleRef{Citation: "Article " + article.ArticleNumber, Article: &article})
		}
	}

	return &models.AnalysisResult{
		Analysis:           b.String(),
		ApplicableArticles: refs,
		IsDatabaseFallback: true,
	}
}

func aiAnswer(text string, citations []string) *models.AnalysisResult {
	refs := make([]models.ArticleRef, len(citations))
	for i, c := range citations {
		refs[i] = models.ArticleRef{Citation: c}
	}
	return &models.AnalysisResult{Analysis: text, ApplicableArticles: refs}
}

func degradedAnswer(legalType, subclass string) *models.AnalysisResult {
	return &models.AnalysisResult{
		Analysis: fmt.Sprintf(
			"We could not generate a detailed analysis of your %s question about %s right now. "+
				"Please try again in a few minutes, or book a consultation with a lawyer who handles %s matters.",
			legalType, subclass, subclass),
		ApplicableArticles: []models.ArticleRef{},
		IsFallback:         true,
	}
}
