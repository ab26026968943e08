package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"legalmatch-backend/ai"
	"legalmatch-backend/cache"
	"legalmatch-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rateLimited() reply {
	return reply{err: &ai.RateLimitError{Provider: "fake", Err: errors.New("429 Too Many Requests")}}
}

func newAnalysis(store *fakeArticleStore, model *fakeModel) (*AnalysisService, *cache.ResponseCache) {
	c := cache.New()
	return NewAnalysisService(
		AnalysisWithArticleStore(store),
		AnalysisWithModel(model),
		AnalysisWithCache(c),
		AnalysisWithRetryOptions(noSleep),
	), c
}

var leaseQuery = AnalyzeRequest{
	Query:    "landlord refuses deposit return after lease ended",
	Type:     "Civil",
	Subclass: "Tenancy",
	Language: "English",
}

func TestAnalyze_DatabaseMatchSkipsModel(t *testing.T) {
	store := &fakeArticleStore{matches: []models.LegalArticle{{
		Type:     models.LegalTypeCivil,
		Subclass: "Tenancy",
		Articles: []models.Article{
			{ArticleNumber: "706", Description: "The landlord must return the deposit"},
			{ArticleNumber: "707", Description: "Deductions for damage"},
		},
	}}}
	model := newFakeModel(reply{text: "Article 1"})
	svc, _ := newAnalysis(store, model)

	result, err := svc.Analyze(context.Background(), leaseQuery)
	require.NoError(t, err)

	assert.True(t, result.IsDatabaseFallback)
	assert.False(t, result.IsFallback)
	assert.False(t, result.IsCached)
	assert.Equal(t, []string{"Article 706", "Article 707"}, result.Citations())
	assert.Contains(t, result.Analysis, "Based on the Tenancy provisions on record")
	assert.Contains(t, result.Analysis, "Article 706: The landlord must return the deposit")
	assert.Equal(t, 0, model.Calls())

	require.Len(t, store.queries, 1)
	q := store.queries[0]
	assert.Equal(t, []string{"landlord", "refuses", "deposit"}, q.Keywords)
	assert.Equal(t, 3, q.Limit)
}

func TestAnalyze_DatabaseMatchCapsDocuments(t *testing.T) {
	doc := func(n string) models.LegalArticle {
		return models.LegalArticle{Articles: []models.Article{{ArticleNumber: n, Description: "text"}}}
	}
	store := &fakeArticleStore{matches: []models.LegalArticle{doc("1"), doc("2"), doc("3"), doc("4")}}
	svc, _ := newAnalysis(store, newFakeModel())

	result, err := svc.Analyze(context.Background(), leaseQuery)
	require.NoError(t, err)
	assert.Equal(t, []string{"Article 1", "Article 2", "Article 3"}, result.Citations())
}

func TestAnalyze_NormalizesTypeLabel(t *testing.T) {
	store := &fakeArticleStore{}
	svc, _ := newAnalysis(store, newFakeModel(reply{text: "See Article 5."}))

	req := leaseQuery
	req.Type = "Civil cases"
	_, err := svc.Analyze(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, store.queries, 1)
	assert.Equal(t, models.LegalTypeCivil, store.queries[0].Type)
	assert.Equal(t, "Tenancy", store.queries[0].Subclass)
}

func TestAnalyze_ModelCitations(t *testing.T) {
	model := newFakeModel(reply{text: "Under Article 42 the deposit is due. See also article 7 and Article 42."})
	svc, _ := newAnalysis(&fakeArticleStore{}, model)

	result, err := svc.Analyze(context.Background(), leaseQuery)
	require.NoError(t, err)

	assert.Equal(t, []string{"Article 42", "Article 7", "Article 42"}, result.Citations())
	assert.False(t, result.IsFallback)
	assert.False(t, result.IsDatabaseFallback)
	assert.Equal(t, "Under Article 42 the deposit is due. See also article 7 and Article 42.", result.Analysis)
	assert.Equal(t, 1, model.Calls())
	assert.Contains(t, model.prompts[0], leaseQuery.Query)
	assert.Contains(t, model.prompts[0], "Answer in English.")
}

func TestAnalyze_CitationOrder(t *testing.T) {
	model := newFakeModel(reply{text: "Article 42 applies, and so does Article 7."})
	svc, _ := newAnalysis(&fakeArticleStore{}, model)

	result, err := svc.Analyze(context.Background(), leaseQuery)
	require.NoError(t, err)
	assert.Equal(t, []string{"Article 42", "Article 7"}, result.Citations())
}

func TestAnalyze_DegradedWhenRetriesExhausted(t *testing.T) {
	model := newFakeModel(rateLimited())
	svc, _ := newAnalysis(&fakeArticleStore{}, model)

	result, err := svc.Analyze(context.Background(), leaseQuery)
	require.NoError(t, err)

	assert.True(t, result.IsFallback)
	assert.False(t, result.IsDatabaseFallback)
	assert.Empty(t, result.ApplicableArticles)
	assert.NotNil(t, result.ApplicableArticles)
	assert.Contains(t, result.Analysis, "Civil")
	assert.Contains(t, result.Analysis, "Tenancy")
	assert.Equal(t, 3, model.Calls())
}

func TestAnalyze_DegradedResultIsCached(t *testing.T) {
	model := newFakeModel(rateLimited())
	svc, c := newAnalysis(&fakeArticleStore{}, model)

	first, err := svc.Analyze(context.Background(), leaseQuery)
	require.NoError(t, err)
	calls := model.Calls()

	second, err := svc.Analyze(context.Background(), leaseQuery)
	require.NoError(t, err)

	assert.Equal(t, calls, model.Calls())
	assert.False(t, first.IsCached)
	assert.True(t, second.IsCached)
	assert.True(t, second.IsFallback)
	assert.Equal(t, first.Analysis, second.Analysis)
	assert.Equal(t, 1, c.Len())
}

func TestAnalyze_CacheHitSkipsStore(t *testing.T) {
	store := &fakeArticleStore{}
	model := newFakeModel(reply{text: "Article 3"})
	svc, _ := newAnalysis(store, model)

	_, err := svc.Analyze(context.Background(), leaseQuery)
	require.NoError(t, err)
	result, err := svc.Analyze(context.Background(), leaseQuery)
	require.NoError(t, err)

	assert.True(t, result.IsCached)
	assert.Equal(t, 1, store.FindCalls())
	assert.Equal(t, 1, model.Calls())
}

func TestAnalyze_LanguageIsPartOfCacheKey(t *testing.T) {
	model := newFakeModel(reply{text: "Article 1 (en)"}, reply{text: "Article 1 (fr)"})
	svc, c := newAnalysis(&fakeArticleStore{}, model)

	en, err := svc.Analyze(context.Background(), leaseQuery)
	require.NoError(t, err)

	req := leaseQuery
	req.Language = "French"
	fr, err := svc.Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, fr.IsCached)
	assert.NotEqual(t, en.Analysis, fr.Analysis)
	assert.Equal(t, 2, model.Calls())
	assert.Equal(t, 2, c.Len())
}

func TestAnalyze_MalformedOutputDegrades(t *testing.T) {
	model := newFakeModel(reply{text: "I cannot help with that."})
	svc, _ := newAnalysis(&fakeArticleStore{}, model)

	result, err := svc.Analyze(context.Background(), leaseQuery)
	require.NoError(t, err)
	assert.True(t, result.IsFallback)
	assert.Equal(t, 1, model.Calls())
}

func TestAnalyze_NonRateLimitErrorDegradesWithoutRetry(t *testing.T) {
	model := newFakeModel(reply{err: errors.New("upstream 500")})
	svc, _ := newAnalysis(&fakeArticleStore{}, model)

	result, err := svc.Analyze(context.Background(), leaseQuery)
	require.NoError(t, err)
	assert.True(t, result.IsFallback)
	assert.Equal(t, 1, model.Calls())
}

func TestAnalyze_Validation(t *testing.T) {
	tests := []struct {
		name  string
		req   AnalyzeRequest
		field string
	}{
		{"missing query", AnalyzeRequest{Type: "Civil", Subclass: "Tenancy"}, "query"},
		{"blank query", AnalyzeRequest{Query: "  ", Type: "Civil", Subclass: "Tenancy"}, "query"},
		{"missing type", AnalyzeRequest{Query: "q", Subclass: "Tenancy"}, "type"},
		{"missing subclass", AnalyzeRequest{Query: "q", Type: "Civil"}, "subclass"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeArticleStore{}
			model := newFakeModel(reply{text: "Article 1"})
			svc, c := newAnalysis(store, model)

			_, err := svc.Analyze(context.Background(), tt.req)
			require.ErrorIs(t, err, ErrInvalidRequest)

			var invalid *InvalidRequestError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.field, invalid.Field)

			assert.Equal(t, 0, store.FindCalls())
			assert.Equal(t, 0, model.Calls())
			assert.Equal(t, 0, c.Len())
		})
	}
}

func TestAnalyze_StoreFailurePropagates(t *testing.T) {
	store := &fakeArticleStore{findErr: errDatabaseDown}
	model := newFakeModel(reply{text: "Article 1"})
	svc, c := newAnalysis(store, model)

	_, err := svc.Analyze(context.Background(), leaseQuery)
	require.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, errDatabaseDown)
	assert.Equal(t, 0, model.Calls())
	assert.Equal(t, 0, c.Len())
}

func TestAnalyze_CancelledRequestIsNotCached(t *testing.T) {
	model := newFakeModel(reply{text: "Article 1"})
	model.block = make(chan struct{})
	svc, c := newAnalysis(&fakeArticleStore{}, model)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := svc.Analyze(ctx, leaseQuery)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, c.Len())
}

func TestAnalyze_ConcurrentCallersShareResult(t *testing.T) {
	model := newFakeModel(reply{text: "Article 9"})
	svc, c := newAnalysis(&fakeArticleStore{}, model)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*models.AnalysisResult, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Analyze(context.Background(), leaseQuery)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, []string{"Article 9"}, results[i].Citations())
	}
	assert.LessOrEqual(t, model.Calls(), callers)
	assert.Equal(t, 1, c.Len())
}

func TestAnalyze_CancelledCallerDoesNotFailSharers(t *testing.T) {
	model := newFakeModel(reply{text: "Article 3"})
	model.block = make(chan struct{})
	model.entered = make(chan struct{}, 1)
	store := &fakeArticleStore{}
	svc, c := newAnalysis(store, model)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := svc.Analyze(ctxA, leaseQuery)
		errA <- err
	}()
	<-model.entered

	type outcome struct {
		result *models.AnalysisResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := svc.Analyze(context.Background(), leaseQuery)
		done <- outcome{r, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	require.ErrorIs(t, <-errA, context.Canceled)
	close(model.block)

	select {
	case got := <-done:
		require.NoError(t, got.err)
		assert.Equal(t, []string{"Article 3"}, got.result.Citations())
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not finish")
	}
	assert.Equal(t, 2, store.FindCalls())
	assert.Equal(t, 1, c.Len())
}

func TestAnalyze_ReturnedResultDoesNotAliasCache(t *testing.T) {
	svc, _ := newAnalysis(&fakeArticleStore{}, newFakeModel(reply{text: "Article 1 and Article 2"}))

	first, err := svc.Analyze(context.Background(), leaseQuery)
	require.NoError(t, err)
	first.ApplicableArticles[0].Citation = "tampered"

	second, err := svc.Analyze(context.Background(), leaseQuery)
	require.NoError(t, err)
	assert.Equal(t, []string{"Article 1", "Article 2"}, second.Citations())
}

func TestAnalyze_MissingDependencies(t *testing.T) {
	svc := NewAnalysisService(AnalysisWithArticleStore(&fakeArticleStore{}))
	_, err := svc.Analyze(context.Background(), leaseQuery)
	assert.ErrorIs(t, err, ErrDependencyNotSet)
}
