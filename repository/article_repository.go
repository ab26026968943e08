package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"legalmatch-backend/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ArticleQuery selects documents for the analysis pipeline
type ArticleQuery struct {
	Type     models.LegalType
	Subclass string
	// Keywords are OR'd together and matched case-insensitively against
	// article descriptions. Empty means no text filter.
	Keywords []string
	Limit    int
}

// KeywordPattern builds the case-insensitive alternation used by both
// article stores
func KeywordPattern(keywords []string) string {
	quoted := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			quoted = append(quoted, regexp.QuoteMeta(k))
		}
	}
	return strings.Join(quoted, "|")
}

// ArticleRepository stores legal articles in Postgres, one row per
// (type, subclass) with the articles as an ordered JSONB array
type ArticleRepository struct {
	db *pgxpool.Pool
}

// NewArticleRepository creates a new article repository
func NewArticleRepository(db *pgxpool.Pool) *ArticleRepository {
	return &ArticleRepository{db: db}
}

// FindMatching returns up to q.Limit documents of (type, subclass) having at
// least one article whose description matches one of the keywords
func (r *ArticleRepository) FindMatching(ctx context.Context, q ArticleQuery) ([]models.LegalArticle, error) {
	query := `
		SELECT id, type, subclass, articles, created_at, updated_at
		FROM legal_articles
		WHERE type = $1 AND subclass = $2`
	args := []interface{}{q.Type, q.Subclass}

	if pattern := KeywordPattern(q.Keywords); pattern != "" {
		args = append(args, pattern)
		query += fmt.Sprintf(`
			AND EXISTS (
				SELECT 1 FROM jsonb_array_elements(articles) AS a
				WHERE a->>'description' ~* $%d
			)`, len(args))
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query legal articles: %w", err)
	}
	defer rows.Close()

	var docs []models.LegalArticle
	for rows.Next() {
		var doc models.LegalArticle
		var raw []byte
		if err := rows.Scan(&doc.ID, &doc.Type, &doc.Subclass, &raw, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan legal article: %w", err)
		}
		if err := json.Unmarshal(raw, &doc.Articles); err != nil {
			return nil, fmt.Errorf("failed to decode articles of %s/%s: %w", doc.Type, doc.Subclass, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating legal articles: %w", err)
	}
	return docs, nil
}

// Categories lists the distinct (type, subclass) pairs with their article counts
func (r *ArticleRepository) Categories(ctx context.Context) ([]models.Category, error) {
	query := `
		SELECT type, subclass, jsonb_array_length(articles)
		FROM legal_articles
		ORDER BY type, subclass`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.Type, &c.Subclass, &c.ArticleCount); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// ListArticles returns one page of the articles of (type, subclass) in
// stored order, plus the total number of articles
func (r *ArticleRepository) ListArticles(ctx context.Context, legalType models.LegalType, subclass string, offset, limit int) ([]models.Article, int, error) {
	var total int
	err := r.db.QueryRow(ctx, `
		SELECT jsonb_array_length(articles)
		FROM legal_articles
		WHERE type = $1 AND subclass = $2`, legalType, subclass).Scan(&total)
	if err != nil {
		return nil, 0, translate(err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT a.value
		FROM legal_articles, jsonb_array_elements(articles) WITH ORDINALITY AS a(value, idx)
		WHERE type = $1 AND subclass = $2
		ORDER BY a.idx
		OFFSET $3 LIMIT $4`, legalType, subclass, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	articles := make([]models.Article, 0, limit)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, 0, fmt.Errorf("failed to scan article: %w", err)
		}
		var a models.Article
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, 0, fmt.Errorf("failed to decode article: %w", err)
		}
		articles = append(articles, a)
	}
	return articles, total, rows.Err()
}

// AppendArticles appends a batch to the (type, subclass) document, creating
// it on first insert. The whole batch is rejected with ErrDuplicateArticle
// if any article number already exists in the document or repeats inside
// the batch.
func (r *ArticleRepository) AppendArticles(ctx context.Context, legalType models.LegalType, subclass string, batch []models.Article) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO legal_articles (type, subclass)
		VALUES ($1, $2)
		ON CONFLICT (type, subclass) DO NOTHING`, legalType, subclass)
	if err != nil {
		return fmt.Errorf("failed to upsert legal article document: %w", err)
	}

	var raw []byte
	err = tx.QueryRow(ctx, `
		SELECT articles FROM legal_articles
		WHERE type = $1 AND subclass = $2
		FOR UPDATE`, legalType, subclass).Scan(&raw)
	if err != nil {
		return fmt.Errorf("failed to lock legal article document: %w", translate(err))
	}

	var existing []models.Article
	if err := json.Unmarshal(raw, &existing); err != nil {
		return fmt.Errorf("failed to decode stored articles: %w", err)
	}
	if dups := models.DuplicateArticleNumbers(existing, batch); len(dups) > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateArticle, strings.Join(dups, ", "))
	}

	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to encode articles: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE legal_articles
		SET articles = articles || $3::jsonb, updated_at = NOW()
		WHERE type = $1 AND subclass = $2`, legalType, subclass, string(payload))
	if err != nil {
		return fmt.Errorf("failed to append articles: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
