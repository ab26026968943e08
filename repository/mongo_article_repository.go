package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"legalmatch-backend/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ArticleCollection is the MongoDB collection holding legal article documents
const ArticleCollection = "legalarticles"

// mongoLegalArticle is the stored shape of a LegalArticle
type mongoLegalArticle struct {
	ID        string           `bson:"_id"`
	Type      models.LegalType `bson:"type"`
	Subclass  string           `bson:"subclass"`
	Articles  []models.Article `bson:"articles"`
	CreatedAt time.Time        `bson:"created_at"`
	UpdatedAt time.Time        `bson:"updated_at"`
}

func (d mongoLegalArticle) toModel() models.LegalArticle {
	id, _ := uuid.Parse(d.ID)
	return models.LegalArticle{
		ID:        id,
		Type:      d.Type,
		Subclass:  d.Subclass,
		Articles:  d.Articles,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// MongoArticleRepository is the document-database implementation of the
// article store, selected with ARTICLE_STORE=mongo
type MongoArticleRepository struct {
	coll *mongo.Collection
}

// NewMongoArticleRepository creates a new article repository on db
func NewMongoArticleRepository(db *mongo.Database) *MongoArticleRepository {
	return &MongoArticleRepository{coll: db.Collection(ArticleCollection)}
}

// EnsureIndexes creates the unique (type, subclass) index
func (r *MongoArticleRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "type", Value: 1}, {Key: "subclass", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create legal article index: %w", err)
	}
	return nil
}

// FindMatching returns up to q.Limit documents of (type, subclass) having at
// least one article whose description matches one of the keywords
func (r *MongoArticleRepository) FindMatching(ctx context.Context, q ArticleQuery) ([]models.LegalArticle, error) {
	filter := bson.M{"type": q.Type, "subclass": q.Subclass}
	if pattern := KeywordPattern(q.Keywords); pattern != "" {
		filter["articles.description"] = bson.M{"$regex": pattern, "$options": "i"}
	}

	opts := options.Find()
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query legal articles: %w", err)
	}
	defer cur.Close(ctx)

	var docs []models.LegalArticle
	for cur.Next(ctx) {
		var d mongoLegalArticle
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("failed to decode legal article: %w", err)
		}
		docs = append(docs, d.toModel())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("error iterating legal articles: %w", err)
	}
	return docs, nil
}

// Categories lists the distinct (type, subclass) pairs with their article counts
func (r *MongoArticleRepository) Categories(ctx context.Context) ([]models.Category, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$project", Value: bson.M{
			"_id":           0,
			"type":          1,
			"subclass":      1,
			"article_count": bson.M{"$size": "$articles"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "type", Value: 1}, {Key: "subclass", Value: 1}}}},
	}

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate categories: %w", err)
	}
	var categories []models.Category
	if err := cur.All(ctx, &categories); err != nil {
		return nil, fmt.Errorf("failed to decode categories: %w", err)
	}
	return categories, nil
}

// ListArticles returns one page of the articles of (type, subclass) in
// stored order, plus the total number of articles
func (r *MongoArticleRepository) ListArticles(ctx context.Context, legalType models.LegalType, subclass string, offset, limit int) ([]models.Article, int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"type": legalType, "subclass": subclass}}},
		{{Key: "$project", Value: bson.M{
			"total":    bson.M{"$size": "$articles"},
			"articles": bson.M{"$slice": bson.A{"$articles", offset, limit}},
		}}},
	}

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list articles: %w", err)
	}
	var page []struct {
		Total    int              `bson:"total"`
		Articles []models.Article `bson:"articles"`
	}
	if err := cur.All(ctx, &page); err != nil {
		return nil, 0, fmt.Errorf("failed to decode articles: %w", err)
	}
	if len(page) == 0 {
		return nil, 0, ErrNotFound
	}
	articles := page[0].Articles
	if articles == nil {
		articles = []models.Article{}
	}
	return articles, page[0].Total, nil
}

// AppendArticles appends a batch to the (type, subclass) document, creating
// it on first insert. The whole batch is rejected with ErrDuplicateArticle
// if any article number already exists in the document or repeats inside
// the batch.
func (r *MongoArticleRepository) AppendArticles(ctx context.Context, legalType models.LegalType, subclass string, batch []models.Article) error {
	filter := bson.M{"type": legalType, "subclass": subclass}

	var current mongoLegalArticle
	err := r.coll.FindOne(ctx, filter).Decode(&current)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("failed to load legal article document: %w", err)
	}
	if dups := models.DuplicateArticleNumbers(current.Articles, batch); len(dups) > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateArticle, strings.Join(dups, ", "))
	}

	numbers := make([]string, len(batch))
	for i, a := range batch {
		numbers[i] = a.ArticleNumber
	}

	// The $nin guard makes a concurrent writer's duplicate miss the filter;
	// the upsert then collides with the unique index instead of appending.
	guarded := bson.M{
		"type":                    legalType,
		"subclass":                subclass,
		"articles.article_number": bson.M{"$nin": numbers},
	}
	now := time.Now().UTC()
	update := bson.M{
		"$push":        bson.M{"articles": bson.M{"$each": batch}},
		"$set":         bson.M{"updated_at": now},
		"$setOnInsert": bson.M{"_id": uuid.NewString(), "created_at": now},
	}

	_, err = r.coll.UpdateOne(ctx, guarded, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: concurrent insert into %s/%s", ErrDuplicateArticle, legalType, subclass)
	}
	if err != nil {
		return fmt.Errorf("failed to append articles: %w", err)
	}
	return nil
}
