package service

import (
	"context"
	"io"
	"time"

	"legalmatch-backend/models"
	"legalmatch-backend/repository"

	"github.com/google/uuid"
)

// ArticleStore is implemented by repository.ArticleRepository (Postgres)
// and repository.MongoArticleRepository
type ArticleStore interface {
	FindMatching(ctx context.Context, q repository.ArticleQuery) ([]models.LegalArticle, error)
	Categories(ctx context.Context) ([]models.Category, error)
	ListArticles(ctx context.Context, legalType models.LegalType, subclass string, offset, limit int) ([]models.Article, int, error)
	AppendArticles(ctx context.Context, legalType models.LegalType, subclass string, batch []models.Article) error
}

// LawyerStore is implemented by repository.LawyerRepository
type LawyerStore interface {
	Create(ctx context.Context, lawyer *models.Lawyer) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Lawyer, error)
	List(ctx context.Context, filter repository.LawyerFilter) ([]*models.Lawyer, error)
	Update(ctx context.Context, lawyer *models.Lawyer) error
}

// UserStore is implemented by repository.UserRepository
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Update(ctx context.Context, user *models.User) error
}

// AppointmentStore is implemented by repository.AppointmentRepository
type AppointmentStore interface {
	Create(ctx context.Context, appt *models.Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Appointment, error)
	HasOverlap(ctx context.Context, lawyerID uuid.UUID, start, end time.Time) (bool, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Appointment, error)
	ListByLawyerID(ctx context.Context, lawyerID uuid.UUID) ([]*models.Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.AppointmentStatus) (*models.Appointment, error)
}

// FAQStore is implemented by repository.FAQRepository
type FAQStore interface {
	Create(ctx context.Context, faq *models.FAQ) error
	List(ctx context.Context, category string) ([]*models.FAQ, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ChatStore is implemented by repository.ChatRepository
type ChatStore interface {
	FindOrCreateConversation(ctx context.Context, a, b uuid.UUID) (*models.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error)
	CreateMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, conversationID uuid.UUID, before *time.Time, limit int) ([]*models.Message, error)
	MarkSeen(ctx context.Context, conversationID, readerID uuid.UUID) (int, error)
	UnseenCounts(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]int, error)
}

// FileStore is implemented by repository.FileRepository
type FileStore interface {
	Create(ctx context.Context, file *models.File) error
}

// FileStorage is implemented by the storage package backends
type FileStorage interface {
	Upload(ctx context.Context, fileID uuid.UUID, filename string, data io.Reader) (string, error)
	Delete(ctx context.Context, storagePath string) error
}

// Publisher pushes realtime events to the connections of a user. It is
// implemented by chat.Hub.
type Publisher interface {
	Publish(userID uuid.UUID, eventType string, payload any) error
}
