package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"legalmatch-backend/models"
	"legalmatch-backend/repository"
	"legalmatch-backend/retry"

	"github.com/google/uuid"
)

var errDatabaseDown = errors.New("connection refused")

// noSleep keeps rate limit retries instant in tests
var noSleep = retry.WithSleeper(func(ctx context.Context, d time.Duration) error { return ctx.Err() })

type reply struct {
	text string
	err  error
}

// fakeModel replays scripted replies; the last one repeats
type fakeModel struct {
	mu      sync.Mutex
	replies []reply
	calls   int
	prompts []string
	block   chan struct{}
	entered chan struct{}
}

func newFakeModel(replies ...reply) *fakeModel {
	return &fakeModel{replies: replies}
}

func (m *fakeModel) Name() string { return "fake" }

func (m *fakeModel) Generate(ctx context.Context, prompt string) (string, error) {
	if m.entered != nil {
		select {
		case m.entered <- struct{}{}:
		default:
		}
	}
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.prompts = append(m.prompts, prompt)
	if len(m.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	i := min(m.calls-1, len(m.replies)-1)
	return m.replies[i].text, m.replies[i].err
}

func (m *fakeModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fakeArticleStore struct {
	mu         sync.Mutex
	matches    []models.LegalArticle
	findErr    error
	queries    []repository.ArticleQuery
	categories []models.Category
	list       []models.Article
	listTotal  int
	listErr    error
	// appendErrs is indexed by append call; nil entries succeed
	appendErrs []error
	appended   [][]models.Article
}

func (s *fakeArticleStore) FindMatching(_ context.Context, q repository.ArticleQuery) ([]models.LegalArticle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	return s.matches, s.findErr
}

func (s *fakeArticleStore) Categories(context.Context) ([]models.Category, error) {
	return s.categories, nil
}

func (s *fakeArticleStore) ListArticles(_ context.Context, _ models.LegalType, _ string, offset, limit int) ([]models.Article, int, error) {
	if s.listErr != nil {
		return nil, 0, s.listErr
	}
	end := min(offset+limit, len(s.list))
	if offset > end {
		offset = end
	}
	return s.list[offset:end], s.listTotal, nil
}

func (s *fakeArticleStore) AppendArticles(_ context.Context, _ models.LegalType, _ string, batch []models.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.appended)
	s.appended = append(s.appended, batch)
	if n < len(s.appendErrs) {
		return s.appendErrs[n]
	}
	return nil
}

func (s *fakeArticleStore) FindCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

type fakeLawyerStore struct {
	lawyers map[uuid.UUID]*models.Lawyer
	order   []*models.Lawyer
	filters []repository.LawyerFilter
	err     error
}

func newFakeLawyerStore(lawyers ...*models.Lawyer) *fakeLawyerStore {
	s := &fakeLawyerStore{lawyers: map[uuid.UUID]*models.Lawyer{}}
	for _, l := range lawyers {
		s.lawyers[l.ID] = l
		s.order = append(s.order, l)
	}
	return s
}

func (s *fakeLawyerStore) Create(_ context.Context, l *models.Lawyer) error {
	if s.err != nil {
		return s.err
	}
	l.ID = uuid.New()
	s.lawyers[l.ID] = l
	s.order = append(s.order, l)
	return nil
}

func (s *fakeLawyerStore) GetByID(_ context.Context, id uuid.UUID) (*models.Lawyer, error) {
	l, ok := s.lawyers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return l, nil
}

func (s *fakeLawyerStore) List(_ context.Context, f repository.LawyerFilter) ([]*models.Lawyer, error) {
	s.filters = append(s.filters, f)
	if s.err != nil {
		return nil, s.err
	}
	var out []*models.Lawyer
	for _, l := range s.order {
		if f.Specialization != nil && l.Specialization != *f.Specialization {
			continue
		}
		if f.ActiveOnly && !l.Active {
			continue
		}
		out = append(out, l)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *fakeLawyerStore) Update(_ context.Context, l *models.Lawyer) error {
	if _, ok := s.lawyers[l.ID]; !ok {
		return repository.ErrNotFound
	}
	s.lawyers[l.ID] = l
	return nil
}

type fakeUserStore struct {
	byID map[uuid.UUID]*models.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{byID: map[uuid.UUID]*models.User{}}
}

func (s *fakeUserStore) Create(_ context.Context, u *models.User) error {
	for _, existing := range s.byID {
		if existing.Email == u.Email {
			return repository.ErrConflict
		}
	}
	u.ID = uuid.New()
	s.byID[u.ID] = u
	return nil
}

func (s *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (s *fakeUserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range s.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *fakeUserStore) List(_ context.Context, limit, offset int) ([]*models.User, error) {
	return nil, nil
}

func (s *fakeUserStore) Update(_ context.Context, u *models.User) error {
	s.byID[u.ID] = u
	return nil
}

type fakeAppointmentStore struct {
	byID    map[uuid.UUID]*models.Appointment
	overlap bool
	checked [][2]time.Time
}

func newFakeAppointmentStore() *fakeAppointmentStore {
	return &fakeAppointmentStore{byID: map[uuid.UUID]*models.Appointment{}}
}

func (s *fakeAppointmentStore) Create(_ context.Context, a *models.Appointment) error {
	a.ID = uuid.New()
	s.byID[a.ID] = a
	return nil
}

func (s *fakeAppointmentStore) GetByID(_ context.Context, id uuid.UUID) (*models.Appointment, error) {
	a, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return a, nil
}

func (s *fakeAppointmentStore) HasOverlap(_ context.Context, _ uuid.UUID, start, end time.Time) (bool, error) {
	s.checked = append(s.checked, [2]time.Time{start, end})
	return s.overlap, nil
}

func (s *fakeAppointmentStore) ListByUserID(_ context.Context, userID uuid.UUID) ([]*models.Appointment, error) {
	var out []*models.Appointment
	for _, a := range s.byID {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeAppointmentStore) ListByLawyerID(_ context.Context, lawyerID uuid.UUID) ([]*models.Appointment, error) {
	var out []*models.Appointment
	for _, a := range s.byID {
		if a.LawyerID == lawyerID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeAppointmentStore) UpdateStatus(_ context.Context, id uuid.UUID, status models.AppointmentStatus) (*models.Appointment, error) {
	a, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	a.Status = status
	return a, nil
}

type fakeChatStore struct {
	convs    map[uuid.UUID]*models.Conversation
	messages []*models.Message
	seen     int
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{convs: map[uuid.UUID]*models.Conversation{}}
}

func (s *fakeChatStore) FindOrCreateConversation(_ context.Context, a, b uuid.UUID) (*models.Conversation, error) {
	for _, c := range s.convs {
		if c.HasParticipant(a) && c.HasParticipant(b) {
			return c, nil
		}
	}
	c := &models.Conversation{ID: uuid.New(), ParticipantA: a, ParticipantB: b}
	s.convs[c.ID] = c
	return c, nil
}

func (s *fakeChatStore) GetConversation(_ context.Context, id uuid.UUID) (*models.Conversation, error) {
	c, ok := s.convs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (s *fakeChatStore) ListConversations(_ context.Context, userID uuid.UUID) ([]*models.Conversation, error) {
	var out []*models.Conversation
	for _, c := range s.convs {
		if c.HasParticipant(userID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeChatStore) CreateMessage(_ context.Context, m *models.Message) error {
	m.ID = uuid.New()
	s.messages = append(s.messages, m)
	return nil
}

func (s *fakeChatStore) ListMessages(_ context.Context, conversationID uuid.UUID, _ *time.Time, limit int) ([]*models.Message, error) {
	var out []*models.Message
	for i := len(s.messages) - 1; i >= 0 && len(out) < limit; i-- {
		if s.messages[i].ConversationID == conversationID {
			out = append(out, s.messages[i])
		}
	}
	return out, nil
}

func (s *fakeChatStore) MarkSeen(_ context.Context, conversationID, readerID uuid.UUID) (int, error) {
	n := 0
	for _, m := range s.messages {
		if m.ConversationID == conversationID && m.RecipientID == readerID && !m.Seen {
			m.Seen = true
			n++
		}
	}
	return n, nil
}

func (s *fakeChatStore) UnseenCounts(_ context.Context, userID uuid.UUID) (map[uuid.UUID]int, error) {
	out := map[uuid.UUID]int{}
	for _, m := range s.messages {
		if m.RecipientID == userID && !m.Seen {
			out[m.ConversationID]++
		}
	}
	return out, nil
}

type published struct {
	userID    uuid.UUID
	eventType string
	payload   any
}

type fakePublisher struct {
	events []published
	err    error
}

func (p *fakePublisher) Publish(userID uuid.UUID, eventType string, payload any) error {
	p.events = append(p.events, published{userID, eventType, payload})
	return p.err
}

type fakeFileStore struct {
	created []*models.File
	err     error
}

func (s *fakeFileStore) Create(_ context.Context, f *models.File) error {
	if s.err != nil {
		return s.err
	}
	s.created = append(s.created, f)
	return nil
}

type fakeStorage struct {
	objects map[string][]byte
	deleted []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (s *fakeStorage) Upload(_ context.Context, fileID uuid.UUID, filename string, data io.Reader) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, data); err != nil {
		return "", err
	}
	path := fmt.Sprintf("sources/%s_%s", fileID, filename)
	s.objects[path] = buf.Bytes()
	return path, nil
}

func (s *fakeStorage) Delete(_ context.Context, path string) error {
	delete(s.objects, path)
	s.deleted = append(s.deleted, path)
	return nil
}
