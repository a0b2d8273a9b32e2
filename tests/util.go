package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/trezcool/schoolgate/core"
	"github.com/trezcool/schoolgate/core/profile"
	"github.com/trezcool/schoolgate/storage/database/dummy"
)

// OpenDB returns a fresh in-memory database with its repositories.
func OpenDB(t *testing.T) (*dummydb.DB, profile.Repository, core.DocumentStore) {
	t.Helper()
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	return db, dummydb.NewProfileRepository(db), dummydb.NewDocumentStore(db)
}

func NewProfileService(repo profile.Repository, mailSvc core.EmailService) *profile.Service {
	conf := core.NewTestConfig()
	validate := core.NewValidator(core.NewTranslator())
	return profile.NewService(repo, validate, mailSvc, core.NopLogger(), conf)
}

func CreateProfile(
	t *testing.T,
	repo profile.Repository,
	id, email, name string,
	role profile.Role,
	status profile.AccountStatus,
) profile.Profile {
	t.Helper()
	if role == profile.RoleAdmin {
		status = ""
	}
	p, err := repo.CreateProfile(context.Background(), profile.Profile{
		ID:            id,
		Email:         email,
		DisplayName:   name,
		Role:          role,
		AccountStatus: status,
	})
	if err != nil {
		t.Fatalf("createProfile() failed: %v", err)
	}
	return p
}

// SeedCollection inserts n documents built by mk into collection and returns their ids in insertion order.
func SeedCollection(
	t *testing.T,
	store core.DocumentStore,
	collection string,
	n int,
	mk func(i int) map[string]interface{},
) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		payload := map[string]interface{}{"name": fmt.Sprintf("%s %02d", collection, i)}
		if mk != nil {
			payload = mk(i)
		}
		id, err := store.Insert(context.Background(), collection, payload)
		if err != nil {
			t.Fatalf("seedCollection() failed: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

// CountingStore wraps a DocumentStore and counts Query calls per collection.
type CountingStore struct {
	core.DocumentStore

	mu      sync.Mutex
	queries map[string]int
}

func NewCountingStore(store core.DocumentStore) *CountingStore {
	return &CountingStore{DocumentStore: store, queries: make(map[string]int)}
}

func (s *CountingStore) Query(
	ctx context.Context,
	collection string,
	ordering core.DBOrdering,
	limit int,
	startAfter core.Cursor,
) (core.QueryResult, error) {
	s.mu.Lock()
	s.queries[collection]++
	s.mu.Unlock()
	return s.DocumentStore.Query(ctx, collection, ordering, limit, startAfter)
}

func (s *CountingStore) Queries(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries[collection]
}

// MailRecorder is a core.EmailService keeping every message it was asked to send.
type MailRecorder struct {
	mu   sync.Mutex
	Sent []*core.EmailMessage
}

var _ core.EmailService = (*MailRecorder)(nil)

func (r *MailRecorder) SendMessages(messages ...*core.EmailMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Sent = append(r.Sent, messages...)
}

func (r *MailRecorder) Messages() []*core.EmailMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*core.EmailMessage(nil), r.Sent...)
}

// TickClock makes every write of the in-memory store one second later than the previous one.
func TickClock(t *testing.T) {
	t.Helper()
	ts := time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC)
	dummydb.NowFunc = func() time.Time {
		ts = ts.Add(time.Second)
		return ts
	}
	t.Cleanup(func() { dummydb.NowFunc = func() time.Time { return time.Now().UTC() } })
}
