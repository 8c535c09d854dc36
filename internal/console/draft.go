package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bissquit/incident-console/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DraftKey is the single cache slot holding the in-progress creation form.
const DraftKey = "incident-draft"

const defaultDraftTTL = 7 * 24 * time.Hour

// DraftStore persists the creation form between sessions. It is advisory:
// callers treat any error other than ErrDraftNotFound as a cache miss.
type DraftStore interface {
	Load(ctx context.Context) (domain.IncidentDraft, error)
	Save(ctx context.Context, draft domain.IncidentDraft) error
	Clear(ctx context.Context) error
}

// MemoryDraftStore keeps the draft in process memory.
type MemoryDraftStore struct {
	mu    sync.Mutex
	data  []byte
	saved bool
}

// NewMemoryDraftStore creates an empty in-memory draft store.
func NewMemoryDraftStore() *MemoryDraftStore {
	return &MemoryDraftStore{}
}

// Load returns the stored draft.
func (s *MemoryDraftStore) Load(_ context.Context) (domain.IncidentDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.saved {
		return domain.IncidentDraft{}, ErrDraftNotFound
	}
	return decodeDraft(s.data)
}

// Save replaces the stored draft. The draft is kept serialized so later edits
// by the caller do not leak into the store.
func (s *MemoryDraftStore) Save(_ context.Context, draft domain.IncidentDraft) error {
	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	s.saved = true
	return nil
}

// Clear drops the stored draft.
func (s *MemoryDraftStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	s.saved = false
	return nil
}

// RedisDraftStore keeps the draft in Redis.
type RedisDraftStore struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// RedisDraftConfig configures RedisDraftStore.
type RedisDraftConfig struct {
	KeyPrefix string
	TTL       time.Duration
}

// NewRedisDraftStore creates a draft store on top of an existing client.
func NewRedisDraftStore(client redis.UniversalClient, cfg RedisDraftConfig) *RedisDraftStore {
	if cfg.TTL == 0 {
		cfg.TTL = defaultDraftTTL
	}
	key := DraftKey
	if cfg.KeyPrefix != "" {
		key = strings.Join([]string{cfg.KeyPrefix, DraftKey}, ":")
	}
	return &RedisDraftStore{
		client: client,
		key:    key,
		ttl:    cfg.TTL,
	}
}

// Key returns the Redis key the draft is stored under.
func (s *RedisDraftStore) Key() string {
	return s.key
}

// Load returns the stored draft.
func (s *RedisDraftStore) Load(ctx context.Context) (domain.IncidentDraft, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.IncidentDraft{}, ErrDraftNotFound
	}
	if err != nil {
		return domain.IncidentDraft{}, fmt.Errorf("get draft: %w", err)
	}
	return decodeDraft(data)
}

// Save stores the draft and refreshes its TTL.
func (s *RedisDraftStore) Save(ctx context.Context, draft domain.IncidentDraft) error {
	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set draft: %w", err)
	}
	return nil
}

// Clear deletes the stored draft.
func (s *RedisDraftStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

func decodeDraft(data []byte) (domain.IncidentDraft, error) {
	var draft domain.IncidentDraft
	if err := json.Unmarshal(data, &draft); err != nil {
		return domain.IncidentDraft{}, fmt.Errorf("unmarshal draft: %w", err)
	}
	return draft, nil
}
