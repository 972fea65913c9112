package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/njathi/homework-buddy-ai/internal/models"
)

// MemoryAccountStore is an in-memory AccountStore used by tests and local
// development. Per-account mutual exclusion comes from one mutex per key;
// operations on different accounts never contend.
type MemoryAccountStore struct {
	mu       sync.RWMutex
	locks    map[string]*sync.Mutex
	accounts map[string]*models.Account
	history  map[string][]models.QAEntry
}

func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		locks:    make(map[string]*sync.Mutex),
		accounts: make(map[string]*models.Account),
		history:  make(map[string][]models.QAEntry),
	}
}

func (s *MemoryAccountStore) lock(email string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[email]
	if !ok {
		l = &sync.Mutex{}
		s.locks[email] = l
	}
	return l
}

func (s *MemoryAccountStore) Get(ctx context.Context, email string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[email]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *acc
	return &copied, nil
}

func (s *MemoryAccountStore) GetByToken(ctx context.Context, token string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, acc := range s.accounts {
		if acc.APIToken == token {
			copied := *acc
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryAccountStore) Create(ctx context.Context, acc *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[acc.Email]; ok {
		return ErrDuplicate
	}
	now := time.Now()
	copied := *acc
	copied.CreatedAt = now
	copied.UpdatedAt = now
	s.accounts[acc.Email] = &copied
	return nil
}

func (s *MemoryAccountStore) SetToken(ctx context.Context, email, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[email]
	if !ok {
		return ErrNotFound
	}
	acc.APIToken = token
	acc.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryAccountStore) Update(ctx context.Context, email string, apply func(*models.Account) error) (*models.Account, error) {
	l := s.lock(email)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	acc, ok := s.accounts[email]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	working := *acc
	if err := apply(&working); err != nil {
		return nil, err
	}
	working.UpdatedAt = time.Now()

	s.mu.Lock()
	s.accounts[email] = &working
	s.mu.Unlock()

	copied := working
	return &copied, nil
}

func (s *MemoryAccountStore) AppendHistory(ctx context.Context, email string, entry models.QAEntry, limit int) error {
	l := s.lock(email)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[email]; !ok {
		return ErrNotFound
	}
	entries := append([]models.QAEntry{entry}, s.history[email]...)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	s.history[email] = entries
	return nil
}

func (s *MemoryAccountStore) History(ctx context.Context, email string, limit int) ([]models.QAEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.history[email]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]models.QAEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// MemoryIntentStore is an in-memory IntentStore with the same guarded
// transition semantics as the MySQL implementation.
type MemoryIntentStore struct {
	mu      sync.Mutex
	intents map[string]*models.PaymentIntent
}

func NewMemoryIntentStore() *MemoryIntentStore {
	return &MemoryIntentStore{intents: make(map[string]*models.PaymentIntent)}
}

func (s *MemoryIntentStore) Create(ctx context.Context, intent *models.PaymentIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.intents[intent.ID]; ok {
		return ErrDuplicate
	}
	copied := *intent
	s.intents[intent.ID] = &copied
	return nil
}

func (s *MemoryIntentStore) Get(ctx context.Context, id string) (*models.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, ok := s.intents[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *intent
	return &copied, nil
}

func (s *MemoryIntentStore) FindByGatewayRef(ctx context.Context, ref string) (*models.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, intent := range s.intents {
		if intent.GatewayRef == ref {
			copied := *intent
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryIntentStore) SetGatewayRef(ctx context.Context, id, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, ok := s.intents[id]
	if !ok {
		return ErrNotFound
	}
	intent.GatewayRef = ref
	return nil
}

func (s *MemoryIntentStore) Transition(ctx context.Context, id string, from []models.IntentStatus, to models.IntentStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, ok := s.intents[id]
	if !ok {
		return false, ErrNotFound
	}
	for _, f := range from {
		if intent.Status == f {
			intent.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryIntentStore) Resolve(ctx context.Context, id string, to models.IntentStatus, resultCode int, resultDesc string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, ok := s.intents[id]
	if !ok {
		return false, ErrNotFound
	}
	if intent.Status.Terminal() {
		return false, nil
	}
	intent.Status = to
	intent.ResultCode = resultCode
	intent.ResultDesc = resultDesc
	resolved := at
	intent.ResolvedAt = &resolved
	return true, nil
}

func (s *MemoryIntentStore) ExpireStale(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired int64
	now := time.Now()
	for _, intent := range s.intents {
		if (intent.Status == models.IntentSent || intent.Status == models.IntentAcknowledged) && intent.CreatedAt.Before(cutoff) {
			intent.Status = models.IntentExpired
			resolved := now
			intent.ResolvedAt = &resolved
			expired++
		}
	}
	return expired, nil
}

func (s *MemoryIntentStore) ListRecent(ctx context.Context, limit int) ([]models.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PaymentIntent, 0, len(s.intents))
	for _, intent := range s.intents {
		out = append(out, *intent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
