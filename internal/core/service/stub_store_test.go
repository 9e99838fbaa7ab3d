package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/flightdesk/auth-service/internal/core/domain"
	"github.com/flightdesk/auth-service/internal/core/ports"
)

// ---------------------------------------------------------------------------
// In-memory stub credential store
// ---------------------------------------------------------------------------

type stubStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	users   map[string]*domain.User
	records map[string]*domain.RefreshTokenRecord
	order   map[string]int
	seq     int

	failures  map[string]error // op name -> error returned by that op
	findCalls int              // FindValidRefreshTokenRecords invocations
}

func newStubStore() *stubStore {
	return &stubStore{
		users:    make(map[string]*domain.User),
		records:  make(map[string]*domain.RefreshTokenRecord),
		order:    make(map[string]int),
		failures: make(map[string]error),
	}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	if u.Name != nil {
		name := *u.Name
		clone.Name = &name
	}
	return &clone
}

func cloneRecord(r *domain.RefreshTokenRecord) *domain.RefreshTokenRecord {
	clone := *r
	if r.RevokedAt != nil {
		at := *r.RevokedAt
		clone.RevokedAt = &at
	}
	return &clone
}

func (s *stubStore) fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

func (s *stubStore) failure(op string) error {
	return s.failures[op]
}

func (s *stubStore) FindUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("FindUserByEmail"); err != nil {
		return nil, err
	}
	for _, u := range s.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *stubStore) FindUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (s *stubStore) CreateUser(_ context.Context, user *domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email {
			return nil, domain.ErrUserExists
		}
	}
	s.seq++
	created := cloneUser(user)
	created.ID = fmt.Sprintf("user-%d", s.seq)
	s.users[created.ID] = cloneUser(created)
	return created, nil
}

func (s *stubStore) UpdateUser(_ context.Context, id string, upd domain.UserUpdate) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("UpdateUser"); err != nil {
		return nil, err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.ClearName {
		u.Name = nil
	} else if upd.Name != nil {
		name := *upd.Name
		u.Name = &name
	}
	u.UpdatedAt = upd.UpdatedAt
	return cloneUser(u), nil
}

func (s *stubStore) CreateRefreshTokenRecord(_ context.Context, rec *domain.RefreshTokenRecord) (*domain.RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("CreateRefreshTokenRecord"); err != nil {
		return nil, err
	}
	s.seq++
	created := cloneRecord(rec)
	created.ID = fmt.Sprintf("rt-%d", s.seq)
	s.records[created.ID] = cloneRecord(created)
	s.order[created.ID] = s.seq
	return created, nil
}

func (s *stubStore) FindValidRefreshTokenRecords(_ context.Context, userID string, now time.Time) ([]*domain.RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	if err := s.failure("FindValidRefreshTokenRecords"); err != nil {
		return nil, err
	}
	var out []*domain.RefreshTokenRecord
	for _, r := range s.records {
		if r.UserID == userID && r.IsValid(now) {
			out = append(out, cloneRecord(r))
		}
	}
	// Mirrors ORDER BY created_at DESC, with insertion order breaking ties.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return s.order[out[i].ID] > s.order[out[j].ID]
	})
	return out, nil
}

func (s *stubStore) RevokeRefreshTokenRecord(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("RevokeRefreshTokenRecord"); err != nil {
		return err
	}
	r, ok := s.records[id]
	if !ok || r.RevokedAt != nil {
		return domain.ErrRefreshTokenRevoked
	}
	r.RevokedAt = &at
	return nil
}

func (s *stubStore) RevokeAllRefreshTokenRecords(_ context.Context, userID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("RevokeAllRefreshTokenRecords"); err != nil {
		return 0, err
	}
	var n int64
	for _, r := range s.records {
		if r.UserID == userID && r.RevokedAt == nil {
			revokedAt := at
			r.RevokedAt = &revokedAt
			n++
		}
	}
	return n, nil
}

// Transactionally serializes transactions and restores a snapshot when fn fails.
func (s *stubStore) Transactionally(ctx context.Context, fn func(ctx context.Context, store ports.CredentialStore) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	users, records := s.snapshot()
	if err := fn(ctx, s); err != nil {
		s.restore(users, records)
		return err
	}
	return nil
}

func (s *stubStore) snapshot() (map[string]*domain.User, map[string]*domain.RefreshTokenRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make(map[string]*domain.User, len(s.users))
	for k, v := range s.users {
		users[k] = cloneUser(v)
	}
	records := make(map[string]*domain.RefreshTokenRecord, len(s.records))
	for k, v := range s.records {
		records[k] = cloneRecord(v)
	}
	return users, records
}

func (s *stubStore) restore(users map[string]*domain.User, records map[string]*domain.RefreshTokenRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = users
	s.records = records
}

func (s *stubStore) deleteUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

func (s *stubStore) userByEmail(email string) *domain.User {
	u, _ := s.FindUserByEmail(context.Background(), email)
	return u
}

func (s *stubStore) recordsOf(userID string) []*domain.RefreshTokenRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.RefreshTokenRecord
	for _, r := range s.records {
		if r.UserID == userID {
			out = append(out, cloneRecord(r))
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Ledger, audit and clock fakes
// ---------------------------------------------------------------------------

type stubLedger struct {
	mu      sync.Mutex
	rotated map[string]time.Duration
	err     error
}

func newStubLedger() *stubLedger {
	return &stubLedger{rotated: make(map[string]time.Duration)}
}

func (l *stubLedger) MarkRotated(_ context.Context, tokenID string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.rotated[tokenID] = ttl
	return nil
}

func (l *stubLedger) WasRotated(_ context.Context, tokenID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	_, ok := l.rotated[tokenID]
	return ok, nil
}

type collectingAudit struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (a *collectingAudit) Publish(event domain.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *collectingAudit) count(action, outcome string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.events {
		if e.Action == action && e.Outcome == outcome {
			n++
		}
	}
	return n
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
