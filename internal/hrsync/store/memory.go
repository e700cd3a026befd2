package store

import (
	"context"
	"fmt"
	"sync"

	"sellsync/internal/hrsync/models"
	"sellsync/pkg/platform/sentinel"
)

// MemoryStore keeps the mirrored entities in maps. It backs unit tests and
// favors clarity over performance, in line with the other in-memory stores in
// this codebase. Sessions stage writes and apply them on Commit so rollback
// and retry behavior is observable without a database.
type MemoryStore struct {
	mu          sync.Mutex
	users       map[int64]models.User
	roles       map[int64]models.Role
	scopes      map[int64]models.Scope
	enterprises map[int64]models.Enterprise
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		users:       make(map[int64]models.User),
		roles:       make(map[int64]models.Role),
		scopes:      make(map[int64]models.Scope),
		enterprises: make(map[int64]models.Enterprise),
	}
}

func (s *MemoryStore) Begin(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memorySession{
		store:  s,
		staged: make(map[int64]*models.User),
		open:   true,
	}, nil
}

// Seed helpers install reference data directly, bypassing sessions. Tests use
// them to stand in for rows the remote system owns.

func (s *MemoryStore) SeedEnterprise(e models.Enterprise) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enterprises[e.ID] = e
}

func (s *MemoryStore) SeedRole(r models.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[r.ID] = r
}

func (s *MemoryStore) SeedScope(sc models.Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes[sc.ID] = sc
}

func (s *MemoryStore) SeedUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// memorySession overlays staged user writes on the shared maps. A nil staged
// entry marks a deletion.
type memorySession struct {
	store  *MemoryStore
	staged map[int64]*models.User
	open   bool
}

func (m *memorySession) GetUser(_ context.Context, id int64) (*models.User, error) {
	if !m.open {
		return nil, sentinel.ErrInvalidState
	}
	if staged, ok := m.staged[id]; ok {
		if staged == nil {
			return nil, fmt.Errorf("user %d: %w", id, sentinel.ErrNotFound)
		}
		u := *staged
		return &u, nil
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if u, ok := m.store.users[id]; ok {
		return &u, nil
	}
	return nil, fmt.Errorf("user %d: %w", id, sentinel.ErrNotFound)
}

func (m *memorySession) InsertUser(ctx context.Context, user *models.User) error {
	if !m.open {
		return sentinel.ErrInvalidState
	}
	if _, err := m.GetUser(ctx, user.ID); err == nil {
		return fmt.Errorf("user %d already exists: %w", user.ID, sentinel.ErrConflict)
	}
	m.store.mu.Lock()
	_, enterpriseExists := m.store.enterprises[user.EnterpriseID]
	m.store.mu.Unlock()
	if !enterpriseExists {
		return fmt.Errorf("enterprise %d not present: %w", user.EnterpriseID, sentinel.ErrConflict)
	}
	u := *user
	m.staged[user.ID] = &u
	return nil
}

func (m *memorySession) UpdateUser(ctx context.Context, user *models.User) error {
	if !m.open {
		return sentinel.ErrInvalidState
	}
	if _, err := m.GetUser(ctx, user.ID); err != nil {
		return err
	}
	u := *user
	m.staged[user.ID] = &u
	return nil
}

func (m *memorySession) DeleteUser(ctx context.Context, id int64) error {
	if !m.open {
		return sentinel.ErrInvalidState
	}
	if _, err := m.GetUser(ctx, id); err != nil {
		return err
	}
	m.staged[id] = nil
	return nil
}

func (m *memorySession) GetRole(_ context.Context, id int64) (*models.Role, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if r, ok := m.store.roles[id]; ok {
		return &r, nil
	}
	return nil, fmt.Errorf("role %d: %w", id, sentinel.ErrNotFound)
}

func (m *memorySession) FindRoleByName(_ context.Context, enterpriseID int64, name string) (*models.Role, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for _, r := range m.store.roles {
		if r.EnterpriseID == enterpriseID && r.Name == name {
			role := r
			return &role, nil
		}
	}
	return nil, fmt.Errorf("role %q in enterprise %d: %w", name, enterpriseID, sentinel.ErrNotFound)
}

func (m *memorySession) GetScope(_ context.Context, id int64) (*models.Scope, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if sc, ok := m.store.scopes[id]; ok {
		return &sc, nil
	}
	return nil, fmt.Errorf("scope %d: %w", id, sentinel.ErrNotFound)
}

func (m *memorySession) FindScopeByName(_ context.Context, enterpriseID int64, name string) (*models.Scope, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for _, sc := range m.store.scopes {
		if sc.EnterpriseID == enterpriseID && sc.Name == name {
			scope := sc
			return &scope, nil
		}
	}
	return nil, fmt.Errorf("scope %q in enterprise %d: %w", name, enterpriseID, sentinel.ErrNotFound)
}

func (m *memorySession) GetEnterprise(_ context.Context, id int64) (*models.Enterprise, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if e, ok := m.store.enterprises[id]; ok {
		return &e, nil
	}
	return nil, fmt.Errorf("enterprise %d: %w", id, sentinel.ErrNotFound)
}

func (m *memorySession) Commit(_ context.Context) error {
	if !m.open {
		return sentinel.ErrInvalidState
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for id, staged := range m.staged {
		if staged == nil {
			delete(m.store.users, id)
			continue
		}
		m.store.users[id] = *staged
	}
	m.staged = make(map[int64]*models.User)
	m.open = false
	return nil
}

func (m *memorySession) Rollback(_ context.Context) error {
	m.staged = make(map[int64]*models.User)
	m.open = false
	return nil
}

func (m *memorySession) Open() bool { return m.open }

func (m *memorySession) Close() error {
	m.open = false
	return nil
}
