// pkg/directory/memory.go
package directory

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type Memory struct {
	log *zap.SugaredLogger

	mu       sync.RWMutex
	byID     map[string]School
	byDomain map[string]School
	users    map[string]User // key: lowercased email
}

// NewMemoryProvider returns an empty in-memory directory, for tests and dev.
func NewMemoryProvider(log *zap.SugaredLogger) *Memory {
	return &Memory{
		log:      log,
		byID:     map[string]School{},
		byDomain: map[string]School{},
		users:    map[string]User{},
	}
}

// NewMemoryProviderFromEnv seeds the in-memory directory from
// SCHOOL_SEED_JSON, matching the Postgres seed format.
func NewMemoryProviderFromEnv(log *zap.SugaredLogger) Provider {
	p := NewMemoryProvider(log)
	seed := os.Getenv("SCHOOL_SEED_JSON")
	if seed != "" {
		var entries []struct {
			ID, Name, Domain, DBName, ConnURI string
			AdminEmail                        string `json:"admin_email"`
		}
		_ = json.Unmarshal([]byte(seed), &entries)
		for _, e := range entries {
			p.AddSchool(School{ID: e.ID, Name: e.Name, Domain: e.Domain, DBName: e.DBName, ConnURI: e.ConnURI, Active: true})
			if e.AdminEmail != "" {
				p.AddUser(User{ID: e.ID + ":admin", Email: e.AdminEmail, Role: "admin", SchoolID: e.ID})
			}
		}
	}
	return p
}

func (m *Memory) AddSchool(s School) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[s.ID] = s
	if s.Domain != "" {
		m.byDomain[strings.ToLower(s.Domain)] = s
	}
}

func (m *Memory) AddUser(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[strings.ToLower(u.Email)] = u
}

func (m *Memory) FindByID(ctx context.Context, id string) (School, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.byID[id]; ok {
		return s, nil
	}
	return School{}, ErrNotFound
}

func (m *Memory) FindByDomain(ctx context.Context, domain string) (School, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.byDomain[strings.ToLower(domain)]; ok {
		return s, nil
	}
	return School{}, ErrNotFound
}

func (m *Memory) FindUserByID(ctx context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (m *Memory) FindUserByEmail(ctx context.Context, email string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[strings.ToLower(email)]; ok {
		return u, nil
	}
	return User{}, ErrNotFound
}
