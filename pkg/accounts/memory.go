package accounts

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Seed is the accounts half of the dev seed document (same file as the tenant seed).
type Seed struct {
	Users     []User     `yaml:"users"`
	Employees []Employee `yaml:"employees"`
	Stores    []Store    `yaml:"stores"`
}

func LoadSeedFile(path string) (Seed, error) {
	var s Seed
	if path == "" {
		return s, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read accounts seed: %w", err)
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("parse accounts seed: %w", err)
	}
	return s, nil
}

// Memory implements Users and Staff in process. Uniqueness on subject and email mirrors
// the Postgres unique indexes so the linker sees the same failures in dev.
type Memory struct {
	mu        sync.RWMutex
	users     map[string]User
	employees []Employee
	stores    map[string]Store
	now       func() time.Time
}

func NewMemory(seed Seed) *Memory {
	m := &Memory{users: map[string]User{}, stores: map[string]Store{}, now: time.Now}
	for _, u := range seed.Users {
		if u.ID == "" {
			u.ID = uuid.NewString()
		}
		m.users[u.ID] = u
	}
	m.employees = append(m.employees, seed.Employees...)
	for _, s := range seed.Stores {
		m.stores[s.ID] = s
	}
	return m
}

func (m *Memory) FindBySubject(_ context.Context, sub string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.LineSubject != "" && u.LineSubject == sub {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (m *Memory) Get(_ context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return User{}, ErrNotFound
}

func (m *Memory) Create(_ context.Context, nu NewUser) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if nu.LineSubject != "" && u.LineSubject == nu.LineSubject {
			return User{}, ErrSubjectTaken
		}
		if nu.Email != "" && strings.EqualFold(u.Email, nu.Email) {
			return User{}, ErrEmailTaken
		}
	}
	now := m.now().UTC()
	u := User{
		ID:            uuid.NewString(),
		TenantID:      nu.TenantID,
		LineSubject:   nu.LineSubject,
		DisplayName:   nu.DisplayName,
		Email:         nu.Email,
		EmailVerified: nu.EmailVerified,
		PhotoURL:      nu.PhotoURL,
		Role:          nu.Role,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *Memory) UpdateProfile(_ context.Context, id string, p ProfilePatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	if p.DisplayName != nil {
		u.DisplayName = *p.DisplayName
	}
	if p.PhotoURL != nil {
		u.PhotoURL = *p.PhotoURL
	}
	u.UpdatedAt = m.now().UTC()
	m.users[id] = u
	return nil
}

func (m *Memory) SetClaims(_ context.Context, id, tenantID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.TenantID, u.Role = tenantID, role
	u.UpdatedAt = m.now().UTC()
	m.users[id] = u
	return nil
}

func (m *Memory) EmployeeByUser(_ context.Context, tenantID, userID string) (Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.employees {
		if e.TenantID == tenantID && e.UserID == userID {
			return e, nil
		}
	}
	return Employee{}, ErrNotFound
}

func (m *Memory) StoreByID(_ context.Context, id string) (Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.stores[id]; ok {
		return s, nil
	}
	return Store{}, ErrNotFound
}

// Count is used by tests asserting that re-login never duplicates accounts.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}

// AddEmployee and AddStore let tests provision staff after construction.
func (m *Memory) AddEmployee(e Employee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees = append(m.employees, e)
}

func (m *Memory) AddStore(s Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores[s.ID] = s
}
