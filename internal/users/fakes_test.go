package users

import (
	"context"
	"sync"

	"github.com/ariefcatur/go-marketplace/internal/apperr"
	"github.com/google/uuid"
)

type memStore struct {
	mu    sync.Mutex
	users map[string]User
}

func newMemStore() *memStore { return &memStore{users: map[string]User{}} }

func (m *memStore) byEmail(email string) (User, bool) {
	for _, u := range m.users {
		if u.Email == normalizeEmail(email) {
			return u, true
		}
	}
	return User{}, false
}

func (m *memStore) CreateTemp(ctx context.Context, in TempInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byEmail(in.Email); ok {
		return u.ID, nil
	}
	u := User{ID: uuid.NewString(), Email: normalizeEmail(in.Email), FirstName: in.FirstName, LastName: in.LastName, Role: RoleBuyer, IsTemp: true}
	m.users[u.ID] = u
	return u.ID, nil
}

func (m *memStore) GetByEmail(ctx context.Context, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byEmail(email); ok {
		return u, nil
	}
	return User{}, apperr.NotFound("User not found")
}

func (m *memStore) GetByID(ctx context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, apperr.NotFound("User not found")
	}
	return u, nil
}

func (m *memStore) GetMany(ctx context.Context, ids []string) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []User{}
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memStore) Insert(ctx context.Context, in RegisterInput, hash string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail(in.Email); ok {
		return User{}, apperr.Conflict("Email already registered")
	}
	u := User{ID: uuid.NewString(), Email: normalizeEmail(in.Email), FirstName: in.FirstName, LastName: in.LastName,
		Country: in.Country, Role: in.Role, PasswordHash: hash}
	m.users[u.ID] = u
	return u, nil
}

func (m *memStore) Upgrade(ctx context.Context, id string, in RegisterInput, hash string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || !u.IsTemp {
		return User{}, apperr.BadRequest("Email already registered")
	}
	u.FirstName, u.LastName, u.Country, u.Role, u.PasswordHash, u.IsTemp = in.FirstName, in.LastName, in.Country, in.Role, hash, false
	m.users[id] = u
	return u, nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}
