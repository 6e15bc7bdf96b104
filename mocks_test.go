package sentinel_test

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-sentinel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockEventSink implements sentinel.EventSink
type MockEventSink struct {
	mock.Mock
}

func (m *MockEventSink) Publish(ctx context.Context, event sentinel.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// Names lists the published event names in order.
func (m *MockEventSink) Names() []sentinel.EventName {
	names := []sentinel.EventName{}
	for _, call := range m.Calls {
		if call.Method != "Publish" {
			continue
		}
		names = append(names, call.Arguments.Get(1).(sentinel.Event).Name)
	}
	return names
}

// MockLogger implements sentinel.Logger
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(msg string, args ...any) { m.Called(msg, args) }
func (m *MockLogger) Info(msg string, args ...any)  { m.Called(msg, args) }
func (m *MockLogger) Warn(msg string, args ...any)  { m.Called(msg, args) }
func (m *MockLogger) Error(msg string, args ...any) { m.Called(msg, args) }

// memoryStore implements sentinel.CredentialStore in memory. Records are
// copied on the way in and out.
type memoryStore struct {
	mu        sync.Mutex
	users     map[uuid.UUID]*sentinel.User
	groups    map[string]*sentinel.Group
	members   map[uuid.UUID][]string
	throttles map[uuid.UUID]*sentinel.Throttle
	failWith  error
}

func newMemoryStore(groups ...string) *memoryStore {
	s := &memoryStore{
		users:     map[uuid.UUID]*sentinel.User{},
		groups:    map[string]*sentinel.Group{},
		members:   map[uuid.UUID][]string{},
		throttles: map[uuid.UUID]*sentinel.Throttle{},
	}
	for _, name := range groups {
		s.addGroup(name, "users")
	}
	return s
}

func (s *memoryStore) addGroup(name string, perms ...string) *sentinel.Group {
	g := &sentinel.Group{ID: uuid.New(), Name: name, Permissions: perms}
	s.groups[name] = g
	return g
}

func (s *memoryStore) CreateUser(ctx context.Context, user *sentinel.User, groups []*sentinel.Group) (*sentinel.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	if err := s.checkLogins(user, uuid.Nil); err != nil {
		return nil, err
	}

	rec := copyUser(user)
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.Groups = nil
	s.users[rec.ID] = rec
	for _, g := range groups {
		s.members[rec.ID] = append(s.members[rec.ID], g.Name)
	}
	return s.load(rec.ID), nil
}

func (s *memoryStore) UpdateUser(ctx context.Context, id uuid.UUID, mutate sentinel.UserMutation) (*sentinel.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	current, ok := s.users[id]
	if !ok {
		return nil, sentinel.ErrRecordNotFound
	}

	working := copyUser(current)
	if err := mutate(working); err != nil {
		return nil, err
	}
	working.ID = id

	if err := s.checkLogins(working, id); err != nil {
		return nil, err
	}

	working.Groups = nil
	s.users[id] = working
	return s.load(id), nil
}

func (s *memoryStore) DeleteUser(ctx context.Context, id uuid.UUID) (*sentinel.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	if _, ok := s.users[id]; !ok {
		return nil, sentinel.ErrRecordNotFound
	}
	out := s.load(id)
	delete(s.users, id)
	delete(s.members, id)
	delete(s.throttles, id)
	return out, nil
}

func (s *memoryStore) FindUserByID(ctx context.Context, id uuid.UUID) (*sentinel.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	if _, ok := s.users[id]; !ok {
		return nil, sentinel.ErrRecordNotFound
	}
	return s.load(id), nil
}

func (s *memoryStore) FindUserByLogin(ctx context.Context, identifier string) (*sentinel.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	for id, u := range s.users {
		if strings.EqualFold(u.Email, identifier) || (u.Username != "" && u.Username == identifier) || id.String() == identifier {
			return s.load(id), nil
		}
	}
	return nil, sentinel.ErrRecordNotFound
}

func (s *memoryStore) ListUsers(ctx context.Context) ([]*sentinel.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	out := []*sentinel.User{}
	for id := range s.users {
		out = append(out, s.load(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *memoryStore) FindGroupByName(ctx context.Context, name string) (*sentinel.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[name]
	if !ok {
		return nil, sentinel.ErrRecordNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *memoryStore) GetThrottle(ctx context.Context, userID uuid.UUID) (*sentinel.Throttle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	if _, ok := s.users[userID]; !ok {
		return nil, sentinel.ErrRecordNotFound
	}
	if t, ok := s.throttles[userID]; ok {
		cp := *t
		return &cp, nil
	}
	return sentinel.NewThrottle(userID), nil
}

func (s *memoryStore) UpdateThrottle(ctx context.Context, userID uuid.UUID, mutate sentinel.ThrottleMutation) (*sentinel.Throttle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	if _, ok := s.users[userID]; !ok {
		return nil, sentinel.ErrRecordNotFound
	}

	working := sentinel.NewThrottle(userID)
	if t, ok := s.throttles[userID]; ok {
		cp := *t
		working = &cp
	}
	if err := mutate(working); err != nil {
		return nil, err
	}

	stored := *working
	s.throttles[userID] = &stored
	return working, nil
}

func (s *memoryStore) checkLogins(user *sentinel.User, except uuid.UUID) error {
	for id, u := range s.users {
		if id == except {
			continue
		}
		if strings.EqualFold(u.Email, user.Email) {
			return sentinel.ErrDuplicateLogin.Clone().WithMetadata(map[string]any{"field": "email"})
		}
		if user.Username != "" && u.Username == user.Username {
			return sentinel.ErrDuplicateLogin.Clone().WithMetadata(map[string]any{"field": "username"})
		}
	}
	return nil
}

func (s *memoryStore) load(id uuid.UUID) *sentinel.User {
	out := copyUser(s.users[id])
	for _, name := range s.members[id] {
		if g, ok := s.groups[name]; ok {
			cp := *g
			out.Groups = append(out.Groups, &cp)
		}
	}
	return out
}

func (s *memoryStore) raw(id uuid.UUID) *sentinel.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	return copyUser(u)
}

func copyUser(u *sentinel.User) *sentinel.User {
	cp := *u
	cp.Metadata = maps.Clone(u.Metadata)
	cp.Groups = append([]*sentinel.Group(nil), u.Groups...)
	return &cp
}
