package sentinel

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Logger is the logging surface used across the package. Messages are
// followed by alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// UserMutation changes a user record inside a store transaction.
type UserMutation func(user *User) error

// ThrottleMutation changes a throttle record inside a store transaction.
type ThrottleMutation func(throttle *Throttle) error

// CredentialStore persists users, groups and throttles.
//
// UpdateUser and UpdateThrottle must load, mutate and save the record
// atomically. Lookups return an error that satisfies IsRecordNotFound when
// nothing matches, CreateUser and UpdateUser return ErrDuplicateLogin when an
// email or username is taken.
type CredentialStore interface {
	CreateUser(ctx context.Context, user *User, groups []*Group) (*User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, mutate UserMutation) (*User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) (*User, error)
	FindUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindUserByLogin(ctx context.Context, identifier string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	FindGroupByName(ctx context.Context, name string) (*Group, error)
	GetThrottle(ctx context.Context, userID uuid.UUID) (*Throttle, error)
	UpdateThrottle(ctx context.Context, userID uuid.UUID, mutate ThrottleMutation) (*Throttle, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) error
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] SENTINEL " + line(msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] SENTINEL " + line(msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] SENTINEL " + line(msg, args...))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] SENTINEL " + line(msg, args...))
}

func line(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	b.WriteString("\n")
	return b.String()
}
