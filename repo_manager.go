package sentinel

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories and implements CredentialStore
// on top of them.
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	CredentialStore

	Users() Users
	Groups() Groups
	Throttles() Throttles

	CreateGroup(ctx context.Context, group *Group) (*Group, error)
}

type mngr struct {
	db        *bun.DB
	users     Users
	groups    Groups
	throttles Throttles
	now       func() time.Time
}

var _ RepositoryManager = (*mngr)(nil)

// NewRepositoryManager wires the bun repositories. It registers the
// users_groups join model so m2m relations resolve.
func NewRepositoryManager(db *bun.DB) RepositoryManager {
	db.RegisterModel((*UserGroup)(nil))

	return &mngr{
		db:        db,
		users:     NewUsersRepository(db),
		groups:    NewGroupsRepository(db),
		throttles: NewThrottlesRepository(db),
		now:       time.Now,
	}
}

func (m *mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.groups == nil {
		return errors.New("repository groups should be initialized")
	}

	if m.throttles == nil {
		return errors.New("repository throttles should be initialized")
	}

	return nil
}

func (m *mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m *mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m *mngr) Users() Users {
	return m.users
}

func (m *mngr) Groups() Groups {
	return m.groups
}

func (m *mngr) Throttles() Throttles {
	return m.throttles
}

func (m *mngr) CreateGroup(ctx context.Context, group *Group) (*Group, error) {
	var out *Group
	err := m.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		out, err = m.groups.GetOrCreateTx(ctx, tx, group)
		return err
	})
	return out, err
}

func (m *mngr) CreateUser(ctx context.Context, user *User, groups []*Group) (*User, error) {
	var out *User
	err := m.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := m.checkLogins(ctx, tx, user, uuid.Nil); err != nil {
			return err
		}

		created, err := m.users.CreateTx(ctx, tx, user)
		if err != nil {
			return loginConflict(err, user)
		}

		if err := m.users.AssignGroupsTx(ctx, tx, created, groups); err != nil {
			return err
		}

		out, err = m.users.GetWithGroupsTx(ctx, tx, created.ID, false)
		return err
	})
	return out, err
}

func (m *mngr) UpdateUser(ctx context.Context, id uuid.UUID, mutate UserMutation) (*User, error) {
	var out *User
	err := m.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := m.users.GetWithGroupsTx(ctx, tx, id, true)
		if err != nil {
			return err
		}

		email, username := user.Email, user.Username
		if err := mutate(user); err != nil {
			return err
		}
		user.ID = id

		if user.Email != email || user.Username != username {
			if err := m.checkLogins(ctx, tx, user, id); err != nil {
				return err
			}
		}

		now := m.now()
		user.UpdatedAt = &now
		if err := m.users.SaveTx(ctx, tx, user); err != nil {
			return loginConflict(err, user)
		}

		out, err = m.users.GetWithGroupsTx(ctx, tx, id, false)
		return err
	})
	return out, err
}

func (m *mngr) DeleteUser(ctx context.Context, id uuid.UUID) (*User, error) {
	var out *User
	err := m.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := m.users.GetWithGroupsTx(ctx, tx, id, true)
		if err != nil {
			return err
		}

		if err := m.users.DeleteByIDTx(ctx, tx, id); err != nil {
			return err
		}

		out = user
		return nil
	})
	return out, err
}

func (m *mngr) FindUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return m.users.GetWithGroupsTx(ctx, m.db, id, false)
}

func (m *mngr) FindUserByLogin(ctx context.Context, identifier string) (*User, error) {
	return m.users.GetByIdentifier(ctx, identifier)
}

func (m *mngr) ListUsers(ctx context.Context) ([]*User, error) {
	return m.users.ListWithGroupsTx(ctx, m.db)
}

func (m *mngr) FindGroupByName(ctx context.Context, name string) (*Group, error) {
	return m.groups.GetByIdentifier(ctx, name)
}

// GetThrottle returns the stored throttle, or a clear unsaved one when the
// user never had a throttle affecting action.
func (m *mngr) GetThrottle(ctx context.Context, userID uuid.UUID) (*Throttle, error) {
	if _, err := m.users.GetWithGroupsTx(ctx, m.db, userID, false); err != nil {
		return nil, err
	}

	throttle, err := m.throttles.GetByIdentifier(ctx, userID.String())
	if err != nil {
		if IsRecordNotFound(err) {
			return NewThrottle(userID), nil
		}
		return nil, err
	}
	return throttle, nil
}

func (m *mngr) UpdateThrottle(ctx context.Context, userID uuid.UUID, mutate ThrottleMutation) (*Throttle, error) {
	var out *Throttle
	err := m.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := m.users.GetWithGroupsTx(ctx, tx, userID, true); err != nil {
			return err
		}

		throttle, err := m.throttles.GetOrCreateByUserTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		if err := mutate(throttle); err != nil {
			return err
		}
		throttle.UserID = userID

		now := m.now()
		throttle.UpdatedAt = &now
		if err := m.throttles.SaveTx(ctx, tx, throttle); err != nil {
			return err
		}

		out = throttle
		return nil
	})
	return out, err
}

func (m *mngr) checkLogins(ctx context.Context, tx bun.IDB, user *User, except uuid.UUID) error {
	taken, err := m.users.LoginTakenTx(ctx, tx, "email", user.Email, except)
	if err != nil {
		return err
	}
	if taken {
		return withMeta(ErrDuplicateLogin, map[string]any{"field": "email", "value": user.Email})
	}

	taken, err = m.users.LoginTakenTx(ctx, tx, "username", user.Username, except)
	if err != nil {
		return err
	}
	if taken {
		return withMeta(ErrDuplicateLogin, map[string]any{"field": "username", "value": user.Username})
	}
	return nil
}

// pgUniqueViolation is the SQLSTATE PostgreSQL reports for unique index
// violations.
const pgUniqueViolation = "23505"

// loginConflict turns a unique index violation on users.email or
// users.username into ErrDuplicateLogin. A concurrent writer can take a login
// between checkLogins and the write, only the index catches that.
func loginConflict(err error, user *User) error {
	if err == nil {
		return nil
	}

	var target string
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return err
		}
		target = pgErr.ConstraintName + " " + pgErr.Message
	} else {
		msg := err.Error()
		switch {
		case strings.Contains(msg, "UNIQUE constraint failed"),
			strings.Contains(msg, "duplicate key value violates unique constraint"):
			target = msg
		default:
			return err
		}
	}

	switch {
	case strings.Contains(target, "username"):
		return withMeta(ErrDuplicateLogin, map[string]any{"field": "username", "value": user.Username})
	case strings.Contains(target, "email"):
		return withMeta(ErrDuplicateLogin, map[string]any{"field": "email", "value": user.Email})
	default:
		return err
	}
}
