package sentinel

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// Users is the user repository.
type Users interface {
	repository.Repository[*User]

	GetWithGroupsTx(ctx context.Context, tx bun.IDB, id uuid.UUID, forUpdate bool) (*User, error)
	ListWithGroupsTx(ctx context.Context, tx bun.IDB) ([]*User, error)
	LoginTakenTx(ctx context.Context, tx bun.IDB, column, value string, except uuid.UUID) (bool, error)
	SaveTx(ctx context.Context, tx bun.IDB, user *User) error
	AssignGroupsTx(ctx context.Context, tx bun.IDB, user *User, groups []*Group) error
	DeleteByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var _ Users = (*users)(nil)

// NewUsersRepository returns the bun backed user repository.
func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier, criteria...)
}

// GetByIdentifierTx resolves an id, email or username, in that order.
func (a *users) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	for _, opt := range resolveUserIdentifier(identifier) {
		record := &User{}
		q := tx.NewSelect().Model(record).Relation("Groups")

		for _, c := range criteria {
			q.Apply(c)
		}

		err := q.
			Where(fmt.Sprintf("?TableAlias.%s = ?", opt.column), opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

// GetWithGroupsTx loads a user and its groups. On PostgreSQL forUpdate locks
// the row until tx ends.
func (a *users) GetWithGroupsTx(ctx context.Context, tx bun.IDB, id uuid.UUID, forUpdate bool) (*User, error) {
	if forUpdate && a.db.Dialect().Name() == dialect.PG {
		if _, err := tx.NewSelect().
			Model((*User)(nil)).
			Column("id").
			Where("?TableAlias.id = ?", id).
			For("UPDATE").
			Exec(ctx); err != nil {
			return nil, err
		}
	}

	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Relation("Groups").
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"id": id.String(),
				})
		}
		return nil, err
	}
	return record, nil
}

func (a *users) ListWithGroupsTx(ctx context.Context, tx bun.IDB) ([]*User, error) {
	records := []*User{}
	err := tx.NewSelect().
		Model(&records).
		Relation("Groups").
		Order("created_at ASC", "email ASC").
		Scan(ctx)
	if err != nil && !IsRecordNotFound(err) {
		return nil, err
	}
	return records, nil
}

// LoginTakenTx reports whether another user already uses value in column.
func (a *users) LoginTakenTx(ctx context.Context, tx bun.IDB, column, value string, except uuid.UUID) (bool, error) {
	if strings.TrimSpace(value) == "" {
		return false, nil
	}

	q := tx.NewSelect().
		Model((*User)(nil)).
		Where(fmt.Sprintf("LOWER(?TableAlias.%s) = LOWER(?)", column), value)

	if except != uuid.Nil {
		q = q.Where("?TableAlias.id <> ?", except)
	}

	return q.Exists(ctx)
}

// SaveTx writes every column of user, zero values included, so clearing a
// field reaches the database.
func (a *users) SaveTx(ctx context.Context, tx bun.IDB, user *User) error {
	res, err := tx.NewUpdate().
		Model(user).
		ExcludeColumn("id", "created_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": user.ID.String(),
			})
	}
	return nil
}

func (a *users) AssignGroupsTx(ctx context.Context, tx bun.IDB, user *User, groups []*Group) error {
	if len(groups) == 0 {
		return nil
	}

	rows := make([]*UserGroup, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, &UserGroup{UserID: user.ID, GroupID: g.ID})
	}

	_, err := tx.NewInsert().Model(&rows).On("CONFLICT DO NOTHING").Exec(ctx)
	return err
}

// DeleteByIDTx removes the user along with its memberships and throttle.
func (a *users) DeleteByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	if _, err := tx.NewDelete().
		Model((*UserGroup)(nil)).
		Where("user_id = ?", id).
		Exec(ctx); err != nil {
		return err
	}

	if _, err := tx.NewDelete().
		Model((*Throttle)(nil)).
		Where("user_id = ?", id).
		Exec(ctx); err != nil {
		return err
	}

	res, err := tx.NewDelete().
		Model((*User)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}
	return nil
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	record.Email = strings.ToLower(strings.TrimSpace(record.Email))
}

type identifierOption struct {
	column string
	value  string
}

func resolveUserIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 3)

	if isUUID(trimmed) {
		options = append(options, identifierOption{
			column: "id",
			value:  trimmed,
		})
	}

	if isEmail(trimmed) {
		options = append(options, identifierOption{
			column: "email",
			value:  strings.ToLower(trimmed),
		})
	}

	options = append(options, identifierOption{
		column: "username",
		value:  trimmed,
	})

	return options
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isUUID(identifier string) bool {
	_, err := uuid.Parse(identifier)
	return err == nil
}
