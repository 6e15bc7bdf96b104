package sentinel

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// Throttles is the throttle repository, one row per user.
type Throttles interface {
	repository.Repository[*Throttle]

	GetOrCreateByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*Throttle, error)
	SaveTx(ctx context.Context, tx bun.IDB, throttle *Throttle) error
}

type throttles struct {
	repository.Repository[*Throttle]
	db *bun.DB
}

var _ Throttles = (*throttles)(nil)

// NewThrottlesRepository returns the bun backed throttle repository.
func NewThrottlesRepository(db *bun.DB) Throttles {
	return &throttles{
		db: db,
		Repository: repository.NewRepository[*Throttle](db, repository.ModelHandlers[*Throttle]{
			NewRecord: func() *Throttle { return &Throttle{} },
			GetID: func(t *Throttle) uuid.UUID {
				if t == nil {
					return uuid.Nil
				}
				return t.ID
			},
			SetID: func(t *Throttle, id uuid.UUID) {
				if t != nil {
					t.ID = id
				}
			},
			GetIdentifier: func() string {
				return "user_id"
			},
		}),
	}
}

// GetOrCreateByUserTx returns the throttle of userID, inserting a clear one on
// first use.
func (t *throttles) GetOrCreateByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*Throttle, error) {
	record := &Throttle{}
	q := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1)

	if t.db.Dialect().Name() == dialect.PG {
		q = q.For("UPDATE")
	}

	err := q.Scan(ctx)
	if err == nil {
		return record, nil
	}

	if !IsRecordNotFound(err) {
		return nil, err
	}

	return t.CreateTx(ctx, tx, NewThrottle(userID))
}

// SaveTx writes every throttle column so cleared flags are persisted.
func (t *throttles) SaveTx(ctx context.Context, tx bun.IDB, throttle *Throttle) error {
	_, err := tx.NewUpdate().
		Model(throttle).
		ExcludeColumn("id", "user_id", "created_at").
		WherePK().
		Exec(ctx)
	return err
}
