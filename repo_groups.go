package sentinel

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Groups is the group repository. Groups are looked up by name.
type Groups interface {
	repository.Repository[*Group]

	GetOrCreateTx(ctx context.Context, tx bun.IDB, record *Group) (*Group, error)
}

type groups struct {
	repository.Repository[*Group]
}

var _ Groups = (*groups)(nil)

// NewGroupsRepository returns the bun backed group repository.
func NewGroupsRepository(db *bun.DB) Groups {
	return &groups{
		Repository: repository.NewRepository[*Group](db, repository.ModelHandlers[*Group]{
			NewRecord: func() *Group { return &Group{} },
			GetID: func(g *Group) uuid.UUID {
				if g == nil {
					return uuid.Nil
				}
				return g.ID
			},
			SetID: func(g *Group, id uuid.UUID) {
				if g != nil {
					g.ID = id
				}
			},
			GetIdentifier: func() string {
				return "name"
			},
		}),
	}
}

func (g *groups) GetOrCreateTx(ctx context.Context, tx bun.IDB, record *Group) (*Group, error) {
	record.Name = strings.TrimSpace(record.Name)

	existing, err := g.GetByIdentifierTx(ctx, tx, record.Name)
	if err == nil {
		return existing, nil
	}

	if !IsRecordNotFound(err) {
		return nil, err
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return g.CreateTx(ctx, tx, record)
}
