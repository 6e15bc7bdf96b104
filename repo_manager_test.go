package sentinel_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/goliatone/go-sentinel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"
)

func setupRepositoryManager(t *testing.T) (sentinel.RepositoryManager, *bun.DB) {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())
	t.Cleanup(func() {
		_ = bunDB.Close()
	})

	_, err = bunDB.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	require.NoError(t, sentinel.Migrate(context.Background(), bunDB))

	repo := sentinel.NewRepositoryManager(bunDB)
	repo.MustValidate()

	return repo, bunDB
}

func seedGroup(t *testing.T, repo sentinel.RepositoryManager, name string, perms ...string) *sentinel.Group {
	t.Helper()
	g, err := repo.CreateGroup(context.Background(), &sentinel.Group{Name: name, Permissions: perms})
	require.NoError(t, err)
	return g
}

func TestRepositoryManagerCreateAndFind(t *testing.T) {
	repo, _ := setupRepositoryManager(t)
	ctx := context.Background()
	users := seedGroup(t, repo, "Users", "users")
	admins := seedGroup(t, repo, "Admins", "admin")

	created, err := repo.CreateUser(ctx, &sentinel.User{
		Email:          "Jane@Example.com",
		Username:       "jane",
		PasswordHash:   "hash",
		ActivationCode: "abc",
		Metadata:       map[string]any{"phone": "+16502530000"},
	}, []*sentinel.Group{users, admins})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, "jane@example.com", created.Email)
	assert.Len(t, created.Groups, 2)
	assert.True(t, created.HasAccess("admin"))
	assert.False(t, created.HasAccess("billing"))

	for _, login := range []string{"jane@example.com", "JANE@example.com", "jane", created.ID.String()} {
		found, err := repo.FindUserByLogin(ctx, login)
		require.NoError(t, err, login)
		assert.Equal(t, created.ID, found.ID)
		assert.Len(t, found.Groups, 2)
	}

	found, err := repo.FindUserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "+16502530000", found.Metadata["phone"])
	assert.Equal(t, "abc", found.ActivationCode)

	_, err = repo.FindUserByLogin(ctx, "nobody@example.com")
	assert.True(t, sentinel.IsRecordNotFound(err))

	_, err = repo.FindUserByID(ctx, uuid.New())
	assert.True(t, sentinel.IsRecordNotFound(err))

	group, err := repo.FindGroupByName(ctx, "Admins")
	require.NoError(t, err)
	assert.Equal(t, admins.ID, group.ID)
	assert.Equal(t, []string{"admin"}, group.Permissions)

	again := seedGroup(t, repo, "Admins")
	assert.Equal(t, admins.ID, again.ID)
}

func TestRepositoryManagerRejectsDuplicateLogins(t *testing.T) {
	repo, _ := setupRepositoryManager(t)
	ctx := context.Background()

	first, err := repo.CreateUser(ctx, &sentinel.User{Email: "a@b.com", Username: "u1", PasswordHash: "h"}, nil)
	require.NoError(t, err)

	_, err = repo.CreateUser(ctx, &sentinel.User{Email: "A@B.com", PasswordHash: "h"}, nil)
	assert.True(t, sentinel.IsDuplicateLogin(err))

	_, err = repo.CreateUser(ctx, &sentinel.User{Email: "c@d.com", Username: "u1", PasswordHash: "h"}, nil)
	assert.True(t, sentinel.IsDuplicateLogin(err))

	second, err := repo.CreateUser(ctx, &sentinel.User{Email: "c@d.com", Username: "u2", PasswordHash: "h"}, nil)
	require.NoError(t, err)

	_, err = repo.UpdateUser(ctx, second.ID, func(u *sentinel.User) error {
		u.Email = first.Email
		return nil
	})
	assert.True(t, sentinel.IsDuplicateLogin(err))

	stored, err := repo.FindUserByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "c@d.com", stored.Email)
}

func TestRepositoryManagerUpdateClearsUsername(t *testing.T) {
	repo, db := setupRepositoryManager(t)
	ctx := context.Background()

	ids := []uuid.UUID{}
	for _, in := range []struct{ email, username string }{{"a@b.com", "u1"}, {"c@d.com", "u2"}} {
		u, err := repo.CreateUser(ctx, &sentinel.User{Email: in.email, Username: in.username, PasswordHash: "h"}, nil)
		require.NoError(t, err)
		ids = append(ids, u.ID)
	}

	for _, id := range ids {
		updated, err := repo.UpdateUser(ctx, id, func(u *sentinel.User) error {
			u.Username = ""
			return nil
		})
		require.NoError(t, err)
		assert.Empty(t, updated.Username)
	}

	var nulls int
	err := db.NewSelect().
		Model((*sentinel.User)(nil)).
		ColumnExpr("COUNT(*)").
		Where("username IS NULL").
		Scan(ctx, &nulls)
	require.NoError(t, err)
	assert.Equal(t, 2, nulls)
}

func TestRepositoryManagerUpdateRollsBackOnMutationError(t *testing.T) {
	repo, _ := setupRepositoryManager(t)
	ctx := context.Background()

	user, err := repo.CreateUser(ctx, &sentinel.User{Email: "a@b.com", PasswordHash: "h"}, nil)
	require.NoError(t, err)

	_, err = repo.UpdateUser(ctx, user.ID, func(u *sentinel.User) error {
		u.Activated = true
		return sentinel.ErrInvalidActivationCode
	})
	require.ErrorIs(t, err, sentinel.ErrInvalidActivationCode)

	stored, err := repo.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, stored.Activated)

	_, err = repo.UpdateUser(ctx, uuid.New(), func(u *sentinel.User) error { return nil })
	assert.True(t, sentinel.IsRecordNotFound(err))
}

func TestRepositoryManagerThrottleLifecycle(t *testing.T) {
	repo, _ := setupRepositoryManager(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	policy := sentinel.NewThrottlePolicy(sentinel.WithThrottleClock(func() time.Time { return now }))

	user, err := repo.CreateUser(ctx, &sentinel.User{Email: "a@b.com", PasswordHash: "h"}, nil)
	require.NoError(t, err)

	throttle, err := repo.GetThrottle(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, sentinel.ThrottleClear, policy.State(throttle))

	_, err = repo.UpdateThrottle(ctx, user.ID, func(t *sentinel.Throttle) error {
		return policy.Suspend(t, 15*time.Minute)
	})
	require.NoError(t, err)

	throttle, err = repo.GetThrottle(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, sentinel.ThrottleSuspended, policy.State(throttle))
	require.NotNil(t, throttle.SuspendedUntil)
	assert.WithinDuration(t, now.Add(15*time.Minute), *throttle.SuspendedUntil, time.Second)

	_, err = repo.UpdateThrottle(ctx, user.ID, func(t *sentinel.Throttle) error {
		policy.Unsuspend(t)
		return policy.Ban(t)
	})
	require.NoError(t, err)

	throttle, err = repo.GetThrottle(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, sentinel.ThrottleBanned, policy.State(throttle))
	assert.Nil(t, throttle.SuspendedUntil)

	_, err = repo.GetThrottle(ctx, uuid.New())
	assert.True(t, sentinel.IsRecordNotFound(err))

	_, err = repo.UpdateThrottle(ctx, uuid.New(), func(t *sentinel.Throttle) error { return nil })
	assert.True(t, sentinel.IsRecordNotFound(err))
}

func TestRepositoryManagerDeleteCascades(t *testing.T) {
	repo, db := setupRepositoryManager(t)
	ctx := context.Background()
	group := seedGroup(t, repo, "Users")

	user, err := repo.CreateUser(ctx, &sentinel.User{Email: "a@b.com", PasswordHash: "h"}, []*sentinel.Group{group})
	require.NoError(t, err)
	_, err = repo.UpdateThrottle(ctx, user.ID, func(t *sentinel.Throttle) error {
		t.Banned = true
		return nil
	})
	require.NoError(t, err)

	removed, err := repo.DeleteUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", removed.Email)

	_, err = repo.FindUserByID(ctx, user.ID)
	assert.True(t, sentinel.IsRecordNotFound(err))

	for _, model := range []any{(*sentinel.Throttle)(nil), (*sentinel.UserGroup)(nil)} {
		count, err := db.NewSelect().Model(model).Where("user_id = ?", user.ID).Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	}

	_, err = repo.DeleteUser(ctx, user.ID)
	assert.True(t, sentinel.IsRecordNotFound(err))

	users, err := repo.ListUsers(ctx)
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)
}

func TestRepositoriesKeyedByUser(t *testing.T) {
	repo, db := setupRepositoryManager(t)
	ctx := context.Background()

	user, err := repo.CreateUser(ctx, &sentinel.User{Email: "a@b.com", PasswordHash: "h"}, nil)
	require.NoError(t, err)

	created, err := repo.Throttles().GetOrCreateByUserTx(ctx, db, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, created.UserID)

	again, err := repo.Throttles().GetOrCreateByUserTx(ctx, db, user.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)

	require.NoError(t, repo.Users().DeleteByIDTx(ctx, db, user.ID))

	count, err := db.NewSelect().Model((*sentinel.Throttle)(nil)).Where("user_id = ?", user.ID).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	err = repo.Users().DeleteByIDTx(ctx, db, user.ID)
	assert.True(t, sentinel.IsRecordNotFound(err))
}

func TestServiceOverSQLite(t *testing.T) {
	repo, _ := setupRepositoryManager(t)
	seedGroup(t, repo, "Users", "users")

	sink := &MockEventSink{}
	sink.On("Publish", mock.Anything, mock.Anything).Return(nil)
	clock := newFakeClock()

	cfg := testOptions()
	svc, err := sentinel.NewService(repo, cfg,
		sentinel.WithHasher(sentinel.NewBcryptHasher(bcrypt.MinCost)),
		sentinel.WithEventSink(sink),
		sentinel.WithClock(clock.Now),
	)
	require.NoError(t, err)
	ctx := context.Background()

	res, err := svc.Store(ctx, sentinel.Input{"email": "a@b.com", "username": "u1", "password": "p"})
	require.NoError(t, err)
	require.True(t, res.Successful(), res.Message())
	user := res.User()

	stored, err := repo.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, stored.ActivationCode)

	res, err = svc.Activate(ctx, user.ID, stored.ActivationCode)
	require.NoError(t, err)
	require.True(t, res.Successful())

	res, err = svc.Suspend(ctx, user.ID, 15)
	require.NoError(t, err)
	require.True(t, res.Successful())

	res, err = svc.Authenticate(ctx, "u1", "p")
	require.NoError(t, err)
	assert.Equal(t, sentinel.KindSuspended, res.Kind())

	clock.Advance(16 * time.Minute)
	res, err = svc.Authenticate(ctx, "u1", "p")
	require.NoError(t, err)
	assert.True(t, res.Successful(), res.Message())

	res, err = svc.Destroy(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, res.Successful())

	_, err = svc.RetrieveByID(ctx, user.ID)
	assert.Equal(t, sentinel.KindNotFound, sentinel.KindOf(err))
}
