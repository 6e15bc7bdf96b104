package sentinel

import (
	"errors"
	"fmt"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginConflict(t *testing.T) {
	user := &User{Email: "a@b.com", Username: "u1"}
	plain := errors.New("connection reset")
	foreignKey := &pgconn.PgError{Code: "23503", ConstraintName: "users_groups_user_id_fkey"}

	tests := []struct {
		name  string
		err   error
		field string
	}{
		{
			name:  "postgres email index",
			err:   &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "users_email_key"},
			field: "email",
		},
		{
			name:  "wrapped postgres username index",
			err:   fmt.Errorf("insert user: %w", &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "users_username_key"}),
			field: "username",
		},
		{
			name:  "sqlite email index",
			err:   errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)"),
			field: "email",
		},
		{
			name:  "sqlite username index",
			err:   errors.New("UNIQUE constraint failed: users.username"),
			field: "username",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := loginConflict(tt.err, user)
			require.True(t, IsDuplicateLogin(err))
			assert.Equal(t, KindValidation, KindOf(err))

			var richErr *goerrors.Error
			require.True(t, goerrors.As(err, &richErr))
			assert.Equal(t, tt.field, richErr.Metadata["field"])
		})
	}

	assert.Same(t, plain, loginConflict(plain, user))
	assert.Equal(t, error(foreignKey), loginConflict(foreignKey, user))
	assert.NoError(t, loginConflict(nil, user))
}
