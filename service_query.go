package sentinel

import (
	"context"

	"github.com/google/uuid"
)

// RetrieveByID returns the user with id and its groups.
func (s *Service) RetrieveByID(ctx context.Context, id uuid.UUID) (*User, error) {
	ctx, span := s.startSpan(ctx, "RetrieveByID")
	defer span.End()

	user, err := s.store.FindUserByID(ctx, id)
	if err != nil {
		return nil, s.lookupError(err, userMeta(id))
	}
	return user, nil
}

// RetrieveByCredentials looks a user up by the "login", "email" or
// "username" input. When "password" is present it must verify too.
func (s *Service) RetrieveByCredentials(ctx context.Context, criteria Input) (*User, error) {
	ctx, span := s.startSpan(ctx, "RetrieveByCredentials")
	defer span.End()

	identifier := ""
	for _, key := range []string{InputLogin, InputEmail, InputUsername} {
		if v := criteria.String(key); v != "" {
			identifier = v
			break
		}
	}
	if identifier == "" {
		return nil, validationFailed("a login is required", map[string]string{InputLogin: "cannot be blank"})
	}

	user, err := s.store.FindUserByLogin(ctx, identifier)
	if err != nil {
		return nil, s.lookupError(err, map[string]any{"login": identifier})
	}

	if criteria.Has(InputPassword) {
		if err := s.hasher.Verify(criteria.Raw(InputPassword), user.PasswordHash); err != nil {
			return nil, withMeta(ErrInvalidCredentials, map[string]any{"login": identifier})
		}
	}
	return user, nil
}

// All lists every user. An empty store yields an empty slice.
func (s *Service) All(ctx context.Context) ([]*User, error) {
	ctx, span := s.startSpan(ctx, "All")
	defer span.End()

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		if IsRecordNotFound(err) {
			return []*User{}, nil
		}
		return nil, storeFailure(err, "list users failed")
	}
	if users == nil {
		users = []*User{}
	}
	return users, nil
}

func (s *Service) lookupError(err error, meta map[string]any) error {
	if IsRecordNotFound(err) {
		return withMeta(ErrUserNotFound, meta)
	}
	return storeFailure(err, "lookup failed")
}
