package sentinel

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Update changes the profile of the user named by the "id" input. Only the
// keys present in the input are touched, with one exception: when usernames
// are disabled any stored username is cleared.
func (s *Service) Update(ctx context.Context, in Input) (r Result, err error) {
	ctx, span := s.startSpan(ctx, "Update")
	defer func() { finish(span, r, err) }()

	id, idErr := s.requireID(in)
	if idErr != nil {
		return failed(idErr), nil
	}
	span.SetAttributes(attribute.String("sentinel.user_id", id.String()))

	allowUsernames := s.config.GetAllowUsernames()
	problems := map[string]string{}

	email := strings.ToLower(in.String(InputEmail))
	if in.Has(InputEmail) {
		if err := validation.Validate(email, validation.Required, is.Email); err != nil {
			problems[InputEmail] = err.Error()
		}
	}

	username := in.String(InputUsername)
	if allowUsernames && in.Has(InputUsername) {
		if err := validation.Validate(username, validation.Required); err != nil {
			problems[InputUsername] = err.Error()
		}
	}

	values, fieldProblems := s.fields.extract(in, false)
	for k, v := range fieldProblems {
		problems[k] = v
	}

	if len(problems) > 0 {
		return failed(validationFailed(describeFields(problems), problems)), nil
	}

	user, err := s.store.UpdateUser(ctx, id, func(u *User) error {
		if in.Has(InputEmail) {
			u.Email = email
		}
		if !allowUsernames {
			u.Username = ""
		} else if in.Has(InputUsername) {
			u.Username = username
		}
		applyFields(u, values)
		return nil
	})
	if err != nil {
		return s.outcome(err, "update user", userMeta(id))
	}

	warnings := s.publish(ctx, EventUserUpdated, map[string]any{PayloadUser: user})
	return succeeded("user updated", map[string]any{PayloadUser: user}).withWarnings(warnings), nil
}

// Destroy removes the user, its memberships and its throttle.
func (s *Service) Destroy(ctx context.Context, id uuid.UUID) (r Result, err error) {
	ctx, span := s.startSpan(ctx, "Destroy", attribute.String("sentinel.user_id", id.String()))
	defer func() { finish(span, r, err) }()

	user, err := s.store.DeleteUser(ctx, id)
	if err != nil {
		return s.outcome(err, "delete user", userMeta(id))
	}

	payload := map[string]any{
		PayloadUser:   user,
		PayloadUserID: id,
	}
	warnings := s.publish(ctx, EventUserDestroyed, payload)
	return succeeded("user removed", payload).withWarnings(warnings), nil
}

// ChangePassword replaces the password once oldPassword verifies against the
// stored hash. A mismatch fails with an authentication kind and leaves the
// hash untouched.
func (s *Service) ChangePassword(ctx context.Context, in Input) (r Result, err error) {
	ctx, span := s.startSpan(ctx, "ChangePassword")
	defer func() { finish(span, r, err) }()

	id, idErr := s.requireID(in)
	if idErr != nil {
		return failed(idErr), nil
	}
	span.SetAttributes(attribute.String("sentinel.user_id", id.String()))

	oldPassword := in.Raw(InputOldPassword)
	newPassword := in.Raw(InputNewPassword)
	if err := validation.Validate(newPassword, validation.Required); err != nil {
		return failed(validationFailed("newPassword: "+err.Error(), map[string]string{
			InputNewPassword: err.Error(),
		})), nil
	}

	user, err := s.store.UpdateUser(ctx, id, func(u *User) error {
		if err := s.hasher.Verify(oldPassword, u.PasswordHash); err != nil {
			if KindOf(err) == KindAuthentication {
				return withMeta(ErrInvalidCredentials, userMeta(id))
			}
			return err
		}

		hash, err := s.hasher.Hash(newPassword)
		if err != nil {
			return err
		}
		u.PasswordHash = hash
		return nil
	})
	if err != nil {
		return s.outcome(err, "change password", userMeta(id))
	}

	warnings := s.publish(ctx, EventUserPasswordChange, map[string]any{PayloadUser: user})
	return succeeded("password changed", map[string]any{PayloadUser: user}).withWarnings(warnings), nil
}
