package sentinel

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Authenticate checks a login and password.
//
// The throttle is consulted first, so suspended and banned accounts fail with
// their own kinds whatever the password. A wrong password counts against the
// throttle and may suspend or ban the account, a correct one clears the
// failed attempts. Activation is checked last so a pending account is only
// reported to a caller holding its password.
func (s *Service) Authenticate(ctx context.Context, login, password string) (r Result, err error) {
	ctx, span := s.startSpan(ctx, "Authenticate")
	defer func() { finish(span, r, err) }()

	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return failed(validationFailed("login and password are required", map[string]string{
			InputLogin:    "cannot be blank",
			InputPassword: "cannot be blank",
		})), nil
	}

	user, err := s.store.FindUserByLogin(ctx, login)
	if err != nil {
		return s.outcome(err, "find user", map[string]any{"login": login})
	}
	span.SetAttributes(attribute.String("sentinel.user_id", user.ID.String()))

	throttle, err := s.store.GetThrottle(ctx, user.ID)
	if err != nil {
		return s.outcome(err, "get throttle", userMeta(user.ID))
	}

	if err := s.policy.Check(throttle); err != nil {
		warnings := s.publish(ctx, EventUserLoginFailed, map[string]any{
			PayloadUserID: user.ID,
			"reason":      string(KindOf(err)),
		})
		return failedWith(err, map[string]any{PayloadUserID: user.ID}).withWarnings(warnings), nil
	}

	if verr := s.hasher.Verify(password, user.PasswordHash); verr != nil {
		if KindOf(verr) != KindAuthentication {
			return s.outcome(verr, "verify password", userMeta(user.ID))
		}

		var state ThrottleState
		updated, err := s.store.UpdateThrottle(ctx, user.ID, func(t *Throttle) error {
			state = s.policy.RecordFailure(t)
			return nil
		})
		if err != nil {
			return s.outcome(err, "record failed login", userMeta(user.ID))
		}

		warnings := s.publish(ctx, EventUserLoginFailed, map[string]any{
			PayloadUserID: user.ID,
			"reason":      string(KindAuthentication),
		})

		if state != ThrottleClear {
			s.logger.Info("login failures throttled user", "user_id", user.ID.String(), "state", string(state))
		}

		return failedWith(withMeta(ErrInvalidCredentials, map[string]any{
			"id":       user.ID.String(),
			"attempts": updated.Attempts,
			"throttle": string(state),
		}), map[string]any{
			PayloadUserID:   user.ID,
			PayloadThrottle: s.status(updated),
		}).withWarnings(warnings), nil
	}

	if throttle.Attempts > 0 {
		if _, err := s.store.UpdateThrottle(ctx, user.ID, func(t *Throttle) error {
			s.policy.ClearAttempts(t)
			return nil
		}); err != nil {
			return s.outcome(err, "clear login attempts", userMeta(user.ID))
		}
	}

	if s.config.GetRequireActivation() && !user.Activated {
		return failedWith(withMeta(ErrUserNotActivated, userMeta(user.ID)), map[string]any{
			PayloadUserID: user.ID,
		}), nil
	}

	id := user.ID
	user, err = s.store.UpdateUser(ctx, id, func(u *User) error {
		now := s.now()
		u.LastLogin = &now
		return nil
	})
	if err != nil {
		return s.outcome(err, "track login", userMeta(id))
	}

	warnings := s.publish(ctx, EventUserLogin, map[string]any{PayloadUser: user})
	return succeeded("user authenticated", map[string]any{PayloadUser: user}).withWarnings(warnings), nil
}
