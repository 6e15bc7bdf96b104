package sentinel

import (
	"context"
	"crypto/subtle"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Store registers a new user.
//
// The user joins every configured default group. It is activated right away
// when the "activate" flag is set or activation is not required, otherwise it
// is left pending with a fresh activation code.
func (s *Service) Store(ctx context.Context, in Input) (r Result, err error) {
	ctx, span := s.startSpan(ctx, "Store")
	defer func() { finish(span, r, err) }()

	if err := requireSignupGate(ctx, s.featureGate); err != nil {
		if HasTextCode(err, TextCodeSignupDisabled) {
			return failed(err), nil
		}
		return failed(err), err
	}

	email := strings.ToLower(in.String(InputEmail))
	username := in.String(InputUsername)
	password := in.Raw(InputPassword)

	problems := map[string]string{}
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		problems[InputEmail] = err.Error()
	}
	if err := validation.Validate(password, validation.Required); err != nil {
		problems[InputPassword] = err.Error()
	}
	if s.config.GetAllowUsernames() {
		if err := validation.Validate(username, validation.Required); err != nil {
			problems[InputUsername] = err.Error()
		}
	}

	values, fieldProblems := s.fields.extract(in, true)
	for k, v := range fieldProblems {
		problems[k] = v
	}

	if len(problems) > 0 {
		return failed(validationFailed(describeFields(problems), problems)), nil
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return s.outcome(err, "hash password", nil)
	}

	user := &User{
		Email:        email,
		PasswordHash: hash,
	}
	if s.config.GetAllowUsernames() {
		user.Username = username
	}
	if in.Bool(InputUseHashid) {
		if id, err := hashid.NewUUID(email); err == nil {
			user.ID = id
		}
	}
	applyFields(user, values)

	groups := make([]*Group, 0, len(s.config.GetDefaultUserGroups()))
	for _, name := range s.config.GetDefaultUserGroups() {
		group, err := s.store.FindGroupByName(ctx, name)
		if err != nil {
			if IsRecordNotFound(err) {
				s.logger.Error("default user group missing", "group", name)
				return failed(withMeta(ErrMissingDefaultGroup, map[string]any{"group": name})), nil
			}
			return s.outcome(err, "find group", map[string]any{"group": name})
		}
		groups = append(groups, group)
	}

	activate := in.Bool(InputActivate) || !s.config.GetRequireActivation()
	if activate {
		now := s.now()
		user.Activated = true
		user.ActivatedAt = &now
	} else {
		user.ActivationCode = s.codes()
	}

	created, err := s.store.CreateUser(ctx, user, groups)
	if err != nil {
		return s.outcome(err, "create user", map[string]any{"email": email})
	}
	span.SetAttributes(attribute.String("sentinel.user_id", created.ID.String()))

	warnings := s.publish(ctx, EventUserRegistered, map[string]any{PayloadUser: created})
	if created.Activated {
		warnings = append(warnings, s.publish(ctx, EventUserActivated, map[string]any{PayloadUser: created})...)
	}

	return succeeded("user registered", map[string]any{
		PayloadUser:      created,
		PayloadActivated: created.Activated,
	}).withWarnings(warnings), nil
}

// Activate moves a pending user to activated when code matches its
// activation code.
func (s *Service) Activate(ctx context.Context, id uuid.UUID, code string) (r Result, err error) {
	ctx, span := s.startSpan(ctx, "Activate", attribute.String("sentinel.user_id", id.String()))
	defer func() { finish(span, r, err) }()

	code = strings.TrimSpace(code)
	user, err := s.store.UpdateUser(ctx, id, func(u *User) error {
		if u.Activated {
			return withMeta(ErrAlreadyActivated, userMeta(id))
		}
		if code == "" || subtle.ConstantTimeCompare([]byte(code), []byte(u.ActivationCode)) != 1 {
			return withMeta(ErrInvalidActivationCode, userMeta(id))
		}
		now := s.now()
		u.Activated = true
		u.ActivatedAt = &now
		u.ActivationCode = ""
		return nil
	})
	if err != nil {
		return s.outcome(err, "activate user", userMeta(id))
	}

	warnings := s.publish(ctx, EventUserActivated, map[string]any{PayloadUser: user})
	return succeeded("user activated", map[string]any{
		PayloadUser:      user,
		PayloadActivated: true,
	}).withWarnings(warnings), nil
}

// Resend issues a fresh activation code to the pending user identified by
// email. Activated users are left alone and no event is published.
func (s *Service) Resend(ctx context.Context, in Input) (r Result, err error) {
	ctx, span := s.startSpan(ctx, "Resend")
	defer func() { finish(span, r, err) }()

	email := strings.ToLower(in.String(InputEmail))
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return failed(validationFailed("email: "+err.Error(), map[string]string{InputEmail: err.Error()})), nil
	}

	found, err := s.store.FindUserByLogin(ctx, email)
	if err != nil {
		return s.outcome(err, "find user", map[string]any{"email": email})
	}

	if found.Activated {
		return succeeded("user already activated", map[string]any{
			PayloadUser:      found,
			PayloadActivated: true,
		}), nil
	}

	reissued := false
	user, err := s.store.UpdateUser(ctx, found.ID, func(u *User) error {
		if u.Activated {
			return nil
		}
		u.ActivationCode = s.codes()
		reissued = true
		return nil
	})
	if err != nil {
		return s.outcome(err, "resend activation", userMeta(found.ID))
	}

	var warnings []error
	if reissued {
		warnings = s.publish(ctx, EventUserResend, map[string]any{PayloadUser: user})
	}

	return succeeded("activation code sent", map[string]any{
		PayloadUser:      user,
		PayloadActivated: user.Activated,
	}).withWarnings(warnings), nil
}
