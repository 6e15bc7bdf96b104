package sentinel

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// ThrottleStatus is the evaluated throttle of one user.
type ThrottleStatus struct {
	UserID      uuid.UUID     `json:"user_id"`
	State       ThrottleState `json:"state"`
	Until       *time.Time    `json:"until,omitempty"`
	Attempts    int           `json:"attempts"`
	Suspensions int           `json:"suspensions"`
}

// maxSuspensionMinutes is the longest suspension a time.Duration can hold.
const maxSuspensionMinutes = math.MaxInt64 / int64(time.Minute)

// Suspend blocks authentication for minutes, or for the configured
// suspension time when minutes is not positive.
func (s *Service) Suspend(ctx context.Context, id uuid.UUID, minutes int) (Result, error) {
	if int64(minutes) > maxSuspensionMinutes {
		msg := fmt.Sprintf("must be at most %d", maxSuspensionMinutes)
		return failed(validationFailed("minutes: "+msg, map[string]string{"minutes": msg})), nil
	}
	return s.mutateThrottle(ctx, "Suspend", id, EventUserSuspended, "user suspended", func(t *Throttle) error {
		return s.policy.Suspend(t, time.Duration(minutes)*time.Minute)
	})
}

// Unsuspend lifts a suspension before it expires.
func (s *Service) Unsuspend(ctx context.Context, id uuid.UUID) (Result, error) {
	return s.mutateThrottle(ctx, "Unsuspend", id, EventUserUnsuspended, "user unsuspended", func(t *Throttle) error {
		s.policy.Unsuspend(t)
		return nil
	})
}

// Ban blocks authentication until Unban.
func (s *Service) Ban(ctx context.Context, id uuid.UUID) (Result, error) {
	return s.mutateThrottle(ctx, "Ban", id, EventUserBanned, "user banned", func(t *Throttle) error {
		return s.policy.Ban(t)
	})
}

// Unban lifts a ban.
func (s *Service) Unban(ctx context.Context, id uuid.UUID) (Result, error) {
	return s.mutateThrottle(ctx, "Unban", id, EventUserUnbanned, "user unbanned", func(t *Throttle) error {
		s.policy.Unban(t)
		return nil
	})
}

func (s *Service) mutateThrottle(ctx context.Context, op string, id uuid.UUID, event EventName, message string, mutate ThrottleMutation) (r Result, err error) {
	ctx, span := s.startSpan(ctx, op, attribute.String("sentinel.user_id", id.String()))
	defer func() { finish(span, r, err) }()

	throttle, err := s.store.UpdateThrottle(ctx, id, mutate)
	if err != nil {
		return s.outcome(err, op, userMeta(id))
	}

	warnings := s.publish(ctx, event, map[string]any{PayloadUserID: id})
	return succeeded(message, map[string]any{
		PayloadUserID:   id,
		PayloadThrottle: s.status(throttle),
	}).withWarnings(warnings), nil
}

// ThrottleStatus evaluates the throttle of a user without changing it.
func (s *Service) ThrottleStatus(ctx context.Context, id uuid.UUID) (ThrottleStatus, error) {
	ctx, span := s.startSpan(ctx, "ThrottleStatus", attribute.String("sentinel.user_id", id.String()))
	defer span.End()

	throttle, err := s.store.GetThrottle(ctx, id)
	if err != nil {
		if IsRecordNotFound(err) {
			return ThrottleStatus{}, withMeta(ErrUserNotFound, userMeta(id))
		}
		span.RecordError(err)
		return ThrottleStatus{}, storeFailure(err, "get throttle failed")
	}
	return s.status(throttle), nil
}

func (s *Service) status(t *Throttle) ThrottleStatus {
	return ThrottleStatus{
		UserID:      t.UserID,
		State:       s.policy.State(t),
		Until:       s.policy.Until(t),
		Attempts:    t.Attempts,
		Suspensions: t.Suspensions,
	}
}

// AccountState reports where the user stands in its lifecycle, evaluating
// suspension expiry against the service clock.
func (s *Service) AccountState(ctx context.Context, id uuid.UUID) (AccountState, error) {
	user, err := s.RetrieveByID(ctx, id)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return AccountUnregistered, err
		}
		return "", err
	}

	throttle, err := s.store.GetThrottle(ctx, id)
	if err != nil {
		return "", storeFailure(err, "get throttle failed")
	}
	return AccountStateOf(user, throttle, s.policy), nil
}
