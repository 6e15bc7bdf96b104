package sentinel

import (
	"slices"
	"time"
)

// ThrottleState is the evaluated state of a Throttle.
type ThrottleState string

const (
	ThrottleClear     ThrottleState = "clear"
	ThrottleSuspended ThrottleState = "suspended"
	ThrottleBanned    ThrottleState = "banned"
)

var throttleTransitions = map[ThrottleState][]ThrottleState{
	ThrottleClear:     {ThrottleSuspended, ThrottleBanned},
	ThrottleSuspended: {ThrottleClear, ThrottleSuspended, ThrottleBanned},
	ThrottleBanned:    {ThrottleClear, ThrottleBanned},
}

// CanTransition reports whether a throttle may move from one state to another.
func CanTransition(from, to ThrottleState) bool {
	if from == to && from == ThrottleClear {
		return true
	}
	return slices.Contains(throttleTransitions[from], to)
}

// ThrottlePolicy evaluates and mutates throttles. It holds no per-user state,
// expiry is computed against its clock whenever a throttle is inspected.
type ThrottlePolicy struct {
	attemptLimit int
	suspension   time.Duration
	banAfter     int
	now          func() time.Time
}

// ThrottleOption customizes a ThrottlePolicy.
type ThrottleOption func(*ThrottlePolicy)

// WithThrottleClock injects a custom clock (useful for tests).
func WithThrottleClock(clock func() time.Time) ThrottleOption {
	return func(p *ThrottlePolicy) {
		if clock != nil {
			p.now = clock
		}
	}
}

// WithAttemptLimit sets how many failed logins trigger a suspension. Zero disables it.
func WithAttemptLimit(limit int) ThrottleOption {
	return func(p *ThrottlePolicy) {
		if limit >= 0 {
			p.attemptLimit = limit
		}
	}
}

// WithSuspensionTime sets the default suspension length.
func WithSuspensionTime(d time.Duration) ThrottleOption {
	return func(p *ThrottlePolicy) {
		if d > 0 {
			p.suspension = d
		}
	}
}

// WithBanAfterSuspensions bans a user once it has been suspended n times. Zero disables it.
func WithBanAfterSuspensions(n int) ThrottleOption {
	return func(p *ThrottlePolicy) {
		if n >= 0 {
			p.banAfter = n
		}
	}
}

// NewThrottlePolicy returns a policy with a five attempt limit and fifteen
// minute suspensions.
func NewThrottlePolicy(opts ...ThrottleOption) *ThrottlePolicy {
	p := &ThrottlePolicy{
		attemptLimit: 5,
		suspension:   15 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// ThrottlePolicyFromConfig builds a policy from the throttle keys of cfg.
func ThrottlePolicyFromConfig(cfg Config, opts ...ThrottleOption) *ThrottlePolicy {
	base := []ThrottleOption{
		WithAttemptLimit(cfg.GetAttemptLimit()),
		WithSuspensionTime(cfg.GetSuspensionTime()),
		WithBanAfterSuspensions(cfg.GetBanAfterSuspensions()),
	}
	return NewThrottlePolicy(append(base, opts...)...)
}

// SuspensionTime is the default suspension length.
func (p *ThrottlePolicy) SuspensionTime() time.Duration {
	return p.suspension
}

// State evaluates t. A suspension whose expiry has passed counts as clear.
func (p *ThrottlePolicy) State(t *Throttle) ThrottleState {
	if t == nil {
		return ThrottleClear
	}
	if t.Banned {
		return ThrottleBanned
	}
	if t.Suspended && t.SuspendedUntil != nil && p.now().Before(*t.SuspendedUntil) {
		return ThrottleSuspended
	}
	return ThrottleClear
}

// Until returns the suspension expiry while suspended.
func (p *ThrottlePolicy) Until(t *Throttle) *time.Time {
	if p.State(t) != ThrottleSuspended {
		return nil
	}
	until := *t.SuspendedUntil
	return &until
}

// Check fails with ErrUserSuspended or ErrUserBanned when t blocks authentication.
func (p *ThrottlePolicy) Check(t *Throttle) error {
	switch p.State(t) {
	case ThrottleBanned:
		meta := map[string]any{"user_id": t.UserID.String()}
		if t.BannedAt != nil {
			meta["banned_at"] = t.BannedAt.UTC().Format(time.RFC3339)
		}
		return withMeta(ErrUserBanned, meta)
	case ThrottleSuspended:
		until := t.SuspendedUntil.UTC()
		return withMeta(ErrUserSuspended, map[string]any{
			"user_id":         t.UserID.String(),
			"suspended_until": until.Format(time.RFC3339),
			"retry_after":     until.Sub(p.now()).Round(time.Second).String(),
		})
	}
	return nil
}

// Suspend blocks t for d, or for the policy default when d is not positive.
// A banned throttle can not be suspended.
func (p *ThrottlePolicy) Suspend(t *Throttle, d time.Duration) error {
	from := p.State(t)
	if !CanTransition(from, ThrottleSuspended) {
		return withMeta(ErrInvalidTransition, map[string]any{
			"from": string(from),
			"to":   string(ThrottleSuspended),
		})
	}
	if d <= 0 {
		d = p.suspension
	}
	now := p.now()
	until := now.Add(d)
	t.Suspended = true
	t.SuspendedAt = &now
	t.SuspendedUntil = &until
	t.Attempts = 0
	return nil
}

// Unsuspend lifts a suspension early. Bans are left in place.
func (p *ThrottlePolicy) Unsuspend(t *Throttle) {
	t.Suspended = false
	t.SuspendedAt = nil
	t.SuspendedUntil = nil
	t.Attempts = 0
}

// Ban blocks t until Unban is called.
func (p *ThrottlePolicy) Ban(t *Throttle) error {
	from := p.State(t)
	if !CanTransition(from, ThrottleBanned) {
		return withMeta(ErrInvalidTransition, map[string]any{
			"from": string(from),
			"to":   string(ThrottleBanned),
		})
	}
	if t.Banned {
		return nil
	}
	now := p.now()
	t.Banned = true
	t.BannedAt = &now
	return nil
}

// Unban clears a ban along with the suspension history that led to it.
func (p *ThrottlePolicy) Unban(t *Throttle) {
	t.Banned = false
	t.BannedAt = nil
	t.Suspensions = 0
	t.Attempts = 0
}

// RecordFailure counts a failed login and returns the resulting state.
// Attempts older than the suspension window are forgotten. Reaching the
// attempt limit suspends t, and enough suspensions escalate to a ban.
func (p *ThrottlePolicy) RecordFailure(t *Throttle) ThrottleState {
	state := p.State(t)
	if state != ThrottleClear {
		return state
	}

	now := p.now()
	if t.Suspended {
		// lapsed suspension
		t.Suspended = false
		t.SuspendedAt = nil
		t.SuspendedUntil = nil
	}
	if t.LastAttemptAt != nil && now.Sub(*t.LastAttemptAt) > p.suspension {
		t.Attempts = 0
	}
	t.Attempts++
	t.LastAttemptAt = &now

	if p.attemptLimit == 0 || t.Attempts < p.attemptLimit {
		return ThrottleClear
	}

	t.Suspensions++
	if p.banAfter > 0 && t.Suspensions >= p.banAfter {
		t.Attempts = 0
		t.Banned = true
		t.BannedAt = &now
		return ThrottleBanned
	}

	until := now.Add(p.suspension)
	t.Suspended = true
	t.SuspendedAt = &now
	t.SuspendedUntil = &until
	t.Attempts = 0
	return ThrottleSuspended
}

// ClearAttempts resets the failed login counter after a successful login.
func (p *ThrottlePolicy) ClearAttempts(t *Throttle) {
	t.Attempts = 0
	t.LastAttemptAt = nil
}
