package sentinel_test

import (
	"testing"
	"time"

	"github.com/goliatone/go-sentinel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestThrottlePolicySuspensionExpiresLazily(t *testing.T) {
	clock := newFakeClock()
	policy := sentinel.NewThrottlePolicy(sentinel.WithThrottleClock(clock.Now))
	throttle := sentinel.NewThrottle(uuid.New())

	require.NoError(t, policy.Suspend(throttle, 15*time.Minute))
	assert.Equal(t, sentinel.ThrottleSuspended, policy.State(throttle))

	err := policy.Check(throttle)
	require.Error(t, err)
	assert.True(t, sentinel.HasTextCode(err, sentinel.TextCodeUserSuspended))
	assert.Equal(t, sentinel.KindSuspended, sentinel.KindOf(err))

	clock.Advance(14 * time.Minute)
	assert.Error(t, policy.Check(throttle))

	clock.Advance(time.Minute)
	assert.Equal(t, sentinel.ThrottleClear, policy.State(throttle))
	assert.NoError(t, policy.Check(throttle))
	assert.True(t, throttle.Suspended, "expiry is evaluated, not written back")
}

func TestThrottlePolicySuspendDefaultsToConfiguredTime(t *testing.T) {
	clock := newFakeClock()
	policy := sentinel.NewThrottlePolicy(
		sentinel.WithThrottleClock(clock.Now),
		sentinel.WithSuspensionTime(30*time.Minute),
	)
	throttle := sentinel.NewThrottle(uuid.New())

	require.NoError(t, policy.Suspend(throttle, 0))
	require.NotNil(t, policy.Until(throttle))
	assert.Equal(t, clock.now.Add(30*time.Minute), *policy.Until(throttle))
}

func TestThrottlePolicyBanRequiresUnban(t *testing.T) {
	clock := newFakeClock()
	policy := sentinel.NewThrottlePolicy(sentinel.WithThrottleClock(clock.Now))
	throttle := sentinel.NewThrottle(uuid.New())

	require.NoError(t, policy.Ban(throttle))
	clock.Advance(24 * 365 * time.Hour)

	err := policy.Check(throttle)
	require.Error(t, err)
	assert.Equal(t, sentinel.KindBanned, sentinel.KindOf(err))

	policy.Unban(throttle)
	assert.NoError(t, policy.Check(throttle))
}

func TestThrottlePolicyCannotSuspendBanned(t *testing.T) {
	policy := sentinel.NewThrottlePolicy()
	throttle := sentinel.NewThrottle(uuid.New())
	require.NoError(t, policy.Ban(throttle))

	err := policy.Suspend(throttle, time.Minute)
	require.Error(t, err)
	assert.True(t, sentinel.HasTextCode(err, sentinel.TextCodeInvalidTransition))
	assert.False(t, throttle.Suspended)
}

func TestThrottlePolicyUnsuspendKeepsBan(t *testing.T) {
	policy := sentinel.NewThrottlePolicy()
	throttle := sentinel.NewThrottle(uuid.New())
	require.NoError(t, policy.Suspend(throttle, time.Hour))
	require.NoError(t, policy.Ban(throttle))

	policy.Unsuspend(throttle)
	assert.Equal(t, sentinel.ThrottleBanned, policy.State(throttle))
	assert.Nil(t, throttle.SuspendedUntil)
}

func TestThrottlePolicyRecordFailureEscalates(t *testing.T) {
	clock := newFakeClock()
	policy := sentinel.NewThrottlePolicy(
		sentinel.WithThrottleClock(clock.Now),
		sentinel.WithAttemptLimit(3),
		sentinel.WithSuspensionTime(10*time.Minute),
		sentinel.WithBanAfterSuspensions(2),
	)
	throttle := sentinel.NewThrottle(uuid.New())

	assert.Equal(t, sentinel.ThrottleClear, policy.RecordFailure(throttle))
	assert.Equal(t, sentinel.ThrottleClear, policy.RecordFailure(throttle))
	assert.Equal(t, sentinel.ThrottleSuspended, policy.RecordFailure(throttle))
	assert.Equal(t, 1, throttle.Suspensions)

	// failures while suspended are not counted
	assert.Equal(t, sentinel.ThrottleSuspended, policy.RecordFailure(throttle))
	assert.Equal(t, 0, throttle.Attempts)

	clock.Advance(11 * time.Minute)
	policy.RecordFailure(throttle)
	policy.RecordFailure(throttle)
	assert.Equal(t, sentinel.ThrottleBanned, policy.RecordFailure(throttle))
	assert.Equal(t, 2, throttle.Suspensions)
	assert.False(t, throttle.Suspended)
}

func TestThrottlePolicyForgetsStaleAttempts(t *testing.T) {
	clock := newFakeClock()
	policy := sentinel.NewThrottlePolicy(
		sentinel.WithThrottleClock(clock.Now),
		sentinel.WithAttemptLimit(2),
		sentinel.WithSuspensionTime(5*time.Minute),
	)
	throttle := sentinel.NewThrottle(uuid.New())

	policy.RecordFailure(throttle)
	clock.Advance(6 * time.Minute)
	assert.Equal(t, sentinel.ThrottleClear, policy.RecordFailure(throttle))
	assert.Equal(t, 1, throttle.Attempts)
}

func TestThrottlePolicyZeroLimitNeverSuspends(t *testing.T) {
	policy := sentinel.NewThrottlePolicy(sentinel.WithAttemptLimit(0))
	throttle := sentinel.NewThrottle(uuid.New())
	for i := 0; i < 20; i++ {
		assert.Equal(t, sentinel.ThrottleClear, policy.RecordFailure(throttle))
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to sentinel.ThrottleState
		want     bool
	}{
		{sentinel.ThrottleClear, sentinel.ThrottleSuspended, true},
		{sentinel.ThrottleClear, sentinel.ThrottleBanned, true},
		{sentinel.ThrottleSuspended, sentinel.ThrottleBanned, true},
		{sentinel.ThrottleSuspended, sentinel.ThrottleClear, true},
		{sentinel.ThrottleBanned, sentinel.ThrottleSuspended, false},
		{sentinel.ThrottleBanned, sentinel.ThrottleClear, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, sentinel.CanTransition(tt.from, tt.to))
		})
	}
}

func TestAccountStateOf(t *testing.T) {
	clock := newFakeClock()
	policy := sentinel.NewThrottlePolicy(sentinel.WithThrottleClock(clock.Now))
	user := &sentinel.User{ID: uuid.New()}
	throttle := sentinel.NewThrottle(user.ID)

	assert.Equal(t, sentinel.AccountUnregistered, sentinel.AccountStateOf(nil, nil, policy))
	assert.Equal(t, sentinel.AccountPending, sentinel.AccountStateOf(user, nil, policy))

	user.Activated = true
	assert.Equal(t, sentinel.AccountActivated, sentinel.AccountStateOf(user, throttle, policy))

	require.NoError(t, policy.Suspend(throttle, time.Minute))
	assert.Equal(t, sentinel.AccountSuspended, sentinel.AccountStateOf(user, throttle, policy))

	require.NoError(t, policy.Ban(throttle))
	assert.Equal(t, sentinel.AccountBanned, sentinel.AccountStateOf(user, throttle, policy))
}
