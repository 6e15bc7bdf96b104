package sentinel

// AccountState is the lifecycle position of a user account, derived from the
// user record and its throttle.
type AccountState string

const (
	AccountUnregistered AccountState = "unregistered"
	AccountPending      AccountState = "pending"
	AccountActivated    AccountState = "activated"
	AccountSuspended    AccountState = "suspended"
	AccountBanned       AccountState = "banned"
)

// AccountStateOf evaluates the account state. Throttle state wins over
// activation, so a banned pending user reports banned.
func AccountStateOf(user *User, throttle *Throttle, policy *ThrottlePolicy) AccountState {
	if user == nil {
		return AccountUnregistered
	}
	if policy == nil {
		policy = NewThrottlePolicy()
	}

	switch policy.State(throttle) {
	case ThrottleBanned:
		return AccountBanned
	case ThrottleSuspended:
		return AccountSuspended
	}

	if !user.Activated {
		return AccountPending
	}
	return AccountActivated
}

// IsPending reports whether the user still waits for activation.
func (u *User) IsPending() bool {
	return u != nil && !u.Activated
}
