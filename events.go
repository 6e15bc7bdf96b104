package sentinel

import (
	"context"
	"time"
)

// EventName identifies a lifecycle notification.
type EventName string

const (
	EventUserRegistered     EventName = "user.registered"
	EventUserActivated      EventName = "user.activated"
	EventUserUpdated        EventName = "user.updated"
	EventUserDestroyed      EventName = "user.destroyed"
	EventUserResend         EventName = "user.resend"
	EventUserPasswordChange EventName = "user.passwordchange"
	EventUserSuspended      EventName = "user.suspended"
	EventUserUnsuspended    EventName = "user.unsuspended"
	EventUserBanned         EventName = "user.banned"
	EventUserUnbanned       EventName = "user.unbanned"
	EventUserLogin          EventName = "user.login"
	EventUserLoginFailed    EventName = "user.login.failed"
)

// ActorRef identifies who/what triggered a change.
type ActorRef struct {
	ID   string
	Type string
}

// Event is a lifecycle notification.
type Event struct {
	Name       EventName
	Actor      ActorRef
	Payload    map[string]any
	OccurredAt time.Time
}

// EventSink consumes lifecycle events. Publishing is best-effort: an error is
// reported back to the caller as a warning and never undoes the change.
type EventSink interface {
	Publish(ctx context.Context, event Event) error
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ctx context.Context, event Event) error

// Publish implements EventSink.
func (f EventSinkFunc) Publish(ctx context.Context, event Event) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// MultiSink fans an event out to several sinks and joins their errors.
type MultiSink []EventSink

// Publish implements EventSink.
func (m MultiSink) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors(errs)
}

type noopEventSink struct{}

func (noopEventSink) Publish(context.Context, Event) error {
	return nil
}

func normalizeEventSink(s EventSink) EventSink {
	if s == nil {
		return noopEventSink{}
	}
	return s
}
