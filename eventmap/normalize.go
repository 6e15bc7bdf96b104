// Package eventmap flattens lifecycle events into a transport agnostic shape
// for audit logs and message buses.
package eventmap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-sentinel"
	"github.com/google/uuid"
)

const (
	// MetadataKeyActorType stores the actor type derived from sentinel.ActorRef.Type.
	MetadataKeyActorType = "actor_type"
	// MetadataKeyEmail stores the email of the user carried by the event.
	MetadataKeyEmail = "email"
	// MetadataKeyActivated stores the activation flag of the user carried by the event.
	MetadataKeyActivated = "activated"
)

const (
	defaultChannel    = "accounts"
	defaultObjectType = "user"
	defaultActorID    = "system"
)

// Normalized is the flattened event.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	objectType    string
	actorFallback string
}

// Normalize converts a sentinel.Event. The object id comes from the user or
// userId payload entry, user records are reduced to scalar metadata.
func Normalize(event sentinel.Event, opts ...Option) Normalized {
	options := normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	objectID, metadata := flattenPayload(event.Payload)

	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[MetadataKeyActorType] = actorType
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID:    firstNonEmpty(strings.TrimSpace(event.Actor.ID), objectID, options.actorFallback),
		Verb:       string(event.Name),
		ObjectType: options.objectType,
		ObjectID:   objectID,
		Channel:    options.channel,
		Metadata:   metadata,
		OccurredAt: occurredAt,
	}
}

// Sink adapts fn into a sentinel.EventSink that receives normalized events.
func Sink(fn func(ctx context.Context, n Normalized) error, opts ...Option) sentinel.EventSink {
	return sentinel.EventSinkFunc(func(ctx context.Context, event sentinel.Event) error {
		return fn(ctx, Normalize(event, opts...))
	})
}

// WithDefaultChannel sets the channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the object type for normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithActorFallback sets the actor id used when neither actor nor user is known.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

func flattenPayload(payload map[string]any) (string, map[string]any) {
	if len(payload) == 0 {
		return "", nil
	}

	objectID := ""
	metadata := map[string]any{}

	for key, value := range payload {
		switch v := value.(type) {
		case *sentinel.User:
			if v == nil {
				continue
			}
			objectID = v.ID.String()
			metadata[MetadataKeyEmail] = v.Email
			metadata[MetadataKeyActivated] = v.Activated
		case uuid.UUID:
			if key == sentinel.PayloadUserID && objectID == "" {
				objectID = v.String()
				continue
			}
			metadata[key] = v.String()
		case string, bool, int, int64, float64:
			metadata[key] = v
		case fmt.Stringer:
			metadata[key] = v.String()
		}
	}

	if len(metadata) == 0 {
		metadata = nil
	}
	return objectID, metadata
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
