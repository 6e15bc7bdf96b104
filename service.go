package sentinel

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/goliatone/go-sentinel"

// Service runs the account lifecycle against a CredentialStore. It keeps no
// state between calls besides its collaborators.
type Service struct {
	store        CredentialStore
	config       Config
	hasher       PasswordHasher
	sink         EventSink
	logger       Logger
	now          func() time.Time
	codes        func() string
	featureGate  gate.FeatureGate
	tracer       trace.Tracer
	throttleOpts []ThrottleOption
	policy       *ThrottlePolicy
	fields       fieldAllowList
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithHasher overrides the bcrypt PasswordHasher.
func WithHasher(hasher PasswordHasher) ServiceOption {
	return func(s *Service) {
		if hasher != nil {
			s.hasher = hasher
		}
	}
}

// WithEventSink sets the sink lifecycle events are published to.
func WithEventSink(sink EventSink) ServiceOption {
	return func(s *Service) {
		s.sink = normalizeEventSink(sink)
	}
}

// WithLogger overrides the logger used for sink failures and diagnostics.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithActivationCodes overrides the activation code generator.
func WithActivationCodes(gen func() string) ServiceOption {
	return func(s *Service) {
		if gen != nil {
			s.codes = gen
		}
	}
}

// WithFeatureGate guards registration behind the users.signup feature.
func WithFeatureGate(featureGate gate.FeatureGate) ServiceOption {
	return func(s *Service) {
		s.featureGate = featureGate
	}
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithThrottleOptions tunes the ThrottlePolicy built from configuration.
func WithThrottleOptions(opts ...ThrottleOption) ServiceOption {
	return func(s *Service) {
		s.throttleOpts = append(s.throttleOpts, opts...)
	}
}

// NewService builds a Service. The additional field rules in cfg are compiled
// here, an unknown rule fails construction.
func NewService(store CredentialStore, cfg Config, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, withMeta(ErrValidation, map[string]any{"reason": "credential store is required"})
	}
	if cfg == nil {
		cfg = DefaultOptions()
	}

	s := &Service{
		store:  store,
		config: cfg,
		hasher: NewBcryptHasher(0),
		sink:   noopEventSink{},
		logger: defLogger{},
		now:    time.Now,
		codes:  newActivationCode,
		tracer: otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	fields, err := compileFieldRules(cfg.GetAdditionalUserFields())
	if err != nil {
		return nil, err
	}
	s.fields = fields

	throttleOpts := append([]ThrottleOption{WithThrottleClock(s.now)}, s.throttleOpts...)
	s.policy = ThrottlePolicyFromConfig(cfg, throttleOpts...)

	return s, nil
}

// Policy returns the throttle policy in use.
func (s *Service) Policy() *ThrottlePolicy {
	return s.policy
}

func newActivationCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (s *Service) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "sentinel."+op, trace.WithAttributes(attrs...))
}

// finish closes span, recording the Result outcome.
func finish(span trace.Span, r Result, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if !r.Successful() {
		span.SetAttributes(attribute.String("sentinel.failure", string(r.Kind())))
	}
	span.End()
}

// publish delivers event to the sink. A failure is logged and returned as a
// warning, never as an error.
func (s *Service) publish(ctx context.Context, name EventName, payload map[string]any) []error {
	actor, _ := ActorFromContext(ctx)
	event := Event{
		Name:       name,
		Actor:      actor,
		Payload:    payload,
		OccurredAt: s.now(),
	}

	if err := s.sink.Publish(ctx, event); err != nil {
		s.logger.Warn("event sink publish failed", "event", string(name), "error", err)
		return []error{goerrors.Wrap(err, goerrors.CategoryOperation, "failed to publish "+string(name))}
	}
	return nil
}

// outcome turns a store or business error into a Result. Expected failures
// come back with a nil error, internal ones are returned as well.
func (s *Service) outcome(err error, op string, meta map[string]any) (Result, error) {
	if IsRecordNotFound(err) {
		return failed(withMeta(ErrUserNotFound, meta)), nil
	}

	if IsDuplicateLogin(err) {
		return failed(duplicateLogin(err)), nil
	}

	if KindOf(err) != KindInternal {
		return failed(err), nil
	}

	s.logger.Error(op+" failed", "error", err)
	wrapped := storeFailure(err, op+" failed")
	return failed(wrapped), wrapped
}

func duplicateLogin(err error) error {
	field := "email"
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if f, ok := richErr.Metadata["field"].(string); ok && f != "" {
			field = f
		}
	}
	return validationFailed("the "+field+" has already been taken", map[string]string{
		field: "has already been taken",
	})
}

func userMeta(id uuid.UUID) map[string]any {
	return map[string]any{"id": id.String()}
}

func (s *Service) requireID(in Input) (uuid.UUID, *goerrors.Error) {
	if !in.Has(InputID) || in.String(InputID) == "" {
		return uuid.Nil, validationFailed("the id field is required", map[string]string{InputID: "cannot be blank"})
	}
	id, err := in.UUID(InputID)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, validationFailed("the id field is invalid", map[string]string{InputID: "must be a valid UUID"})
	}
	return id, nil
}
