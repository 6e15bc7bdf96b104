package sentinel

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type RegisterUserMessage struct {
	Email     string            `json:"email"`
	Username  string            `json:"username"`
	Password  string            `json:"password"`
	Activate  bool              `json:"activate"`
	UseHashid bool              `json:"use_hashid"`
	Fields    map[string]string `json:"fields,omitempty"`
	// OnResponse receives the registration Result, failed or not.
	OnResponse func(r Result)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// Input flattens the message into lifecycle Input.
func (e RegisterUserMessage) Input() Input {
	in := Input{
		InputEmail:     e.Email,
		InputPassword:  e.Password,
		InputActivate:  e.Activate,
		InputUseHashid: e.UseHashid,
	}
	if e.Username != "" {
		in[InputUsername] = e.Username
	}
	for k, v := range e.Fields {
		if _, reserved := in[k]; !reserved {
			in[k] = v
		}
	}
	return in
}

type RegisterUserHandler struct {
	service *Service
	timeout time.Duration
}

func NewRegisterUserHandler(service *Service) *RegisterUserHandler {
	return &RegisterUserHandler{service: service, timeout: 10 * time.Second}
}

// Execute registers the user. Business failures reach OnResponse and are
// also returned so callers without a callback see them.
func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	res, err := h.service.Store(ctx, event.Input())
	if event.OnResponse != nil {
		event.OnResponse(res)
	}

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration failed")
	}

	return res.Err()
}
