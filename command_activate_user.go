package sentinel

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type ActivateUserMessage struct {
	UserID     uuid.UUID `json:"user_id"`
	Code       string    `json:"code"`
	OnResponse func(r Result)
}

func (e ActivateUserMessage) Type() string { return "user.activate" }

type ActivateUserHandler struct {
	service *Service
	timeout time.Duration
}

func NewActivateUserHandler(service *Service) *ActivateUserHandler {
	return &ActivateUserHandler{service: service, timeout: 10 * time.Second}
}

func (h *ActivateUserHandler) Execute(ctx context.Context, event ActivateUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account activation")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ActivateUserHandler) execute(ctx context.Context, event ActivateUserMessage) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	res, err := h.service.Activate(ctx, event.UserID, event.Code)
	if event.OnResponse != nil {
		event.OnResponse(res)
	}

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to execute account activation")
	}

	return res.Err()
}
