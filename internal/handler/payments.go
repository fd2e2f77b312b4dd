package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-locking/internal/model"
	"github.com/iliyamo/cinema-seat-locking/internal/service"
	"github.com/iliyamo/cinema-seat-locking/internal/utils"
)

// WebhookTokenHeader carries the shared secret payment providers send.
const WebhookTokenHeader = "X-Webhook-Token"

// PaymentHandler receives payment provider callbacks.
type PaymentHandler struct {
	Reconciler *service.Reconciler
	// TokenHash is the bcrypt hash of the shared webhook token.  An empty
	// hash rejects every call.
	TokenHash string
	Logger    *slog.Logger
}

// NewPaymentHandler constructs a PaymentHandler and panics if reconciler
// is nil.
func NewPaymentHandler(reconciler *service.Reconciler, tokenHash string, logger *slog.Logger) *PaymentHandler {
	if reconciler == nil {
		panic("nil reconciler passed to NewPaymentHandler")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentHandler{Reconciler: reconciler, TokenHash: tokenHash, Logger: logger}
}

type paymentWebhookRequest struct {
	Status     string   `json:"status" validate:"required"`
	PaymentRef string   `json:"payment_ref"`
	ShowID     uint64   `json:"show_id"`
	UserID     uint64   `json:"user_id"`
	Seats      []string `json:"seats"`
}

// Webhook handles POST /v1/payments/webhook.  Once the caller is
// authenticated and the body parses, the provider always gets 200 so it
// stops retrying, except for transient storage failures which answer 503
// to ask for a redelivery.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	if !utils.VerifySecret(h.TokenHash, c.Request().Header.Get(WebhookTokenHeader)) {
		return unauthorized(c)
	}
	var req paymentWebhookRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, validationMessage(err))
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	res, err := h.Reconciler.Apply(ctx, service.PaymentEvent{
		Outcome:    service.PaymentOutcome(req.Status),
		PaymentRef: req.PaymentRef,
		ShowID:     req.ShowID,
		UserID:     req.UserID,
		Seats:      req.Seats,
	})
	if err != nil {
		if errors.Is(err, model.ErrTransient) {
			return respondError(c, h.Logger, err)
		}
		h.Logger.WarnContext(ctx, "payment webhook ignored", slog.String("error", err.Error()))
		return c.JSON(http.StatusOK, echo.Map{"received": true, "result": service.ResultNoop})
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true, "result": res})
}
