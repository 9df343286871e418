// Package logins consumes login outcomes published by the authentication
// service and feeds them to the device profiles.
package logins

import (
	"context"
	"encoding/json"
	"log/slog"

	"warden/internal/platform/kafka/consumer"
	"warden/internal/platform/privacy"
	"warden/internal/risk/models"
	dErrors "warden/pkg/domain-errors"
)

// Recorder applies one login outcome.
type Recorder interface {
	RecordLoginOutcome(ctx context.Context, outcome models.LoginOutcome) error
}

// Handler is a consumer.Handler for the login-outcomes topic.
type Handler struct {
	recorder Recorder
	logger   *slog.Logger
}

func NewHandler(recorder Recorder, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{recorder: recorder, logger: logger}
}

// Handle decodes and records a message. Malformed or invalid outcomes are
// dropped (returning nil commits the offset); store failures are returned so
// the record is redelivered.
func (h *Handler) Handle(ctx context.Context, msg *consumer.Message) error {
	var outcome models.LoginOutcome
	if err := json.Unmarshal(msg.Value, &outcome); err != nil {
		h.logger.WarnContext(ctx, "login_outcome_malformed",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}
	if outcome.At.IsZero() {
		outcome.At = msg.Timestamp
	}

	err := h.recorder.RecordLoginOutcome(ctx, outcome)
	switch {
	case err == nil:
		return nil
	case dErrors.HasCode(err, dErrors.CodeInvalidInput):
		h.logger.WarnContext(ctx, "login_outcome_rejected",
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	default:
		h.logger.ErrorContext(ctx, "login_outcome_failed",
			"fingerprint", privacy.AnonymizeFingerprint(outcome.DeviceFingerprint),
			"offset", msg.Offset,
			"error", err,
		)
		return err
	}
}
