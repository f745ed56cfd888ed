package registry

import (
	"context"
	"log/slog"
)

// LoggingHandler is a pass-through ActivityHandler for deployments whose
// domain modules consume lifecycle events from the event bus instead of
// in-process callbacks. It records the outcome and reports success.
type LoggingHandler struct {
	logger       *slog.Logger
	activityType string
}

func NewLoggingHandler(logger *slog.Logger, activityType string) *LoggingHandler {
	return &LoggingHandler{
		logger:       logger.With("module", "logging_handler", "activity_type", activityType),
		activityType: activityType,
	}
}

func (h *LoggingHandler) OnApproved(ctx context.Context, activityID, approvedBy string) error {
	h.logger.InfoContext(ctx, "Activity approved", "activity_id", activityID, "approved_by", approvedBy)

	return nil
}

func (h *LoggingHandler) OnRejected(ctx context.Context, activityID, rejectedBy, reason string) error {
	h.logger.InfoContext(ctx, "Activity rejected",
		"activity_id", activityID, "rejected_by", rejectedBy, "reason", reason)

	return nil
}

func (h *LoggingHandler) OnCancelled(ctx context.Context, activityID, cancelledBy, reason string) error {
	h.logger.InfoContext(ctx, "Activity cancelled",
		"activity_id", activityID, "cancelled_by", cancelledBy, "reason", reason)

	return nil
}
