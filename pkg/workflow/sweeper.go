package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bizbooks/approvalflow/pkg/models"
	"github.com/bizbooks/approvalflow/pkg/persistence"
)

// Sweeper forces steps past their auto-approval deadline through the engine on
// behalf of the system actor. Each approval is keyed to the listed step, so a
// human acting between the listing and the sweep resolves to one winner
// through the same step compare-and-set; the sweeper never lands on a step
// that advanced past its candidate.
type Sweeper struct {
	logger      *slog.Logger
	engine      *Engine
	persistence persistence.Persistence
}

func NewSweeper(logger *slog.Logger, engine *Engine, persistence persistence.Persistence) *Sweeper {
	return &Sweeper{
		logger:      logger.With("module", "sweeper"),
		engine:      engine,
		persistence: persistence,
	}
}

// Sweep runs one pass: every current pending step whose deadline is at or
// before now is approved as the system actor. Lost races and state errors are
// logged and skipped; only infrastructure failures abort the pass.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := time.Now().UTC()

	candidates, err := s.persistence.RequestRepository().ListAutoApprovableSteps(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list auto-approvable steps: %w", err)
	}

	approved := 0

	for _, candidate := range candidates {
		comment := fmt.Sprintf("Auto-approved: no action before deadline %s",
			candidate.Deadline.Format(time.RFC3339))

		_, err := s.engine.ApproveStep(ctx, candidate.RequestID, candidate.StepID, models.SystemActorID, comment)
		if err != nil {
			if IsConflictError(err) || IsStateError(err) {
				// A human won the race or the request completed meanwhile.
				s.logger.InfoContext(ctx, "Skipping escalation candidate",
					"request_id", candidate.RequestID, "step_id", candidate.StepID, "reason", err)

				continue
			}

			if IsHandlerFailure(err) {
				// The approval stands; the domain module reconciles.
				s.logger.ErrorContext(ctx, "Handler failed during auto-approval",
					"request_id", candidate.RequestID, "error", err)

				approved++

				continue
			}

			return approved, fmt.Errorf("failed to auto-approve step %s of request %s: %w",
				candidate.StepID, candidate.RequestID, err)
		}

		s.logger.InfoContext(ctx, "Auto-approved step past deadline",
			"request_id", candidate.RequestID,
			"step_id", candidate.StepID,
			"step_order", candidate.StepOrder,
			"deadline", candidate.Deadline)

		approved++
	}

	return approved, nil
}
