package orchestrator

import (
	"github.com/datapult/insightsync/internal/models"
	"github.com/datapult/insightsync/internal/retry"
)

// StageOutcome captures what happened when one stage executed.
type StageOutcome struct {
	Err           error
	BatchSuccess  bool
	BatchErrors   []string
	JobErrorCount int
}

// Action tells the orchestrator what to do after a stage transition.
type Action int

const (
	// ActionProceed schedules the next stage immediately.
	ActionProceed Action = iota
	// ActionRetry re-schedules the same stage after the retry delay.
	ActionRetry
	// ActionGiveUp stops the chain in the Failed stage.
	ActionGiveUp
	// ActionFinish stops the chain in the Done stage.
	ActionFinish
)

// Transition applies the advancement rules for one finished stage execution
// and returns the updated unit plus the action to take. It is pure: the
// retry verdict is computed by the caller and passed in.
//
// Stage rules:
//   - ObjectCreate failures are recorded but never block the chain; field
//     creation is attempted regardless.
//   - FieldCreate is the only retried stage. Exhausted attempts end the
//     chain in Failed.
//   - AccessGrant failures degrade to a warning. The grant is not retried.
//   - Verify inspects the field-creation outcome; residual errors mark the
//     unit failed-on-verify while the chain still reaches Done.
func Transition(unit models.JobUnit, out StageOutcome, decision retry.Decision) (models.JobUnit, Action) {
	switch unit.Stage {
	case models.StageObjectCreate:
		if out.Err != nil {
			unit.LastError = out.Err.Error()
		}
		unit.Stage = models.StageFieldCreate
		return unit, ActionProceed

	case models.StageFieldCreate:
		if out.Err != nil || !out.BatchSuccess {
			unit.LastError = fieldErrorText(out)
			if decision.GiveUp {
				unit.Stage = models.StageFailed
				unit.FieldCreateFailed = true
				return unit, ActionGiveUp
			}
			unit.AttemptCount = decision.NextAttempt
			return unit, ActionRetry
		}
		unit.FieldCreateFailed = false
		unit.LastError = ""
		unit.Stage = models.StageAccessGrant
		return unit, ActionProceed

	case models.StageAccessGrant:
		if out.Err != nil {
			unit.AccessWarning = out.Err.Error()
		}
		unit.Stage = models.StageVerify
		return unit, ActionProceed

	case models.StageVerify:
		if out.Err != nil {
			unit.VerifyFailed = true
			unit.LastError = out.Err.Error()
		} else if out.JobErrorCount > 0 {
			unit.VerifyFailed = true
			unit.LastError = fieldErrorText(out)
		}
		unit.Stage = models.StageDone
		return unit, ActionFinish

	case models.StageDone, models.StageFailed:
		return unit, ActionFinish

	default:
		return unit, ActionFinish
	}
}

func fieldErrorText(out StageOutcome) string {
	if out.Err != nil {
		return out.Err.Error()
	}
	if len(out.BatchErrors) > 0 {
		return out.BatchErrors[0]
	}
	if out.JobErrorCount > 0 {
		return "field creation completed with errors"
	}
	return "field creation failed"
}
