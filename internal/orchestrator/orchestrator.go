package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/datapult/insightsync/internal"
	"github.com/datapult/insightsync/internal/models"
	"github.com/datapult/insightsync/internal/planner"
	"github.com/datapult/insightsync/internal/retry"
	"github.com/datapult/insightsync/internal/scheduler"
)

const syncPhase = "schema-sync"

// SchemaAdmin creates metadata objects and fields in the target system.
type SchemaAdmin interface {
	CreateObject(ctx context.Context, def models.InsightDefinition) error
	CreateFields(ctx context.Context, reqs []models.FieldCreationRequest) (models.BatchResult, error)
}

// AccessControl grants field-level access on a synchronized object.
type AccessControl interface {
	GrantFullAccess(ctx context.Context, objectFullName, role string) error
}

// AttributeCatalog resolves a target name to its insight definition.
type AttributeCatalog interface {
	Definition(ctx context.Context, target string) (models.InsightDefinition, error)
}

type statusStore interface {
	Save(ctx context.Context, st models.SyncStatus) error
}

type resultReporter interface {
	Success(ctx context.Context, target, phase string)
	Failure(ctx context.Context, target, phase, errText string)
}

type retryController interface {
	Decide(ctx context.Context, unit models.JobUnit) retry.Decision
}

type confGetter interface {
	GetString(ctx context.Context, key, fallback string) string
}

// Orchestrator drives the staged synchronization chain for insight schemas.
// Each stage runs as a separately scheduled job; the orchestrator executes
// the stage, applies the transition rules and submits the follow-up job.
type Orchestrator struct {
	admin    SchemaAdmin
	access   AccessControl
	catalog  AttributeCatalog
	statuses statusStore
	reporter resultReporter
	retry    retryController
	configs  confGetter
	sched    scheduler.Scheduler
	hooks    []models.SyncHook
	log      *slog.Logger
}

func New(
	admin SchemaAdmin,
	access AccessControl,
	catalog AttributeCatalog,
	statuses statusStore,
	rep resultReporter,
	rc retryController,
	configs confGetter,
	sched scheduler.Scheduler,
	hooks []models.SyncHook,
	log *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		admin:    admin,
		access:   access,
		catalog:  catalog,
		statuses: statuses,
		reporter: rep,
		retry:    rc,
		configs:  configs,
		sched:    sched,
		hooks:    hooks,
		log:      log,
	}
}

// StartSync validates the request and submits the first stage job. The
// returned handle identifies that job.
func (o *Orchestrator) StartSync(ctx context.Context, target string) (string, error) {
	if strings.TrimSpace(target) == "" {
		return "", models.NewConfigError("target", "cannot be blank")
	}

	role := o.configs.GetString(ctx, internal.ConfigKeyAccessRole, "")
	if role == "" {
		return "", models.NewConfigError(internal.ConfigKeyAccessRole, "access role is not configured")
	}

	if _, err := o.catalog.Definition(ctx, target); err != nil {
		return "", fmt.Errorf("resolve definition for %s: %w", target, err)
	}

	unit := models.JobUnit{ //nolint:exhaustruct // fresh unit
		LogicalKey: target,
		Stage:      models.StageObjectCreate,
	}

	o.saveStatus(ctx, unit, false)

	handle, err := o.sched.Submit(ctx, models.JobDescriptor{ //nolint:exhaustruct // immediate job
		Kind:      internal.JobKindSyncStage,
		Unit:      unit,
		ChunkSize: internal.DefaultChunkSize,
	})
	if err != nil {
		return "", fmt.Errorf("submit initial stage for %s: %w", target, err)
	}

	o.log.InfoContext(ctx, "synchronization started", "target", target, "handle", handle)

	return handle, nil
}

// HandleJob executes one stage job. It implements scheduler.Handler.
func (o *Orchestrator) HandleJob(ctx context.Context, d models.JobDescriptor) models.JobOutcome {
	unit := d.Unit

	o.log.InfoContext(ctx, "running sync stage",
		"target", unit.LogicalKey, "stage", unit.Stage, "attempt", unit.AttemptCount)

	out := o.executeStage(ctx, unit, d.ChunkSize)
	next, action := Transition(unit, out, o.retry.Decide(ctx, unit))

	switch action {
	case ActionProceed:
		o.saveStatus(ctx, next, false)
		o.submitNext(ctx, next, d.ChunkSize, time.Time{})

	case ActionRetry:
		delay := o.retry.Decide(ctx, unit).Delay
		o.log.WarnContext(ctx, "stage failed, scheduling retry",
			"target", next.LogicalKey, "stage", next.Stage,
			"attempt", next.AttemptCount, "delay", delay)
		o.saveStatus(ctx, next, false)
		o.submitNext(ctx, next, d.ChunkSize, time.Now().Add(delay))

	case ActionGiveUp:
		o.saveStatus(ctx, next, false)
		o.reporter.Failure(ctx, next.LogicalKey, syncPhase, next.LastError)
		o.log.ErrorContext(ctx, "synchronization failed",
			"target", next.LogicalKey, "error", next.LastError)

	case ActionFinish:
		o.finish(ctx, next, d.ChunkSize)
	}

	return stageJobOutcome(out)
}

func (o *Orchestrator) finish(ctx context.Context, unit models.JobUnit, chunkSize int) {
	if unit.VerifyFailed {
		o.saveStatus(ctx, unit, false)
		o.reporter.Failure(ctx, unit.LogicalKey, syncPhase, unit.LastError)
		o.log.ErrorContext(ctx, "synchronization completed with verification errors",
			"target", unit.LogicalKey, "error", unit.LastError)
		return
	}

	o.saveStatus(ctx, unit, true)
	o.reporter.Success(ctx, unit.LogicalKey, syncPhase)
	o.log.InfoContext(ctx, "synchronization completed", "target", unit.LogicalKey)

	for _, hook := range o.hooks {
		_, err := o.sched.Submit(ctx, models.JobDescriptor{ //nolint:exhaustruct // immediate job
			Kind: hook.Kind,
			Unit: models.JobUnit{ //nolint:exhaustruct // fresh unit
				LogicalKey: hook.Target,
				Stage:      models.StageObjectCreate,
			},
			ChunkSize: chunkSize,
		})
		if err != nil {
			o.log.ErrorContext(ctx, "failed to submit follow-up job",
				"kind", hook.Kind, "hook_target", hook.Target, "error", err)
		}
	}
}

// submitNext schedules the follow-up stage. Field-creation jobs get a
// pre-generated handle stored on the unit so the verify stage can read
// their persisted outcome later.
func (o *Orchestrator) submitNext(ctx context.Context, unit models.JobUnit, chunkSize int, notBefore time.Time) {
	d := models.JobDescriptor{ //nolint:exhaustruct // handle set below when needed
		Kind:      internal.JobKindSyncStage,
		Unit:      unit,
		NotBefore: notBefore,
		ChunkSize: chunkSize,
	}

	if unit.Stage == models.StageFieldCreate {
		d.Handle = uuid.New().String()
		d.Unit.FieldJobHandle = d.Handle
	}

	if _, err := o.sched.Submit(ctx, d); err != nil {
		o.log.ErrorContext(ctx, "failed to submit next stage",
			"target", unit.LogicalKey, "stage", unit.Stage, "error", err)
	}
}

func (o *Orchestrator) executeStage(ctx context.Context, unit models.JobUnit, chunkSize int) (zero StageOutcome) {
	switch unit.Stage {
	case models.StageObjectCreate:
		return o.runObjectCreate(ctx, unit)
	case models.StageFieldCreate:
		return o.runFieldCreate(ctx, unit, chunkSize)
	case models.StageAccessGrant:
		return o.runAccessGrant(ctx, unit)
	case models.StageVerify:
		return o.runVerify(ctx, unit)
	default:
		return zero
	}
}

func (o *Orchestrator) runObjectCreate(ctx context.Context, unit models.JobUnit) (zero StageOutcome) {
	def, err := o.catalog.Definition(ctx, unit.LogicalKey)
	if err != nil {
		return StageOutcome{Err: err} //nolint:exhaustruct // error outcome
	}

	err = o.admin.CreateObject(ctx, def)
	if err != nil {
		if errors.Is(err, models.ErrAlreadyExists) {
			o.log.InfoContext(ctx, "object already exists", "target", unit.LogicalKey)
			return zero
		}
		return StageOutcome{Err: fmt.Errorf("create object %s: %w", def.ObjectFullName, err)} //nolint:exhaustruct // error outcome
	}

	return zero
}

func (o *Orchestrator) runFieldCreate(ctx context.Context, unit models.JobUnit, chunkSize int) (zero StageOutcome) {
	def, err := o.catalog.Definition(ctx, unit.LogicalKey)
	if err != nil {
		return StageOutcome{Err: err} //nolint:exhaustruct // error outcome
	}

	plan := planner.BuildPlan(def)
	reqs := make([]models.FieldCreationRequest, 0, plan.Size())
	reqs = append(reqs, plan.Numeric...)
	reqs = append(reqs, plan.Text...)

	if chunkSize <= 0 {
		chunkSize = internal.DefaultChunkSize
	}

	out := StageOutcome{BatchSuccess: true} //nolint:exhaustruct // built up below
	for start := 0; start < len(reqs); start += chunkSize {
		end := min(start+chunkSize, len(reqs))

		result, err := o.admin.CreateFields(ctx, reqs[start:end])
		if err != nil {
			out.Err = fmt.Errorf("create fields for %s: %w", def.ObjectFullName, err)
			out.BatchSuccess = false
			return out
		}

		if !result.Success {
			out.BatchSuccess = false
		}
		out.BatchErrors = append(out.BatchErrors, result.Errors...)
	}

	return out
}

func (o *Orchestrator) runAccessGrant(ctx context.Context, unit models.JobUnit) (zero StageOutcome) {
	def, err := o.catalog.Definition(ctx, unit.LogicalKey)
	if err != nil {
		return StageOutcome{Err: err} //nolint:exhaustruct // error outcome
	}

	role := o.configs.GetString(ctx, internal.ConfigKeyAccessRole, "")

	err = o.access.GrantFullAccess(ctx, def.ObjectFullName, role)
	if err != nil {
		return StageOutcome{Err: fmt.Errorf("grant access on %s to %s: %w", def.ObjectFullName, role, err)} //nolint:exhaustruct // error outcome
	}

	return zero
}

// runVerify reads back the persisted outcome of the field-creation job.
func (o *Orchestrator) runVerify(ctx context.Context, unit models.JobUnit) (zero StageOutcome) {
	if unit.FieldJobHandle == "" {
		return StageOutcome{Err: fmt.Errorf("no field creation job recorded for %s", unit.LogicalKey)} //nolint:exhaustruct // error outcome
	}

	outcome, err := o.sched.Outcome(ctx, unit.FieldJobHandle)
	if err != nil {
		return StageOutcome{Err: fmt.Errorf("read field creation outcome: %w", err)} //nolint:exhaustruct // error outcome
	}

	return StageOutcome{JobErrorCount: outcome.ErrorCount} //nolint:exhaustruct // verify outcome
}

func (o *Orchestrator) saveStatus(ctx context.Context, unit models.JobUnit, syncDone bool) {
	st := models.SyncStatus{ //nolint:exhaustruct // UpdatedAt set by the store
		TargetName:    unit.LogicalKey,
		Stage:         unit.Stage,
		SyncDone:      syncDone,
		LastError:     unit.LastError,
		AccessWarning: unit.AccessWarning,
	}
	if syncDone {
		now := time.Now().UTC()
		st.LastSyncTime = &now
	}

	if err := o.statuses.Save(ctx, st); err != nil {
		o.log.ErrorContext(ctx, "failed to save sync status",
			"target", unit.LogicalKey, "error", err)
	}
}

func stageJobOutcome(out StageOutcome) models.JobOutcome {
	outcome := models.JobOutcome{ //nolint:exhaustruct // error text set below
		Status:     models.JobCompleted,
		ErrorCount: len(out.BatchErrors),
	}
	if out.Err != nil {
		outcome.Status = models.JobFailed
		outcome.Error = out.Err.Error()
	} else if len(out.BatchErrors) > 0 {
		outcome.Status = models.JobFailed
		outcome.Error = out.BatchErrors[0]
	}
	return outcome
}
