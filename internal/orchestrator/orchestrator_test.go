package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapult/insightsync/internal"
	"github.com/datapult/insightsync/internal/models"
	"github.com/datapult/insightsync/internal/retry"
)

type fakeAdmin struct {
	objectErr   error
	fieldResult models.BatchResult
	fieldErr    error
	accessErr   error

	createdObjects []string
	createdFields  [][]models.FieldCreationRequest
	grantedRoles   []string
}

func (f *fakeAdmin) CreateObject(_ context.Context, def models.InsightDefinition) error {
	f.createdObjects = append(f.createdObjects, def.ObjectFullName)
	return f.objectErr
}

func (f *fakeAdmin) CreateFields(_ context.Context, reqs []models.FieldCreationRequest) (models.BatchResult, error) {
	f.createdFields = append(f.createdFields, reqs)
	return f.fieldResult, f.fieldErr
}

func (f *fakeAdmin) GrantFullAccess(_ context.Context, _, role string) error {
	f.grantedRoles = append(f.grantedRoles, role)
	return f.accessErr
}

type fakeCatalog struct {
	defs map[string]models.InsightDefinition
}

func (f *fakeCatalog) Definition(_ context.Context, target string) (zero models.InsightDefinition, _ error) {
	def, ok := f.defs[target]
	if !ok {
		return zero, fmt.Errorf("definition %s: %w", target, models.ErrRecordNotFound)
	}
	return def, nil
}

type fakeStatusStore struct {
	saved []models.SyncStatus
}

func (f *fakeStatusStore) Save(_ context.Context, st models.SyncStatus) error {
	f.saved = append(f.saved, st)
	return nil
}

type fakeReporter struct {
	successes []string
	failures  []string
}

func (f *fakeReporter) Success(_ context.Context, target, _ string) {
	f.successes = append(f.successes, target)
}

func (f *fakeReporter) Failure(_ context.Context, target, _, _ string) {
	f.failures = append(f.failures, target)
}

type fakeRetry struct {
	decision retry.Decision
}

func (f *fakeRetry) Decide(_ context.Context, _ models.JobUnit) retry.Decision {
	return f.decision
}

type fakeConfigs struct {
	values map[string]string
}

func (f *fakeConfigs) GetString(_ context.Context, key, fallback string) string {
	if v, ok := f.values[key]; ok {
		return v
	}
	return fallback
}

type fakeScheduler struct {
	submitted []models.JobDescriptor
	outcomes  map[string]models.JobOutcome
	submitErr error
}

func (f *fakeScheduler) Submit(_ context.Context, d models.JobDescriptor) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	if d.Handle == "" {
		d.Handle = fmt.Sprintf("handle-%d", len(f.submitted))
	}
	f.submitted = append(f.submitted, d)
	return d.Handle, nil
}

func (f *fakeScheduler) Outcome(_ context.Context, handle string) (zero models.JobOutcome, _ error) {
	outcome, ok := f.outcomes[handle]
	if !ok {
		return zero, internal.ErrJobOutcomeNotFound
	}
	return outcome, nil
}

type fixture struct {
	orch     *Orchestrator
	admin    *fakeAdmin
	statuses *fakeStatusStore
	reporter *fakeReporter
	retry    *fakeRetry
	sched    *fakeScheduler
}

func newFixture(hooks []models.SyncHook) *fixture {
	admin := &fakeAdmin{ //nolint:exhaustruct // success by default
		fieldResult: models.BatchResult{Success: true, Errors: nil},
	}
	statuses := &fakeStatusStore{saved: nil}
	rep := &fakeReporter{successes: nil, failures: nil}
	rc := &fakeRetry{decision: retry.Decision{GiveUp: false, Delay: 5 * time.Minute, NextAttempt: 1}}
	sched := &fakeScheduler{ //nolint:exhaustruct // no submit error
		outcomes: make(map[string]models.JobOutcome),
	}
	cat := &fakeCatalog{defs: map[string]models.InsightDefinition{
		"Insight.Revenue": {
			ObjectFullName: "Insight.Revenue",
			ObjectLabel:    "Revenue",
			Attributes: []models.AttributeSpec{
				{Name: "Amount", DisplayLabel: "Amount", DeclaredType: internal.TypeNumber, Role: models.RoleMeasure},
				{Name: "Region", DisplayLabel: "Region", DeclaredType: internal.TypeString, Role: models.RoleDimension},
			},
		},
	}}
	configs := &fakeConfigs{values: map[string]string{internal.ConfigKeyAccessRole: "Analyst"}}

	orch := New(admin, admin, cat, statuses, rep, rc, configs, sched, hooks, slog.New(slog.DiscardHandler))

	return &fixture{
		orch:     orch,
		admin:    admin,
		statuses: statuses,
		reporter: rep,
		retry:    rc,
		sched:    sched,
	}
}

func descriptorAt(f *fixture, stage models.Stage) models.JobDescriptor {
	return models.JobDescriptor{ //nolint:exhaustruct // minimal descriptor
		Handle:    "h",
		Kind:      internal.JobKindSyncStage,
		Unit:      models.JobUnit{LogicalKey: "Insight.Revenue", Stage: stage}, //nolint:exhaustruct // fresh unit
		ChunkSize: internal.DefaultChunkSize,
	}
}

func TestStartSyncValidation(t *testing.T) {
	ctx := context.Background()

	f := newFixture(nil)
	_, err := f.orch.StartSync(ctx, "  ")
	assert.True(t, models.IsConfigError(err))

	f = newFixture(nil)
	_, err = f.orch.StartSync(ctx, "Insight.Unknown")
	assert.ErrorIs(t, err, models.ErrRecordNotFound)
}

func TestStartSyncRequiresAccessRole(t *testing.T) {
	f := newFixture(nil)
	f.orch.configs = &fakeConfigs{values: map[string]string{}}

	_, err := f.orch.StartSync(context.Background(), "Insight.Revenue")
	assert.True(t, models.IsConfigError(err))
	assert.Empty(t, f.sched.submitted)
}

func TestStartSyncSubmitsObjectCreate(t *testing.T) {
	f := newFixture(nil)

	handle, err := f.orch.StartSync(context.Background(), "Insight.Revenue")
	require.NoError(t, err)
	assert.NotEmpty(t, handle)

	require.Len(t, f.sched.submitted, 1)
	d := f.sched.submitted[0]
	assert.Equal(t, internal.JobKindSyncStage, d.Kind)
	assert.Equal(t, models.StageObjectCreate, d.Unit.Stage)
	assert.Equal(t, "Insight.Revenue", d.Unit.LogicalKey)

	require.Len(t, f.statuses.saved, 1)
	assert.Equal(t, models.StageObjectCreate, f.statuses.saved[0].Stage)
}

func TestObjectCreateSchedulesFieldCreateWithHandle(t *testing.T) {
	f := newFixture(nil)

	outcome := f.orch.HandleJob(context.Background(), descriptorAt(f, models.StageObjectCreate))
	assert.Equal(t, models.JobCompleted, outcome.Status)

	require.Len(t, f.sched.submitted, 1)
	d := f.sched.submitted[0]
	assert.Equal(t, models.StageFieldCreate, d.Unit.Stage)
	assert.NotEmpty(t, d.Handle)
	assert.Equal(t, d.Handle, d.Unit.FieldJobHandle)
}

func TestObjectCreateFailureStillSchedulesFieldCreate(t *testing.T) {
	f := newFixture(nil)
	f.admin.objectErr = fmt.Errorf("metadata api down")

	outcome := f.orch.HandleJob(context.Background(), descriptorAt(f, models.StageObjectCreate))
	assert.Equal(t, models.JobFailed, outcome.Status)

	require.Len(t, f.sched.submitted, 1)
	assert.Equal(t, models.StageFieldCreate, f.sched.submitted[0].Unit.Stage)

	require.NotEmpty(t, f.statuses.saved)
	assert.Contains(t, f.statuses.saved[0].LastError, "metadata api down")
}

func TestObjectAlreadyExistsIsNotAnError(t *testing.T) {
	f := newFixture(nil)
	f.admin.objectErr = models.ErrAlreadyExists

	outcome := f.orch.HandleJob(context.Background(), descriptorAt(f, models.StageObjectCreate))
	assert.Equal(t, models.JobCompleted, outcome.Status)

	require.NotEmpty(t, f.statuses.saved)
	assert.Empty(t, f.statuses.saved[0].LastError)
}

func TestFieldCreateChunksRequests(t *testing.T) {
	f := newFixture(nil)

	d := descriptorAt(f, models.StageFieldCreate)
	d.ChunkSize = 1

	outcome := f.orch.HandleJob(context.Background(), d)
	assert.Equal(t, models.JobCompleted, outcome.Status)

	// Two attributes, chunk size one.
	assert.Len(t, f.admin.createdFields, 2)
}

func TestFieldCreateFailureSchedulesDelayedRetry(t *testing.T) {
	f := newFixture(nil)
	f.admin.fieldResult = models.BatchResult{Success: false, Errors: []string{"duplicate field"}}

	before := time.Now()
	outcome := f.orch.HandleJob(context.Background(), descriptorAt(f, models.StageFieldCreate))
	assert.Equal(t, models.JobFailed, outcome.Status)
	assert.Equal(t, 1, outcome.ErrorCount)

	require.Len(t, f.sched.submitted, 1)
	d := f.sched.submitted[0]
	assert.Equal(t, models.StageFieldCreate, d.Unit.Stage)
	assert.Equal(t, 1, d.Unit.AttemptCount)
	assert.True(t, d.NotBefore.After(before.Add(4*time.Minute)))
}

func TestFieldCreateExhaustedReportsFailure(t *testing.T) {
	f := newFixture(nil)
	f.admin.fieldErr = fmt.Errorf("api down")
	f.retry.decision = retry.Decision{GiveUp: true, Delay: 0, NextAttempt: 0}

	d := descriptorAt(f, models.StageFieldCreate)
	d.Unit.AttemptCount = 1

	f.orch.HandleJob(context.Background(), d)

	assert.Empty(t, f.sched.submitted)
	assert.Equal(t, []string{"Insight.Revenue"}, f.reporter.failures)

	require.NotEmpty(t, f.statuses.saved)
	assert.Equal(t, models.StageFailed, f.statuses.saved[0].Stage)
}

func TestAccessGrantFailureProceedsWithWarning(t *testing.T) {
	f := newFixture(nil)
	f.admin.accessErr = fmt.Errorf("role missing")

	f.orch.HandleJob(context.Background(), descriptorAt(f, models.StageAccessGrant))

	assert.Equal(t, []string{"Analyst"}, f.admin.grantedRoles)

	require.Len(t, f.sched.submitted, 1)
	assert.Equal(t, models.StageVerify, f.sched.submitted[0].Unit.Stage)
	assert.Contains(t, f.sched.submitted[0].Unit.AccessWarning, "role missing")
	assert.Empty(t, f.reporter.failures)
}

func TestVerifyCleanReportsSuccessAndRunsHooks(t *testing.T) {
	hooks := []models.SyncHook{{Kind: "dataflow-refresh", Target: "Insight.Revenue"}}
	f := newFixture(hooks)
	f.sched.outcomes["field-job"] = models.JobOutcome{Status: models.JobCompleted, ErrorCount: 0, Error: ""}

	d := descriptorAt(f, models.StageVerify)
	d.Unit.FieldJobHandle = "field-job"

	f.orch.HandleJob(context.Background(), d)

	assert.Equal(t, []string{"Insight.Revenue"}, f.reporter.successes)

	require.Len(t, f.sched.submitted, 1)
	assert.Equal(t, "dataflow-refresh", f.sched.submitted[0].Kind)

	require.NotEmpty(t, f.statuses.saved)
	last := f.statuses.saved[len(f.statuses.saved)-1]
	assert.True(t, last.SyncDone)
	assert.NotNil(t, last.LastSyncTime)
}

func TestVerifyResidualErrorsReportFailureAndSkipHooks(t *testing.T) {
	hooks := []models.SyncHook{{Kind: "dataflow-refresh", Target: "Insight.Revenue"}}
	f := newFixture(hooks)
	f.sched.outcomes["field-job"] = models.JobOutcome{Status: models.JobFailed, ErrorCount: 3, Error: "bad field"}

	d := descriptorAt(f, models.StageVerify)
	d.Unit.FieldJobHandle = "field-job"

	f.orch.HandleJob(context.Background(), d)

	assert.Equal(t, []string{"Insight.Revenue"}, f.reporter.failures)
	assert.Empty(t, f.reporter.successes)
	assert.Empty(t, f.sched.submitted)

	require.NotEmpty(t, f.statuses.saved)
	last := f.statuses.saved[len(f.statuses.saved)-1]
	assert.Equal(t, models.StageDone, last.Stage)
	assert.False(t, last.SyncDone)
}

func TestVerifyMissingFieldJobOutcomeFails(t *testing.T) {
	f := newFixture(nil)

	d := descriptorAt(f, models.StageVerify)
	d.Unit.FieldJobHandle = "gone"

	outcome := f.orch.HandleJob(context.Background(), d)
	assert.Equal(t, models.JobFailed, outcome.Status)
	assert.Equal(t, []string{"Insight.Revenue"}, f.reporter.failures)
}
