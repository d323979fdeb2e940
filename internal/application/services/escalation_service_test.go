package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusflow/backend/internal/domain/events"
	"github.com/nexusflow/backend/internal/domain/models"
	"github.com/nexusflow/backend/pkg/constants"
)

type sweepFixture struct {
	*engineFixture
	escalation *EscalationService
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	engine := newEngineFixture(t, nil)
	resolver := NewAssigneeResolverService(engine.membership, &fakeDelegationRepo{})
	escalation := NewEscalationService(engine.templates, engine.instances, engine.approvals,
		resolver, engine.membership, engine.bus)
	return &sweepFixture{engineFixture: engine, escalation: escalation}
}

func (f *sweepFixture) startOverdueWorkflow(t *testing.T, escalateTo *models.AssigneeSpec) *models.WorkflowInstance {
	t.Helper()
	step := approvalStep(0, "Manager Approval", constants.AssigneeTypeUser, "mgr-1")
	step.Escalation = &models.EscalationPolicy{HoursUntilDue: 24, EscalateTo: escalateTo}
	f.addTemplate(t, []models.Step{step})

	inst, err := f.svc.Start(context.Background(), StartRequest{TemplateID: "tpl-1", EntityID: "exp-1"}, "alice")
	require.NoError(t, err)

	// Backdate the due time so the sweep sees the row as overdue
	pending, _ := f.svc.PendingFor(context.Background(), "mgr-1")
	require.Len(t, pending, 1)
	past := time.Now().UTC().Add(-time.Hour)
	f.approvals.mu.Lock()
	f.approvals.approvals[pending[0].ID].DueAt = &past
	f.approvals.mu.Unlock()

	return inst
}

func TestSweepEscalatesToManager(t *testing.T) {
	f := newSweepFixture(t)
	f.membership.managers["mgr-1"] = "dir-1"
	inst := f.startOverdueWorkflow(t, nil)

	result := f.escalation.Sweep(context.Background())
	assert.Equal(t, 1, result.Escalated)
	assert.Equal(t, 0, result.Errors)

	// The original row is sealed as escalated, a new pending row exists
	_, history, err := f.svc.HistoryOf(context.Background(), inst.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, constants.ApprovalStatusEscalated, history[0].Status)
	assert.Equal(t, "dir-1", *history[0].EscalatedTo)
	assert.Equal(t, constants.ApprovalStatusPending, history[1].Status)
	assert.Equal(t, "dir-1", history[1].AssignedTo)
	assert.Equal(t, 1, history[1].EntryOrdinal)
	assert.NotNil(t, history[1].DueAt)
	assert.True(t, history[1].DueAt.After(time.Now().UTC()))

	assert.Contains(t, f.bus.typesSeen(), events.ApprovalEscalated)

	// The new assignee can decide
	pending, _ := f.svc.PendingFor(context.Background(), "dir-1")
	require.Len(t, pending, 1)
	require.NoError(t, f.svc.Act(context.Background(), pending[0].ID, "dir-1", constants.DecisionApprove, ""))

	stored, _ := f.instances.GetByID(context.Background(), inst.ID)
	assert.Equal(t, constants.InstanceStatusApproved, stored.Status)
}

func TestSweepUsesExplicitEscalateTo(t *testing.T) {
	f := newSweepFixture(t)
	f.membership.holders["role/escalation-board"] = "board-1"
	f.startOverdueWorkflow(t, &models.AssigneeSpec{Type: constants.AssigneeTypeRole, ID: "escalation-board"})

	result := f.escalation.Sweep(context.Background())
	assert.Equal(t, 1, result.Escalated)

	pending, _ := f.svc.PendingFor(context.Background(), "board-1")
	assert.Len(t, pending, 1)
}

func TestSweepIsIdempotent(t *testing.T) {
	f := newSweepFixture(t)
	f.membership.managers["mgr-1"] = "dir-1"
	inst := f.startOverdueWorkflow(t, nil)

	first := f.escalation.Sweep(context.Background())
	assert.Equal(t, 1, first.Escalated)

	// The escalated replacement row has a fresh due_at, so a second sweep
	// finds nothing to do
	second := f.escalation.Sweep(context.Background())
	assert.Equal(t, 0, second.Escalated)
	assert.Equal(t, 0, second.Errors)

	_, history, _ := f.svc.HistoryOf(context.Background(), inst.ID)
	assert.Len(t, history, 2)
}

func TestSweepPushesBackWhenTargetUnresolvable(t *testing.T) {
	f := newSweepFixture(t)
	// mgr-1 has no manager and no explicit target is set
	inst := f.startOverdueWorkflow(t, nil)

	result := f.escalation.Sweep(context.Background())
	assert.Equal(t, 0, result.Escalated)
	assert.Equal(t, 1, result.PushedBack)

	// The row stays pending with a future due time
	_, history, _ := f.svc.HistoryOf(context.Background(), inst.ID)
	require.Len(t, history, 1)
	assert.Equal(t, constants.ApprovalStatusPending, history[0].Status)
	assert.True(t, history[0].DueAt.After(time.Now().UTC()))
}

func TestSweepSkipsDecidedRow(t *testing.T) {
	f := newSweepFixture(t)
	f.membership.managers["mgr-1"] = "dir-1"
	inst := f.startOverdueWorkflow(t, nil)

	// The assignee decides before the sweep runs
	pending, _ := f.svc.PendingFor(context.Background(), "mgr-1")
	require.NoError(t, f.svc.Act(context.Background(), pending[0].ID, "mgr-1", constants.DecisionApprove, ""))

	result := f.escalation.Sweep(context.Background())
	assert.Equal(t, 0, result.Escalated)

	_, history, _ := f.svc.HistoryOf(context.Background(), inst.ID)
	assert.Len(t, history, 1)
}

func TestSweepSkipsSealedInstance(t *testing.T) {
	f := newSweepFixture(t)
	f.membership.managers["mgr-1"] = "dir-1"
	inst := f.startOverdueWorkflow(t, nil)

	require.NoError(t, f.svc.Cancel(context.Background(), inst.ID, "alice", false, ""))

	result := f.escalation.Sweep(context.Background())
	assert.Equal(t, 0, result.Escalated)
	assert.Equal(t, 0, result.Errors)
}
