package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nexusflow/backend/internal/domain/events"
	"github.com/nexusflow/backend/internal/domain/models"
	"github.com/nexusflow/backend/internal/domain/ports"
)

// In-memory fakes for the engine's collaborators. These mirror the SQL
// repositories' contracts, including the compare-and-set seal semantics.

type fakeTemplateRepo struct {
	mu         sync.Mutex
	templates  map[string]*models.WorkflowTemplate
	referenced map[string]bool // template id -> has instances
}

func newFakeTemplateRepo() *fakeTemplateRepo {
	return &fakeTemplateRepo{
		templates:  make(map[string]*models.WorkflowTemplate),
		referenced: make(map[string]bool),
	}
}

func (r *fakeTemplateRepo) Insert(_ context.Context, t *models.WorkflowTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.ID] = t
	return nil
}

func (r *fakeTemplateRepo) GetByID(_ context.Context, id string) (*models.WorkflowTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.templates[id], nil
}

func (r *fakeTemplateRepo) List(_ context.Context, filter ports.TemplateFilter) ([]*models.WorkflowTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.WorkflowTemplate, 0)
	for _, t := range r.templates {
		if filter.EntityType != "" && t.EntityType != filter.EntityType {
			continue
		}
		if filter.ActiveOnly && !t.IsActive {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *fakeTemplateRepo) Update(_ context.Context, t *models.WorkflowTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.ID] = t
	return nil
}

func (r *fakeTemplateRepo) Deactivate(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.templates[id]; ok {
		t.IsActive = false
	}
	return nil
}

func (r *fakeTemplateRepo) HasInstances(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.referenced[id], nil
}

type fakeInstanceRepo struct {
	mu        sync.Mutex
	instances map[string]*models.WorkflowInstance
}

func newFakeInstanceRepo() *fakeInstanceRepo {
	return &fakeInstanceRepo{instances: make(map[string]*models.WorkflowInstance)}
}

func (r *fakeInstanceRepo) Insert(_ context.Context, inst *models.WorkflowInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *inst
	r.instances[inst.ID] = &cp
	return nil
}

func (r *fakeInstanceRepo) GetByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[id]; ok {
		cp := *inst
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeInstanceRepo) FindOpenByEntity(_ context.Context, entityType, entityID string) (*models.WorkflowInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.instances {
		if inst.EntityType == entityType && inst.EntityID == entityID && inst.IsOpen() {
			cp := *inst
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeInstanceRepo) AdvanceStep(_ context.Context, id string, stepIndex int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[id]; ok {
		inst.CurrentStepIndex = stepIndex
	}
	return nil
}

func (r *fakeInstanceRepo) SetStatus(_ context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[id]; ok {
		inst.Status = status
	}
	return nil
}

func (r *fakeInstanceRepo) Complete(_ context.Context, id, status, completedBy string, completedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[id]; ok {
		inst.Status = status
		inst.CompletedBy = &completedBy
		inst.CompletedAt = &completedAt
	}
	return nil
}

func (r *fakeInstanceRepo) List(_ context.Context, filter ports.InstanceFilter) ([]*models.WorkflowInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.WorkflowInstance, 0)
	for _, inst := range r.instances {
		if filter.Status != "" && inst.Status != filter.Status {
			continue
		}
		cp := *inst
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeInstanceRepo) Stats(_ context.Context) (*ports.InstanceStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &ports.InstanceStats{}
	for _, inst := range r.instances {
		stats.Total++
		switch inst.Status {
		case "pending":
			stats.Pending++
		case "approved":
			stats.Approved++
		case "rejected":
			stats.Rejected++
		case "cancelled":
			stats.Cancelled++
		case "stalled":
			stats.Stalled++
		}
	}
	return stats, nil
}

type fakeApprovalRepo struct {
	mu        sync.Mutex
	approvals map[string]*models.Approval
}

func newFakeApprovalRepo() *fakeApprovalRepo {
	return &fakeApprovalRepo{approvals: make(map[string]*models.Approval)}
}

func (r *fakeApprovalRepo) Insert(_ context.Context, a *models.Approval) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.approvals[a.ID] = &cp
	return nil
}

func (r *fakeApprovalRepo) GetByID(_ context.Context, id string) (*models.Approval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.approvals[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeApprovalRepo) SealIfPending(_ context.Context, id, newStatus, actionBy, comments string, actionAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.approvals[id]
	if !ok || a.Status != "pending" {
		return false, nil
	}
	a.Status = newStatus
	a.ActionBy = &actionBy
	a.ActionAt = &actionAt
	a.Comments = comments
	return true, nil
}

func (r *fakeApprovalRepo) Escalate(_ context.Context, id, escalatedTo string, actionAt time.Time, next *models.Approval) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.approvals[id]
	if !ok || a.Status != "pending" {
		return false, nil
	}
	a.Status = "escalated"
	a.EscalatedTo = &escalatedTo
	a.ActionAt = &actionAt
	cp := *next
	r.approvals[next.ID] = &cp
	return true, nil
}

func (r *fakeApprovalRepo) PushBackDueAt(_ context.Context, id string, dueAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.approvals[id]; ok && a.Status == "pending" {
		a.DueAt = &dueAt
	}
	return nil
}

func (r *fakeApprovalRepo) ListByInstance(_ context.Context, instanceID string) ([]*models.Approval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Approval, 0)
	for _, a := range r.approvals {
		if a.InstanceID == instanceID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StepIndex != out[j].StepIndex {
			return out[i].StepIndex < out[j].StepIndex
		}
		return out[i].EntryOrdinal < out[j].EntryOrdinal
	})
	return out, nil
}

func (r *fakeApprovalRepo) PendingByAssignee(_ context.Context, userID string) ([]*models.Approval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Approval, 0)
	for _, a := range r.approvals {
		if a.AssignedTo == userID && a.Status == "pending" {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeApprovalRepo) FindOverdue(_ context.Context, now time.Time, limit int) ([]*models.Approval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Approval, 0)
	for _, a := range r.approvals {
		if a.Status == "pending" && a.DueAt != nil && !a.DueAt.After(now) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(*out[j].DueAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeSnapshotRepo struct {
	mu        sync.Mutex
	snapshots map[string]models.FieldMap
}

func newFakeSnapshotRepo() *fakeSnapshotRepo {
	return &fakeSnapshotRepo{snapshots: make(map[string]models.FieldMap)}
}

func (r *fakeSnapshotRepo) Upsert(_ context.Context, entityType, entityID string, fields models.FieldMap) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[entityType+"/"+entityID] = fields
	return nil
}

func (r *fakeSnapshotRepo) FieldsOf(_ context.Context, entityType, entityID string) (models.FieldMap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.snapshots[entityType+"/"+entityID]; ok {
		return f, nil
	}
	return models.FieldMap{}, nil
}

type fakeDelegationRepo struct {
	mu          sync.Mutex
	delegations []*models.ApprovalDelegation
}

func (r *fakeDelegationRepo) Insert(_ context.Context, d *models.ApprovalDelegation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delegations = append(r.delegations, d)
	return nil
}

func (r *fakeDelegationRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, d := range r.delegations {
		if d.ID == id {
			r.delegations = append(r.delegations[:i], r.delegations[i+1:]...)
			break
		}
	}
	return nil
}

func (r *fakeDelegationRepo) List(_ context.Context) ([]*models.ApprovalDelegation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.ApprovalDelegation{}, r.delegations...), nil
}

func (r *fakeDelegationRepo) ActiveForDelegator(_ context.Context, delegatorID string, now time.Time) ([]*models.ApprovalDelegation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.ApprovalDelegation, 0)
	for _, d := range r.delegations {
		if d.DelegatorID == delegatorID && !now.Before(d.StartsAt) && !now.After(d.EndsAt) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *fakeDelegationRepo) ActiveForDelegatee(_ context.Context, delegateeID string, now time.Time) ([]*models.ApprovalDelegation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.ApprovalDelegation, 0)
	for _, d := range r.delegations {
		if d.DelegateeID == delegateeID && !now.Before(d.StartsAt) && !now.After(d.EndsAt) {
			out = append(out, d)
		}
	}
	return out, nil
}

// fakeMembership resolves from fixed maps; missing entries error like a
// directory miss would.
type fakeMembership struct {
	holders  map[string]string // "role/approvers" -> user id
	managers map[string]string
}

func (m *fakeMembership) HolderOf(_ context.Context, kind, id string) (string, error) {
	if u, ok := m.holders[kind+"/"+id]; ok {
		return u, nil
	}
	return "", fmt.Errorf("no holder for %s %s", kind, id)
}

func (m *fakeMembership) ManagerOf(_ context.Context, userID string) (string, error) {
	if u, ok := m.managers[userID]; ok {
		return u, nil
	}
	return "", fmt.Errorf("user %s has no manager", userID)
}

// recordingBus captures events synchronously so tests can assert on them
type recordingBus struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	Type    events.EventType
	Payload interface{}
}

func (b *recordingBus) Subscribe(events.EventType, ports.EventHandler) func() {
	return func() {}
}

func (b *recordingBus) Publish(_ context.Context, eventType events.EventType, payload interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{Type: eventType, Payload: payload})
	return nil
}

func (b *recordingBus) PublishAsync(eventType events.EventType, payload interface{}) {
	b.Publish(context.Background(), eventType, payload)
}

func (b *recordingBus) typesSeen() []events.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.EventType, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}

// failingExecutor fails a configurable number of times, then succeeds
type failingExecutor struct {
	failures int
	calls    int
}

func (e *failingExecutor) Execute(_ context.Context, _ map[string]interface{}, _ *models.WorkflowInstance, _ models.FieldMap) error {
	e.calls++
	if e.calls <= e.failures {
		return fmt.Errorf("target system unavailable")
	}
	return nil
}
