package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nexusflow/backend/internal/domain/models"
	"github.com/nexusflow/backend/internal/domain/ports"
	"github.com/nexusflow/backend/pkg/constants"
)

// ApprovalRepository persists the append-only approval log. Terminal
// transitions use compare-and-set against the pending status so that racing
// callers cannot both seal the same row.
type ApprovalRepository struct {
	db *sql.DB
	tm *TransactionManager
}

// NewApprovalRepository creates a new ApprovalRepository
func NewApprovalRepository(db *sql.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db, tm: NewTransactionManager(db)}
}

var _ ports.ApprovalRepository = (*ApprovalRepository)(nil)

const approvalColumns = "id, instance_id, step_index, entry_ordinal, step_name, assigned_to, status, action_by, action_at, comments, delegated_to, escalated_to, due_at, created_at"

// Insert appends a new approval entry
func (r *ApprovalRepository) Insert(ctx context.Context, a *models.Approval) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		constants.TableApproval, approvalColumns)

	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.InstanceID, a.StepIndex, a.EntryOrdinal, a.StepName, a.AssignedTo,
		a.Status, a.ActionBy, a.ActionAt, a.Comments, a.DelegatedTo, a.EscalatedTo,
		a.DueAt, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert approval: %w", err)
	}
	return nil
}

// GetByID retrieves an approval entry by ID
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*models.Approval, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", approvalColumns, constants.TableApproval)
	a, err := r.scanRow(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// SealIfPending atomically moves a pending approval to a terminal status.
// Returns false when another caller already sealed the row.
func (r *ApprovalRepository) SealIfPending(ctx context.Context, id, newStatus, actionBy, comments string, actionAt time.Time) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET status = ?, action_by = ?, action_at = ?, comments = ?
		WHERE id = ? AND status = '%s'`,
		constants.TableApproval, constants.ApprovalStatusPending)

	result, err := r.db.ExecContext(ctx, query, newStatus, actionBy, actionAt, comments, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Escalate atomically flips a pending row to escalated and appends the
// successor entry in one transaction, so a crash cannot leave a sealed row
// without its replacement. Returns false when the row was no longer pending;
// the concurrent decision wins and no successor is written.
func (r *ApprovalRepository) Escalate(ctx context.Context, id, escalatedTo string, actionAt time.Time, next *models.Approval) (bool, error) {
	flip := fmt.Sprintf(`
		UPDATE %s SET status = '%s', escalated_to = ?, action_at = ?
		WHERE id = ? AND status = '%s'`,
		constants.TableApproval, constants.ApprovalStatusEscalated, constants.ApprovalStatusPending)
	insert := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		constants.TableApproval, approvalColumns)

	escalated := false
	err := r.tm.WithRetry(func(tx *sql.Tx) error {
		escalated = false
		result, err := tx.ExecContext(ctx, flip, escalatedTo, actionAt, id)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, insert,
			next.ID, next.InstanceID, next.StepIndex, next.EntryOrdinal, next.StepName,
			next.AssignedTo, next.Status, next.ActionBy, next.ActionAt, next.Comments,
			next.DelegatedTo, next.EscalatedTo, next.DueAt, next.CreatedAt); err != nil {
			return err
		}
		escalated = true
		return nil
	}, 3)
	if err != nil {
		return false, err
	}
	return escalated, nil
}

// PushBackDueAt re-arms an overdue approval without escalating it. Guarded on
// pending status so a concurrent decision wins.
func (r *ApprovalRepository) PushBackDueAt(ctx context.Context, id string, dueAt time.Time) error {
	query := fmt.Sprintf("UPDATE %s SET due_at = ? WHERE id = ? AND status = '%s'",
		constants.TableApproval, constants.ApprovalStatusPending)
	_, err := r.db.ExecContext(ctx, query, dueAt, id)
	return err
}

// ListByInstance returns the full approval history of an instance in append
// order.
func (r *ApprovalRepository) ListByInstance(ctx context.Context, instanceID string) ([]*models.Approval, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE instance_id = ?
		ORDER BY step_index ASC, entry_ordinal ASC, created_at ASC`,
		approvalColumns, constants.TableApproval)
	return r.queryMany(ctx, query, instanceID)
}

// PendingByAssignee returns pending approvals for a user, urgent instances
// first, then oldest first.
func (r *ApprovalRepository) PendingByAssignee(ctx context.Context, userID string) ([]*models.Approval, error) {
	cols := "a." + strings.ReplaceAll(approvalColumns, ", ", ", a.")
	query := fmt.Sprintf(`
		SELECT %s FROM %s a
		JOIN %s i ON i.id = a.instance_id
		WHERE a.assigned_to = ? AND a.status = '%s'
		ORDER BY FIELD(i.priority, '%s', '%s', '%s', '%s'), a.created_at ASC`,
		cols, constants.TableApproval, constants.TableInstance,
		constants.ApprovalStatusPending,
		constants.PriorityUrgent, constants.PriorityHigh,
		constants.PriorityNormal, constants.PriorityLow)
	return r.queryMany(ctx, query, userID)
}

// FindOverdue returns pending approvals whose due_at has passed, oldest due
// first. The sweep processes them in batches.
func (r *ApprovalRepository) FindOverdue(ctx context.Context, now time.Time, limit int) ([]*models.Approval, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE status = '%s' AND due_at IS NOT NULL AND due_at <= ?
		ORDER BY due_at ASC
		LIMIT ?`,
		approvalColumns, constants.TableApproval, constants.ApprovalStatusPending)
	return r.queryMany(ctx, query, now, limit)
}

func (r *ApprovalRepository) queryMany(ctx context.Context, query string, args ...interface{}) ([]*models.Approval, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	approvals := make([]*models.Approval, 0)
	for rows.Next() {
		a, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}

func (r *ApprovalRepository) scanRow(row rowScanner) (*models.Approval, error) {
	var a models.Approval
	var actionBy, comments, delegatedTo, escalatedTo sql.NullString
	var actionAt, dueAt sql.NullTime

	if err := row.Scan(&a.ID, &a.InstanceID, &a.StepIndex, &a.EntryOrdinal, &a.StepName,
		&a.AssignedTo, &a.Status, &actionBy, &actionAt, &comments,
		&delegatedTo, &escalatedTo, &dueAt, &a.CreatedAt); err != nil {
		return nil, err
	}

	if actionBy.Valid {
		s := actionBy.String
		a.ActionBy = &s
	}
	if actionAt.Valid {
		t := actionAt.Time
		a.ActionAt = &t
	}
	a.Comments = comments.String
	if delegatedTo.Valid {
		s := delegatedTo.String
		a.DelegatedTo = &s
	}
	if escalatedTo.Valid {
		s := escalatedTo.String
		a.EscalatedTo = &s
	}
	if dueAt.Valid {
		t := dueAt.Time
		a.DueAt = &t
	}
	return &a, nil
}
