package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/nexusflow/backend/internal/domain/models"
	"github.com/nexusflow/backend/internal/domain/ports"
	"github.com/nexusflow/backend/pkg/constants"
	apperrors "github.com/nexusflow/backend/pkg/errors"
)

// InstanceRepository persists workflow instances.
type InstanceRepository struct {
	db *sql.DB
}

// NewInstanceRepository creates a new InstanceRepository
func NewInstanceRepository(db *sql.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

var _ ports.InstanceRepository = (*InstanceRepository)(nil)

const instanceColumns = "id, code, template_id, entity_type, entity_id, current_step_index, status, priority, requested_by, requested_at, completed_at, completed_by, created_at, updated_at"

// Insert creates a new instance row
func (r *InstanceRepository) Insert(ctx context.Context, inst *models.WorkflowInstance) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		constants.TableInstance, instanceColumns)

	_, err := r.db.ExecContext(ctx, query,
		inst.ID, inst.Code, inst.TemplateID, inst.EntityType, inst.EntityID,
		inst.CurrentStepIndex, inst.Status, inst.Priority, inst.RequestedBy,
		inst.RequestedAt, inst.CompletedAt, inst.CompletedBy, inst.CreatedAt, inst.UpdatedAt)
	if err != nil {
		// The unique open_guard key rejects a second open instance for the
		// entity when two starts race past the service-level check.
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == duplicateKeyErrNo {
			return apperrors.NewDuplicateOpenInstanceError(inst.EntityType, inst.EntityID)
		}
		return fmt.Errorf("failed to insert instance: %w", err)
	}
	return nil
}

// MySQL ER_DUP_ENTRY
const duplicateKeyErrNo = 1062

// GetByID retrieves an instance by ID
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", instanceColumns, constants.TableInstance)
	inst, err := r.scanRow(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return inst, err
}

// FindOpenByEntity returns the open (pending or stalled) instance for an
// entity, or nil. The open-instance invariant allows at most one.
func (r *InstanceRepository) FindOpenByEntity(ctx context.Context, entityType, entityID string) (*models.WorkflowInstance, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE entity_type = ? AND entity_id = ? AND status IN ('%s', '%s')
		LIMIT 1`,
		instanceColumns, constants.TableInstance,
		constants.InstanceStatusPending, constants.InstanceStatusStalled)

	inst, err := r.scanRow(r.db.QueryRowContext(ctx, query, entityType, entityID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return inst, err
}

// AdvanceStep moves the instance pointer to the given step index
func (r *InstanceRepository) AdvanceStep(ctx context.Context, id string, stepIndex int) error {
	query := fmt.Sprintf("UPDATE %s SET current_step_index = ?, updated_at = ? WHERE id = ?", constants.TableInstance)
	_, err := r.db.ExecContext(ctx, query, stepIndex, time.Now().UTC(), id)
	return err
}

// SetStatus updates the instance status (pending <-> stalled)
func (r *InstanceRepository) SetStatus(ctx context.Context, id, status string) error {
	query := fmt.Sprintf("UPDATE %s SET status = ?, updated_at = ? WHERE id = ?", constants.TableInstance)
	_, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	return err
}

// Complete seals the instance in a terminal status
func (r *InstanceRepository) Complete(ctx context.Context, id, status, completedBy string, completedAt time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s SET status = ?, completed_at = ?, completed_by = ?, updated_at = ?
		WHERE id = ?`, constants.TableInstance)
	_, err := r.db.ExecContext(ctx, query, status, completedAt, completedBy, time.Now().UTC(), id)
	return err
}

// List retrieves instances matching the filter, newest first
func (r *InstanceRepository) List(ctx context.Context, filter ports.InstanceFilter) ([]*models.WorkflowInstance, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.EntityType != "" {
		conditions = append(conditions, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if filter.RequestedBy != "" {
		conditions = append(conditions, "requested_by = ?")
		args = append(args, filter.RequestedBy)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY created_at DESC LIMIT ? OFFSET ?",
		instanceColumns, constants.TableInstance, strings.Join(conditions, " AND "))
	args = append(args, limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	instances := make([]*models.WorkflowInstance, 0)
	for rows.Next() {
		inst, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// Stats aggregates instance counts by status
func (r *InstanceRepository) Stats(ctx context.Context) (*ports.InstanceStats, error) {
	query := fmt.Sprintf(`
		SELECT
			COUNT(*),
			SUM(status = '%s'),
			SUM(status = '%s'),
			SUM(status = '%s'),
			SUM(status = '%s'),
			SUM(status = '%s')
		FROM %s`,
		constants.InstanceStatusPending, constants.InstanceStatusApproved,
		constants.InstanceStatusRejected, constants.InstanceStatusCancelled,
		constants.InstanceStatusStalled, constants.TableInstance)

	var stats ports.InstanceStats
	var pending, approved, rejected, cancelled, stalled sql.NullInt64
	err := r.db.QueryRowContext(ctx, query).Scan(&stats.Total, &pending, &approved, &rejected, &cancelled, &stalled)
	if err != nil {
		return nil, err
	}
	stats.Pending = int(pending.Int64)
	stats.Approved = int(approved.Int64)
	stats.Rejected = int(rejected.Int64)
	stats.Cancelled = int(cancelled.Int64)
	stats.Stalled = int(stalled.Int64)
	return &stats, nil
}

func (r *InstanceRepository) scanRow(row rowScanner) (*models.WorkflowInstance, error) {
	var inst models.WorkflowInstance
	var completedAt sql.NullTime
	var completedBy sql.NullString

	if err := row.Scan(&inst.ID, &inst.Code, &inst.TemplateID, &inst.EntityType, &inst.EntityID,
		&inst.CurrentStepIndex, &inst.Status, &inst.Priority, &inst.RequestedBy,
		&inst.RequestedAt, &completedAt, &completedBy, &inst.CreatedAt, &inst.UpdatedAt); err != nil {
		return nil, err
	}

	if completedAt.Valid {
		t := completedAt.Time
		inst.CompletedAt = &t
	}
	if completedBy.Valid {
		s := completedBy.String
		inst.CompletedBy = &s
	}
	return &inst, nil
}
