package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nexusflow/backend/internal/domain/models"
	"github.com/nexusflow/backend/internal/domain/ports"
	"github.com/nexusflow/backend/pkg/constants"
)

// DelegationRepository persists delegation windows
type DelegationRepository struct {
	db *sql.DB
}

// NewDelegationRepository creates a new DelegationRepository
func NewDelegationRepository(db *sql.DB) *DelegationRepository {
	return &DelegationRepository{db: db}
}

var _ ports.DelegationRepository = (*DelegationRepository)(nil)

const delegationColumns = "id, delegator_id, delegatee_id, entity_types, starts_at, ends_at, created_by, created_at"

// Insert creates a new delegation window
func (r *DelegationRepository) Insert(ctx context.Context, d *models.ApprovalDelegation) error {
	entityTypes, err := json.Marshal(d.EntityTypes)
	if err != nil {
		return fmt.Errorf("failed to marshal entity types: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		constants.TableDelegation, delegationColumns)

	_, err = r.db.ExecContext(ctx, query,
		d.ID, d.DelegatorID, d.DelegateeID, string(entityTypes),
		d.StartsAt, d.EndsAt, d.CreatedBy, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert delegation: %w", err)
	}
	return nil
}

// Delete removes a delegation window
func (r *DelegationRepository) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", constants.TableDelegation)
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// List returns all delegation windows, newest first
func (r *DelegationRepository) List(ctx context.Context) ([]*models.ApprovalDelegation, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY created_at DESC", delegationColumns, constants.TableDelegation)
	return r.queryMany(ctx, query)
}

// ActiveForDelegator returns delegation windows covering the given time for
// one delegator. Entity type scoping happens in the resolver.
func (r *DelegationRepository) ActiveForDelegator(ctx context.Context, delegatorID string, now time.Time) ([]*models.ApprovalDelegation, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE delegator_id = ? AND starts_at <= ? AND ends_at >= ?
		ORDER BY created_at ASC`,
		delegationColumns, constants.TableDelegation)
	return r.queryMany(ctx, query, delegatorID, now, now)
}

// ActiveForDelegatee returns delegation windows covering the given time
// where the user is the delegatee. The pending queue uses this to surface
// rows assigned to delegators.
func (r *DelegationRepository) ActiveForDelegatee(ctx context.Context, delegateeID string, now time.Time) ([]*models.ApprovalDelegation, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE delegatee_id = ? AND starts_at <= ? AND ends_at >= ?
		ORDER BY created_at ASC`,
		delegationColumns, constants.TableDelegation)
	return r.queryMany(ctx, query, delegateeID, now, now)
}

func (r *DelegationRepository) queryMany(ctx context.Context, query string, args ...interface{}) ([]*models.ApprovalDelegation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	delegations := make([]*models.ApprovalDelegation, 0)
	for rows.Next() {
		d, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		delegations = append(delegations, d)
	}
	return delegations, rows.Err()
}

func (r *DelegationRepository) scanRow(row rowScanner) (*models.ApprovalDelegation, error) {
	var d models.ApprovalDelegation
	var entityTypes sql.NullString
	var createdBy sql.NullString

	if err := row.Scan(&d.ID, &d.DelegatorID, &d.DelegateeID, &entityTypes,
		&d.StartsAt, &d.EndsAt, &createdBy, &d.CreatedAt); err != nil {
		return nil, err
	}

	if entityTypes.Valid && entityTypes.String != "" {
		if err := json.Unmarshal([]byte(entityTypes.String), &d.EntityTypes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entity types: %w", err)
		}
	}
	d.CreatedBy = createdBy.String
	return &d, nil
}
