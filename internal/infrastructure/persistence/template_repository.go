package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nexusflow/backend/internal/domain/models"
	"github.com/nexusflow/backend/internal/domain/ports"
	"github.com/nexusflow/backend/pkg/constants"
)

// TemplateRepository persists workflow templates. The ordered step list is
// stored as a JSON column; it is validated before it ever reaches this layer.
type TemplateRepository struct {
	db *sql.DB
}

// NewTemplateRepository creates a new TemplateRepository
func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

var _ ports.TemplateRepository = (*TemplateRepository)(nil)

const templateColumns = "id, code, name, description, entity_type, version, is_active, steps, created_by, created_at, updated_at"

// Insert creates a new template version row
func (r *TemplateRepository) Insert(ctx context.Context, t *models.WorkflowTemplate) error {
	stepsJSON, err := json.Marshal(t.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal template steps: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		constants.TableTemplate, templateColumns)

	_, err = r.db.ExecContext(ctx, query,
		t.ID, t.Code, t.Name, t.Description, t.EntityType, t.Version, t.IsActive,
		string(stepsJSON), t.CreatedBy, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert template: %w", err)
	}
	return nil
}

// GetByID retrieves a template by ID
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", templateColumns, constants.TableTemplate)
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// List retrieves templates matching the filter, newest first
func (r *TemplateRepository) List(ctx context.Context, filter ports.TemplateFilter) ([]*models.WorkflowTemplate, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Search != "" {
		conditions = append(conditions, "name LIKE ?")
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.EntityType != "" {
		conditions = append(conditions, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "is_active = true")
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY created_at DESC",
		templateColumns, constants.TableTemplate, strings.Join(conditions, " AND "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := make([]*models.WorkflowTemplate, 0)
	for rows.Next() {
		t, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// Update rewrites an unused template version in place. Version, code and
// entity type never change here; versioned edits go through Insert.
func (r *TemplateRepository) Update(ctx context.Context, t *models.WorkflowTemplate) error {
	stepsJSON, err := json.Marshal(t.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal template steps: %w", err)
	}

	query := fmt.Sprintf(`
		UPDATE %s SET name = ?, description = ?, steps = ?, updated_at = ?
		WHERE id = ?`, constants.TableTemplate)

	_, err = r.db.ExecContext(ctx, query, t.Name, t.Description, string(stepsJSON), t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	return nil
}

// Deactivate marks a template version inactive. The row itself is never
// mutated beyond this flag; edits create a new version.
func (r *TemplateRepository) Deactivate(ctx context.Context, id string) error {
	query := fmt.Sprintf("UPDATE %s SET is_active = false, updated_at = NOW() WHERE id = ?", constants.TableTemplate)
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// HasInstances reports whether any instance ever referenced this template version
func (r *TemplateRepository) HasInstances(ctx context.Context, templateID string) (bool, error) {
	var exists bool
	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE template_id = ?)", constants.TableInstance)
	err := r.db.QueryRowContext(ctx, query, templateID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *TemplateRepository) scanOne(row *sql.Row) (*models.WorkflowTemplate, error) {
	t, err := r.scanRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (r *TemplateRepository) scanRow(row rowScanner) (*models.WorkflowTemplate, error) {
	var t models.WorkflowTemplate
	var description sql.NullString
	var stepsJSON string

	if err := row.Scan(&t.ID, &t.Code, &t.Name, &description, &t.EntityType, &t.Version,
		&t.IsActive, &stepsJSON, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}

	t.Description = description.String
	if err := json.Unmarshal([]byte(stepsJSON), &t.Steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps for template %s: %w", t.ID, err)
	}
	return &t, nil
}
