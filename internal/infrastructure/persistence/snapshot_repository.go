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

// SnapshotRepository stores the entity field snapshot captured when a
// workflow starts, so every later step entry evaluates against the same view.
type SnapshotRepository struct {
	db *sql.DB
}

// NewSnapshotRepository creates a new SnapshotRepository
func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

var _ ports.SnapshotRepository = (*SnapshotRepository)(nil)

// Upsert writes the snapshot for an entity, replacing any previous one
func (r *SnapshotRepository) Upsert(ctx context.Context, entityType, entityID string, fields models.FieldMap) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (entity_type, entity_id, fields, captured_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE fields = VALUES(fields), captured_at = VALUES(captured_at)`,
		constants.TableSnapshot)

	_, err = r.db.ExecContext(ctx, query, entityType, entityID, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

// FieldsOf reads the stored snapshot. A missing snapshot is an empty map,
// not an error: conditions over it simply never match.
func (r *SnapshotRepository) FieldsOf(ctx context.Context, entityType, entityID string) (models.FieldMap, error) {
	query := fmt.Sprintf("SELECT fields FROM %s WHERE entity_type = ? AND entity_id = ?", constants.TableSnapshot)

	var data string
	err := r.db.QueryRowContext(ctx, query, entityType, entityID).Scan(&data)
	if err == sql.ErrNoRows {
		return models.FieldMap{}, nil
	}
	if err != nil {
		return nil, err
	}

	fields := models.FieldMap{}
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return fields, nil
}
