package bootstrap

import (
	"context"
	"fmt"
	"log"

	"github.com/nexusflow/backend/internal/infrastructure/database"
	"github.com/nexusflow/backend/pkg/constants"
)

// tableDDL holds the CREATE TABLE statement for each engine table,
// keyed by table name so startup logs name what failed.
var tableDDL = map[string]string{
	constants.TableTemplate: `CREATE TABLE IF NOT EXISTS %s (
		id VARCHAR(64) PRIMARY KEY,
		code VARCHAR(64) NOT NULL,
		name VARCHAR(255) NOT NULL,
		description TEXT,
		entity_type VARCHAR(64) NOT NULL,
		version INT NOT NULL DEFAULT 1,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		steps JSON NOT NULL,
		created_by VARCHAR(64),
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		INDEX idx_template_entity_active (entity_type, is_active),
		INDEX idx_template_code (code)
	)`,

	constants.TableInstance: `CREATE TABLE IF NOT EXISTS %s (
		id VARCHAR(64) PRIMARY KEY,
		code VARCHAR(64) NOT NULL,
		template_id VARCHAR(64) NOT NULL,
		entity_type VARCHAR(64) NOT NULL,
		entity_id VARCHAR(64) NOT NULL,
		current_step_index INT NOT NULL DEFAULT 0,
		status VARCHAR(32) NOT NULL,
		priority VARCHAR(16) NOT NULL DEFAULT 'normal',
		requested_by VARCHAR(64) NOT NULL,
		requested_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP NULL,
		completed_by VARCHAR(64),
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		open_guard VARCHAR(64) AS (CASE WHEN status IN ('pending', 'stalled') THEN 'open' ELSE id END) STORED,
		UNIQUE KEY uq_instance_open (entity_type, entity_id, open_guard),
		INDEX idx_instance_entity (entity_type, entity_id, status),
		INDEX idx_instance_status (status),
		INDEX idx_instance_requester (requested_by)
	)`,

	constants.TableApproval: `CREATE TABLE IF NOT EXISTS %s (
		id VARCHAR(64) PRIMARY KEY,
		instance_id VARCHAR(64) NOT NULL,
		step_index INT NOT NULL,
		entry_ordinal INT NOT NULL DEFAULT 0,
		step_name VARCHAR(255) NOT NULL,
		assigned_to VARCHAR(64) NOT NULL,
		status VARCHAR(32) NOT NULL,
		action_by VARCHAR(64),
		action_at TIMESTAMP NULL,
		comments TEXT,
		delegated_to VARCHAR(64),
		escalated_to VARCHAR(64),
		due_at TIMESTAMP NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_approval_instance (instance_id, step_index),
		INDEX idx_approval_assignee (assigned_to, status),
		INDEX idx_approval_due (status, due_at)
	)`,

	constants.TableDelegation: `CREATE TABLE IF NOT EXISTS %s (
		id VARCHAR(64) PRIMARY KEY,
		delegator_id VARCHAR(64) NOT NULL,
		delegatee_id VARCHAR(64) NOT NULL,
		entity_types JSON,
		starts_at TIMESTAMP NOT NULL,
		ends_at TIMESTAMP NOT NULL,
		created_by VARCHAR(64),
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_delegation_delegator (delegator_id, starts_at, ends_at)
	)`,

	constants.TableUser: `CREATE TABLE IF NOT EXISTS %s (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		manager_id VARCHAR(64),
		role_id VARCHAR(64),
		department_id VARCHAR(64),
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_user_role (role_id, is_active),
		INDEX idx_user_department (department_id, is_active)
	)`,

	constants.TableSnapshot: `CREATE TABLE IF NOT EXISTS %s (
		entity_type VARCHAR(64) NOT NULL,
		entity_id VARCHAR(64) NOT NULL,
		fields JSON NOT NULL,
		captured_at TIMESTAMP NOT NULL,
		PRIMARY KEY (entity_type, entity_id)
	)`,

	constants.TableNotification: `CREATE TABLE IF NOT EXISTS %s (
		id VARCHAR(64) PRIMARY KEY,
		recipient_id VARCHAR(64) NOT NULL,
		title VARCHAR(255) NOT NULL,
		body TEXT,
		event_type VARCHAR(64) NOT NULL,
		instance_id VARCHAR(64),
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_notification_recipient (recipient_id, is_read)
	)`,
}

// creation order keeps foreign-key-like references readable in logs
var tableOrder = []string{
	constants.TableUser,
	constants.TableTemplate,
	constants.TableInstance,
	constants.TableApproval,
	constants.TableDelegation,
	constants.TableSnapshot,
	constants.TableNotification,
}

// InitializeSchema creates the engine tables if they do not exist yet
func InitializeSchema(ctx context.Context, db *database.Connection) error {
	log.Println("🔧 Initializing workflow schema...")

	for _, name := range tableOrder {
		ddl, ok := tableDDL[name]
		if !ok {
			return fmt.Errorf("no DDL registered for table %s", name)
		}
		if _, err := db.ExecContext(ctx, fmt.Sprintf(ddl, name)); err != nil {
			log.Printf("⚠️  Failed to create table %s: %v", name, err)
			return fmt.Errorf("create table %s: %w", name, err)
		}
	}

	log.Printf("✅ Schema ready (%d tables)", len(tableOrder))
	return nil
}
