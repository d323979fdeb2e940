package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"

	"github.com/nexusflow/backend/internal/domain/models"
	apperrors "github.com/nexusflow/backend/pkg/errors"
)

func TestFindOpenByEntity(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewInstanceRepository(db)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "code", "template_id", "entity_type", "entity_id", "current_step_index",
		"status", "priority", "requested_by", "requested_at", "completed_at",
		"completed_by", "created_at", "updated_at",
	}).AddRow("wf-1", "WF-20260831-0001", "tpl-1", "expense", "exp-9", 1,
		"pending", "normal", "user-1", now, nil, nil, now, now)

	mock.ExpectQuery("SELECT (.+) FROM workflow_instances").
		WithArgs("expense", "exp-9").
		WillReturnRows(rows)

	inst, err := repo.FindOpenByEntity(context.Background(), "expense", "exp-9")
	assert.NoError(t, err)
	assert.NotNil(t, inst)
	assert.Equal(t, "wf-1", inst.ID)
	assert.True(t, inst.IsOpen())
	assert.Nil(t, inst.CompletedAt)
}

func TestFindOpenByEntityNone(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewInstanceRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM workflow_instances").
		WithArgs("expense", "exp-9").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	inst, err := repo.FindOpenByEntity(context.Background(), "expense", "exp-9")
	assert.NoError(t, err)
	assert.Nil(t, inst)
}

func TestInstanceStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewInstanceRepository(db)

	rows := sqlmock.NewRows([]string{"total", "pending", "approved", "rejected", "cancelled", "stalled"}).
		AddRow(10, 3, 4, 1, 1, 1)

	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	stats, err := repo.Stats(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 10, stats.Total)
	assert.Equal(t, 3, stats.Pending)
	assert.Equal(t, 1, stats.Stalled)
}

func TestInsertMapsDuplicateOpenInstance(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewInstanceRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO workflow_instances").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'expense-exp-9-open' for key 'uq_instance_open'"})

	err = repo.Insert(context.Background(), &models.WorkflowInstance{
		ID: "wf-2", Code: "WF-20260831-0002", TemplateID: "tpl-1",
		EntityType: "expense", EntityID: "exp-9",
		Status: "pending", Priority: "normal", RequestedBy: "user-2",
		RequestedAt: now, CreatedAt: now, UpdatedAt: now,
	})
	assert.True(t, apperrors.IsDuplicateOpenInstance(err))
}
