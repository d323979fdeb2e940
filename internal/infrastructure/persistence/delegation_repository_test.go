package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestActiveForDelegatee(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewDelegationRepository(db)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "delegator_id", "delegatee_id", "entity_types",
		"starts_at", "ends_at", "created_by", "created_at",
	}).AddRow("del-1", "mgr-1", "bob", `["expense"]`,
		now.Add(-time.Hour), now.Add(time.Hour), "admin-1", now)

	mock.ExpectQuery("SELECT (.+) FROM approval_delegations").
		WithArgs("bob", now, now).
		WillReturnRows(rows)

	out, err := repo.ActiveForDelegatee(context.Background(), "bob", now)
	assert.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, "mgr-1", out[0].DelegatorID)
	assert.Equal(t, []string{"expense"}, out[0].EntityTypes)
}
