package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nexusflow/backend/internal/domain/models"
	"github.com/nexusflow/backend/internal/domain/ports"
	"github.com/nexusflow/backend/pkg/constants"
)

// UserRepository backs authentication and the default membership lookup
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

var _ ports.UserRepository = (*UserRepository)(nil)

const userColumns = "id, name, email, password_hash, manager_id, role_id, department_id, is_admin, is_active, created_at"

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", userColumns, constants.TableUser)
	u, err := r.scanRow(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE email = ?", userColumns, constants.TableUser)
	u, err := r.scanRow(r.db.QueryRowContext(ctx, query, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// FirstActiveByRole returns the longest-tenured active holder of a role
func (r *UserRepository) FirstActiveByRole(ctx context.Context, roleID string) (*models.User, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE role_id = ? AND is_active = true
		ORDER BY created_at ASC LIMIT 1`, userColumns, constants.TableUser)
	u, err := r.scanRow(r.db.QueryRowContext(ctx, query, roleID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// FirstActiveByDepartment returns the longest-tenured active member of a
// department
func (r *UserRepository) FirstActiveByDepartment(ctx context.Context, departmentID string) (*models.User, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE department_id = ? AND is_active = true
		ORDER BY created_at ASC LIMIT 1`, userColumns, constants.TableUser)
	u, err := r.scanRow(r.db.QueryRowContext(ctx, query, departmentID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// Insert creates a new user
func (r *UserRepository) Insert(ctx context.Context, u *models.User) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		constants.TableUser, userColumns)

	_, err := r.db.ExecContext(ctx, query,
		u.ID, u.Name, u.Email, u.PasswordHash, u.ManagerID, u.RoleID,
		u.DepartmentID, u.IsAdmin, u.IsActive, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// Count returns the number of users
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", constants.TableUser)
	var count int
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	return count, err
}

func (r *UserRepository) scanRow(row rowScanner) (*models.User, error) {
	var u models.User
	var managerID, roleID, departmentID sql.NullString

	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash,
		&managerID, &roleID, &departmentID, &u.IsAdmin, &u.IsActive, &u.CreatedAt); err != nil {
		return nil, err
	}

	if managerID.Valid {
		s := managerID.String
		u.ManagerID = &s
	}
	if roleID.Valid {
		s := roleID.String
		u.RoleID = &s
	}
	if departmentID.Valid {
		s := departmentID.String
		u.DepartmentID = &s
	}
	return &u, nil
}
