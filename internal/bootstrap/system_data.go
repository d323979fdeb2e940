package bootstrap

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/nexusflow/backend/internal/domain/models"
	"github.com/nexusflow/backend/internal/domain/ports"
	"github.com/nexusflow/backend/pkg/auth"
	"github.com/nexusflow/backend/pkg/constants"
)

const defaultAdminEmail = "admin@nexusflow.local"

// InitializeSystemData ensures the system actor and a bootstrap admin exist.
// Called during startup BEFORE accepting requests.
func InitializeSystemData(ctx context.Context, users ports.UserRepository) error {
	log.Println("🔧 Initializing system data...")

	if err := ensureSystemUser(ctx, users); err != nil {
		return err
	}
	if err := ensureAdminUser(ctx, users); err != nil {
		return err
	}
	return nil
}

// ensureSystemUser creates the inactive synthetic actor used as action_by on
// auto-approved steps. Inactive so it can never log in or receive assignments.
func ensureSystemUser(ctx context.Context, users ports.UserRepository) error {
	existing, err := users.GetByID(ctx, constants.SystemUserID)
	if err != nil {
		return fmt.Errorf("check system user: %w", err)
	}
	if existing != nil {
		return nil
	}

	system := &models.User{
		ID:           constants.SystemUserID,
		Name:         "System",
		Email:        "system@nexusflow.local",
		PasswordHash: "!",
		IsAdmin:      false,
		IsActive:     false,
		CreatedAt:    time.Now().UTC(),
	}
	if err := users.Insert(ctx, system); err != nil {
		return fmt.Errorf("create system user: %w", err)
	}
	log.Println("   ✅ Created system user")
	return nil
}

// ensureAdminUser seeds an initial admin when no admin exists yet.
// The password comes from ADMIN_PASSWORD, defaulting to a dev-only value.
func ensureAdminUser(ctx context.Context, users ports.UserRepository) error {
	existing, err := users.GetByEmail(ctx, defaultAdminEmail)
	if err != nil {
		return fmt.Errorf("check admin user: %w", err)
	}
	if existing != nil {
		return nil
	}

	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "admin123"
		log.Println("⚠️  ADMIN_PASSWORD not set, using default dev password")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	admin := &models.User{
		ID:           uuid.New().String(),
		Name:         "Administrator",
		Email:        defaultAdminEmail,
		PasswordHash: hash,
		IsAdmin:      true,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := users.Insert(ctx, admin); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	log.Printf("   ✅ Created admin user %s", defaultAdminEmail)
	return nil
}
