package db

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leavedesk/internal/domain/auth"
	"leavedesk/internal/domain/leave"
	"leavedesk/internal/platform/config"
)

// SeedAccount is a login created on first start when it does not exist.
type SeedAccount struct {
	Role     string
	Name     string
	Email    string
	Password string
}

// SeedPlan is everything Seed writes for the bootstrap tenant.
type SeedPlan struct {
	TenantName string
	Settings   leave.Settings
	Accounts   []SeedAccount
}

// PlanFromConfig builds the bootstrap plan. Accounts missing an email or a
// password are left out.
func PlanFromConfig(cfg config.Config) SeedPlan {
	plan := SeedPlan{
		TenantName: strings.TrimSpace(cfg.SeedTenantName),
		Settings: leave.Settings{
			LeavesPerMonth:    cfg.LeavePerMonth,
			MaxCarryForward:   cfg.LeaveMaxCarryForward,
			MaxLeavesPerMonth: cfg.LeaveMaxPerMonth,
			GPSCheckinEnabled: cfg.GPSCheckinEnabled,
		}.Normalize(),
	}
	candidates := []SeedAccount{
		{Role: auth.RoleHR, Name: "HR Admin", Email: cfg.SeedAdminEmail, Password: cfg.SeedAdminPassword},
		{Role: auth.RoleSystemAdmin, Name: "System Admin", Email: cfg.SeedSystemAdminEmail, Password: cfg.SeedSystemAdminPassword},
	}
	for _, acct := range candidates {
		acct.Email = strings.ToLower(strings.TrimSpace(acct.Email))
		if acct.Email == "" || strings.TrimSpace(acct.Password) == "" {
			continue
		}
		plan.Accounts = append(plan.Accounts, acct)
	}
	return plan
}

// Seed applies PlanFromConfig(cfg) in one transaction. Every statement is
// an upsert or insert-if-missing, so it runs on every start.
func Seed(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	plan := PlanFromConfig(cfg)
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return applySeed(ctx, tx, plan)
	})
}

func applySeed(ctx context.Context, tx pgx.Tx, plan SeedPlan) error {
	var tenantID string
	err := tx.QueryRow(ctx, `
    INSERT INTO tenants (name) VALUES ($1)
    ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
    RETURNING id
  `, plan.TenantName).Scan(&tenantID)
	if err != nil {
		return fmt.Errorf("seed tenant: %w", err)
	}

	if _, err := tx.Exec(ctx, `
    INSERT INTO permissions (key) SELECT unnest($1::text[])
    ON CONFLICT (key) DO NOTHING
  `, auth.DefaultPermissions); err != nil {
		return fmt.Errorf("seed permissions: %w", err)
	}

	roleIDs := make(map[string]string, len(auth.RolePermissions))
	for _, role := range roleNames() {
		var roleID string
		err := tx.QueryRow(ctx, `
      INSERT INTO roles (tenant_id, name) VALUES ($1, $2)
      ON CONFLICT (tenant_id, name) DO UPDATE SET name = EXCLUDED.name
      RETURNING id
    `, tenantID, role).Scan(&roleID)
		if err != nil {
			return fmt.Errorf("seed role %s: %w", role, err)
		}
		roleIDs[role] = roleID

		if _, err := tx.Exec(ctx, `
      INSERT INTO role_permissions (role_id, permission_id)
      SELECT $1, p.id FROM permissions p WHERE p.key = ANY($2::text[])
      ON CONFLICT DO NOTHING
    `, roleID, auth.RolePermissions[role]); err != nil {
			return fmt.Errorf("grant %s permissions: %w", role, err)
		}
	}

	if _, err := tx.Exec(ctx, `
    INSERT INTO leave_settings (tenant_id, leaves_per_month, max_carry_forward, max_leaves_per_month, gps_checkin_enabled)
    VALUES ($1, $2, $3, $4, $5)
    ON CONFLICT (tenant_id) DO NOTHING
  `, tenantID, plan.Settings.LeavesPerMonth, plan.Settings.MaxCarryForward, plan.Settings.MaxLeavesPerMonth, plan.Settings.GPSCheckinEnabled); err != nil {
		return fmt.Errorf("seed leave settings: %w", err)
	}

	if _, err := tx.Exec(ctx, `
    INSERT INTO institution_calendars (tenant_id, weekly_off_rule)
    VALUES ($1, $2)
    ON CONFLICT (tenant_id) DO NOTHING
  `, tenantID, leave.DefaultWeeklyOffRule); err != nil {
		return fmt.Errorf("seed calendar: %w", err)
	}

	for _, acct := range plan.Accounts {
		if err := seedAccount(ctx, tx, tenantID, roleIDs[acct.Role], acct); err != nil {
			return err
		}
	}
	return nil
}

// seedAccount only hashes the password when the account is missing.
func seedAccount(ctx context.Context, tx pgx.Tx, tenantID, roleID string, acct SeedAccount) error {
	var exists bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE tenant_id = $1 AND email = $2)", tenantID, acct.Email).Scan(&exists); err != nil {
		return fmt.Errorf("look up %s: %w", acct.Email, err)
	}
	if exists {
		return nil
	}
	hash, err := auth.HashPassword(acct.Password)
	if err != nil {
		return fmt.Errorf("hash password for %s: %w", acct.Email, err)
	}
	if _, err := tx.Exec(ctx, `
    INSERT INTO users (tenant_id, email, full_name, password_hash, role_id, status)
    VALUES ($1, $2, $3, $4, $5, $6)
    ON CONFLICT (tenant_id, email) DO NOTHING
  `, tenantID, acct.Email, acct.Name, hash, roleID, auth.UserStatusActive); err != nil {
		return fmt.Errorf("create %s: %w", acct.Email, err)
	}
	return nil
}

func roleNames() []string {
	names := make([]string, 0, len(auth.RolePermissions))
	for name := range auth.RolePermissions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
