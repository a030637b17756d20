package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Addr                    string
	DatabaseURL             string
	DBMaxConns              int32
	JWTSecret               string
	DataEncryptionKey       string
	Environment             string
	MigrationsDir           string
	SeedTenantName          string
	SeedAdminEmail          string
	SeedAdminPassword       string
	SeedSystemAdminEmail    string
	SeedSystemAdminPassword string
	RunMigrations           bool
	RunSeed                 bool
	MaxBodyBytes            int64
	RateLimitPerMinute      int
	SnapshotInterval        time.Duration
	MetricsEnabled          bool

	LeavePerMonth        float64
	LeaveMaxCarryForward float64
	LeaveMaxPerMonth     float64
	GPSCheckinEnabled    bool
}

func defaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("app_addr", ":8080")
	v.SetDefault("database_url", "")
	v.SetDefault("db_max_conns", 10)
	v.SetDefault("jwt_secret", "")
	v.SetDefault("data_encryption_key", "")
	v.SetDefault("app_env", "development")
	v.SetDefault("migrations_dir", "migrations")
	v.SetDefault("seed_tenant_name", "Default Tenant")
	v.SetDefault("seed_admin_email", "")
	v.SetDefault("seed_admin_password", "")
	v.SetDefault("seed_system_admin_email", "")
	v.SetDefault("seed_system_admin_password", "")
	v.SetDefault("run_migrations", true)
	v.SetDefault("run_seed", true)
	v.SetDefault("max_body_bytes", int64(1048576))
	v.SetDefault("rate_limit_per_minute", 60)
	v.SetDefault("snapshot_interval", 24*time.Hour)
	v.SetDefault("metrics_enabled", true)
	v.SetDefault("leave_per_month", 1.0)
	v.SetDefault("leave_max_carry_forward", 1.0)
	v.SetDefault("leave_max_per_month", 2.0)
	v.SetDefault("gps_checkin_enabled", false)
}

// Load reads configuration from the environment. A .env file (or the file
// named by ENV_FILE) is loaded first when present; real environment
// variables win over it.
func Load() (Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("stat %s: %w", envFile, err)
	}

	v := viper.New()
	defaults(v)
	v.AutomaticEnv()

	return Config{
		Addr:                    v.GetString("app_addr"),
		DatabaseURL:             v.GetString("database_url"),
		DBMaxConns:              v.GetInt32("db_max_conns"),
		JWTSecret:               v.GetString("jwt_secret"),
		DataEncryptionKey:       v.GetString("data_encryption_key"),
		Environment:             v.GetString("app_env"),
		MigrationsDir:           v.GetString("migrations_dir"),
		SeedTenantName:          v.GetString("seed_tenant_name"),
		SeedAdminEmail:          v.GetString("seed_admin_email"),
		SeedAdminPassword:       v.GetString("seed_admin_password"),
		SeedSystemAdminEmail:    v.GetString("seed_system_admin_email"),
		SeedSystemAdminPassword: v.GetString("seed_system_admin_password"),
		RunMigrations:           v.GetBool("run_migrations"),
		RunSeed:                 v.GetBool("run_seed"),
		MaxBodyBytes:            v.GetInt64("max_body_bytes"),
		RateLimitPerMinute:      v.GetInt("rate_limit_per_minute"),
		SnapshotInterval:        v.GetDuration("snapshot_interval"),
		MetricsEnabled:          v.GetBool("metrics_enabled"),
		LeavePerMonth:           v.GetFloat64("leave_per_month"),
		LeaveMaxCarryForward:    v.GetFloat64("leave_max_carry_forward"),
		LeaveMaxPerMonth:        v.GetFloat64("leave_max_per_month"),
		GPSCheckinEnabled:       v.GetBool("gps_checkin_enabled"),
	}, nil
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.IsProduction() {
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
		}
		if strings.TrimSpace(c.DataEncryptionKey) == "" {
			return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production for MFA secrets")
		}
		if c.RunSeed && strings.TrimSpace(c.SeedAdminPassword) == "" {
			return fmt.Errorf("SEED_ADMIN_PASSWORD must be changed or RUN_SEED disabled in production")
		}
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.SnapshotInterval < time.Minute {
		return fmt.Errorf("SNAPSHOT_INTERVAL must be at least one minute")
	}
	for name, value := range map[string]float64{
		"LEAVE_PER_MONTH":         c.LeavePerMonth,
		"LEAVE_MAX_CARRY_FORWARD": c.LeaveMaxCarryForward,
		"LEAVE_MAX_PER_MONTH":     c.LeaveMaxPerMonth,
	} {
		if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
			return fmt.Errorf("%s must be a non-negative number", name)
		}
	}
	return nil
}
