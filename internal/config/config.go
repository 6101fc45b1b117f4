// Package config defines the global configuration structure for the
// remediation engine. Configuration is loaded once at process initialization
// and is immutable thereafter. It follows 12-Factor App principles by
// strictly separating code from configuration.
//
// Values are resolved from the OS environment, optionally seeded from a
// dotenv file for local development. Any missing required value or invalid
// format causes the process to exit immediately on startup (fail fast).
package config

import (
	"strings"
	"time"

	"remedian/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values (OAuth client credentials, database URLs).
type SecretString = types.SecretString

// Config is the top-level configuration struct for the engine. It is
// populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"remedian"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain configurations
	Server      ServerConfig
	Database    DatabaseConfig
	Remote      RemoteConfig
	Scheduler   SchedulerConfig
	Remediation RemediationConfig
	Feature     FeatureConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`     // Fail fast when pool exhausted
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"` // Detect dead connections during failover
}

// RemoteConfig holds the CRM endpoint, OAuth client-credentials settings,
// and the per-deployment selection of which resource kinds are served by the
// remote backend instead of the local store.
type RemoteConfig struct {
	BaseURL      string       `envconfig:"CRM_BASE_URL" validate:"required,url"`
	TokenURL     string       `envconfig:"CRM_TOKEN_URL" validate:"required,url"`
	ClientID     string       `envconfig:"CRM_CLIENT_ID" validate:"required"`
	ClientSecret SecretString `envconfig:"CRM_CLIENT_SECRET" validate:"required"`

	Timeout    time.Duration `envconfig:"CRM_TIMEOUT" default:"15s"`
	UserAgent  string        `envconfig:"CRM_USER_AGENT" default:"Remedian/1.0"`
	MaxRetries int           `envconfig:"CRM_MAX_RETRIES" default:"3"`

	// RemoteKinds is the comma-separated list of canonical kinds served by
	// the CRM connector. Kinds not listed here (and not engine-owned) are
	// served by the local relational store.
	RemoteKinds string `envconfig:"CRM_REMOTE_KINDS" default:"account,cart"`
}

// RemoteKindSet returns RemoteKinds parsed into a set of resource kinds.
func (c RemoteConfig) RemoteKindSet() map[types.ResourceKind]bool {
	out := make(map[types.ResourceKind]bool)
	for _, k := range strings.Split(c.RemoteKinds, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			out[types.ResourceKind(k)] = true
		}
	}
	return out
}

// SchedulerConfig holds control-loop and batch-execution tuning parameters.
type SchedulerConfig struct {
	TickInterval      time.Duration `envconfig:"SCHEDULER_TICK_INTERVAL" default:"30s"`
	WorkerConcurrency int           `envconfig:"SCHEDULER_WORKER_CONCURRENCY" default:"4"`
	ItemTimeout       time.Duration `envconfig:"SCHEDULER_ITEM_TIMEOUT" default:"30s"`

	// Defaults applied to schedules created without explicit windows.
	DefaultWindowStart string `envconfig:"SCHEDULER_DEFAULT_WINDOW_START" default:"00:00"`
	DefaultWindowEnd   string `envconfig:"SCHEDULER_DEFAULT_WINDOW_END" default:"06:00"`
	DefaultTimezone    string `envconfig:"SCHEDULER_DEFAULT_TIMEZONE" default:"UTC"`
}

// RemediationConfig holds remediation policy knobs.
type RemediationConfig struct {
	// MigrationActor restricts candidate enumeration to resources last
	// migrated by this actor identity. Empty disables the filter. This is a
	// deployment-specific business rule, deliberately configurable rather
	// than a hard-coded identity.
	MigrationActor string `envconfig:"RMD_MIGRATION_ACTOR"`

	// MappingFile optionally overrides the built-in resource mapping table
	// with a JSON file path.
	MappingFile string `envconfig:"RESOURCE_MAPPING_FILE"`

	// BackupDir is the directory where previous composite-document versions
	// are preserved before overwrite.
	BackupDir string `envconfig:"RMD_BACKUP_DIR" default:"backups"`
}

// FeatureConfig holds emergency kill switches for engine capabilities.
type FeatureConfig struct {
	EnableResync bool `envconfig:"FEATURE_ENABLE_RESYNC" default:"true"`
}
