package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	// Enabled turns on the Postgres persistence mirror.
	Enabled  bool   `env:"ENABLED"                 envDefault:"false"`
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"policy_analysis"`
	Password string `env:"PASSWORD"                envDefault:"policy_analysis"`
	Name     string `env:"NAME"                    envDefault:"policy_analysis"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	// Enabled turns on the Redis status mirror and webhook de-duplication.
	Enabled            bool     `env:"ENABLED"              envDefault:"false"`
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelPort       string   `env:"SENTINEL_PORT"        envDefault:"26379"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`

	// StatusTTL bounds how long mirrored job status survives in Redis.
	StatusTTL time.Duration `env:"STATUS_TTL" envDefault:"168h"`
	// DedupTTL bounds how long a webhook policy id is considered in flight.
	DedupTTL time.Duration `env:"DEDUP_TTL" envDefault:"10m"`
}

// Sanitize applies guardrails to Redis configuration values.
func (r *RedisConfig) Sanitize() {
	if r.StatusTTL < time.Minute {
		r.StatusTTL = time.Minute
	}
	if r.DedupTTL < 0 {
		r.DedupTTL = 0
	}
}
