package config

import (
	"os"
	"strings"
	"time"
)

const (
	defaultProjectRoot     = "."
	defaultNATSURL         = "nats://localhost:4222"
	defaultMetricsAddr     = ":9090"
	defaultResolveInterval = "@every 5m"

	envProjectRoot     = "GRIDPACK_PROJECT_ROOT"
	envNATSURL         = "NATS_URL"
	envRedisURL        = "REDIS_URL"
	envMetricsAddr     = "GRIDPACK_METRICS_ADDR"
	envResolveSchedule = "GRIDPACK_RESOLVE_SCHEDULE"
	envHooksEnabled    = "GRIDPACK_HOOKS_ENABLED"
	envEventHooks      = "GRIDPACK_EVENT_HOOKS_ENABLED"
	envAuditDisabled   = "GRIDPACK_AUDIT_BUS_DISABLED"
	envInvokeTimeout   = "GRIDPACK_INVOKE_TIMEOUT"
)

// Config holds runtime configuration for the operator.
type Config struct {
	ProjectRoot       string
	NatsURL           string
	RedisURL          string
	MetricsAddr       string
	ResolveSchedule   string
	HooksEnabled      bool
	EventHooksEnabled bool
	AuditBusDisabled  bool
	InvokeTimeout     time.Duration
}

// Load returns configuration using environment variables with sane defaults.
func Load() *Config {
	root := os.Getenv(envProjectRoot)
	if root == "" {
		root = defaultProjectRoot
	}
	natsURL := os.Getenv(envNATSURL)
	if natsURL == "" {
		natsURL = defaultNATSURL
	}
	metricsAddr := os.Getenv(envMetricsAddr)
	if metricsAddr == "" {
		metricsAddr = defaultMetricsAddr
	}
	schedule := os.Getenv(envResolveSchedule)
	if schedule == "" {
		schedule = defaultResolveInterval
	}
	invokeTimeout := 30 * time.Second
	if raw := os.Getenv(envInvokeTimeout); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			invokeTimeout = parsed
		}
	}
	return &Config{
		ProjectRoot:       root,
		NatsURL:           natsURL,
		RedisURL:          os.Getenv(envRedisURL),
		MetricsAddr:       metricsAddr,
		ResolveSchedule:   schedule,
		HooksEnabled:      enabledDefaultTrue(os.Getenv(envHooksEnabled)),
		EventHooksEnabled: enabledDefaultFalse(os.Getenv(envEventHooks)),
		AuditBusDisabled:  enabledDefaultFalse(os.Getenv(envAuditDisabled)),
		InvokeTimeout:     invokeTimeout,
	}
}

// Hooks default on; an explicit off value disables them.
func enabledDefaultTrue(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "0", "false", "no", "off":
		return false
	default:
		return true
	}
}

// Event hooks default off; an explicit on value enables them.
func enabledDefaultFalse(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
