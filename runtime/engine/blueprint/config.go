package blueprint

import (
	"time"

	"github.com/BDNK1/autoflow/runtime/ratelimit"
	"github.com/BDNK1/autoflow/runtime/resilience"
)

// Config configures the engine. Initialize it with runtime.InitializeConfig
// so defaults and validation rules apply.
type Config struct {
	Retry   resilience.RetryConfig   `yaml:"retry"`
	Breaker resilience.BreakerConfig `yaml:"breaker"`

	// RateLimits overrides the built-in per-integration buckets.
	RateLimits       map[string]ratelimit.BucketConfig `yaml:"rate_limits" validate:"dive"`
	DefaultRateLimit ratelimit.BucketConfig            `yaml:"default_rate_limit"`
	AbuseWindow      time.Duration                     `yaml:"abuse_window" default:"1m" validate:"gt=0"`

	// ResilientAgentCalls routes agent_call steps through retry, breaker
	// and rate limiting. Off by default.
	ResilientAgentCalls bool          `yaml:"resilient_agent_calls"`
	AgentCacheTTL       time.Duration `yaml:"agent_cache_ttl" default:"5m" validate:"gte=0"`

	CatalogPath   string `yaml:"catalog_path"`
	BlueprintsDir string `yaml:"blueprints_dir"`
}
