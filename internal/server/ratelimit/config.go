package ratelimit

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EndpointRule budgets one slice of the API. A Prefix ending in "/"
// matches every path underneath it; otherwise the path must match
// exactly.
type EndpointRule struct {
	Prefix string
	Method string
	Limit  int
	Window time.Duration
	Burst  int
}

// Config holds the limiter's settings. Allowlisted clients bypass all
// budgets; denylisted clients get nothing.
type Config struct {
	Enabled       bool
	DefaultLimit  int
	DefaultWindow time.Duration
	SweepInterval time.Duration
	Allowlist     map[string]bool
	Denylist      map[string]bool
	Rules         []EndpointRule
}

// LoadConfig reads limiter settings from RATE_LIMIT_* environment
// variables, falling back to defaults suitable for a single-operator
// deployment.
func LoadConfig() *Config {
	if !envBool("RATE_LIMIT_ENABLED", true) {
		return &Config{Enabled: false}
	}

	cfg := defaultConfig()
	cfg.DefaultLimit = envInt("RATE_LIMIT_DEFAULT_LIMIT", cfg.DefaultLimit)
	cfg.DefaultWindow = envDuration("RATE_LIMIT_DEFAULT_WINDOW", cfg.DefaultWindow)
	cfg.SweepInterval = envDuration("RATE_LIMIT_SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.Allowlist = splitClients(os.Getenv("RATE_LIMIT_ALLOWLIST"))
	cfg.Denylist = splitClients(os.Getenv("RATE_LIMIT_DENYLIST"))
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		Enabled:       true,
		DefaultLimit:  1000,
		DefaultWindow: time.Minute,
		SweepInterval: 5 * time.Minute,
		Allowlist:     map[string]bool{},
		Denylist:      map[string]bool{},
		Rules:         defaultRules(),
	}
}

// defaultRules budgets the endpoints that fan out beyond this process.
// A scan polls the source store; review commands write transitions.
// Reads fall through to the default budget.
func defaultRules() []EndpointRule {
	return []EndpointRule{
		{Prefix: "/scan", Method: "POST", Limit: 30, Window: time.Hour, Burst: 5},
		{Prefix: "/workitems/", Method: "POST", Limit: 120, Window: time.Minute, Burst: 30},
	}
}

// match finds the rule for a path and method. Health checks are never
// limited.
func (c *Config) match(path, method string) *EndpointRule {
	if path == "/health" && method == "GET" {
		return &EndpointRule{}
	}

	for i := range c.Rules {
		rule := &c.Rules[i]
		if rule.Method != method {
			continue
		}
		if strings.HasSuffix(rule.Prefix, "/") {
			if strings.HasPrefix(path, rule.Prefix) {
				return rule
			}
		} else if path == rule.Prefix {
			return rule
		}
	}

	return &EndpointRule{
		Prefix: path,
		Method: method,
		Limit:  c.DefaultLimit,
		Window: c.DefaultWindow,
	}
}

func envBool(key string, fallback bool) bool {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			return v
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil {
			return v
		}
	}
	return fallback
}

func splitClients(raw string) map[string]bool {
	clients := map[string]bool{}
	for _, entry := range strings.Split(raw, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			clients[entry] = true
		}
	}
	return clients
}
