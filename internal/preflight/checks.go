package preflight

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"mobilespo/internal/config"
	"mobilespo/internal/ussd"
)

// CheckResult represents the result of a preflight check
type CheckResult struct {
	Name    string
	Status  string // "pass", "fail", "warning"
	Message string
	Error   error
}

// Pinger is a dependency that can report its connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker performs pre-flight checks before the server starts accepting
// gateway traffic
type Checker struct {
	cfg          *config.Config
	dependencies map[string]Pinger
	timeout      time.Duration
}

// NewChecker creates a new preflight checker
func NewChecker(cfg *config.Config) *Checker {
	return &Checker{
		cfg:          cfg,
		dependencies: make(map[string]Pinger),
		timeout:      5 * time.Second,
	}
}

// AddDependency registers a connected backend to ping. Nil pingers are ignored.
func (c *Checker) AddDependency(name string, p Pinger) {
	if p != nil {
		c.dependencies[name] = p
	}
}

// RunAll runs all preflight checks and returns results
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	log.Println("🔍 Running pre-flight checks...")

	results := []CheckResult{
		c.checkEmergencyContacts(),
		c.checkLocales(),
		c.checkSecrets(),
		c.checkSessionStore(),
	}
	for name, p := range c.dependencies {
		results = append(results, c.checkDependency(ctx, name, p))
	}

	passed, failed, warnings := 0, 0, 0
	for _, result := range results {
		switch result.Status {
		case "pass":
			log.Printf("   ✅ %s: %s", result.Name, result.Message)
			passed++
		case "fail":
			log.Printf("   ❌ %s: %s", result.Name, result.Message)
			if result.Error != nil {
				log.Printf("      Error: %v", result.Error)
			}
			failed++
		case "warning":
			log.Printf("   ⚠️  %s: %s", result.Name, result.Message)
			warnings++
		}
	}

	log.Printf("📊 Pre-flight summary: %d passed, %d failed, %d warnings", passed, failed, warnings)

	return results
}

// HasFailures returns true if any check failed
func HasFailures(results []CheckResult) bool {
	for _, result := range results {
		if result.Status == "fail" {
			return true
		}
	}
	return false
}

// checkEmergencyContacts verifies every hotline has a number. Emergency
// responses are useless without them.
func (c *Checker) checkEmergencyContacts() CheckResult {
	numbers := map[string]string{
		"EMERGENCY_CRISIS_LINE":        c.cfg.EmergencyCrisisLine,
		"EMERGENCY_SUICIDE_PREVENTION": c.cfg.EmergencySuicidePrevention,
		"EMERGENCY_SERVICES":           c.cfg.EmergencyServices,
		"EMERGENCY_SMS":                c.cfg.EmergencySMS,
	}

	var missing []string
	for key, number := range numbers {
		if number == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return CheckResult{
			Name:    "Emergency Contacts",
			Status:  "fail",
			Message: fmt.Sprintf("Missing hotline numbers: %v", missing),
		}
	}

	return CheckResult{
		Name:    "Emergency Contacts",
		Status:  "pass",
		Message: "All hotline numbers configured",
	}
}

// checkLocales verifies the embedded USSD templates parse
func (c *Checker) checkLocales() CheckResult {
	if _, err := ussd.LoadLocales(); err != nil {
		return CheckResult{
			Name:    "USSD Locales",
			Status:  "fail",
			Message: "Embedded language tables are invalid",
			Error:   err,
		}
	}
	return CheckResult{
		Name:    "USSD Locales",
		Status:  "pass",
		Message: "Language tables loaded",
	}
}

// checkSecrets verifies key material. Weak secrets fail in production and
// warn elsewhere.
func (c *Checker) checkSecrets() CheckResult {
	status := "warning"
	if c.cfg.IsProduction() {
		status = "fail"
	}

	if len(c.cfg.JWTSecret) < 32 {
		return CheckResult{
			Name:    "Secrets",
			Status:  status,
			Message: "JWT_SECRET should be at least 32 characters",
		}
	}

	if key := c.cfg.EncryptionMasterKey; key != "" {
		if decoded, err := hex.DecodeString(key); err != nil || len(decoded) != 32 {
			return CheckResult{
				Name:    "Secrets",
				Status:  "fail",
				Message: "ENCRYPTION_MASTER_KEY must be 64 hex characters",
				Error:   err,
			}
		}
	}

	if c.cfg.IsProduction() && c.cfg.USSDAPIKey == "" {
		return CheckResult{
			Name:    "Secrets",
			Status:  "warning",
			Message: "USSD_API_KEY not set; gateway accepts any Authorization header",
		}
	}

	return CheckResult{
		Name:    "Secrets",
		Status:  "pass",
		Message: "Key material configured",
	}
}

// checkSessionStore verifies the configured USSD session backend is usable
func (c *Checker) checkSessionStore() CheckResult {
	switch c.cfg.USSDSessionStore {
	case "memory":
		return CheckResult{
			Name:    "USSD Session Store",
			Status:  "pass",
			Message: "In-memory sessions (single instance)",
		}
	case "redis":
		if c.cfg.RedisURL == "" {
			return CheckResult{
				Name:    "USSD Session Store",
				Status:  "warning",
				Message: "USSD_SESSION_STORE=redis but REDIS_URL is empty; falling back to memory",
			}
		}
		return CheckResult{
			Name:    "USSD Session Store",
			Status:  "pass",
			Message: "Redis-backed sessions",
		}
	default:
		return CheckResult{
			Name:    "USSD Session Store",
			Status:  "warning",
			Message: fmt.Sprintf("Unknown USSD_SESSION_STORE %q; using memory", c.cfg.USSDSessionStore),
		}
	}
}

// checkDependency pings one backend within the checker timeout
func (c *Checker) checkDependency(ctx context.Context, name string, p Pinger) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := p.Ping(ctx); err != nil {
		return CheckResult{
			Name:    name,
			Status:  "fail",
			Message: "Cannot reach " + name,
			Error:   err,
		}
	}
	return CheckResult{
		Name:    name,
		Status:  "pass",
		Message: name + " reachable",
	}
}
