package preflight

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mobilespo/internal/config"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error {
	return p.err
}

func testConfig() *config.Config {
	return &config.Config{
		Environment:                "development",
		JWTSecret:                  strings.Repeat("s", 32),
		USSDSessionStore:           "memory",
		EmergencyCrisisLine:        "0800 567 567",
		EmergencySuicidePrevention: "0800 12 13 14",
		EmergencyServices:          "10177",
		EmergencySMS:               "31393",
	}
}

func findResult(results []CheckResult, name string) *CheckResult {
	for i := range results {
		if results[i].Name == name {
			return &results[i]
		}
	}
	return nil
}

func TestRunAllPasses(t *testing.T) {
	checker := NewChecker(testConfig())
	checker.AddDependency("MongoDB", stubPinger{})

	results := checker.RunAll(context.Background())
	if HasFailures(results) {
		t.Errorf("Expected no failures, got %+v", results)
	}
	if len(results) != 5 {
		t.Errorf("Expected 5 results, got %d", len(results))
	}
}

func TestMissingHotlineFails(t *testing.T) {
	cfg := testConfig()
	cfg.EmergencyServices = ""

	result := NewChecker(cfg).checkEmergencyContacts()
	if result.Status != "fail" {
		t.Errorf("Expected status 'fail', got '%s'", result.Status)
	}
	if !strings.Contains(result.Message, "EMERGENCY_SERVICES") {
		t.Errorf("Expected message to name the missing key, got %q", result.Message)
	}
}

func TestWeakSecrets(t *testing.T) {
	cfg := testConfig()
	cfg.JWTSecret = "short"

	if result := NewChecker(cfg).checkSecrets(); result.Status != "warning" {
		t.Errorf("Expected warning in development, got '%s'", result.Status)
	}

	cfg.Environment = "production"
	if result := NewChecker(cfg).checkSecrets(); result.Status != "fail" {
		t.Errorf("Expected fail in production, got '%s'", result.Status)
	}

	cfg = testConfig()
	cfg.EncryptionMasterKey = "not-hex"
	if result := NewChecker(cfg).checkSecrets(); result.Status != "fail" {
		t.Errorf("Expected fail for malformed master key, got '%s'", result.Status)
	}
}

func TestSessionStoreWithoutRedis(t *testing.T) {
	cfg := testConfig()
	cfg.USSDSessionStore = "redis"

	if result := NewChecker(cfg).checkSessionStore(); result.Status != "warning" {
		t.Errorf("Expected warning, got '%s'", result.Status)
	}
}

func TestUnreachableDependencyFails(t *testing.T) {
	checker := NewChecker(testConfig())
	checker.AddDependency("Redis", stubPinger{err: errors.New("connection refused")})
	checker.AddDependency("NATS", nil)

	results := checker.RunAll(context.Background())
	if !HasFailures(results) {
		t.Fatal("Expected failure for unreachable dependency")
	}
	if r := findResult(results, "Redis"); r == nil || r.Status != "fail" {
		t.Errorf("Expected Redis check to fail, got %+v", r)
	}
	if findResult(results, "NATS") != nil {
		t.Error("Expected nil dependency to be skipped")
	}
}
