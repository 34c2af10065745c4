package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port        string
	Environment string
	APIVersion  string
	MongoURI    string
	RedisURL    string

	// Auth
	JWTSecret           string
	JWTAccessExpiry     time.Duration
	JWTRefreshExpiry    time.Duration
	EncryptionMasterKey string // 64 hex chars, enables at-rest encryption of conversations

	AllowedOrigins string
	MetricsEnabled bool

	// USSD gateway
	USSDSessionTimeout time.Duration
	USSDSweepInterval  time.Duration
	USSDRateLimit      int
	USSDRateWindow     time.Duration
	USSDSessionStore   string // "memory" or "redis"
	USSDAPIKey         string

	// Emergency hotlines (South Africa defaults)
	EmergencyCrisisLine        string
	EmergencySuicidePrevention string
	EmergencyServices          string
	EmergencySMS               string

	// Notification delivery
	NotifyTimeout        time.Duration
	TwilioAccountSID     string
	TwilioAuthToken      string
	TwilioFromNumber     string
	SMSRatePerMinute     int
	NATSURL              string
	NATSEmergencySubject string

	MaxConversationLength int
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "3001"),
		Environment: getEnv("ENVIRONMENT", "development"),
		APIVersion:  getEnv("API_VERSION", "v1"),
		MongoURI:    getEnv("MONGODB_URI", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		JWTSecret:           getEnv("JWT_SECRET", ""),
		JWTAccessExpiry:     getDurationEnv("JWT_ACCESS_EXPIRY", 15*time.Minute),
		JWTRefreshExpiry:    getDurationEnv("JWT_REFRESH_EXPIRY", 7*24*time.Hour),
		EncryptionMasterKey: getEnv("ENCRYPTION_MASTER_KEY", ""),

		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"),
		MetricsEnabled: getBoolEnv("METRICS_ENABLED", true),

		USSDSessionTimeout: getDurationEnv("USSD_SESSION_TIMEOUT", 300*time.Second),
		USSDSweepInterval:  getDurationEnv("USSD_SWEEP_INTERVAL", 5*time.Minute),
		USSDRateLimit:      getIntEnv("USSD_RATE_LIMIT", 20),
		USSDRateWindow:     getDurationEnv("USSD_RATE_WINDOW", time.Minute),
		USSDSessionStore:   strings.ToLower(getEnv("USSD_SESSION_STORE", "memory")),
		USSDAPIKey:         getEnv("USSD_API_KEY", ""),

		EmergencyCrisisLine:        getEnv("EMERGENCY_CRISIS_LINE", "0800 567 567"),
		EmergencySuicidePrevention: getEnv("EMERGENCY_SUICIDE_PREVENTION", "0800 12 13 14"),
		EmergencyServices:          getEnv("EMERGENCY_SERVICES", "10177"),
		EmergencySMS:               getEnv("EMERGENCY_SMS", "31393"),

		NotifyTimeout:        getDurationEnv("NOTIFY_TIMEOUT", 5*time.Second),
		TwilioAccountSID:     getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:      getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:     getEnv("TWILIO_FROM_NUMBER", ""),
		SMSRatePerMinute:     getIntEnv("SMS_RATE_PER_MINUTE", 6),
		NATSURL:              getEnv("NATS_URL", ""),
		NATSEmergencySubject: getEnv("NATS_EMERGENCY_SUBJECT", "mobilespo.emergency"),

		MaxConversationLength: getIntEnv("MAX_CONVERSATION_LENGTH", 50),
	}
}

// IsProduction reports whether the server runs with ENVIRONMENT=production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AllowedOriginList splits ALLOWED_ORIGINS into trimmed entries
func (c *Config) AllowedOriginList() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnv accepts Go duration strings ("90s", "5m") or a bare number of seconds
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
