package middleware

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"mobilespo/internal/logging"
	"mobilespo/internal/models"
	"mobilespo/internal/ussd"
)

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// Global limits (per IP)
	GlobalAPIMax        int
	GlobalAPIExpiration time.Duration

	// Public endpoint limits (per IP)
	PublicReadMax        int
	PublicReadExpiration time.Duration

	// Authenticated endpoint limits (per user ID)
	AuthenticatedMax        int
	AuthenticatedExpiration time.Duration

	// Login/register attempts (per IP)
	AuthAttemptMax        int
	AuthAttemptExpiration time.Duration

	// WebSocket/Connection limits (per IP)
	WebSocketMax        int
	WebSocketExpiration time.Duration
}

// DefaultRateLimitConfig returns production-safe defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		GlobalAPIMax:        200,
		GlobalAPIExpiration: 1 * time.Minute,

		PublicReadMax:        120,
		PublicReadExpiration: 1 * time.Minute,

		AuthenticatedMax:        60,
		AuthenticatedExpiration: 1 * time.Minute,

		// 5 attempts per 15 minutes
		AuthAttemptMax:        5,
		AuthAttemptExpiration: 15 * time.Minute,

		WebSocketMax:        20,
		WebSocketExpiration: 1 * time.Minute,
	}
}

// LoadRateLimitConfig loads config from environment variables with defaults
func LoadRateLimitConfig() *RateLimitConfig {
	config := DefaultRateLimitConfig()

	overrides := map[string]*int{
		"RATE_LIMIT_GLOBAL_API":    &config.GlobalAPIMax,
		"RATE_LIMIT_PUBLIC_READ":   &config.PublicReadMax,
		"RATE_LIMIT_AUTHENTICATED": &config.AuthenticatedMax,
		"RATE_LIMIT_AUTH_ATTEMPTS": &config.AuthAttemptMax,
		"RATE_LIMIT_WEBSOCKET":     &config.WebSocketMax,
	}
	for key, target := range overrides {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*target = n
			}
		}
	}

	// Development mode: more lenient limits
	if os.Getenv("ENVIRONMENT") == "development" {
		config.GlobalAPIMax = 1000
		config.WebSocketMax = 100
		log.Println("⚠️  [RATE-LIMIT] Development mode: using relaxed rate limits")
	}

	return config
}

func tooManyRequests(c *fiber.Ctx, message string, window time.Duration) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"success":     false,
		"message":     message,
		"retry_after": int(window.Seconds()),
	})
}

// GlobalAPIRateLimiter creates a rate limiter for all API requests
func GlobalAPIRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.GlobalAPIMax,
		Expiration: config.GlobalAPIExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "global:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] Global limit reached for IP: %s", c.IP())
			return tooManyRequests(c, "Too many requests. Please slow down.", config.GlobalAPIExpiration)
		},
	})
}

// PublicReadRateLimiter for public read-only endpoints
func PublicReadRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.PublicReadMax,
		Expiration: config.PublicReadExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "public:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("⚠️  [RATE-LIMIT] Public endpoint limit reached for IP: %s on %s", c.IP(), c.Path())
			return tooManyRequests(c, "Too many requests to this endpoint.", config.PublicReadExpiration)
		},
	})
}

// AuthenticatedRateLimiter for authenticated endpoints (uses user ID)
func AuthenticatedRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.AuthenticatedMax,
		Expiration: config.AuthenticatedExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			if userID, ok := c.Locals("user_id").(string); ok && userID != "" {
				return "auth:" + userID
			}
			return "auth-ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			userID, _ := c.Locals("user_id").(string)
			log.Printf("⚠️  [RATE-LIMIT] Auth endpoint limit reached for user: %s on %s", userID, c.Path())
			return tooManyRequests(c, "Too many requests. Please wait before trying again.", config.AuthenticatedExpiration)
		},
	})
}

// AuthAttemptRateLimiter throttles login and registration attempts per IP
func AuthAttemptRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.AuthAttemptMax,
		Expiration: config.AuthAttemptExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "login:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] Auth attempt limit reached for IP: %s", c.IP())
			return tooManyRequests(c, "Too many authentication attempts. Please try again later.", config.AuthAttemptExpiration)
		},
	})
}

// WebSocketRateLimiter for WebSocket connection attempts
func WebSocketRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.WebSocketMax,
		Expiration: config.WebSocketExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "ws:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] WebSocket connection limit reached for IP: %s", c.IP())
			return tooManyRequests(c, "Too many connection attempts. Please wait before reconnecting.", config.WebSocketExpiration)
		},
	})
}

// USSDRateLimiter allows max gateway turns per window for each phone number,
// falling back to the caller IP when the body carries none
func USSDRateLimiter(max int, window time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:          max,
		Expiration:   window,
		KeyGenerator: ussdRateKey,
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] USSD limit reached for %s", logging.MaskPhone(ussdRateKey(c)))
			return c.Status(fiber.StatusTooManyRequests).JSON(models.NewUssdResponse(
				models.UssdResponseError,
				"Too many requests. Please wait before trying again.",
			))
		},
	})
}

func ussdRateKey(c *fiber.Ctx) string {
	phone := c.FormValue("phoneNumber")
	if phone == "" {
		var body struct {
			PhoneNumber string `json:"phoneNumber"`
		}
		if err := json.Unmarshal(c.Body(), &body); err == nil {
			phone = body.PhoneNumber
		}
	}
	if normalized := ussd.NormalizePhone(phone); normalized != "+" {
		return "ussd:" + normalized
	}
	return "ussd-ip:" + c.IP()
}
