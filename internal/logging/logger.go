package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithSession returns a logger scoped to a USSD session.
// The phone number is masked so that full MSISDNs never reach the log stream.
func WithSession(sessionID, phoneNumber string) *slog.Logger {
	return slog.With(
		"session_id", sessionID,
		"phone", MaskPhone(phoneNumber),
	)
}

// WithUser returns a logger scoped to an authenticated user.
func WithUser(userID string) *slog.Logger {
	return slog.With("user_id", userID)
}

// Emergency returns a logger tagged for the emergency audit category.
func Emergency(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("category", "emergency")
}

// MaskPhone keeps the first six characters of a phone number.
func MaskPhone(phone string) string {
	if phone == "" {
		return "unknown"
	}
	if len(phone) <= 6 {
		return phone + "***"
	}
	return phone[:6] + "***"
}
