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

// WithUser returns a logger with per-user pipeline context attached.
// Use this for all logging within one user's sample processing.
func WithUser(userID, sessionID string) *slog.Logger {
	return slog.With(
		"user_id", userID,
		"session_id", sessionID,
	)
}

// WithDetector returns a logger scoped to one detector within a user's stream.
func WithDetector(logger *slog.Logger, detector string) *slog.Logger {
	return logger.With("detector", detector)
}
