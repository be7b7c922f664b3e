package database

import (
	"fmt"
	"net/url"

	"github.com/avellar/opswire/internal/config"
)

// appName tags pool connections so agent sessions are identifiable in
// pg_stat_activity.
const appName = "opswire-agent"

// BuildConnString builds the telemetry pool's PostgreSQL connection string.
// The password is URL-encoded; everything else is taken verbatim.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&application_name=%s",
		cfg.User,
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		cfg.Name,
		sslMode,
		appName,
	)
}
