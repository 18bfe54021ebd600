package app

import (
	"strings"

	"github.com/charlesng35/sessiongate/pkg/logger"
)

// ConfigureLogging initialises the global logger from the server block,
// defaulting to info level JSON output.
func ConfigureLogging(server ServerConfig) error {
	level := strings.TrimSpace(server.LogLevel)
	if level == "" {
		level = "info"
	}
	return logger.Init(level, server.LogFormat)
}
