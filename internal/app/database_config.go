package app

import (
	"strings"

	"github.com/charlesng35/sessiongate/internal/database"
)

// ConnectionConfig resolves the driver-specific block into database.Config.
func (c DatabaseConfig) ConnectionConfig() database.Config {
	cfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:   strings.TrimSpace(c.Path),
		DSN:    strings.TrimSpace(c.DSN),
	}

	var block *DBAuthConfig
	switch cfg.Driver {
	case "", "sqlite":
		cfg.Driver = "sqlite"
	case "postgres", "postgresql":
		cfg.Driver = "postgres"
		block = &c.Postgres
	case "mysql":
		block = &c.MySQL
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	if block != nil {
		cfg.Host = strings.TrimSpace(block.Host)
		cfg.Port = block.Port
		cfg.Name = strings.TrimSpace(block.Database)
		cfg.User = strings.TrimSpace(block.Username)
		cfg.Password = block.Password
	}
	return cfg
}
