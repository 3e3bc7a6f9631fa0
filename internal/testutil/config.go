package testutil

import "github.com/turtacn/keyshape/internal/config"

// Config returns the default configuration with gin test mode and debug
// logging.
func Config() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Server.Mode = "test"
	cfg.Log.Level = "debug"
	return cfg
}
