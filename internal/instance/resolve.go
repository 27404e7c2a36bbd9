package instance

import "github.com/matheus3301/wppbridge/internal/config"

const DefaultID = "main"

// Resolve determines the active instance id using precedence:
// 1. flagOverride (--instance flag)
// 2. config default_instance
// 3. "main"
func Resolve(flagOverride string, cfg *config.Config) string {
	if flagOverride != "" {
		return flagOverride
	}
	if cfg != nil && cfg.DefaultInstance != "" {
		return cfg.DefaultInstance
	}
	return DefaultID
}
