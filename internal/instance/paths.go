// Package instance owns the on-disk layout of a bridge instance.
package instance

import (
	"os"
	"path/filepath"
)

// Layout roots every instance under one base directory (~/.wpp by default).
type Layout struct {
	Base string
}

// DefaultLayout uses $WPP_HOME when set, otherwise ~/.wpp.
func DefaultLayout() Layout {
	if v := os.Getenv("WPP_HOME"); v != "" {
		return Layout{Base: v}
	}
	home, _ := os.UserHomeDir()
	return Layout{Base: filepath.Join(home, ".wpp")}
}

// Dir returns the instance-specific directory.
func (l Layout) Dir(id string) string {
	return filepath.Join(l.Base, "instances", id)
}

// SocketPath returns the UDS socket path of the daemon's gRPC health server.
func (l Layout) SocketPath(id string) string {
	return filepath.Join(l.Dir(id), "daemon.sock")
}

// SessionDBPath returns the whatsmeow device store path.
func (l Layout) SessionDBPath(id string) string {
	return filepath.Join(l.Dir(id), "session.db")
}

// AppDBPath returns the bridge's message store path.
func (l Layout) AppDBPath(id string) string {
	return filepath.Join(l.Dir(id), "wpp.db")
}

// MediaDir holds uploaded and downloaded attachments.
func (l Layout) MediaDir(id string) string {
	return filepath.Join(l.Dir(id), "media")
}

func (l Layout) LogDir(id string) string {
	return filepath.Join(l.Dir(id), "logs")
}

func (l Layout) LogPath(id string) string {
	return filepath.Join(l.LogDir(id), "wppd.log")
}

// ConfigPath returns the global config file path.
func (l Layout) ConfigPath() string {
	return filepath.Join(l.Base, "config.toml")
}

// EnvPath returns the optional dotenv file loaded before the config.
func (l Layout) EnvPath() string {
	return filepath.Join(l.Base, ".env")
}

// EnsureDir creates the instance directory tree with owner-only permissions.
func (l Layout) EnsureDir(id string) error {
	for _, d := range []string{l.Dir(id), l.LogDir(id), l.MediaDir(id)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
