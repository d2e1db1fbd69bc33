package app

import (
	"errors"

	intrnl "github.com/Falco0906/syncstream/internal"
)

// ClientConfig defines the parameters the TUI client needs.
type ClientConfig struct {
	ServerURL string `mapstructure:"server_url"`
	Username  string `mapstructure:"username"`
	RoomID    string `mapstructure:"-"`
}

// RunClient launches the Bubble Tea TUI with the provided configuration.
func RunClient(cfg ClientConfig) error {
	if cfg.ServerURL == "" {
		return errors.New("server URL is required")
	}
	return intrnl.RunClient(cfg.ServerURL, cfg.RoomID, cfg.Username)
}
