package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/matheus3301/wppbridge/internal/config"
	"github.com/matheus3301/wppbridge/internal/instance"
	"github.com/matheus3301/wppbridge/internal/lock"
	"github.com/matheus3301/wppbridge/internal/tui"
	"github.com/matheus3301/wppbridge/internal/tui/client"
)

func main() {
	instanceFlag := flag.String("instance", "", "instance id (overrides config default)")
	startFlag := flag.Bool("start", false, "start wppd when no daemon holds the instance")
	flag.Parse()

	layout := instance.DefaultLayout()
	_ = godotenv.Load(layout.EnvPath())
	cfg, err := config.LoadOrDefault(layout.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	id := instance.Resolve(*instanceFlag, cfg)
	if err := instance.ValidateID(id); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if _, err := lock.Inspect(layout.Dir(id)); err != nil && *startFlag {
		fmt.Fprintf(os.Stderr, "no daemon for instance %q, starting...\n", id)
		if err := startDaemon(id); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start daemon: %v\n", err)
			os.Exit(1)
		}
	}

	c, err := client.New(cfg.HTTP.Listen, layout.SocketPath(id))
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to daemon: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	// The monitor shows an unreachable daemon rather than refusing to open.
	app := tui.NewApp(c, id)
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func startDaemon(id string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	wppd := filepath.Join(filepath.Dir(executable), "wppd")
	if _, err := os.Stat(wppd); err != nil {
		wppd = "wppd"
	}

	cmd := exec.Command(wppd, "--instance", id)
	// Inherit stderr so daemon startup errors are visible.
	cmd.Stderr = os.Stderr
	return cmd.Start()
}
