package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/matheus3301/wppbridge/internal/config"
	"github.com/matheus3301/wppbridge/internal/daemon"
	"github.com/matheus3301/wppbridge/internal/instance"
	"go.uber.org/fx"
)

func main() {
	instanceFlag := flag.String("instance", "", "instance id (overrides config default)")
	configFlag := flag.String("config", "", "config file (default $WPP_HOME/config.toml)")
	listenFlag := flag.String("listen", "", "HTTP listen address (overrides config)")
	flag.Parse()

	layout := instance.DefaultLayout()

	// A missing .env is normal; real environment variables win over it.
	_ = godotenv.Load(layout.EnvPath())

	cfgPath := *configFlag
	if cfgPath == "" {
		cfgPath = layout.ConfigPath()
	}
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *listenFlag != "" {
		cfg.HTTP.Listen = *listenFlag
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	id := instance.Resolve(*instanceFlag, cfg)
	if err := instance.ValidateID(id); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{InstanceID: id, Layout: layout, Config: cfg}),
	)

	app.Run()
}
