package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/sshtabs/core"
	"pkt.systems/sshtabs/internal/appconfig"
	"pkt.systems/sshtabs/internal/emulator"
	"pkt.systems/sshtabs/internal/eventbus"
	"pkt.systems/sshtabs/internal/profiles"
	"pkt.systems/sshtabs/internal/transport"
	"pkt.systems/sshtabs/internal/vault"
	"pkt.systems/sshtabs/internal/version"
	"pkt.systems/sshtabs/schema"
	"pkt.systems/sshtabs/tui"
)

type tuiFlags struct {
	cfgPath  string
	noBanner bool
	theme    string
}

func runTUI(ctx context.Context, flags tuiFlags) error {
	cfg, err := appconfig.Load(flags.cfgPath)
	if err != nil {
		return err
	}
	if flags.theme != "" {
		theme, ok := schema.NormalizeThemeName(flags.theme)
		if !ok {
			return fmt.Errorf("unsupported theme %q (available: %s)", flags.theme, schema.ThemeList())
		}
		cfg.UI.Theme = string(theme)
	}
	if flags.noBanner {
		cfg.UI.ShowBanner = false
	}

	// The screen belongs to the UI from here on; everything logs to the file.
	logger, closeLog, err := openFileLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()
	ctx = pslog.ContextWithLogger(ctx, logger)
	log.SetOutput(pslog.LogLoggerWithLevel(logger, pslog.ErrorLevel).Writer())
	logger.Info("sshtabs start", "version", version.Current(), "config_theme", cfg.UI.Theme)

	// A broken key store or profile file degrades to locked passwords or an
	// empty list; the UI still starts.
	sealer, vaultErr := openVault(cfg, logger)
	if vaultErr != nil {
		logger.Error("vault unavailable", "err", vaultErr)
	}
	store, err := profiles.Open(cfg.ProfilesPath, sealer, logger)
	if err != nil {
		return err
	}
	client, err := transport.New(transportConfig(cfg.SSH, logger))
	if err != nil {
		return err
	}

	bus := eventbus.New(logger)
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	reg, err := core.NewRegistry(ctx, core.RegistryDeps{
		Transport: client,
		Emulators: emulator.Factory,
		Events:    bus,
		Logger:    logger,
	}, core.RegistryOptions{
		RefreshInterval: time.Duration(cfg.UI.RefreshIntervalMS) * time.Millisecond,
	})
	if err != nil {
		return err
	}
	defer reg.CloseAll()
	router := core.NewRouter(reg, store, logger)

	opts := tui.Options{
		Theme:          schema.ThemeName(cfg.UI.Theme),
		SidebarPercent: cfg.UI.SidebarPercent,
		ShowBanner:     cfg.UI.ShowBanner,
		Version:        "sshtabs " + version.Current(),
	}
	opts.Notice = startupNotice(vaultErr, store.LoadErr())
	app, err := tui.New(tui.Deps{
		Registry: reg,
		Router:   router,
		Profiles: store,
		Events:   events,
		Logger:   logger,
	}, opts)
	if err != nil {
		return err
	}

	term, err := tui.OpenTerminal(os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	defer func() { _ = term.Restore() }()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	err = app.Run(runCtx, term, term.Resizes(runCtx))
	logger.Info("sshtabs exit", "err", err)
	return err
}

func transportConfig(cfg appconfig.SSHConfig, logger pslog.Logger) transport.Config {
	return transport.Config{
		DialTimeout:       time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		KnownHostsPath:    cfg.KnownHostsPath,
		StrictHostKeys:    cfg.StrictHostKeyChecking,
		UseAgent:          cfg.UseAgent,
		Term:              cfg.Term,
		KeepaliveInterval: time.Duration(cfg.KeepaliveIntervalSeconds) * time.Second,
		Logger:            logger,
	}
}

// openVault opens the key store that seals profile passwords. On failure
// the returned sealer is a vault.Locked carrying the error.
func openVault(cfg appconfig.Config, logger pslog.Logger) (profiles.Sealer, error) {
	v, err := vault.New(cfg.KeyStorePath, logger)
	if err != nil {
		err = fmt.Errorf("open key store: %w", err)
		return vault.Locked{Err: err}, err
	}
	return v, nil
}

// openProfiles opens the profile store with passwords sealed by the vault.
// Commands fail outright when the key store cannot be loaded.
func openProfiles(cfg appconfig.Config, logger pslog.Logger) (*profiles.Store, error) {
	sealer, err := openVault(cfg, logger)
	if err != nil {
		return nil, err
	}
	return profiles.Open(cfg.ProfilesPath, sealer, logger)
}

func startupNotice(vaultErr, loadErr error) string {
	var parts []string
	if loadErr != nil {
		parts = append(parts, "Profiles could not be loaded: "+loadErr.Error())
	}
	if vaultErr != nil {
		parts = append(parts, "Saved passwords are unavailable: "+vaultErr.Error())
	}
	return strings.Join(parts, "; ")
}

func openFileLogger(cfg appconfig.LoggingConfig) (pslog.Logger, func() error, error) {
	opts := pslog.Options{
		Mode:     pslog.ModeStructured,
		NoColor:  true,
		MinLevel: parseLevel(cfg.Level),
	}
	path := strings.TrimSpace(cfg.File)
	if path == "" {
		return pslog.NewWithOptions(io.Discard, opts), func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return pslog.NewWithOptions(f, opts), f.Close, nil
}

func parseLevel(level string) pslog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return pslog.TraceLevel
	case "debug":
		return pslog.DebugLevel
	case "warn":
		return pslog.WarnLevel
	case "error":
		return pslog.ErrorLevel
	default:
		return pslog.InfoLevel
	}
}
