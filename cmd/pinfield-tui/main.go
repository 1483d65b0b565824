// pinfield-tui is the terminal demo for the PIN entry field.
//
// It wires a field.Field to a Bubble Tea program: key presses become
// actions, the countdown and verification state render at the bottom, and
// an interrupted session is resumed from the snapshot store on restart.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"pinfield/internal/config"
	"pinfield/internal/field"
	"pinfield/internal/logging"
	"pinfield/internal/store"
	"pinfield/internal/verify"
)

// defaultDemoCode is hashed at startup when no code_hash is configured.
const defaultDemoCode = "123456"

var (
	configPath = flag.String("config", "", "path to config file")
	fieldID    = flag.String("field", "demo", "field ID for snapshot persistence")
	secure     = flag.Bool("secure", false, "mask entered digits")
	noRestore  = flag.Bool("fresh", false, "ignore any stored snapshot")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *secure {
		cfg.Field.Secure = true
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "set up logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	logging.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	output := cfg.Logging.Output
	if output == "" || output == "stderr" || output == "stdout" {
		// The TUI owns the terminal; keep logs out of it.
		output = os.DevNull
	}
	return logging.New(&logging.Config{
		Level:     level,
		Format:    format,
		Output:    output,
		Component: "pinfield-tui",
	})
}

func run(cfg *config.Config, log *logging.Logger) error {
	hash := cfg.Verifier.CodeHash
	if hash == "" {
		var err error
		hash, err = verify.HashCode(defaultDemoCode)
		if err != nil {
			return fmt.Errorf("hash demo code: %w", err)
		}
		log.Info("no code_hash configured, using demo code", "demo_code_length", len(defaultDemoCode))
	}
	verifier := verify.NewBcrypt(hash, time.Duration(cfg.Verifier.LatencyMs)*time.Millisecond)

	f, err := field.New(field.Options{
		Length:        cfg.Field.Length,
		Secure:        cfg.Field.Secure,
		ResendSeconds: cfg.Field.ResendSeconds,
		Verifier:      verifier,
	})
	if err != nil {
		return err
	}
	defer f.Close()

	var snapshots *store.Store
	if cfg.Storage.Path != "" {
		snapshots, err = store.Open(cfg.Storage.Path)
		if err != nil {
			log.Warn("snapshot store unavailable", "err", err)
		} else {
			defer snapshots.Close()
		}
	}

	if err := f.Start(); err != nil {
		return err
	}

	if snapshots != nil && !*noRestore {
		snap, err := snapshots.Load(*fieldID)
		switch {
		case err == nil:
			if err := f.Restore(snap); err != nil {
				log.Warn("snapshot does not fit this field, starting fresh", "err", err)
			} else {
				log.Info("session restored", "remaining", snap.Remaining)
			}
		case errors.Is(err, store.ErrNotFound):
		default:
			log.Warn("load snapshot", "err", err)
		}
	}

	if closeWatch := watchConfig(f, log); closeWatch != nil {
		defer closeWatch()
	}

	m := newModel(f, cfg)
	p := tea.NewProgram(m, tea.WithAltScreen())

	// Push re-renders from the field's serialized action stream into the
	// program, instead of polling for verification results.
	f.SetHooks(field.Hooks{
		Changed: func() { p.Send(refreshMsg{}) },
		Shake:   func() { p.Send(shakeMsg{}) },
		Resend:  func() { p.Send(resendMsg{}) },
	})

	final, err := p.Run()
	if err != nil {
		return err
	}

	// Persist the session unless it finished.
	if snapshots != nil {
		v := f.View()
		if v.Verify.Status == field.VerifySuccess {
			if err := snapshots.Delete(*fieldID); err != nil {
				log.Warn("clear snapshot", "err", err)
			}
		} else if err := snapshots.Save(*fieldID, f.Snapshot()); err != nil {
			log.Warn("save snapshot", "err", err)
		}
	}

	if fm, ok := final.(model); ok && fm.verified {
		fmt.Println("verified")
	}
	return nil
}

// watchConfig hot-reloads the resend duration from the config file, when
// one was given. The next resend cycle picks up the new value; a running
// countdown is not disturbed.
func watchConfig(f *field.Field, log *logging.Logger) func() {
	if *configPath == "" {
		return nil
	}
	loader := config.NewLoader(*configPath)
	if _, err := loader.Load(); err != nil {
		log.Warn("config watch disabled", "err", err)
		return nil
	}
	loader.OnChange(func(c *config.Config) {
		if err := f.SetResendSeconds(c.Field.ResendSeconds); err != nil {
			log.Warn("apply reloaded config", "err", err)
			return
		}
		log.Info("config reloaded", "resend_seconds", c.Field.ResendSeconds)
	})
	errc, err := loader.Watch()
	if err != nil {
		log.Warn("config watch disabled", "err", err)
		return nil
	}
	go func() {
		for err := range errc {
			log.Warn("config reload", "err", err)
		}
	}()
	return func() { loader.Close() }
}
