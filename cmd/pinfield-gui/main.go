// pinfield-gui is the desktop demo for the PIN entry field.
//
// It hosts a field.Field behind a Gio window: keyboard and pointer
// events become actions, and the pinpad redraws whenever the field's
// state changes.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gioui.org/app"
	"gioui.org/op"
	"gioui.org/unit"
	"gioui.org/widget/material"

	"pinfield/cmd/pinfield-gui/internal/theme"
	"pinfield/cmd/pinfield-gui/internal/ui"
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
	fieldID    = flag.String("field", "demo-gui", "field ID for snapshot persistence")
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

	go func() {
		w := new(app.Window)
		w.Option(app.Title("Enter code"))
		w.Option(app.Size(unit.Dp(480), unit.Dp(320)))

		if err := loop(w, cfg, log); err != nil {
			log.Error("fatal", "err", err)
			os.Exit(1)
		}
		os.Exit(0)
	}()
	app.Main()
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
	if output == "" {
		output = "stderr"
	}
	return logging.New(&logging.Config{
		Level:     level,
		Format:    format,
		Output:    output,
		Component: "pinfield-gui",
	})
}

func loop(w *app.Window, cfg *config.Config, log *logging.Logger) error {
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

	t := theme.NewTheme(material.NewTheme())
	pinpad := ui.NewPinpad(t, f)

	// Every committed action redraws the window; the shake and resend
	// hooks additionally drive their short-lived animations.
	f.SetHooks(field.Hooks{
		Changed: func() { w.Invalidate() },
		Shake: func() {
			pinpad.Shake()
			w.Invalidate()
		},
		Resend: func() {
			pinpad.NotifyResend()
			w.Invalidate()
		},
	})

	var ops op.Ops
	for {
		switch e := w.Event().(type) {
		case app.DestroyEvent:
			saveSession(snapshots, f, log)
			return e.Err
		case app.FrameEvent:
			gtx := app.NewContext(&ops, e)

			pinpad.Layout(gtx)

			e.Frame(gtx.Ops)
		}
	}
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

// saveSession persists the field unless verification finished.
func saveSession(snapshots *store.Store, f *field.Field, log *logging.Logger) {
	if snapshots == nil {
		return
	}
	if f.View().Verify.Status == field.VerifySuccess {
		if err := snapshots.Delete(*fieldID); err != nil {
			log.Warn("clear snapshot", "err", err)
		}
		return
	}
	if err := snapshots.Save(*fieldID, f.Snapshot()); err != nil {
		log.Warn("save snapshot", "err", err)
	}
}
