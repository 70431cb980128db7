package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nadzzz/jarvis/internal/config"
	"github.com/nadzzz/jarvis/internal/console"
	"github.com/nadzzz/jarvis/internal/gateway"
	"github.com/nadzzz/jarvis/internal/health"
	"github.com/nadzzz/jarvis/internal/navigate"
	"github.com/nadzzz/jarvis/internal/session"
	"github.com/nadzzz/jarvis/internal/store"
	"github.com/nadzzz/jarvis/internal/store/redis"
	"github.com/nadzzz/jarvis/internal/store/sqlite"
	"github.com/nadzzz/jarvis/internal/tts"
	"github.com/nadzzz/jarvis/internal/tts/piper"
)

func newAssistantCmd() *cobra.Command {
	var printURLs bool
	cmd := &cobra.Command{
		Use:   "assistant",
		Short: "Run the voice assistant on the terminal",
		Long: `Run the assistant with the console standing in for the microphone.

Type a line to speak it. Control lines:
  /talk                 start a single capture session
  /name <name>          change how the assistant addresses you
  /personality <key>    jarvis, tony, funny or calm
  /continuous on|off    toggle continuous listening
  /theme                toggle the display theme
  /state                print the session state
  /quit                 exit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runAssistant(cmd.Context(), cfg, os.Stdin, cmd.OutOrStdout(), printURLs)
		},
	}
	cmd.Flags().BoolVar(&printURLs, "print-urls", false, "print URLs instead of opening a browser")
	return cmd
}

func runAssistant(parent context.Context, cfg *config.Config, in io.Reader, out io.Writer, printURLs bool) error {
	if parent == nil {
		parent = context.Background()
	}
	slog.Info("jarvis assistant starting", "version", version)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out = console.NewSyncWriter(out)

	backend, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer backend.Close()

	speaker := newSpeaker(cfg.TTS, out)
	defer speaker.Close()

	var opener navigate.Opener = navigate.Browser{}
	if printURLs {
		opener = &navigate.Printer{W: out}
	}

	rec := console.NewRecognizer(in)
	defer rec.Close()

	o, err := session.New(session.Config{
		Recognizer: rec,
		Speaker:    speaker,
		Display:    console.NewDisplay(out),
		Asker:      gateway.New(cfg.Gateway),
		Store:      store.NewKV(backend, slog.Default()),
		Opener:     opener,
		Cooldown:   cfg.Listen.Cooldown,
		Defaults:   cfg.Assistant,
		Logger:     slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	healthServer := health.New(cfg.Server.HealthPort, cfg.Server.GRPCHealthPort, "jarvis.assistant")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return o.Run(gctx)
	})
	g.Go(func() error { return healthServer.ListenAndServe(gctx) })
	g.Go(func() error { return healthServer.ServeGRPC(gctx) })
	g.Go(func() error {
		defer cancel()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-o.Done():
				return nil
			case <-rec.EOF():
				slog.Info("input closed")
				return nil
			case line := <-rec.Controls():
				quit, err := applyControl(o, line, out)
				if err != nil {
					fmt.Fprintln(out, err)
				}
				if quit {
					return nil
				}
			}
		}
	})

	healthServer.SetReady(true)
	slog.Info("jarvis assistant ready", "session", o.ID(), "health_port", cfg.Server.HealthPort)

	err = g.Wait()
	healthServer.SetReady(false)
	slog.Info("jarvis assistant stopped")
	return err
}

// controller is the subset of the session driven by control lines.
type controller interface {
	Listen()
	SetUserName(name string)
	SetPersonality(key string)
	SetContinuous(on bool)
	ToggleTheme()
	Snapshot() session.State
}

var errUnknownControl = errors.New("unknown control")

// applyControl executes one control line. It reports whether the user asked
// to quit.
func applyControl(c controller, line string, out io.Writer) (bool, error) {
	name, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/talk":
		c.Listen()
	case "/name":
		c.SetUserName(arg)
	case "/personality":
		if arg == "" {
			return false, errors.New("usage: /personality jarvis|tony|funny|calm")
		}
		c.SetPersonality(strings.ToLower(arg))
	case "/continuous":
		switch strings.ToLower(arg) {
		case "on":
			c.SetContinuous(true)
		case "off":
			c.SetContinuous(false)
		default:
			return false, errors.New("usage: /continuous on|off")
		}
	case "/theme":
		c.ToggleTheme()
	case "/state":
		s := c.Snapshot()
		fmt.Fprintf(out, "user=%s personality=%s continuous=%t theme=%s listen=%s speaking=%t shopping=%q\n",
			s.UserName, s.Personality, s.Continuous, s.Theme, s.Listen, s.Speaking, s.ShoppingList)
	case "/quit", "/exit":
		return true, nil
	default:
		return false, fmt.Errorf("%w: %s", errUnknownControl, name)
	}
	return false, nil
}

func openStore(cfg config.StoreConfig) (store.Backend, error) {
	switch cfg.Backend {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		b, err := sqlite.New(cfg.SQLite)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		slog.Info("using sqlite store", "path", cfg.SQLite.Path)
		return b, nil
	case "redis":
		slog.Info("using redis store", "addr", cfg.Redis.Addr)
		return redis.New(cfg.Redis), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func newSpeaker(cfg config.TTSConfig, out io.Writer) tts.Speaker {
	if cfg.Backend == "piper" {
		slog.Info("using piper speaker", "endpoint", cfg.Piper.Endpoint, "endpoints", len(cfg.Piper.Endpoints))
		return piper.New(cfg.Piper)
	}
	return tts.NewConsole(out)
}
