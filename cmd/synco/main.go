// Command synco synchronises mpv playback across a LAN group of peers over
// a signed gossip pub/sub overlay.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/derlaft/synco/internal/config"
	"github.com/derlaft/synco/internal/controller"
	"github.com/derlaft/synco/internal/gossip"
	"github.com/derlaft/synco/internal/player"
)

func main() {
	topic := flag.String("topic", "synco", "gossip overlay topic name, shared out-of-band with peers")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	configPath := flag.String("config", "", "config file path override (defaults to $SYNCO_CONFIG or $HOME/.config/synco)")
	flag.Parse()

	if *configPath != "" {
		os.Setenv("SYNCO_CONFIG", *configPath)
	}

	slog.SetLogLoggerLevel(parseLevel(*logLevel))

	if flag.NArg() != 1 {
		log.Fatalf("[synco] usage: synco [flags] <file-or-url>")
	}
	target := flag.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[config] %v", err)
	}

	priv, err := cfg.Keypair()
	if err != nil {
		log.Fatalf("[config] %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("[synco] shutting down...")
		cancel()
	}()

	gossipAdapter, err := gossip.New(ctx, priv, cfg.ID, *topic, cfg.ListenOn, os.Getenv("SYNCO_RELAY"))
	if err != nil {
		log.Fatalf("[gossip] %v", err)
	}

	playerAdapter := player.New(target)
	ctrl := controller.New()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The player stopping cleanly (mpv quit, SIGINT) ends the whole run.
		err := playerAdapter.Run(gctx, ctrl.PlayerEvents, ctrl.PlayerRequests)
		if err == nil {
			cancel()
		}
		return err
	})
	g.Go(func() error { return gossipAdapter.Run(gctx, ctrl.NetworkIngress, ctrl.NetworkEgress) })
	g.Go(func() error { return ctrl.Run(gctx) })

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Fatalf("[synco] %v", err)
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
