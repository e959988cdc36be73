// CloudDrive terminal client
//
// Interactive console over a CloudDrive server: catalog listing with
// filter/sort, previews, in-place text editing, upload/download, sharing,
// and a drop folder whose new files are uploaded automatically.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/MaxymDv/CloudDrive-System/internal/console"
	"github.com/MaxymDv/CloudDrive-System/internal/logging"
	"github.com/MaxymDv/CloudDrive-System/pkg/client"
	"github.com/MaxymDv/CloudDrive-System/pkg/session"
)

func main() {
	server := flag.String("server", envOr("CLOUDDRIVE_SERVER", "http://localhost:8080"), "Server base URL")
	sessionDir := flag.String("session-dir", "", "Session store directory (default: user config dir)")
	dropDir := flag.String("drop", "", "Drop folder; new files there are uploaded automatically")
	dropInterval := flag.Duration("drop-interval", 2*time.Second, "Drop folder polling interval")
	logLevel := flag.String("log-level", "warn", "Log level (debug, info, warn, error)")
	flag.Parse()

	logging.InitConsole(*logLevel)
	defer logging.Sync()

	api := client.New(client.Config{BaseURL: *server})

	dir := *sessionDir
	if dir == "" {
		dir = session.DefaultDir()
	}
	sessions, err := session.Open(dir)
	if err != nil {
		logging.Warn("session store unavailable, logins will not persist", zap.Error(err))
		sessions = nil
	} else {
		defer sessions.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Interrupts end the console cleanly; badger needs its Close.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
		fmt.Println()
		os.Exit(0)
	}()

	ui := console.New(api, sessions, os.Stdin, os.Stdout)

	// Silent re-entry: a persisted token skips the login prompt. An
	// expired one is detected on the first request and forces logout.
	if sessions != nil {
		if creds, err := sessions.Load(); err == nil && creds.Server == *server {
			api.SetAuthToken(creds.Token)
			if err := ui.Engine().Refresh(ctx); err == nil {
				fmt.Printf("Welcome back, %s.\n", creds.Username)
			}
		}
	}

	if *dropDir != "" {
		watcher := console.NewDropWatcher(*dropDir, *dropInterval)
		if err := watcher.Start(ctx); err != nil {
			logging.Warn("drop folder unavailable", zap.Error(err))
		} else {
			defer watcher.Stop()
			ui.WatchDrops(ctx, watcher)
			fmt.Printf("Watching drop folder %s\n", *dropDir)
		}
	}

	if err := ui.Run(ctx); err != nil {
		logging.Error("console error", zap.Error(err))
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
