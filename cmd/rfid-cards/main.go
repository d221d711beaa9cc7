// main is the entry point of the RFID card manager.
//
// STARTUP SEQUENCE:
//  1. Load configuration (YAML file, .env, environment, defaults)
//  2. Initialise the logger
//  3. Open (and set up) the SQLite roster
//  4. Build the PC/SC transport and the application controller
//  5. Run the selected front-end until the user quits or a signal arrives
//
// USAGE:
//
//	rfid-cards [--config=config/local.yaml] [menu|serve|probe]
//
//	menu   numbered text menu on the terminal (default)
//	serve  HTTP JSON API on http_server.address
//	probe  print every card tapped on the reader until Ctrl+C
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aanand-mishra/rfid-cards/internal/app"
	"github.com/aanand-mishra/rfid-cards/internal/card"
	"github.com/aanand-mishra/rfid-cards/internal/card/pcsc"
	"github.com/aanand-mishra/rfid-cards/internal/cli"
	"github.com/aanand-mishra/rfid-cards/internal/config"
	"github.com/aanand-mishra/rfid-cards/internal/http/handlers/person"
	"github.com/aanand-mishra/rfid-cards/internal/storage/sqlite"
	"github.com/go-chi/cors"
)

func main() {
	// ── 1. Load Config ────────────────────────────────────────────────────
	// MustLoad also parses the command line; the mode is the first
	// positional argument.
	cfg := config.MustLoad()

	mode := flag.Arg(0)
	if mode == "" {
		mode = "menu"
	}

	// ── 2. Initialise Logger ──────────────────────────────────────────────
	// The menu owns stdout, so logs go to stderr in every mode.
	log := setupLogger(cfg.Env, os.Stderr)
	slog.SetDefault(log)

	log.Info("starting rfid-cards",
		slog.String("env", cfg.Env),
		slog.String("mode", mode),
	)

	// ── 3. Initialise Storage (Database) ──────────────────────────────────
	// An unusable database file aborts here rather than leaving the
	// front-end half initialised.
	storage, err := sqlite.New(cfg)
	if err != nil {
		log.Error("failed to initialise storage",
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer storage.Close()

	log.Info("storage initialised",
		slog.String("path", cfg.StoragePath))

	// ── 4. Card transport + controller ────────────────────────────────────
	transport := pcsc.New()
	logReaders(log, transport)

	ctrl := app.New(storage, transport, app.Options{
		ReaderIndex:   cfg.Reader.Index,
		ScanTimeout:   cfg.Reader.ScanTimeout,
		PollInterval:  cfg.Reader.PollInterval,
		WaitForReader: cfg.Reader.WaitForReader,
	}, log)

	// ── 5. Run the front-end ──────────────────────────────────────────────
	// The context is cancelled on Ctrl+C / SIGTERM; every mode watches it.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch mode {
	case "menu":
		menu := &cli.Menu{
			In:          os.Stdin,
			Out:         os.Stdout,
			Actions:     ctrl,
			ScanTimeout: cfg.Reader.ScanTimeout,
		}
		err = menu.Run(ctx)
	case "serve":
		err = serve(ctx, log, cfg, ctrl)
	case "probe":
		err = probe(ctx, ctrl)
	default:
		err = fmt.Errorf("unknown mode %q: want menu, serve or probe", mode)
	}

	if err != nil {
		log.Error("exiting with error", slog.String("error", err.Error()))
		storage.Close()
		os.Exit(1)
	}
}

// serve runs the HTTP front-end until ctx is cancelled, then shuts down
// gracefully.
func serve(ctx context.Context, log *slog.Logger, cfg *config.Config, actions app.Actions) error {
	router := http.NewServeMux()
	person.Routes(router, actions)

	// Browser front-ends served from another origin need CORS.
	handler := cors.Handler(cors.Options{
		AllowedOrigins: cfg.HTTPServer.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})(router)

	// WriteTimeout must outlast a full card scan.
	server := &http.Server{
		Addr:         cfg.HTTPServer.Addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Reader.ScanTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", slog.String("address", cfg.HTTPServer.Addr))

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server encountered an error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutdown signal received, stopping server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

// probe prints every card read until interrupted.
func probe(ctx context.Context, ctrl *app.Controller) error {
	fmt.Println("RFID low-level test. Tap cards (Ctrl-C to quit)")

	err := ctrl.Probe(ctx, func(r card.ReadResult) {
		text := r.Text
		if r.Kind != card.ReadUIDAndText {
			text = "(none)"
		}
		fmt.Printf("UID: %s Text: %s\n", r.UID, text)
	})

	fmt.Println("Stopped")
	return err
}

func logReaders(log *slog.Logger, t card.Transport) {
	readers, err := t.Readers()
	if err != nil {
		log.Warn("cannot list smartcard readers", slog.String("error", err.Error()))
		return
	}
	if len(readers) == 0 {
		log.Warn("no smartcard reader attached")
		return
	}
	for i, r := range readers {
		log.Info("smartcard reader found", slog.Int("index", i), slog.String("name", r))
	}
}

// setupLogger returns a *slog.Logger configured for the given environment.
//
// Development (dev): human-readable text output at DEBUG level.
// Production (prod): machine-readable JSON output at INFO level.
func setupLogger(env string, w io.Writer) *slog.Logger {
	switch env {
	case "prod":
		return slog.New(
			slog.NewJSONHandler(w, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}),
		)
	case "staging":
		return slog.New(
			slog.NewJSONHandler(w, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}),
		)
	default: // "dev" and anything unrecognised
		return slog.New(
			slog.NewTextHandler(w, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}),
		)
	}
}
