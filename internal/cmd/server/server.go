package server

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	httpapi "github.com/openschool/ballotbox/internal/election/api/http"
	"github.com/openschool/ballotbox/internal/election/checkin"
	"github.com/openschool/ballotbox/internal/election/identity"
	"github.com/openschool/ballotbox/internal/election/kiosk"
	"github.com/openschool/ballotbox/internal/election/passkey"
	"github.com/openschool/ballotbox/internal/election/pinaccess"
	"github.com/openschool/ballotbox/internal/election/results"
	"github.com/openschool/ballotbox/internal/election/storage/sqlite"
	"github.com/openschool/ballotbox/internal/election/verification"
	"github.com/openschool/ballotbox/internal/telemetry"
)

// Config holds server command configuration.
type Config struct {
	HTTPAddr        string
	DBPath          string
	VerificationTTL time.Duration
}

// EnvLookup returns the value for a key when present.
type EnvLookup func(string) (string, bool)

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string, lookup EnvLookup) (Config, error) {
	cfg := Config{
		HTTPAddr:        envOrDefault(lookup, []string{"BALLOTBOX_HTTP_ADDR"}, ":8086"),
		DBPath:          envOrDefault(lookup, []string{"BALLOTBOX_DB_PATH"}, "ballotbox.db"),
		VerificationTTL: verification.DefaultTTL,
	}
	if raw := envOrDefault(lookup, []string{"BALLOTBOX_VERIFICATION_TTL"}, ""); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse BALLOTBOX_VERIFICATION_TTL: %w", err)
		}
		cfg.VerificationTTL = ttl
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The HTTP server address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The SQLite database path")
	fs.DurationVar(&cfg.VerificationTTL, "verification-ttl", cfg.VerificationTTL, "How long a security-key verification stays valid")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the election server and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	tokenConfig, err := identity.LoadTokenConfigFromEnv(nil)
	if err != nil {
		return fmt.Errorf("load token config: %w", err)
	}

	identities := identity.NewService(store, tokenConfig)
	pins := pinaccess.NewRegistry(store, store, store)
	students := checkin.NewService(store)
	tallies := results.NewService(store, store, store, store)
	passkeys := passkey.New(store, store, store)
	audit := telemetry.NewEmitter(store)
	kiosks := kiosk.NewManager(func() *kiosk.Controller {
		return kiosk.NewController(pins, store, store, store, store, verification.NewStore(cfg.VerificationTTL))
	})

	handler := httpapi.New(httpapi.Deps{
		Identity:        identities,
		Passkeys:        passkeys,
		Pins:            pins,
		Checkin:         students,
		Results:         tallies,
		Kiosks:          kiosks,
		Credentials:     store,
		Positions:       store,
		Candidates:      store,
		Audit:           audit,
		VerificationTTL: cfg.VerificationTTL,
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

func envOrDefault(lookup EnvLookup, keys []string, fallback string) string {
	for _, key := range keys {
		if lookup == nil {
			break
		}
		value, ok := lookup(key)
		if ok {
			trimmed := strings.TrimSpace(value)
			if trimmed != "" {
				return trimmed
			}
		}
	}
	return fallback
}
