package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/mnemo/internal/config"
	"github.com/felixgeelhaar/mnemo/internal/embed"
	"github.com/felixgeelhaar/mnemo/internal/memory"
	"github.com/felixgeelhaar/mnemo/internal/observe"
	"github.com/felixgeelhaar/mnemo/internal/secret"
	"github.com/felixgeelhaar/mnemo/internal/store"
)

// app is an opened store with everything it depends on.
type app struct {
	cfg    config.Config
	obs    *observe.Observer
	db     *store.SQLiteStore
	mem    *memory.Store
	lease  *store.Lease
	closer io.Closer
	span   trace.Span
}

func loadConfig(opts *rootOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return cfg, err
		}
	}
	if opts.dbPath != "" {
		cfg.Database = opts.dbPath
	}
	if opts.verbose {
		cfg.Log.Verbose = true
	}
	if opts.jsonOutput {
		cfg.Log.Format = "json"
	}
	return cfg, nil
}

func openDB(opts *rootOptions) (*store.SQLiteStore, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	return store.NewSQLiteStore(cfg.DatabasePath())
}

// openApp loads the config, opens and locks the database, builds the
// embedder and loads the persisted items into a new store. The returned
// context carries a span for the command that Close ends.
func openApp(cmd *cobra.Command, opts *rootOptions, logOut io.Writer) (*app, context.Context, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}

	res := config.Validate(cfg)
	if !res.Valid {
		return nil, nil, fmt.Errorf("invalid config: %s", strings.Join(res.Errors, "; "))
	}

	obs, err := observe.New(logOut, cfg.Log.Format, cfg.Log.Verbose)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range res.Warnings {
		obs.Log().Info().Str("warning", w).Msg("config")
	}
	ctx, span := obs.StartSpan(cmd.Context(), cmd.CommandPath())

	a := &app{cfg: cfg, obs: obs, closer: nopCloser{}, span: span}
	fail := func(err error) (*app, context.Context, error) {
		a.release()
		return nil, nil, err
	}

	if a.db, err = store.NewSQLiteStore(cfg.DatabasePath()); err != nil {
		return fail(fmt.Errorf("open database: %w", err))
	}
	if a.lease, err = a.db.Lock(ctx, store.DefaultLeaseTTL); err != nil {
		return fail(err)
	}

	apiKey, err := providerKey(a.db, cfg.Embedder.Provider)
	if err != nil {
		return fail(err)
	}

	e, closer, err := embed.New(ctx, cfg.EmbedConfig(apiKey))
	if err != nil {
		return fail(fmt.Errorf("embedder: %w", err))
	}
	a.closer = closer

	memOpts := cfg.StoreOptions()
	memOpts.Persister = a.db
	memOpts.Sink = obs.Events()

	if a.mem, err = memory.New(e, memOpts); err != nil {
		return fail(err)
	}

	n, err := a.mem.Load(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, nil, err
	}
	obs.Log().Info().Int("items", n).Str("db", cfg.DatabasePath()).Msg("store loaded")
	return a, ctx, nil
}

// Close flushes the store, then releases the lock, embedder, database and logger.
func (a *app) Close(ctx context.Context) error {
	err := a.mem.Shutdown(ctx)
	if err != nil {
		a.obs.Log().Error().Err(err).Msg("flush store")
	}
	a.release()
	return err
}

func (a *app) release() {
	if a.lease != nil {
		if err := a.lease.Release(); err != nil {
			a.obs.Log().Warn().Err(err).Msg("release lock")
		}
	}
	if err := a.closer.Close(); err != nil {
		a.obs.Log().Warn().Err(err).Msg("close embedder")
	}
	if a.db != nil {
		a.db.Close()
	}
	a.span.End()
	a.obs.Close()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// providerKey reads the provider's API key from the settings table, opening
// it when it was stored sealed.
func providerKey(db *store.SQLiteStore, provider string) (string, error) {
	switch provider {
	case "openai", "gemini":
	default:
		return "", nil
	}
	val, err := db.GetConfig(provider + ".api_key")
	if err != nil {
		return "", err
	}
	if !secret.IsSealed(val) {
		return val, nil
	}
	box, err := secret.NewBox()
	if err != nil {
		return "", err
	}
	key, err := box.Open(val)
	if err != nil {
		return "", fmt.Errorf("%s.api_key: %w", provider, err)
	}
	return key, nil
}

// parsePairs splits k=v arguments.
func parsePairs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		out[k] = v
	}
	return out, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var errNotFound = errors.New("not found")
