package embed

import (
	"context"
	"fmt"
	"io"

	"github.com/felixgeelhaar/mnemo/internal/plugin"
)

// Providers lists the recognized provider names.
var Providers = []string{"hash", "ollama", "openai", "gemini", "plugin"}

// Config selects and configures an embedder.
type Config struct {
	Provider   string
	Model      string
	BaseURL    string
	APIKey     string
	PluginPath string
	Dimension  int
	CacheSize  int // 0 disables the query cache
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds the configured embedder. The returned closer releases clients,
// caches and plugin processes and must be called when the embedder is no
// longer used.
func New(ctx context.Context, cfg Config) (Embedder, io.Closer, error) {
	var (
		e      Embedder
		closer io.Closer = nopCloser{}
		err    error
	)

	switch cfg.Provider {
	case "", "hash":
		e = NewHash(cfg.Dimension)
	case "ollama":
		e, err = NewOllama(cfg.BaseURL, cfg.Model, cfg.Dimension)
	case "openai":
		e, err = NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimension)
	case "gemini":
		var g *Gemini
		g, err = NewGemini(ctx, cfg.APIKey, cfg.Model, cfg.Dimension)
		if err == nil {
			e, closer = g, g
		}
	case "plugin":
		var h *plugin.Host
		h, err = plugin.Launch(cfg.PluginPath)
		if err == nil {
			e, closer = h, h
		}
	default:
		return nil, nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, nil, err
	}

	if cfg.CacheSize > 0 {
		c, err := NewCached(e, cfg.CacheSize)
		if err != nil {
			closer.Close()
			return nil, nil, err
		}
		// Cached closes the wrapped embedder when it can.
		e, closer = c, c
	}
	return e, closer, nil
}
