// Package app assembles the resolver, the direct-link converter and the web
// server from a loaded configuration.
package app

import (
	"fmt"

	"github.com/lvcoi/freeytzone/internal/config"
	"github.com/lvcoi/freeytzone/internal/resolver"
	"github.com/lvcoi/freeytzone/internal/scrape"
	"github.com/lvcoi/freeytzone/internal/web"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// App holds the long-lived components built from one Config.
type App struct {
	Config    config.Config
	Resolver  *resolver.Resolver
	Converter *scrape.Y2Meta
	Log       *logrus.Logger
	Fs        afero.Fs
}

// New builds the primary and fallback backends plus the converter.
func New(cfg config.Config, log *logrus.Logger, fs afero.Fs) (*App, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	opts := resolver.Options{
		YtDlpPath:   cfg.YtDlp.Path,
		InstallDir:  cfg.YtDlp.InstallDir,
		APIKey:      cfg.YouTube.APIKey,
		APIBaseURL:  cfg.YouTube.APIBaseURL,
		HTTPTimeout: cfg.HTTPTimeout,
		Fs:          fs,
	}

	primary, err := resolver.New(cfg.Resolver.Backend, opts)
	if err != nil {
		return nil, fmt.Errorf("primary backend: %w", err)
	}
	var fallback resolver.Backend
	if cfg.Resolver.Fallback != "" {
		fallback, err = resolver.New(cfg.Resolver.Fallback, opts)
		if err != nil {
			return nil, fmt.Errorf("fallback backend: %w", err)
		}
	}

	converter := scrape.NewY2Meta(
		scrape.NewHTTPClient(cfg.HTTPTimeout, cfg.Scrape.BrowserTLS),
		cfg.Scrape.BaseURL,
		log.WithField("component", "y2meta"),
	)

	return &App{
		Config:    cfg,
		Resolver:  resolver.NewResolver(primary, fallback, log.WithField("component", "resolver")),
		Converter: converter,
		Log:       log,
		Fs:        fs,
	}, nil
}

// Server returns the HTTP front end; logPath is reported by /debug.
func (a *App) Server(logPath string) (*web.Server, error) {
	return web.New(web.Options{
		Config:    a.Config,
		Resolver:  a.Resolver,
		Converter: a.Converter,
		Logger:    a.Log,
		LogPath:   logPath,
		Fs:        a.Fs,
	})
}

// Close releases pooled connections held by the shared HTTP transport.
func (a *App) Close() {
	resolver.CloseIdleConnections()
}
