package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	cookiejar "github.com/juju/persistent-cookiejar"
	"go.uber.org/zap"

	"github.com/go-authgate/climate-cli/api"
	"github.com/go-authgate/climate-cli/cache"
	"github.com/go-authgate/climate-cli/errbus"
	"github.com/go-authgate/climate-cli/session"
	"github.com/go-authgate/climate-cli/store"
	"github.com/go-authgate/climate-cli/transport"
	"github.com/go-authgate/climate-cli/tui"
)

// app is the wired object graph for one process.
type app struct {
	cfg     *Config
	logger  *zap.Logger
	d       tui.Displayer
	jar     *cookiejar.Jar
	marker  *store.FileStore
	errs    *errbus.Bus
	client  *api.Client
	manager *session.Manager
	cache   *cache.Cache

	unsubscribe []func()
}

// newApp builds the pipelines, the API clients and the session manager. base
// overrides the innermost transport and may be nil.
func newApp(cfg *Config, logger *zap.Logger, d tui.Displayer, base http.RoundTripper) (*app, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.CookieFile), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create cookie directory: %w", err)
	}
	jar, err := cookiejar.New(&cookiejar.Options{Filename: cfg.CookieFile})
	if err != nil {
		return nil, fmt.Errorf("failed to open cookie jar: %w", err)
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		d:      d,
		jar:    jar,
		marker: store.NewFileStore(cfg.SessionFile, cfg.APIURL, logger),
		errs:   errbus.New(logger.With(zap.String("component", "errbus"))),
	}

	opts := transport.Options{
		Base:            base,
		Jar:             jar,
		Logger:          logger,
		MaxRetries:      cfg.MaxRetries,
		RetryDelay:      cfg.RetryDelay,
		BreakerFailures: uint32(cfg.BreakerFailures),
		BreakerTimeout:  cfg.BreakerTimeout,
	}

	refreshRT, err := transport.NewPipeline("refresh", opts, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build refresh pipeline: %w", err)
	}
	refresher := api.NewRefreshClient(cfg.APIURL, &http.Client{Transport: refreshRT, Jar: jar}, cfg.RequestTimeout)

	// the interceptor needs the manager, which needs the client built on the interceptor
	auth := transport.NewAuthRetry(
		transport.RefresherFunc(func(ctx context.Context) error {
			return a.manager.RefreshAccessToken(ctx)
		}),
		a.marker,
		jar,
		transport.Hooks{
			OnRejected:      func(*http.Request) { d.AccessRejected() },
			OnRefreshed:     func(*http.Request) { d.SessionRefreshed() },
			OnRefreshFailed: func(_ *http.Request, err error) { d.SessionExpired(err) },
		},
		logger,
	)
	apiRT, err := transport.NewPipeline("api", opts, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to build API pipeline: %w", err)
	}

	a.client = api.NewClient(cfg.APIURL, &http.Client{Transport: apiRT, Jar: jar}, cfg.RequestTimeout)
	a.manager = session.New(a.client, refresher, a.marker, a.errs, logger)
	a.cache = cache.New(cfg.CacheSize, cfg.CacheTTL, a.errs, logger)

	a.unsubscribe = append(a.unsubscribe,
		a.errs.Subscribe(d.GlobalError),
		a.manager.Subscribe(func(s session.Snapshot) {
			// cached data belongs to the user who fetched it
			if s.State == session.Anonymous {
				a.cache.Purge()
			}
		}),
	)
	return a, nil
}

// close persists the cookie jar.
func (a *app) close() {
	for _, fn := range a.unsubscribe {
		fn()
	}
	if err := a.jar.Save(); err != nil {
		a.logger.Warn("failed to save cookie jar", zap.String("path", a.cfg.CookieFile), zap.Error(err))
	}
}
