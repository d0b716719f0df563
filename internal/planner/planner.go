// Package planner assembles the client side of the scheduling board from the
// app config: the remote backend, the view cache, the board and the editor.
package planner

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"shopplanner/internal/board"
	"shopplanner/internal/config"
	"shopplanner/internal/editor"
	"shopplanner/internal/events"
	"shopplanner/internal/plannerapi"
	"shopplanner/internal/store"
	"shopplanner/internal/timegrid"
)

type Planner struct {
	Grid   timegrid.Grid
	Bus    *events.Bus
	Client *plannerapi.Client
	Store  *store.Store
	Board  *board.Board
	Editor *editor.Editor

	redis *redis.Client
}

type Option func(*options)

type options struct {
	notifier store.Notifier
}

// WithNotifier routes user-facing messages (rollbacks, rejected edits) to n.
func WithNotifier(n store.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// New wires a planner against the API at cfg.API.BaseURL. When a Redis
// address is configured, technician and bay lookups are cached there.
func New(cfg *config.Config, logger zerolog.Logger, opts ...Option) (*Planner, error) {
	if cfg.API.BaseURL == "" {
		return nil, fmt.Errorf("api.base_url is required")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	grid, err := timegrid.New(cfg.Planner.Timezone, cfg.PixelsPerMinute())
	if err != nil {
		return nil, err
	}

	p := &Planner{
		Grid:   grid,
		Bus:    events.NewBus(),
		Client: plannerapi.NewClient(cfg.API.BaseURL, cfg.API.APIKey, logger),
	}
	if cfg.Redis.Address != "" {
		p.redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		p.Client.UseRedisCache(p.redis, cfg.CacheTTL())
	}

	storeOpts := []store.Option{store.WithBus(p.Bus)}
	if o.notifier != nil {
		storeOpts = append(storeOpts, store.WithNotifier(o.notifier))
	}
	p.Store = store.New(p.Client, grid, cfg.Planner.OrganizationID, logger, storeOpts...)
	p.Board = board.New(p.Store, p.Bus, cfg.DefaultDuration(), logger)
	p.Editor = editor.New(p.Store, logger)
	return p, nil
}

func (p *Planner) Close() error {
	if p.redis == nil {
		return nil
	}
	return p.redis.Close()
}
