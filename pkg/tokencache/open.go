package tokencache

import (
	"context"
	"strings"

	"github.com/conduit-ucpi/webapp-sub000/pkg/database"
	"github.com/conduit-ucpi/webapp-sub000/pkg/logging"
	"github.com/conduit-ucpi/webapp-sub000/pkg/redis"
)

// OpenStore builds the Store named by spec: memory, sqlite://path,
// postgres://..., redis://... or rediss://....
func OpenStore(ctx context.Context, spec string, logger logging.Logger) (Store, error) {
	logger = logging.OrDiscard(logger)
	switch {
	case spec == "" || spec == "memory":
		return NewMemoryStore(), nil
	case strings.HasPrefix(spec, "redis://"), strings.HasPrefix(spec, "rediss://"):
		client, err := redis.NewClientFromURL(ctx, spec)
		if err != nil {
			return nil, err
		}
		logger.Info("Auth token cache using redis")
		return NewRedisStore(client), nil
	default:
		cfg := database.DefaultConfig()
		cfg.URL = spec
		db, dialect, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		store, err := NewSQLStore(ctx, db, dialect)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return store, nil
	}
}
