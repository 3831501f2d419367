package stores

import (
	"codecollab-server/config"
	"codecollab-server/core"
	"codecollab-server/stores/memory"
	"codecollab-server/stores/redis"
	"codecollab-server/stores/sqlite"
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// GetActivityStore builds the activity store selected by ACTIVITY_STORE.
func GetActivityStore(ctx context.Context, cfg config.Config) (core.ActivityStore, error) {
	var (
		store core.ActivityStore
		err   error
	)

	storageField := logrus.Fields{
		"storageType": cfg.ActivityStore,
	}

	switch cfg.ActivityStore {
	case "sqlite":
		storageField["dataSourceName"] = cfg.DataSourceName
		store, err = sqlite.NewActivityStore(cfg.DataSourceName)
	case "redis":
		storageField["redisAddr"] = cfg.RedisAddr
		store, err = redis.NewActivityStore(ctx, cfg.RedisAddr, cfg.RedisKeyPrefix)
	case "", "memory":
		store = memory.NewActivityStore()
		storageField["storageType"] = "in-memory"
	default:
		return nil, fmt.Errorf("unknown activity store %q", cfg.ActivityStore)
	}
	if err != nil {
		return nil, err
	}

	logrus.WithFields(storageField).Info("Use storage")
	return store, nil
}
