package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jemiko1/crm-platform-sub005/common/database"
	"github.com/jemiko1/crm-platform-sub005/common/logger"
	commonmqtt "github.com/jemiko1/crm-platform-sub005/common/mqtt"
	commonredis "github.com/jemiko1/crm-platform-sub005/common/redis"
	"github.com/jemiko1/crm-platform-sub005/internal/config"
	"github.com/jemiko1/crm-platform-sub005/internal/repository"
	"github.com/jemiko1/crm-platform-sub005/internal/store"

	"go.uber.org/zap"
)

// runtime connections shared by the commands. Optional backends are nil
// when disabled or unreachable.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sql.DB
	redis  *commonredis.Client
	mqtt   *commonmqtt.Client
	repos  repository.Set
	kv     store.KV
	memory bool
}

type bootstrapOptions struct {
	requireDB bool
	redis     bool
	mqtt      bool
}

func bootstrap(ctx context.Context, opts bootstrapOptions) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "crm-api")
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	rt := &runtime{cfg: cfg, logger: log}

	if cfg.DBEnabled {
		db, err := database.NewPostgresDB(&cfg.Database)
		switch {
		case err == nil:
			rt.db = db
			log.Info("connected to postgres", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.Database))
		case opts.requireDB:
			return nil, err
		default:
			log.Warn("DB enabled but connection failed, falling back to in-memory storage", zap.Error(err))
		}
	} else if opts.requireDB {
		return nil, fmt.Errorf("this command needs a database, DB_ENABLED is false")
	}
	if rt.db != nil {
		rt.repos = repository.NewPostgresSet(rt.db)
	} else {
		rt.repos = repository.NewMemorySet()
		rt.memory = true
	}

	rt.kv = store.NewMemoryKV()
	if opts.redis {
		client := commonredis.NewRedisClient(&cfg.Redis)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := commonredis.Ping(pingCtx, client)
		cancel()
		if err != nil {
			log.Warn("redis unreachable, using in-process cache and no stream sinks", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			_ = client.Close()
		} else {
			rt.redis = client
			rt.kv = store.NewRedisKV(client)
		}
	}

	if opts.mqtt && cfg.MQTT.Enabled {
		client, err := commonmqtt.NewClient(&cfg.MQTT, log)
		if err != nil {
			log.Warn("MQTT broker unreachable, realtime push disabled", zap.String("broker", cfg.MQTT.Broker), zap.Error(err))
		} else {
			rt.mqtt = client
		}
	}
	return rt, nil
}

func (rt *runtime) close() {
	if rt.mqtt != nil {
		rt.mqtt.Disconnect()
	}
	if err := commonredis.Close(rt.redis); err != nil {
		rt.logger.Warn("failed to close redis", zap.Error(err))
	}
	if err := database.Close(rt.db); err != nil {
		rt.logger.Warn("failed to close database", zap.Error(err))
	}
	_ = rt.logger.Sync()
}
