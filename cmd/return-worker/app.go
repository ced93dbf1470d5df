package main

import (
	"context"
	"fmt"
	"time"

	"github.com/BearBump/ReturnBox/config"
	"github.com/BearBump/ReturnBox/internal/broker/kafka"
	"github.com/BearBump/ReturnBox/internal/cache/rediscache"
	"github.com/BearBump/ReturnBox/internal/integrations/ekart"
	ekartfake "github.com/BearBump/ReturnBox/internal/integrations/ekart/fake"
	"github.com/BearBump/ReturnBox/internal/integrations/ekart/ekarthttp"
	"github.com/BearBump/ReturnBox/internal/services/poller"
	"github.com/BearBump/ReturnBox/internal/storage/pgorders"
)

type workerFactories struct {
	newStorage     func(cfg *config.Config) (repo poller.Repository, closeFn func(), err error)
	newProducer    func(cfg *config.Config) poller.Producer
	newRateLimiter func(cfg *config.Config) poller.RateLimiter
	newEkartClient func(cfg *config.Config) ekart.Client
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (poller.Repository, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgorders.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) poller.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) poller.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newEkartClient: func(cfg *config.Config) ekart.Client {
			// Боевой клиент только при mode=http; для демо — локальный fake.
			if cfg.Ekart.Mode == "http" && cfg.Ekart.BaseURL != "" {
				tokens := ekarthttp.NewTokenCache(cfg.Ekart.AuthURL, cfg.Ekart.BasicAuth, cfg.Ekart.MerchantCode)
				return ekarthttp.New(cfg.Ekart.BaseURL, cfg.Ekart.MerchantCode, tokens)
			}
			return ekartfake.New()
		},
	}
}

func newWorkerPoller(cfg *config.Config, f workerFactories) (*poller.Poller, func(), error) {
	topic := cfg.Kafka.ReturnUpdatedTopicName
	if topic == "" {
		topic = "return.updated"
	}

	pollInterval := time.Duration(cfg.ReturnBox.WorkerPollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	batchSize := cfg.ReturnBox.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	concurrency := cfg.ReturnBox.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	lease := time.Duration(cfg.ReturnBox.WorkerLeaseSeconds) * time.Second
	if lease <= 0 {
		lease = 120 * time.Second
	}
	rlPerMin := int64(cfg.ReturnBox.WorkerRateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 120
	}

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return nil, nil, err
	}

	producer := f.newProducer(cfg)
	rl := f.newRateLimiter(cfg)
	courier := f.newEkartClient(cfg)

	p := poller.New(repo, courier, producer, rl, topic).
		WithSettings(pollInterval, batchSize, concurrency, lease, rlPerMin).
		WithPlanner(plannerConfigFrom(cfg))

	return p, closeFn, nil
}

func plannerConfigFrom(cfg *config.Config) poller.PlannerConfig {
	pc := poller.PlannerConfig{}
	if s := cfg.ReturnBox.WorkerNextCheckActiveMinSeconds; s > 0 {
		pc.ActiveMinDelay = time.Duration(s) * time.Second
	}
	if s := cfg.ReturnBox.WorkerNextCheckActiveMaxSeconds; s > 0 {
		pc.ActiveMaxDelay = time.Duration(s) * time.Second
	}
	if s := cfg.ReturnBox.WorkerBackoff1Seconds; s > 0 {
		pc.Backoff1 = time.Duration(s) * time.Second
	}
	if s := cfg.ReturnBox.WorkerBackoff2Seconds; s > 0 {
		pc.Backoff2 = time.Duration(s) * time.Second
	}
	if s := cfg.ReturnBox.WorkerBackoff3Seconds; s > 0 {
		pc.Backoff3 = time.Duration(s) * time.Second
	}
	if s := cfg.ReturnBox.WorkerBackoff4Seconds; s > 0 {
		pc.Backoff4 = time.Duration(s) * time.Second
	}
	return pc
}

func RunReturnWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	p, closeFn, err := newWorkerPoller(cfg, f)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	return p.Run(ctx)
}
