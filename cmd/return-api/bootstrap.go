package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/ReturnBox/config"
	"github.com/BearBump/ReturnBox/internal/broker/kafka"
	"github.com/BearBump/ReturnBox/internal/cache/rediscache"
	"github.com/BearBump/ReturnBox/internal/integrations/ekart"
	ekartfake "github.com/BearBump/ReturnBox/internal/integrations/ekart/fake"
	"github.com/BearBump/ReturnBox/internal/integrations/ekart/ekarthttp"
	"github.com/BearBump/ReturnBox/internal/services/returns"
	"github.com/BearBump/ReturnBox/internal/storage/pgorders"
)

type returnAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     returnAPIOpts
	storage  *pgorders.Storage
	svc      *returns.Service
	consumer *kafka.Consumer
	closeDB  func()
}

func mustBootstrapReturnAPI() *returnAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.ReturnBox.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.ReturnBox.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "return-api"
	}
	topic := cfg.Kafka.ReturnUpdatedTopicName
	if topic == "" {
		topic = "return.updated"
	}

	cacheTTL := time.Duration(cfg.ReturnBox.CurrentStatusTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)

	svc := returns.New(st, newEkartClient(cfg), rc, cacheTTL, cfg.Ekart.ClientName, cfg.Ekart.ReturnLocationCode)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	consumer := kafka.NewConsumer(brokers, topic, consumerGroup)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &returnAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: returnAPIOpts{
			httpAddr:      httpAddr,
			topic:         topic,
			consumerGroup: consumerGroup,
		},
		storage:  st,
		svc:      svc,
		consumer: consumer,
		closeDB:  st.Close,
	}
}

// newEkartClient: боевой HTTP-клиент при mode=http, иначе локальный fake
// (демо и интеграционные прогоны без внешнего API).
func newEkartClient(cfg *config.Config) ekart.Client {
	if cfg.Ekart.Mode == "http" && cfg.Ekart.BaseURL != "" {
		tokens := ekarthttp.NewTokenCache(cfg.Ekart.AuthURL, cfg.Ekart.BasicAuth, cfg.Ekart.MerchantCode)
		return ekarthttp.New(cfg.Ekart.BaseURL, cfg.Ekart.MerchantCode, tokens)
	}
	return ekartfake.New()
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgorders.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgorders.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *returnAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *returnAPIApp) Run() error {
	return runReturnAPI(a.ctx, a.opts, a.storage, a.svc, a.consumer)
}
