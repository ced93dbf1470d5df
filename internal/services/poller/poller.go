package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/ReturnBox/internal/broker/messages"
	"github.com/BearBump/ReturnBox/internal/integrations/ekart"
	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/google/uuid"
)

type Repository interface {
	ClaimDueReturns(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Order, error)
}

type Producer interface {
	PublishReturnUpdated(ctx context.Context, topic string, msg messages.ReturnUpdated) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Poller забирает заказы с подошедшим return_next_check_at, опрашивает
// Ekart и публикует результат в Kafka. Апдейт локального состояния делает
// консьюмер в return-api — воркер базу не пишет (кроме lease при claim).
type Poller struct {
	repo     Repository
	courier  ekart.Client
	producer Producer
	rl       RateLimiter

	topic string

	planner *Planner

	pollInterval       time.Duration
	batchSize          int
	concurrency        int
	lease              time.Duration
	rateLimitPerMinute int64

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalProcessed      atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, courier ekart.Client, producer Producer, rl RateLimiter, topic string) *Poller {
	return &Poller{
		repo: repo, courier: courier, producer: producer, rl: rl, topic: topic,
		planner:            DefaultPlanner(),
		pollInterval:       2 * time.Second,
		batchSize:          100,
		concurrency:        10,
		lease:              120 * time.Second,
		rateLimitPerMinute: 120,
		triggerCh:          make(chan struct{}, 1),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func DefaultPlanner() *Planner {
	return NewPlanner(DefaultPlannerConfig(), nil)
}

func (p *Poller) WithSettings(pollInterval time.Duration, batchSize, concurrency int, lease time.Duration, rlPerMin int64) *Poller {
	if pollInterval > 0 {
		p.pollInterval = pollInterval
	}
	if batchSize > 0 {
		p.batchSize = batchSize
	}
	if concurrency > 0 {
		p.concurrency = concurrency
	}
	if lease > 0 {
		p.lease = lease
	}
	if rlPerMin > 0 {
		p.rateLimitPerMinute = rlPerMin
	}
	return p
}

func (p *Poller) WithPlanner(cfg PlannerConfig) *Poller {
	p.planner = NewPlanner(cfg, nil)
	return p
}

// Trigger forces an immediate poll cycle (best-effort, non-blocking).
func (p *Poller) Trigger() {
	p.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed   int64      `json:"totalClaimed"`
	TotalProcessed int64      `json:"totalProcessed"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (p *Poller) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, p.startedAtUnixNano).UTC(),
		TotalClaimed:   p.totalClaimed.Load(),
		TotalProcessed: p.totalProcessed.Load(),
		TotalErrors:    p.totalErrors.Load(),
		InFlight:       p.inFlight.Load(),
	}
	if n := p.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := p.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	p.lastErrorMu.Lock()
	st.LastError = p.lastError
	p.lastErrorMu.Unlock()
	return st
}

func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.runOnce(ctx)
		case <-p.triggerCh:
			p.runOnce(ctx)
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	p.lastCycleUnixNano.Store(now.UnixNano())

	items, err := p.repo.ClaimDueReturns(ctx, now, p.batchSize, p.lease)
	if err != nil {
		slog.Error("claim due returns", "error", err.Error())
		p.lastErrorMu.Lock()
		p.lastError = err.Error()
		p.lastErrorMu.Unlock()
		return
	}
	p.totalClaimed.Add(int64(len(items)))

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for _, o := range items {
		sem <- struct{}{}
		wg.Add(1)
		oCopy := o
		p.inFlight.Add(1)
		go func() {
			defer func() {
				p.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := p.processOne(ctx, oCopy); err != nil {
				p.totalErrors.Add(1)
				p.lastErrorMu.Lock()
				p.lastError = err.Error()
				p.lastErrorMu.Unlock()
				slog.Error("process return", "order_id", oCopy.OrderID, "error", err.Error())
			}
			p.totalProcessed.Add(1)
		}()
	}
	wg.Wait()
}

func (p *Poller) processOne(ctx context.Context, o *models.Order) error {
	now := time.Now().UTC()
	tid := o.ReturnTracking.EkartTrackingID

	if p.rl != nil && p.rateLimitPerMinute > 0 {
		minuteKey := fmt.Sprintf("rl:ekart:%s", now.Format("200601021504"))
		allowed, n, err := p.rl.Allow(ctx, minuteKey, p.rateLimitPerMinute, 70*time.Second)
		if err != nil {
			return err
		}
		if !allowed {
			// Слишком много запросов в минуту: подождём немного, чтобы разгрузить источник.
			slog.Warn("rate limit exceeded", "count", n)
			time.Sleep(500 * time.Millisecond)
		}
	}

	resp, err := p.courier.TrackShipments(ctx, uuid.NewString(), []string{tid})

	msg := messages.ReturnUpdated{
		OrderID:    o.OrderID,
		TrackingID: tid,
		CheckedAt:  now,
	}

	if err != nil {
		e := err.Error()
		msg.Error = &e
		nextFail := o.ReturnTracking.CheckFailCount + 1
		msg.NextCheckAt = now.Add(p.planner.BackoffDelay(nextFail))
	} else if info, ok := resp[tid]; !ok {
		// Ekart не знает такой tracking ID: не переход статуса, а сбой
		// данных — отступаем как при транспортной ошибке.
		e := fmt.Sprintf("no tracking data for %s", tid)
		msg.Error = &e
		nextFail := o.ReturnTracking.CheckFailCount + 1
		msg.NextCheckAt = now.Add(p.planner.BackoffDelay(nextFail))
	} else {
		// Пустая история — «нет новостей», а не сброс: текущий статус
		// переносится как есть, иначе консьюмер затёр бы его пустой строкой.
		msg.CurrentStatus = o.ReturnTracking.CurrentStatus
		if len(info.History) > 0 {
			// [0] — свежайшее событие.
			msg.CurrentStatus = info.History[0].Status
		}
		msg.NextCheckAt = now.Add(p.planner.NextCheckDelay(msg.CurrentStatus))
		for _, e := range info.History {
			ev := messages.ReturnEvent{
				Status:      e.Status,
				Description: e.PublicDescription,
				EventTime:   ekart.ParseEventTime(e.EventDate, now),
			}
			if e.City != "" {
				city := e.City
				ev.City = &city
			}
			if e.HubName != "" {
				hub := e.HubName
				ev.HubName = &hub
			}
			msg.Events = append(msg.Events, ev)
		}
	}

	// Kafka может быть не готова сразу после старта docker compose.
	// Для демо/устойчивости делаем небольшой retry.
	var pubErr error
	for i := 0; i < 10; i++ {
		if err := p.producer.PublishReturnUpdated(ctx, p.topic, msg); err == nil {
			pubErr = nil
			break
		} else {
			pubErr = err
			time.Sleep(time.Duration(150*(i+1)) * time.Millisecond)
		}
	}
	return pubErr
}
