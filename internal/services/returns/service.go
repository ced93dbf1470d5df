package returns

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BearBump/ReturnBox/internal/broker/messages"
	"github.com/BearBump/ReturnBox/internal/cache"
	"github.com/BearBump/ReturnBox/internal/integrations/ekart"
	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/BearBump/ReturnBox/internal/storage/pgorders"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Repository interface {
	GetOrderByOrderID(ctx context.Context, orderID string) (*models.Order, error)
	ApplyReturnCreated(ctx context.Context, upd pgorders.ReturnCreated) error
	ApplyReturnUpdate(ctx context.Context, upd pgorders.ReturnUpdate) error
	ResetReturn(ctx context.Context, orderID string) error
	ListReturnEvents(ctx context.Context, orderID string, limit, offset int) ([]*models.ReturnEvent, error)
}

// Service — state machine жизненного цикла возврата. Все операции
// сериализуются по orderId; любая ошибка внешнего API означает
// ноль мутаций локального состояния.
type Service struct {
	repo       Repository
	courier    ekart.Client
	cache      cache.BytesCache
	currentTTL time.Duration

	clientName         string
	returnLocationCode string

	locks *keyedMutex
}

func New(repo Repository, courier ekart.Client, c cache.BytesCache, currentTTL time.Duration, clientName, returnLocationCode string) *Service {
	return &Service{
		repo:               repo,
		courier:            courier,
		cache:              c,
		currentTTL:         currentTTL,
		clientName:         clientName,
		returnLocationCode: returnLocationCode,
		locks:              newKeyedMutex(),
	}
}

type CreateReturnResult struct {
	TrackingID  string `json:"trackingId"`
	OrderStatus string `json:"orderStatus"`
}

type ShipmentDetails struct {
	Delivered            bool    `json:"delivered"`
	ShipmentValue        float64 `json:"shipmentValue,omitempty"`
	CurrentHub           string  `json:"currentHub,omitempty"`
	ExpectedDeliveryDate string  `json:"expectedDeliveryDate,omitempty"`
}

type TrackResult struct {
	CurrentStatus string                `json:"currentStatus"`
	History       []*models.ReturnEvent `json:"history"`
	Shipment      ShipmentDetails       `json:"shipment"`
}

// LocalTracking — локальный вид трекинга без похода к курьеру.
type LocalTracking struct {
	OrderID       string                `json:"orderId"`
	OrderStatus   string                `json:"orderStatus"`
	CurrentStatus string                `json:"currentStatus"`
	TrackingID    string                `json:"trackingId"`
	RetryCount    int32                 `json:"retryCount"`
	LastUpdated   *time.Time            `json:"lastUpdated,omitempty"`
	History       []*models.ReturnEvent `json:"history"`
}

// CreateReturn создаёт возвратное отправление. Разрешено, пока нет живого
// (активного нетерминального) отправления. Отказ курьера — классифицированная
// ошибка и ноль мутаций заказа.
func (s *Service) CreateReturn(ctx context.Context, in CreateReturnInput) (*CreateReturnResult, error) {
	if in.OrderID == "" {
		return nil, &ValidationError{Field: "orderId"}
	}
	unlock := s.locks.lock(in.OrderID)
	defer unlock()

	o, err := s.loadOrder(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if o.ReturnTracking.Active() && !o.ReturnTracking.Terminal() {
		return nil, &InvalidTransitionError{
			Current: o.ReturnTracking.CurrentStatus,
			Reason:  "a return shipment is already in progress",
		}
	}

	return s.createShipment(ctx, o, in, pgorders.ReturnCreated{
		EventDescription: "Reverse shipment created with Ekart",
	})
}

// ReschedulePickup повторяет создание после отмены забора курьером,
// с новым tracking ID и lineage-полями прошлой попытки.
func (s *Service) ReschedulePickup(ctx context.Context, in CreateReturnInput) (*CreateReturnResult, error) {
	if in.OrderID == "" {
		return nil, &ValidationError{Field: "orderId"}
	}
	unlock := s.locks.lock(in.OrderID)
	defer unlock()

	o, err := s.loadOrder(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if o.ReturnTracking.CurrentStatus != models.ReturnStatusPickupCancelled {
		return nil, &InvalidTransitionError{Current: o.ReturnTracking.CurrentStatus}
	}

	cancelledAt := time.Now().UTC()
	if o.ReturnTracking.LastUpdated != nil {
		cancelledAt = *o.ReturnTracking.LastUpdated
	}

	return s.createShipment(ctx, o, in, pgorders.ReturnCreated{
		EventDescription: "Reverse pickup rescheduled",
		RetryCount:       o.ReturnTracking.RetryCount + 1,
		PrevCancelled:    true,
		PrevTrackingID:   o.ReturnTracking.EkartTrackingID,
		CancelledDate:    &cancelledAt,
	})
}

// createShipment — общий хвост Create/Reschedule: построить запрос, сходить
// к курьеру, при принятии применить переход одной атомарной записью.
func (s *Service) createShipment(ctx context.Context, o *models.Order, in CreateReturnInput, upd pgorders.ReturnCreated) (*CreateReturnResult, error) {
	trackingID := newTrackingID(o.OrderID)

	req, err := buildShipmentRequest(o, in, s.clientName, s.returnLocationCode, trackingID)
	if err != nil {
		return nil, err
	}

	res, err := s.courier.CreateShipment(ctx, req)
	if err != nil {
		return nil, err
	}
	if !ekart.Accepted(res.Status) {
		return nil, ekart.ClassifyRejection(res.Message)
	}
	if res.TrackingID != "" {
		trackingID = res.TrackingID
	}

	now := time.Now().UTC()
	upd.OrderID = o.OrderID
	upd.TrackingID = trackingID
	upd.OrderStatus = models.OrderStatusReturnRequested
	upd.CurrentStatus = models.ReturnStatusRequested
	upd.EventStatus = models.ReturnStatusRequested
	upd.CreatedAt = now
	upd.NextCheckAt = now

	if err := s.repo.ApplyReturnCreated(ctx, upd); err != nil {
		return nil, err
	}
	s.dropCached(ctx, o.OrderID)

	return &CreateReturnResult{
		TrackingID:  trackingID,
		OrderStatus: models.OrderStatusReturnRequested,
	}, nil
}

// TrackReturn опрашивает курьера и подливает свежайшее событие в историю.
// Статус заказа (order.status) здесь не меняется никогда: поле исключено
// из poll-записи на уровне хранилища.
func (s *Service) TrackReturn(ctx context.Context, orderID string) (*TrackResult, error) {
	if orderID == "" {
		return nil, &ValidationError{Field: "orderId"}
	}
	unlock := s.locks.lock(orderID)
	defer unlock()

	o, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	tid := o.ReturnTracking.EkartTrackingID
	if tid == "" {
		return nil, &NotFoundError{Message: fmt.Sprintf("no return shipment for order %s", orderID)}
	}

	resp, err := s.courier.TrackShipments(ctx, uuid.NewString(), []string{tid})
	if err != nil {
		return nil, err
	}
	info, ok := resp[tid]
	if !ok {
		return nil, &NotFoundError{Message: fmt.Sprintf("no tracking data for %s", tid)}
	}

	now := time.Now().UTC()
	currentStatus := o.ReturnTracking.CurrentStatus
	if len(info.History) > 0 {
		// История приходит в обратном хронологическом порядке: [0] — свежайшее.
		latest := info.History[0]
		currentStatus = latest.Status

		city := latest.City
		hub := latest.HubName
		ev := &models.ReturnEvent{
			Status:      latest.Status,
			Description: latest.PublicDescription,
			EventTime:   ekart.ParseEventTime(latest.EventDate, now),
		}
		if city != "" {
			ev.City = &city
		}
		if hub != "" {
			ev.HubName = &hub
		}

		if err := s.repo.ApplyReturnUpdate(ctx, pgorders.ReturnUpdate{
			OrderID:       orderID,
			CheckedAt:     now,
			CurrentStatus: currentStatus,
			Events:        []*models.ReturnEvent{ev},
		}); err != nil {
			return nil, err
		}
		s.dropCached(ctx, orderID)
	}

	history, err := s.repo.ListReturnEvents(ctx, orderID, 500, 0)
	if err != nil {
		return nil, err
	}

	return &TrackResult{
		CurrentStatus: currentStatus,
		History:       history,
		Shipment: ShipmentDetails{
			Delivered:            info.Delivered,
			ShipmentValue:        info.ShipmentValue,
			CurrentHub:           info.CurrentHub,
			ExpectedDeliveryDate: info.ExpectedDeliveryDate,
		},
	}, nil
}

// GetOrderTracking возвращает локальное состояние без похода к курьеру.
// Текущий вид кэшируется в redis (best effort).
func (s *Service) GetOrderTracking(ctx context.Context, orderID string) (*LocalTracking, error) {
	if orderID == "" {
		return nil, &ValidationError{Field: "orderId"}
	}

	if s.cache != nil && s.currentTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, currentKey(orderID)); err == nil && ok {
			var lt LocalTracking
			if json.Unmarshal(b, &lt) == nil {
				return &lt, nil
			}
		}
	}

	o, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	history, err := s.repo.ListReturnEvents(ctx, orderID, 500, 0)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []*models.ReturnEvent{}
	}

	lt := &LocalTracking{
		OrderID:       o.OrderID,
		OrderStatus:   o.Status,
		CurrentStatus: o.ReturnTracking.CurrentStatus,
		TrackingID:    o.ReturnTracking.EkartTrackingID,
		RetryCount:    o.ReturnTracking.RetryCount,
		LastUpdated:   o.ReturnTracking.LastUpdated,
		History:       history,
	}

	if s.cache != nil && s.currentTTL > 0 {
		b, _ := json.Marshal(lt)
		_ = s.cache.Set(ctx, currentKey(orderID), b, s.currentTTL)
	}
	return lt, nil
}

// BulkTrack — сырой payload курьера по списку tracking ID, без мутаций.
func (s *Service) BulkTrack(ctx context.Context, trackingIDs []string) (ekart.TrackResponse, error) {
	if len(trackingIDs) == 0 {
		return nil, &ValidationError{Field: "trackingIds"}
	}
	if len(trackingIDs) > 100 {
		return nil, errors.New("too many tracking ids (max 100)")
	}
	return s.courier.TrackShipments(ctx, uuid.NewString(), trackingIDs)
}

// RetryFailedReturn сбрасывает возврат в исходное состояние. Легален строго
// из статуса "Reverse pickup cancelled" — единственный случай, когда история
// очищается.
func (s *Service) RetryFailedReturn(ctx context.Context, orderID string) (*models.Order, error) {
	if orderID == "" {
		return nil, &ValidationError{Field: "orderId"}
	}
	unlock := s.locks.lock(orderID)
	defer unlock()

	o, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.ReturnTracking.CurrentStatus != models.ReturnStatusPickupCancelled {
		return nil, &InvalidTransitionError{Current: o.ReturnTracking.CurrentStatus}
	}

	if err := s.repo.ResetReturn(ctx, orderID); err != nil {
		return nil, err
	}
	s.dropCached(ctx, orderID)

	return s.loadOrder(ctx, orderID)
}

// ApplyCourierUpdate применяет сообщение воркера из Kafka. Семантика слияния
// та же, что у TrackReturn: append-only история, статус заказа не трогается.
// Идемпотентно: дубль события гасится уникальным индексом хранилища.
func (s *Service) ApplyCourierUpdate(ctx context.Context, msg messages.ReturnUpdated) error {
	if msg.OrderID == "" {
		return errors.New("order_id is required")
	}
	if msg.CheckedAt.IsZero() {
		msg.CheckedAt = time.Now().UTC()
	}
	if msg.NextCheckAt.IsZero() {
		// fallback: воркер не прислал расписание — проверим через час.
		msg.NextCheckAt = msg.CheckedAt.Add(60 * time.Minute)
	}

	var events []*models.ReturnEvent
	for _, e := range msg.Events {
		events = append(events, &models.ReturnEvent{
			Status:      e.Status,
			Description: e.Description,
			City:        e.City,
			HubName:     e.HubName,
			EventTime:   e.EventTime,
		})
	}

	next := msg.NextCheckAt
	err := s.repo.ApplyReturnUpdate(ctx, pgorders.ReturnUpdate{
		OrderID:       msg.OrderID,
		CheckedAt:     msg.CheckedAt,
		CurrentStatus: msg.CurrentStatus,
		NextCheckAt:   &next,
		Events:        events,
		Error:         msg.Error,
	})
	if err != nil {
		return err
	}

	s.dropCached(ctx, msg.OrderID)
	return nil
}

func (s *Service) loadOrder(ctx context.Context, orderID string) (*models.Order, error) {
	o, err := s.repo.GetOrderByOrderID(ctx, orderID)
	if err == pgorders.ErrNotFound {
		return nil, &NotFoundError{Message: fmt.Sprintf("order %s not found", orderID)}
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) dropCached(ctx context.Context, orderID string) {
	if s.cache != nil {
		_ = s.cache.Del(ctx, currentKey(orderID))
	}
}

func currentKey(orderID string) string {
	return fmt.Sprintf("return:%s:current", orderID)
}
