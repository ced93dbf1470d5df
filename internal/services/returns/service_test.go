package returns

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/ReturnBox/internal/broker/messages"
	"github.com/BearBump/ReturnBox/internal/integrations/ekart"
	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/BearBump/ReturnBox/internal/storage/pgorders"
	"github.com/stretchr/testify/require"
)

// memRepo повторяет семантику pgorders в памяти: poll-апдейт не трогает
// статус заказа, события дедуплицируются, история чистится только в Reset.
type memRepo struct {
	orders map[string]*models.Order
	events map[string][]*models.ReturnEvent

	lastUpdate *pgorders.ReturnUpdate
}

func newMemRepo(orders ...*models.Order) *memRepo {
	r := &memRepo{
		orders: map[string]*models.Order{},
		events: map[string][]*models.ReturnEvent{},
	}
	for _, o := range orders {
		r.orders[o.OrderID] = o
	}
	return r
}

func (r *memRepo) GetOrderByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	o, ok := r.orders[orderID]
	if !ok {
		return nil, pgorders.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *memRepo) ApplyReturnCreated(ctx context.Context, upd pgorders.ReturnCreated) error {
	o, ok := r.orders[upd.OrderID]
	if !ok {
		return pgorders.ErrNotFound
	}
	o.Status = upd.OrderStatus
	created := upd.CreatedAt
	next := upd.NextCheckAt
	o.ReturnTracking = models.ReturnTracking{
		CurrentStatus:            upd.CurrentStatus,
		EkartTrackingID:          upd.TrackingID,
		LastUpdated:              &created,
		RetryCount:               upd.RetryCount,
		PreviousAttemptCancelled: upd.PrevCancelled,
		CancelledDate:            upd.CancelledDate,
		PreviousTrackingID:       upd.PrevTrackingID,
		NextCheckAt:              &next,
	}
	ev := &models.ReturnEvent{
		OrderID:     upd.OrderID,
		Status:      upd.EventStatus,
		Description: upd.EventDescription,
		EventTime:   upd.CreatedAt,
	}
	if upd.PrevTrackingID != "" {
		prev := upd.PrevTrackingID
		ev.PreviousTrackingID = &prev
	}
	r.events[upd.OrderID] = append(r.events[upd.OrderID], ev)
	return nil
}

func (r *memRepo) ApplyReturnUpdate(ctx context.Context, upd pgorders.ReturnUpdate) error {
	o, ok := r.orders[upd.OrderID]
	if !ok {
		return pgorders.ErrNotFound
	}
	cp := upd
	r.lastUpdate = &cp

	checked := upd.CheckedAt
	if upd.Error != nil {
		o.ReturnTracking.CheckFailCount++
		o.ReturnTracking.LastError = upd.Error
	} else {
		// Пустой статус — «без изменений», как NULLIF в pgorders.
		if upd.CurrentStatus != "" {
			o.ReturnTracking.CurrentStatus = upd.CurrentStatus
		}
		o.ReturnTracking.LastUpdated = &checked
		o.ReturnTracking.CheckFailCount = 0
		o.ReturnTracking.LastError = nil
	}
	if upd.NextCheckAt != nil {
		next := *upd.NextCheckAt
		o.ReturnTracking.NextCheckAt = &next
	}
	for _, ev := range upd.Events {
		dup := false
		for _, have := range r.events[upd.OrderID] {
			if have.Status == ev.Status && have.Description == ev.Description && have.EventTime.Equal(ev.EventTime) {
				dup = true
				break
			}
		}
		if !dup {
			r.events[upd.OrderID] = append(r.events[upd.OrderID], ev)
		}
	}
	return nil
}

func (r *memRepo) ResetReturn(ctx context.Context, orderID string) error {
	o, ok := r.orders[orderID]
	if !ok {
		return pgorders.ErrNotFound
	}
	o.Status = models.OrderStatusNew
	o.ReturnTracking = models.ReturnTracking{}
	delete(r.events, orderID)
	return nil
}

func (r *memRepo) ListReturnEvents(ctx context.Context, orderID string, limit, offset int) ([]*models.ReturnEvent, error) {
	return r.events[orderID], nil
}

type stubCourier struct {
	createRes ekart.CreateResult
	createErr error
	trackRes  ekart.TrackResponse
	trackErr  error

	lastCreate *ekart.ShipmentRequest
}

func (c *stubCourier) CreateShipment(ctx context.Context, req *ekart.ShipmentRequest) (ekart.CreateResult, error) {
	c.lastCreate = req
	return c.createRes, c.createErr
}

func (c *stubCourier) TrackShipments(ctx context.Context, requestID string, trackingIDs []string) (ekart.TrackResponse, error) {
	return c.trackRes, c.trackErr
}

type memCache struct {
	m       map[string][]byte
	deleted []string
}

func newMemCache() *memCache { return &memCache{m: map[string][]byte{}} }

func (c *memCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, ok := c.m[key]
	return b, ok, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.m[key] = value
	return nil
}

func (c *memCache) Del(ctx context.Context, key string) error {
	c.deleted = append(c.deleted, key)
	delete(c.m, key)
	return nil
}

func newTestService(repo Repository, courier ekart.Client, c *memCache) *Service {
	if c == nil {
		return New(repo, courier, nil, time.Minute, "IKK", "IKK_BLR_06")
	}
	return New(repo, courier, c, time.Minute, "IKK", "IKK_BLR_06")
}

func TestCreateReturn_AcceptedTransitionsOrder(t *testing.T) {
	repo := newMemRepo(storedOrder())
	courier := &stubCourier{createRes: ekart.CreateResult{Status: ekart.StatusRequestAccepted}}
	svc := newTestService(repo, courier, nil)

	res, err := svc.CreateReturn(context.Background(), CreateReturnInput{OrderID: "IK-1042"})
	require.NoError(t, err)
	require.NotEmpty(t, res.TrackingID)
	require.Equal(t, models.OrderStatusReturnRequested, res.OrderStatus)

	o := repo.orders["IK-1042"]
	require.Equal(t, models.OrderStatusReturnRequested, o.Status)
	require.Equal(t, models.ReturnStatusRequested, o.ReturnTracking.CurrentStatus)
	require.Equal(t, res.TrackingID, o.ReturnTracking.EkartTrackingID)
	require.NotNil(t, o.ReturnTracking.NextCheckAt)

	evs := repo.events["IK-1042"]
	require.Len(t, evs, 1)
	require.Equal(t, models.ReturnStatusRequested, evs[0].Status)

	// Запрос к курьеру собран из данных заказа.
	require.NotNil(t, courier.lastCreate)
	require.Equal(t, "RETURNS_SMART_CHECK", courier.lastCreate.Services[0].ServiceCode)
}

func TestCreateReturn_ResponseTrackingIDWins(t *testing.T) {
	repo := newMemRepo(storedOrder())
	courier := &stubCourier{createRes: ekart.CreateResult{
		Status:     ekart.StatusRequestReceived,
		TrackingID: "EKART-ASSIGNED-1",
	}}
	svc := newTestService(repo, courier, nil)

	res, err := svc.CreateReturn(context.Background(), CreateReturnInput{OrderID: "IK-1042"})
	require.NoError(t, err)
	require.Equal(t, "EKART-ASSIGNED-1", res.TrackingID)
	require.Equal(t, "EKART-ASSIGNED-1", repo.orders["IK-1042"].ReturnTracking.EkartTrackingID)
}

func TestCreateReturn_RejectionLeavesOrderUntouched(t *testing.T) {
	repo := newMemRepo(storedOrder())
	courier := &stubCourier{createRes: ekart.CreateResult{
		Status:  "REQUEST_REJECTED",
		Message: "Sorry, no vendor has pickup serviceability for the given pincode",
	}}
	svc := newTestService(repo, courier, nil)

	_, err := svc.CreateReturn(context.Background(), CreateReturnInput{OrderID: "IK-1042"})
	require.True(t, ekart.IsKind(err, ekart.KindServiceability))

	var apiErr *ekart.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "provide an alternate address", apiErr.Remediation)

	// Ни статус, ни трекинг, ни история не изменились.
	o := repo.orders["IK-1042"]
	require.Equal(t, models.OrderStatusNew, o.Status)
	require.Empty(t, o.ReturnTracking.EkartTrackingID)
	require.Empty(t, repo.events["IK-1042"])
}

func TestCreateReturn_BlockedWhileActive(t *testing.T) {
	o := storedOrder()
	o.Status = models.OrderStatusReturnRequested
	o.ReturnTracking = models.ReturnTracking{
		CurrentStatus:   "In Transit",
		EkartTrackingID: "CLTC-OLD",
	}
	repo := newMemRepo(o)
	svc := newTestService(repo, &stubCourier{}, nil)

	_, err := svc.CreateReturn(context.Background(), CreateReturnInput{OrderID: "IK-1042"})
	var trErr *InvalidTransitionError
	require.ErrorAs(t, err, &trErr)
	require.Equal(t, "In Transit", trErr.Current)
}

func TestCreateReturn_OrderNotFound(t *testing.T) {
	svc := newTestService(newMemRepo(), &stubCourier{}, nil)
	_, err := svc.CreateReturn(context.Background(), CreateReturnInput{OrderID: "nope"})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestTrackReturn_LatestEventBecomesCurrentStatus(t *testing.T) {
	o := storedOrder()
	o.Status = models.OrderStatusReturnRequested
	o.ReturnTracking = models.ReturnTracking{
		CurrentStatus:   models.ReturnStatusRequested,
		EkartTrackingID: "CLTC-1",
	}
	repo := newMemRepo(o)
	courier := &stubCourier{trackRes: ekart.TrackResponse{
		"CLTC-1": {
			History: []ekart.TrackEvent{
				{Status: "Out For Pickup", EventDate: "2026-02-01 09:30:00", PublicDescription: "Executive on the way", City: "Bengaluru"},
				{Status: "Pickup scheduled", EventDate: "2026-01-31 18:00:00"},
			},
			CurrentHub: "BLR_HUB_06",
		},
	}}
	svc := newTestService(repo, courier, nil)

	res, err := svc.TrackReturn(context.Background(), "IK-1042")
	require.NoError(t, err)
	require.Equal(t, "Out For Pickup", res.CurrentStatus)
	require.Equal(t, "BLR_HUB_06", res.Shipment.CurrentHub)

	got := repo.orders["IK-1042"]
	require.Equal(t, "Out For Pickup", got.ReturnTracking.CurrentStatus)
	// Опрос никогда не двигает крупный статус заказа.
	require.Equal(t, models.OrderStatusReturnRequested, got.Status)
	// Синхронный трек не трогает расписание воркера.
	require.NotNil(t, repo.lastUpdate)
	require.Nil(t, repo.lastUpdate.NextCheckAt)

	evs := repo.events["IK-1042"]
	require.Len(t, evs, 1)
	require.Equal(t, "Out For Pickup", evs[0].Status)
	require.Equal(t, time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC), evs[0].EventTime)
}

func TestTrackReturn_RepeatPollIsIdempotent(t *testing.T) {
	o := storedOrder()
	o.ReturnTracking = models.ReturnTracking{CurrentStatus: models.ReturnStatusRequested, EkartTrackingID: "CLTC-1"}
	repo := newMemRepo(o)
	courier := &stubCourier{trackRes: ekart.TrackResponse{
		"CLTC-1": {History: []ekart.TrackEvent{{Status: "In Transit", EventDate: "2026-02-01 10:00:00"}}},
	}}
	svc := newTestService(repo, courier, nil)

	_, err := svc.TrackReturn(context.Background(), "IK-1042")
	require.NoError(t, err)
	_, err = svc.TrackReturn(context.Background(), "IK-1042")
	require.NoError(t, err)

	require.Len(t, repo.events["IK-1042"], 1)
}

func TestTrackReturn_NoShipment(t *testing.T) {
	repo := newMemRepo(storedOrder())
	svc := newTestService(repo, &stubCourier{}, nil)

	_, err := svc.TrackReturn(context.Background(), "IK-1042")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestTrackReturn_MissingKeyIsNotFoundNotTransition(t *testing.T) {
	o := storedOrder()
	o.ReturnTracking = models.ReturnTracking{CurrentStatus: "In Transit", EkartTrackingID: "CLTC-1"}
	repo := newMemRepo(o)
	svc := newTestService(repo, &stubCourier{trackRes: ekart.TrackResponse{}}, nil)

	_, err := svc.TrackReturn(context.Background(), "IK-1042")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)

	// Локальное состояние не изменилось.
	require.Equal(t, "In Transit", repo.orders["IK-1042"].ReturnTracking.CurrentStatus)
	require.Nil(t, repo.lastUpdate)
}

func TestReschedulePickup_LineageCarriedForward(t *testing.T) {
	cancelled := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)
	o := storedOrder()
	o.Status = models.OrderStatusReturnRequested
	o.ReturnTracking = models.ReturnTracking{
		CurrentStatus:   models.ReturnStatusPickupCancelled,
		EkartTrackingID: "CLTC-OLD",
		LastUpdated:     &cancelled,
		RetryCount:      1,
	}
	repo := newMemRepo(o)
	courier := &stubCourier{createRes: ekart.CreateResult{Status: ekart.StatusRequestAccepted}}
	svc := newTestService(repo, courier, nil)

	res, err := svc.ReschedulePickup(context.Background(), CreateReturnInput{OrderID: "IK-1042"})
	require.NoError(t, err)
	require.NotEqual(t, "CLTC-OLD", res.TrackingID)

	got := repo.orders["IK-1042"]
	require.Equal(t, int32(2), got.ReturnTracking.RetryCount)
	require.True(t, got.ReturnTracking.PreviousAttemptCancelled)
	require.Equal(t, "CLTC-OLD", got.ReturnTracking.PreviousTrackingID)
	require.NotNil(t, got.ReturnTracking.CancelledDate)
	require.Equal(t, cancelled, *got.ReturnTracking.CancelledDate)
	require.Equal(t, models.ReturnStatusRequested, got.ReturnTracking.CurrentStatus)

	evs := repo.events["IK-1042"]
	require.Len(t, evs, 1)
	require.NotNil(t, evs[0].PreviousTrackingID)
	require.Equal(t, "CLTC-OLD", *evs[0].PreviousTrackingID)
}

func TestReschedulePickup_RequiresCancelledStatus(t *testing.T) {
	o := storedOrder()
	o.ReturnTracking = models.ReturnTracking{CurrentStatus: "In Transit", EkartTrackingID: "CLTC-1"}
	repo := newMemRepo(o)
	svc := newTestService(repo, &stubCourier{}, nil)

	_, err := svc.ReschedulePickup(context.Background(), CreateReturnInput{OrderID: "IK-1042"})
	var trErr *InvalidTransitionError
	require.ErrorAs(t, err, &trErr)
}

func TestRetryFailedReturn_ResetsToClean(t *testing.T) {
	o := storedOrder()
	o.Status = models.OrderStatusReturnRequested
	o.ReturnTracking = models.ReturnTracking{
		CurrentStatus:   models.ReturnStatusPickupCancelled,
		EkartTrackingID: "CLTC-OLD",
		RetryCount:      3,
	}
	repo := newMemRepo(o)
	repo.events["IK-1042"] = []*models.ReturnEvent{{Status: "old event"}}
	c := newMemCache()
	svc := newTestService(repo, &stubCourier{}, c)

	got, err := svc.RetryFailedReturn(context.Background(), "IK-1042")
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusNew, got.Status)
	require.Empty(t, got.ReturnTracking.EkartTrackingID)
	require.Empty(t, got.ReturnTracking.CurrentStatus)
	require.Zero(t, got.ReturnTracking.RetryCount)
	require.Empty(t, repo.events["IK-1042"])
	require.Contains(t, c.deleted, "return:IK-1042:current")
}

func TestRetryFailedReturn_RequiresCancelledStatus(t *testing.T) {
	o := storedOrder()
	o.ReturnTracking = models.ReturnTracking{CurrentStatus: models.ReturnStatusDelivered, EkartTrackingID: "CLTC-1"}
	repo := newMemRepo(o)
	svc := newTestService(repo, &stubCourier{}, nil)

	_, err := svc.RetryFailedReturn(context.Background(), "IK-1042")
	var trErr *InvalidTransitionError
	require.ErrorAs(t, err, &trErr)
}

func TestBulkTrack_Validation(t *testing.T) {
	svc := newTestService(newMemRepo(), &stubCourier{}, nil)

	_, err := svc.BulkTrack(context.Background(), nil)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)

	tooMany := make([]string, 101)
	for i := range tooMany {
		tooMany[i] = "CLTC"
	}
	_, err = svc.BulkTrack(context.Background(), tooMany)
	require.Error(t, err)
}

func TestGetOrderTracking_CachesAndInvalidates(t *testing.T) {
	o := storedOrder()
	o.Status = models.OrderStatusReturnRequested
	o.ReturnTracking = models.ReturnTracking{CurrentStatus: "In Transit", EkartTrackingID: "CLTC-1"}
	repo := newMemRepo(o)
	c := newMemCache()
	svc := newTestService(repo, &stubCourier{}, c)

	lt, err := svc.GetOrderTracking(context.Background(), "IK-1042")
	require.NoError(t, err)
	require.Equal(t, "In Transit", lt.CurrentStatus)
	require.Contains(t, c.m, "return:IK-1042:current")

	// Повторный вызов обслуживается из кэша: даже если состояние в репо
	// уехало, вернётся закэшированный снимок.
	repo.orders["IK-1042"].ReturnTracking.CurrentStatus = "changed"
	lt, err = svc.GetOrderTracking(context.Background(), "IK-1042")
	require.NoError(t, err)
	require.Equal(t, "In Transit", lt.CurrentStatus)
}

func TestApplyCourierUpdate_MergesAndInvalidatesCache(t *testing.T) {
	o := storedOrder()
	o.Status = models.OrderStatusReturnRequested
	o.ReturnTracking = models.ReturnTracking{CurrentStatus: models.ReturnStatusRequested, EkartTrackingID: "CLTC-1"}
	repo := newMemRepo(o)
	c := newMemCache()
	c.m["return:IK-1042:current"] = []byte(`{}`)
	svc := newTestService(repo, &stubCourier{}, c)

	city := "Bengaluru"
	next := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	err := svc.ApplyCourierUpdate(context.Background(), messages.ReturnUpdated{
		OrderID:       "IK-1042",
		TrackingID:    "CLTC-1",
		CheckedAt:     time.Date(2026, 2, 1, 11, 0, 0, 0, time.UTC),
		CurrentStatus: "In Transit",
		NextCheckAt:   next,
		Events: []messages.ReturnEvent{
			{Status: "In Transit", Description: "Moving to hub", City: &city, EventTime: time.Date(2026, 2, 1, 10, 45, 0, 0, time.UTC)},
		},
	})
	require.NoError(t, err)

	got := repo.orders["IK-1042"]
	require.Equal(t, "In Transit", got.ReturnTracking.CurrentStatus)
	require.Equal(t, models.OrderStatusReturnRequested, got.Status)
	require.NotNil(t, got.ReturnTracking.NextCheckAt)
	require.Equal(t, next, *got.ReturnTracking.NextCheckAt)
	require.Len(t, repo.events["IK-1042"], 1)
	require.Contains(t, c.deleted, "return:IK-1042:current")
}

func TestApplyCourierUpdate_EmptyStatusKeepsCurrent(t *testing.T) {
	// Окно сразу после создания: возврат в "Return requested", у курьера
	// история ещё пустая — воркер шлёт сообщение без событий и без статуса.
	o := storedOrder()
	o.Status = models.OrderStatusReturnRequested
	o.ReturnTracking = models.ReturnTracking{
		CurrentStatus:   models.ReturnStatusRequested,
		EkartTrackingID: "CLTC-1",
	}
	repo := newMemRepo(o)
	svc := newTestService(repo, &stubCourier{}, nil)

	err := svc.ApplyCourierUpdate(context.Background(), messages.ReturnUpdated{
		OrderID:    "IK-1042",
		TrackingID: "CLTC-1",
		CheckedAt:  time.Date(2026, 2, 1, 11, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	got := repo.orders["IK-1042"]
	require.Equal(t, models.ReturnStatusRequested, got.ReturnTracking.CurrentStatus)
	require.Equal(t, models.OrderStatusReturnRequested, got.Status)
	require.Zero(t, got.ReturnTracking.CheckFailCount)
	require.Empty(t, repo.events["IK-1042"])
}

func TestApplyCourierUpdate_ErrorIncrementsFailCount(t *testing.T) {
	o := storedOrder()
	o.ReturnTracking = models.ReturnTracking{CurrentStatus: "In Transit", EkartTrackingID: "CLTC-1"}
	repo := newMemRepo(o)
	svc := newTestService(repo, &stubCourier{}, nil)

	msg := messages.ReturnUpdated{OrderID: "IK-1042", TrackingID: "CLTC-1"}
	e := "connection refused"
	msg.Error = &e
	require.NoError(t, svc.ApplyCourierUpdate(context.Background(), msg))

	got := repo.orders["IK-1042"]
	require.Equal(t, int32(1), got.ReturnTracking.CheckFailCount)
	// Статус возврата при ошибке опроса не трогается.
	require.Equal(t, "In Transit", got.ReturnTracking.CurrentStatus)
}
