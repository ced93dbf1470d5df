package pgorders

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPGOrders_RepoFlow(t *testing.T) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "returnbox_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/returnbox_test?sslmode=disable"
	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)

	created, err := st.CreateOrder(ctx, &models.Order{
		OrderID:         "IK-1042",
		CustomerName:    "Asha Rao",
		CustomerPhone:   "9999999999",
		CustomerAddress: "12 MG Road",
		City:            "Bengaluru",
		State:           "Karnataka",
		Pincode:         "560001",
		Products:        []models.OrderProduct{{ProductName: "Silk Kurta", Quantity: 1}},
		Length:          30, Breadth: 20, Height: 5,
		Amount: 2499, HSN: "6204", InvoiceID: "INV-1042",
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.Equal(t, models.OrderStatusNew, created.Status)
	// Волюметрический вес посчитан из габаритов.
	require.InDelta(t, 0.6, created.VolumetricWeight, 0.0001)

	got, err := st.GetOrderByOrderID(ctx, "IK-1042")
	require.NoError(t, err)
	require.Equal(t, "Asha Rao", got.CustomerName)
	require.Len(t, got.Products, 1)

	_, err = st.GetOrderByOrderID(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	// Создание возврата: статус заказа и return-поля меняются атомарно.
	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, st.ApplyReturnCreated(ctx, ReturnCreated{
		OrderID:          "IK-1042",
		TrackingID:       "CLTC-1",
		OrderStatus:      models.OrderStatusReturnRequested,
		CurrentStatus:    models.ReturnStatusRequested,
		EventStatus:      models.ReturnStatusRequested,
		EventDescription: "Reverse shipment created with Ekart",
		CreatedAt:        now,
		NextCheckAt:      now,
	}))

	got, err = st.GetOrderByOrderID(ctx, "IK-1042")
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusReturnRequested, got.Status)
	require.Equal(t, "CLTC-1", got.ReturnTracking.EkartTrackingID)
	require.Equal(t, models.ReturnStatusRequested, got.ReturnTracking.CurrentStatus)

	// Claim: заказ due, claim двигает lease и не отдаёт его повторно.
	lease := 10 * time.Second
	due, err := st.ClaimDueReturns(ctx, now.Add(time.Second), 10, lease)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "IK-1042", due[0].OrderID)

	due2, err := st.ClaimDueReturns(ctx, now.Add(time.Second), 10, lease)
	require.NoError(t, err)
	require.Empty(t, due2)

	// Poll-апдейт: статус возврата двигается, статус заказа — нет.
	evTime := now.Add(time.Minute)
	city := "Bengaluru"
	next := now.Add(30 * time.Minute)
	require.NoError(t, st.ApplyReturnUpdate(ctx, ReturnUpdate{
		OrderID:       "IK-1042",
		CheckedAt:     evTime,
		CurrentStatus: "In Transit",
		NextCheckAt:   &next,
		Events: []*models.ReturnEvent{
			{Status: "In Transit", Description: "Moving to hub", City: &city, EventTime: evTime},
		},
	}))

	got, err = st.GetOrderByOrderID(ctx, "IK-1042")
	require.NoError(t, err)
	require.Equal(t, "In Transit", got.ReturnTracking.CurrentStatus)
	require.Equal(t, models.OrderStatusReturnRequested, got.Status)
	require.Zero(t, got.ReturnTracking.CheckFailCount)

	// Повтор того же события дедуплицируется.
	require.NoError(t, st.ApplyReturnUpdate(ctx, ReturnUpdate{
		OrderID:       "IK-1042",
		CheckedAt:     evTime.Add(time.Minute),
		CurrentStatus: "In Transit",
		Events: []*models.ReturnEvent{
			{Status: "In Transit", Description: "Moving to hub", City: &city, EventTime: evTime},
		},
	}))

	evs, err := st.ListReturnEvents(ctx, "IK-1042", 10, 0)
	require.NoError(t, err)
	require.Len(t, evs, 2) // событие создания + один In Transit
	require.Equal(t, models.ReturnStatusRequested, evs[0].Status)
	require.Equal(t, "In Transit", evs[1].Status)
	require.NotNil(t, evs[1].City)

	// Ошибка опроса инкрементирует счётчик, не трогая статус.
	errMsg := "connection refused"
	require.NoError(t, st.ApplyReturnUpdate(ctx, ReturnUpdate{
		OrderID:   "IK-1042",
		CheckedAt: evTime,
		Error:     &errMsg,
	}))
	got, err = st.GetOrderByOrderID(ctx, "IK-1042")
	require.NoError(t, err)
	require.Equal(t, int32(1), got.ReturnTracking.CheckFailCount)
	require.Equal(t, "In Transit", got.ReturnTracking.CurrentStatus)

	// Апдейт с пустым статусом (у курьера пустая история) — не сброс:
	// достигнутый статус остаётся, счётчик сбоев обнуляется.
	require.NoError(t, st.ApplyReturnUpdate(ctx, ReturnUpdate{
		OrderID:   "IK-1042",
		CheckedAt: evTime.Add(2 * time.Minute),
	}))
	got, err = st.GetOrderByOrderID(ctx, "IK-1042")
	require.NoError(t, err)
	require.Equal(t, "In Transit", got.ReturnTracking.CurrentStatus)
	require.Zero(t, got.ReturnTracking.CheckFailCount)

	// UpdateOrder принадлежит подсистеме заказов: return-поля и статус не трогает.
	got.CustomerPhone = "8888888888"
	updated, err := st.UpdateOrder(ctx, got)
	require.NoError(t, err)
	require.Equal(t, "8888888888", updated.CustomerPhone)
	require.Equal(t, models.OrderStatusReturnRequested, updated.Status)
	require.Equal(t, "CLTC-1", updated.ReturnTracking.EkartTrackingID)

	// Upsert существующего заказа тоже не трогает состояние возврата.
	n, err := st.UpsertOrders(ctx, []*models.Order{
		{OrderID: "IK-1042", CustomerName: "Asha R", Amount: 2599},
		{OrderID: "IK-2000", CustomerName: "Ravi", Amount: 900},
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	got, err = st.GetOrderByOrderID(ctx, "IK-1042")
	require.NoError(t, err)
	require.Equal(t, "Asha R", got.CustomerName)
	require.Equal(t, "CLTC-1", got.ReturnTracking.EkartTrackingID)
	require.Equal(t, models.OrderStatusReturnRequested, got.Status)

	page, err := st.ListOrders(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)
	require.Len(t, page.Orders, 2)

	// Reset: единственная очистка истории.
	require.NoError(t, st.ResetReturn(ctx, "IK-1042"))
	got, err = st.GetOrderByOrderID(ctx, "IK-1042")
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusNew, got.Status)
	require.Empty(t, got.ReturnTracking.EkartTrackingID)
	evs, err = st.ListReturnEvents(ctx, "IK-1042", 10, 0)
	require.NoError(t, err)
	require.Empty(t, evs)

	require.NoError(t, st.DeleteOrder(ctx, "IK-2000"))
	require.ErrorIs(t, st.DeleteOrder(ctx, "IK-2000"), ErrNotFound)
}
