package pgorders

import (
	"context"
	"time"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// ReturnCreated — результат принятого курьером создания/пересоздания возврата.
type ReturnCreated struct {
	OrderID string

	TrackingID    string
	OrderStatus   string
	CurrentStatus string

	// Первая запись истории новой попытки.
	EventStatus      string
	EventDescription string

	RetryCount     int32
	PrevCancelled  bool
	PrevTrackingID string
	CancelledDate  *time.Time

	CreatedAt   time.Time
	NextCheckAt time.Time
}

// ReturnUpdate — результат одного опроса трекинга (API или воркер).
type ReturnUpdate struct {
	OrderID string

	CheckedAt time.Time

	// Пустая строка — «без изменений»: текущий статус не трогается.
	CurrentStatus string

	// nil — оставить расписание опроса как есть (синхронный трек из API).
	NextCheckAt *time.Time

	Events []*models.ReturnEvent

	Error *string
}

func (s *Storage) orderRef(ctx context.Context, tx pgx.Tx, orderID string) (uint64, error) {
	var ref uint64
	err := tx.QueryRow(ctx, `SELECT id FROM orders WHERE order_id = $1`, orderID).Scan(&ref)
	if err == pgx.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, errors.Wrap(err, "select order ref")
	}
	return ref, nil
}

func (s *Storage) ApplyReturnCreated(ctx context.Context, upd ReturnCreated) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ref, err := s.orderRef(ctx, tx, upd.OrderID)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
UPDATE orders
SET
  status = $2,
  return_current_status = $3,
  return_tracking_id = $4,
  return_last_updated = $5,
  return_retry_count = $6,
  return_prev_cancelled = $7,
  return_prev_tracking_id = $8,
  return_cancelled_date = $9,
  return_next_check_at = $10,
  return_check_fail_count = 0,
  return_last_error = NULL,
  updated_at = now()
WHERE id = $1
`, ref, upd.OrderStatus, upd.CurrentStatus, upd.TrackingID, upd.CreatedAt.UTC(),
		upd.RetryCount, upd.PrevCancelled, upd.PrevTrackingID, upd.CancelledDate, upd.NextCheckAt.UTC())
	if err != nil {
		return errors.Wrap(err, "update order (return created)")
	}

	prevTID := upd.PrevTrackingID
	_, err = tx.Exec(ctx, `
INSERT INTO return_events (order_ref, status, description, prev_tracking_id, event_time, created_at)
VALUES ($1,$2,$3,$4,$5, now())
ON CONFLICT (order_ref, status, description, event_time) DO NOTHING
`, ref, upd.EventStatus, upd.EventDescription, prevTID, upd.CreatedAt.UTC())
	if err != nil {
		return errors.Wrap(err, "insert return event")
	}

	return errors.Wrap(tx.Commit(ctx), "commit tx")
}

// ApplyReturnUpdate применяет результат опроса. Колонка status здесь
// намеренно отсутствует: опрос никогда не меняет статус заказа.
func (s *Storage) ApplyReturnUpdate(ctx context.Context, upd ReturnUpdate) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ref, err := s.orderRef(ctx, tx, upd.OrderID)
	if err != nil {
		return err
	}

	if upd.Error != nil && *upd.Error != "" {
		_, err := tx.Exec(ctx, `
UPDATE orders
SET
  return_check_fail_count = return_check_fail_count + 1,
  return_last_error = $2,
  return_next_check_at = COALESCE($3, return_next_check_at),
  updated_at = now()
WHERE id = $1
`, ref, *upd.Error, upd.NextCheckAt)
		if err != nil {
			return errors.Wrap(err, "update return (error)")
		}
		return errors.Wrap(tx.Commit(ctx), "commit tx")
	}

	// NULLIF: опрос только добавляет — пустой статус в сообщении не должен
	// сбросить уже достигнутый (например "Return requested" сразу после
	// создания, когда история у курьера ещё пустая).
	_, err = tx.Exec(ctx, `
UPDATE orders
SET
  return_current_status = COALESCE(NULLIF($2, ''), return_current_status),
  return_last_updated = $3,
  return_check_fail_count = 0,
  return_last_error = NULL,
  return_next_check_at = COALESCE($4, return_next_check_at),
  updated_at = now()
WHERE id = $1
`, ref, upd.CurrentStatus, upd.CheckedAt.UTC(), upd.NextCheckAt)
	if err != nil {
		return errors.Wrap(err, "update return (ok)")
	}

	for _, e := range upd.Events {
		city := ""
		if e.City != nil {
			city = *e.City
		}
		hub := ""
		if e.HubName != nil {
			hub = *e.HubName
		}
		_, err := tx.Exec(ctx, `
INSERT INTO return_events (order_ref, status, description, city, hub_name, event_time, created_at)
VALUES ($1,$2,$3,$4,$5,$6, now())
ON CONFLICT (order_ref, status, description, event_time) DO NOTHING
`, ref, e.Status, e.Description, city, hub, e.EventTime.UTC())
		if err != nil {
			return errors.Wrap(err, "insert return event")
		}
	}

	return errors.Wrap(tx.Commit(ctx), "commit tx")
}

// ResetReturn — единственная легальная очистка истории (retry после отмены
// забора): return-поля обнуляются, события удаляются, заказ снова "New".
func (s *Storage) ResetReturn(ctx context.Context, orderID string) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ref, err := s.orderRef(ctx, tx, orderID)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `DELETE FROM return_events WHERE order_ref = $1`, ref)
	if err != nil {
		return errors.Wrap(err, "delete return events")
	}

	_, err = tx.Exec(ctx, `
UPDATE orders
SET
  status = $2,
  return_current_status = '',
  return_tracking_id = '',
  return_last_updated = NULL,
  return_retry_count = 0,
  return_prev_cancelled = FALSE,
  return_cancelled_date = NULL,
  return_prev_tracking_id = '',
  return_next_check_at = NULL,
  return_check_fail_count = 0,
  return_last_error = NULL,
  updated_at = now()
WHERE id = $1
`, ref, models.OrderStatusNew)
	if err != nil {
		return errors.Wrap(err, "reset return")
	}

	return errors.Wrap(tx.Commit(ctx), "commit tx")
}

func (s *Storage) ListReturnEvents(ctx context.Context, orderID string, limit, offset int) ([]*models.ReturnEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	// Порядок вставки, не event_time: история — аудиторский след.
	rows, err := s.db.Query(ctx, `
SELECT e.id, o.order_id, e.status, e.description, e.city, e.hub_name, e.prev_tracking_id, e.event_time, e.created_at
FROM return_events e
JOIN orders o ON o.id = e.order_ref
WHERE o.order_id = $1
ORDER BY e.id ASC
LIMIT $2 OFFSET $3
`, orderID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select return events")
	}
	defer rows.Close()

	var out []*models.ReturnEvent
	for rows.Next() {
		var e models.ReturnEvent
		var city, hub, prevTID string
		if err := rows.Scan(
			&e.ID, &e.OrderID, &e.Status, &e.Description, &city, &hub, &prevTID, &e.EventTime, &e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan return event")
		}
		if city != "" {
			e.City = &city
		}
		if hub != "" {
			e.HubName = &hub
		}
		if prevTID != "" {
			e.PreviousTrackingID = &prevTID
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// ClaimDueReturns выбирает заказы с активным возвратом, готовые к опросу,
// и "бронирует" их через lease, чтобы параллельный воркер их не подхватил.
// Терминальные статусы не опрашиваются: оттуда двигает только пользователь.
func (s *Storage) ClaimDueReturns(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Order, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT`+orderColumns+`
FROM orders
WHERE return_tracking_id <> ''
  AND return_next_check_at IS NOT NULL
  AND return_next_check_at <= $1
  AND return_current_status NOT IN ($2, $3)
ORDER BY return_next_check_at ASC
LIMIT $4
FOR UPDATE SKIP LOCKED
`, now.UTC(), models.ReturnStatusDelivered, models.ReturnStatusPickupCancelled, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due returns")
	}
	defer rows.Close()

	var picked []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan due return")
		}
		picked = append(picked, o)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	leaseUntil := now.UTC().Add(lease)
	for _, o := range picked {
		_, err := tx.Exec(ctx, `UPDATE orders SET return_next_check_at = $2, updated_at = now() WHERE id = $1`, o.ID, leaseUntil)
		if err != nil {
			return nil, errors.Wrap(err, "lease return")
		}
		o.ReturnTracking.NextCheckAt = &leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}
