package pgorders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const orderColumns = `
  id, order_id, status,
  customer_name, customer_phone, customer_email, customer_address, city, state, pincode,
  destination_name, destination_address_line1, destination_address_line2,
  destination_city, destination_state, destination_pincode, destination_phone,
  pickup_address, pickup_city, pickup_state, pickup_pincode,
  products,
  dead_weight, length, breadth, height, volumetric_weight,
  amount, payment_mode,
  gstin, hsn, invoice_id,
  return_current_status, return_tracking_id, return_last_updated, return_retry_count,
  return_prev_cancelled, return_cancelled_date, return_prev_tracking_id,
  return_next_check_at, return_check_fail_count, return_last_error,
  created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var products []byte
	if err := row.Scan(
		&o.ID, &o.OrderID, &o.Status,
		&o.CustomerName, &o.CustomerPhone, &o.CustomerEmail, &o.CustomerAddress, &o.City, &o.State, &o.Pincode,
		&o.DestinationName, &o.DestinationAddressLine1, &o.DestinationAddressLine2,
		&o.DestinationCity, &o.DestinationState, &o.DestinationPincode, &o.DestinationPhone,
		&o.PickupAddress, &o.PickupCity, &o.PickupState, &o.PickupPincode,
		&products,
		&o.DeadWeight, &o.Length, &o.Breadth, &o.Height, &o.VolumetricWeight,
		&o.Amount, &o.PaymentMode,
		&o.GSTIN, &o.HSN, &o.InvoiceID,
		&o.ReturnTracking.CurrentStatus, &o.ReturnTracking.EkartTrackingID,
		&o.ReturnTracking.LastUpdated, &o.ReturnTracking.RetryCount,
		&o.ReturnTracking.PreviousAttemptCancelled, &o.ReturnTracking.CancelledDate,
		&o.ReturnTracking.PreviousTrackingID,
		&o.ReturnTracking.NextCheckAt, &o.ReturnTracking.CheckFailCount, &o.ReturnTracking.LastError,
		&o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(products) > 0 {
		if err := json.Unmarshal(products, &o.Products); err != nil {
			return nil, errors.Wrap(err, "unmarshal products")
		}
	}
	return &o, nil
}

// volumetricWeight: стандартный делитель курьера 5000 (см³/кг).
func volumetricWeight(l, b, h float64) float64 {
	if l <= 0 || b <= 0 || h <= 0 {
		return 0
	}
	return l * b * h / 5000
}

func (s *Storage) CreateOrder(ctx context.Context, o *models.Order) (*models.Order, error) {
	if o.OrderID == "" {
		return nil, errors.New("orderId is required")
	}
	if o.Status == "" {
		o.Status = models.OrderStatusNew
	}
	if o.VolumetricWeight == 0 {
		o.VolumetricWeight = volumetricWeight(o.Length, o.Breadth, o.Height)
	}
	products, err := json.Marshal(o.Products)
	if err != nil {
		return nil, errors.Wrap(err, "marshal products")
	}
	if o.Products == nil {
		products = []byte("[]")
	}

	now := time.Now().UTC()
	err = s.db.QueryRow(ctx, `
INSERT INTO orders (
  order_id, status,
  customer_name, customer_phone, customer_email, customer_address, city, state, pincode,
  destination_name, destination_address_line1, destination_address_line2,
  destination_city, destination_state, destination_pincode, destination_phone,
  pickup_address, pickup_city, pickup_state, pickup_pincode,
  products,
  dead_weight, length, breadth, height, volumetric_weight,
  amount, payment_mode, gstin, hsn, invoice_id,
  created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,
        $22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$32)
RETURNING id, created_at, updated_at
`,
		o.OrderID, o.Status,
		o.CustomerName, o.CustomerPhone, o.CustomerEmail, o.CustomerAddress, o.City, o.State, o.Pincode,
		o.DestinationName, o.DestinationAddressLine1, o.DestinationAddressLine2,
		o.DestinationCity, o.DestinationState, o.DestinationPincode, o.DestinationPhone,
		o.PickupAddress, o.PickupCity, o.PickupState, o.PickupPincode,
		products,
		o.DeadWeight, o.Length, o.Breadth, o.Height, o.VolumetricWeight,
		o.Amount, o.PaymentMode, o.GSTIN, o.HSN, o.InvoiceID,
		now,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "insert order")
	}
	return o, nil
}

func (s *Storage) GetOrderByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	row := s.db.QueryRow(ctx, `SELECT`+orderColumns+` FROM orders WHERE order_id = $1`, orderID)
	o, err := scanOrder(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select order")
	}
	return o, nil
}

func (s *Storage) ListOrders(ctx context.Context, page, limit int) (*models.OrderListPage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 500 {
		limit = 20
	}
	offset := (page - 1) * limit

	rows, err := s.db.Query(ctx, `
SELECT`+orderColumns+`
FROM orders
ORDER BY updated_at DESC, created_at DESC
LIMIT $1 OFFSET $2
`, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select orders")
	}
	defer rows.Close()

	out := &models.OrderListPage{Page: page, Limit: limit, Orders: []*models.Order{}}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		out.Orders = append(out.Orders, o)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM orders`).Scan(&out.Total); err != nil {
		return nil, errors.Wrap(err, "count orders")
	}
	return out, nil
}

// UpdateOrder обновляет поля, принадлежащие подсистеме заказов.
// Колонки status и return_* принадлежат ядру жизненного цикла возврата
// и здесь не трогаются.
func (s *Storage) UpdateOrder(ctx context.Context, o *models.Order) (*models.Order, error) {
	if o.VolumetricWeight == 0 {
		o.VolumetricWeight = volumetricWeight(o.Length, o.Breadth, o.Height)
	}
	products, err := json.Marshal(o.Products)
	if err != nil {
		return nil, errors.Wrap(err, "marshal products")
	}
	if o.Products == nil {
		products = []byte("[]")
	}

	tag, err := s.db.Exec(ctx, `
UPDATE orders
SET
  customer_name = $2, customer_phone = $3, customer_email = $4, customer_address = $5,
  city = $6, state = $7, pincode = $8,
  destination_name = $9, destination_address_line1 = $10, destination_address_line2 = $11,
  destination_city = $12, destination_state = $13, destination_pincode = $14, destination_phone = $15,
  pickup_address = $16, pickup_city = $17, pickup_state = $18, pickup_pincode = $19,
  products = $20,
  dead_weight = $21, length = $22, breadth = $23, height = $24, volumetric_weight = $25,
  amount = $26, payment_mode = $27, gstin = $28, hsn = $29, invoice_id = $30,
  updated_at = now()
WHERE order_id = $1
`,
		o.OrderID,
		o.CustomerName, o.CustomerPhone, o.CustomerEmail, o.CustomerAddress,
		o.City, o.State, o.Pincode,
		o.DestinationName, o.DestinationAddressLine1, o.DestinationAddressLine2,
		o.DestinationCity, o.DestinationState, o.DestinationPincode, o.DestinationPhone,
		o.PickupAddress, o.PickupCity, o.PickupState, o.PickupPincode,
		products,
		o.DeadWeight, o.Length, o.Breadth, o.Height, o.VolumetricWeight,
		o.Amount, o.PaymentMode, o.GSTIN, o.HSN, o.InvoiceID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "update order")
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return s.GetOrderByOrderID(ctx, o.OrderID)
}

func (s *Storage) DeleteOrder(ctx context.Context, orderID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM orders WHERE order_id = $1`, orderID)
	if err != nil {
		return errors.Wrap(err, "delete order")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertOrders — массовый импорт (CSV). Существующие заказы обновляются
// только по клиентским полям; состояние возврата не трогаем.
func (s *Storage) UpsertOrders(ctx context.Context, orders []*models.Order) (int, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	n := 0
	for _, o := range orders {
		if o.OrderID == "" {
			continue
		}
		if o.Status == "" {
			o.Status = models.OrderStatusNew
		}
		if o.VolumetricWeight == 0 {
			o.VolumetricWeight = volumetricWeight(o.Length, o.Breadth, o.Height)
		}
		products, err := json.Marshal(o.Products)
		if err != nil {
			return 0, errors.Wrap(err, "marshal products")
		}
		if o.Products == nil {
			products = []byte("[]")
		}

		_, err = tx.Exec(ctx, `
INSERT INTO orders (
  order_id, status,
  customer_name, customer_phone, customer_email, customer_address, city, state, pincode,
  products, dead_weight, length, breadth, height, volumetric_weight,
  amount, payment_mode, gstin, hsn, invoice_id,
  created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$21)
ON CONFLICT (order_id)
DO UPDATE SET
  customer_name = EXCLUDED.customer_name,
  customer_phone = EXCLUDED.customer_phone,
  customer_email = EXCLUDED.customer_email,
  customer_address = EXCLUDED.customer_address,
  city = EXCLUDED.city,
  state = EXCLUDED.state,
  pincode = EXCLUDED.pincode,
  products = EXCLUDED.products,
  dead_weight = EXCLUDED.dead_weight,
  length = EXCLUDED.length,
  breadth = EXCLUDED.breadth,
  height = EXCLUDED.height,
  volumetric_weight = EXCLUDED.volumetric_weight,
  amount = EXCLUDED.amount,
  payment_mode = EXCLUDED.payment_mode,
  gstin = EXCLUDED.gstin,
  hsn = EXCLUDED.hsn,
  invoice_id = EXCLUDED.invoice_id,
  updated_at = now()
`,
			o.OrderID, o.Status,
			o.CustomerName, o.CustomerPhone, o.CustomerEmail, o.CustomerAddress, o.City, o.State, o.Pincode,
			products, o.DeadWeight, o.Length, o.Breadth, o.Height, o.VolumetricWeight,
			o.Amount, o.PaymentMode, o.GSTIN, o.HSN, o.InvoiceID,
			now,
		)
		if err != nil {
			return 0, errors.Wrap(err, "upsert order")
		}
		n++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "commit tx")
	}
	return n, nil
}
