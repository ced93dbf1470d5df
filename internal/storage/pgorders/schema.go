package pgorders

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS orders (
  id BIGSERIAL PRIMARY KEY,
  order_id TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL DEFAULT 'New',

  customer_name TEXT NOT NULL DEFAULT '',
  customer_phone TEXT NOT NULL DEFAULT '',
  customer_email TEXT NOT NULL DEFAULT '',
  customer_address TEXT NOT NULL DEFAULT '',
  city TEXT NOT NULL DEFAULT '',
  state TEXT NOT NULL DEFAULT '',
  pincode TEXT NOT NULL DEFAULT '',

  destination_name TEXT NOT NULL DEFAULT '',
  destination_address_line1 TEXT NOT NULL DEFAULT '',
  destination_address_line2 TEXT NOT NULL DEFAULT '',
  destination_city TEXT NOT NULL DEFAULT '',
  destination_state TEXT NOT NULL DEFAULT '',
  destination_pincode TEXT NOT NULL DEFAULT '',
  destination_phone TEXT NOT NULL DEFAULT '',

  pickup_address TEXT NOT NULL DEFAULT '',
  pickup_city TEXT NOT NULL DEFAULT '',
  pickup_state TEXT NOT NULL DEFAULT '',
  pickup_pincode TEXT NOT NULL DEFAULT '',

  products JSONB NOT NULL DEFAULT '[]',

  dead_weight DOUBLE PRECISION NOT NULL DEFAULT 0,
  length DOUBLE PRECISION NOT NULL DEFAULT 0,
  breadth DOUBLE PRECISION NOT NULL DEFAULT 0,
  height DOUBLE PRECISION NOT NULL DEFAULT 0,
  volumetric_weight DOUBLE PRECISION NOT NULL DEFAULT 0,

  amount DOUBLE PRECISION NOT NULL DEFAULT 0,
  payment_mode TEXT NOT NULL DEFAULT '',

  gstin TEXT NOT NULL DEFAULT '',
  hsn TEXT NOT NULL DEFAULT '',
  invoice_id TEXT NOT NULL DEFAULT '',

  return_current_status TEXT NOT NULL DEFAULT '',
  return_tracking_id TEXT NOT NULL DEFAULT '',
  return_last_updated TIMESTAMPTZ NULL,
  return_retry_count INT NOT NULL DEFAULT 0,
  return_prev_cancelled BOOLEAN NOT NULL DEFAULT FALSE,
  return_cancelled_date TIMESTAMPTZ NULL,
  return_prev_tracking_id TEXT NOT NULL DEFAULT '',
  return_next_check_at TIMESTAMPTZ NULL,
  return_check_fail_count INT NOT NULL DEFAULT 0,
  return_last_error TEXT NULL,

  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_updated_at ON orders(updated_at DESC, created_at DESC)`,
		// Частичный индекс для фонового опроса активных возвратов.
		`CREATE INDEX IF NOT EXISTS idx_orders_return_next_check_at ON orders(return_next_check_at) WHERE return_tracking_id <> ''`,
		`
CREATE TABLE IF NOT EXISTS return_events (
  id BIGSERIAL PRIMARY KEY,
  order_ref BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  status TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  city TEXT NOT NULL DEFAULT '',
  hub_name TEXT NOT NULL DEFAULT '',
  prev_tracking_id TEXT NOT NULL DEFAULT '',
  event_time TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_return_events_order_ref_id ON return_events(order_ref, id)`,
		// Дедупликация событий: повторный опрос с той же историей не плодит записи.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_return_events_dedup ON return_events(order_ref, status, description, event_time)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
