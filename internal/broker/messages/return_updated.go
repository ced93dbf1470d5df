package messages

import "time"

// ReturnUpdated — результат одного опроса возврата воркером.
// Публикуется с ключом order_id: Kafka сохраняет порядок в партиции,
// так апдейты одного заказа применяются последовательно.
type ReturnUpdated struct {
	OrderID    string    `json:"order_id"`
	TrackingID string    `json:"tracking_id"`
	CheckedAt  time.Time `json:"checked_at"`

	CurrentStatus string `json:"current_status,omitempty"`

	NextCheckAt time.Time `json:"next_check_at"`

	Events []ReturnEvent `json:"events,omitempty"`

	Error *string `json:"error,omitempty"`
}

type ReturnEvent struct {
	Status      string    `json:"status"`
	Description string    `json:"description,omitempty"`
	City        *string   `json:"city,omitempty"`
	HubName     *string   `json:"hub_name,omitempty"`
	EventTime   time.Time `json:"event_time"`
}
