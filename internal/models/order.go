package models

import "time"

// Крупные статусы заказа. Детальный прогресс возврата живёт в ReturnTracking.
const (
	OrderStatusNew             = "New"
	OrderStatusInfoReceived    = "InfoReceived"
	OrderStatusReturnRequested = "RETURN_REQUESTED"
)

// Статусы курьера трактуем как непрозрачные строки, кроме этих двух терминальных.
// Сравнение строгое (case-sensitive): это дословные строки из API Ekart.
const (
	ReturnStatusDelivered       = "Delivered"
	ReturnStatusPickupCancelled = "Reverse pickup cancelled"
)

// Локальный статус сразу после успешного создания возврата,
// до первого события от курьера.
const ReturnStatusRequested = "Return requested"

type Order struct {
	ID      uint64
	OrderID string

	Status string

	CustomerName    string
	CustomerPhone   string
	CustomerEmail   string
	CustomerAddress string
	City            string
	State           string
	Pincode         string

	// Destination-of-record для возвратных отправлений.
	DestinationName         string
	DestinationAddressLine1 string
	DestinationAddressLine2 string
	DestinationCity         string
	DestinationState        string
	DestinationPincode      string
	DestinationPhone        string

	PickupAddress string
	PickupCity    string
	PickupState   string
	PickupPincode string

	Products []OrderProduct

	DeadWeight       float64
	Length           float64
	Breadth          float64
	Height           float64
	VolumetricWeight float64

	Amount      float64
	PaymentMode string

	GSTIN     string
	HSN       string
	InvoiceID string

	ReturnTracking ReturnTracking

	CreatedAt time.Time
	UpdatedAt time.Time
}

type OrderProduct struct {
	ProductName string            `json:"productName"`
	Quantity    int               `json:"quantity"`
	ImageURL    string            `json:"imageUrl,omitempty"`
	SmartChecks []SmartCheckInput `json:"smartChecks,omitempty"`
}

// SmartCheckInput — структурное описание проверки при заборе, как его присылает клиент.
type SmartCheckInput struct {
	Code        string   `json:"code"`
	Inputs      []string `json:"inputs,omitempty"`
	IsMandatory bool     `json:"is_mandatory"`
}

// ReturnTracking принадлежит ядру жизненного цикла возврата.
// CurrentStatus == "" означает "возврат не инициирован" (и тогда
// EkartTrackingID тоже пуст — инвариант хранилища).
type ReturnTracking struct {
	CurrentStatus   string
	EkartTrackingID string
	LastUpdated     *time.Time
	RetryCount      int32

	// Lineage после reschedule: прошлая попытка была отменена курьером.
	PreviousAttemptCancelled bool
	CancelledDate            *time.Time
	PreviousTrackingID       string

	// Служебные поля фонового опроса.
	NextCheckAt    *time.Time
	CheckFailCount int32
	LastError      *string
}

// Active reports whether the order has a live return shipment.
func (rt ReturnTracking) Active() bool {
	return rt.EkartTrackingID != "" && rt.CurrentStatus != ""
}

// Terminal: после этих статусов вперёд двигает только явное действие
// пользователя (retry/reschedule), не опрос.
func (rt ReturnTracking) Terminal() bool {
	return rt.CurrentStatus == ReturnStatusDelivered || rt.CurrentStatus == ReturnStatusPickupCancelled
}

// ReturnEvent — одна запись append-only истории возврата (аудит).
type ReturnEvent struct {
	ID                 uint64
	OrderID            string
	Status             string
	Description        string
	City               *string
	HubName            *string
	PreviousTrackingID *string
	EventTime          time.Time
	CreatedAt          time.Time
}

type OrderListPage struct {
	Total  int
	Page   int
	Limit  int
	Orders []*Order
}
