package returns_api

import (
	"time"

	"github.com/BearBump/ReturnBox/internal/models"
)

// orderDTO — проводной вид заказа. Модель хранилища держим без json-тегов,
// чтобы форма API не протекала в слой БД.
type orderDTO struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status,omitempty"`

	CustomerName    string `json:"customerName"`
	CustomerPhone   string `json:"customerPhone"`
	CustomerEmail   string `json:"customerEmail,omitempty"`
	CustomerAddress string `json:"customerAddress"`
	City            string `json:"city"`
	State           string `json:"state"`
	Pincode         string `json:"pincode"`

	DestinationName         string `json:"destinationName,omitempty"`
	DestinationAddressLine1 string `json:"destinationAddressLine1,omitempty"`
	DestinationAddressLine2 string `json:"destinationAddressLine2,omitempty"`
	DestinationCity         string `json:"destinationCity,omitempty"`
	DestinationState        string `json:"destinationState,omitempty"`
	DestinationPincode      string `json:"destinationPincode,omitempty"`
	DestinationPhone        string `json:"destinationPhone,omitempty"`

	PickupAddress string `json:"pickupAddress,omitempty"`
	PickupCity    string `json:"pickupCity,omitempty"`
	PickupState   string `json:"pickupState,omitempty"`
	PickupPincode string `json:"pickupPincode,omitempty"`

	Products []models.OrderProduct `json:"products,omitempty"`

	DeadWeight       float64 `json:"deadWeight,omitempty"`
	Length           float64 `json:"length,omitempty"`
	Breadth          float64 `json:"breadth,omitempty"`
	Height           float64 `json:"height,omitempty"`
	VolumetricWeight float64 `json:"volumetricWeight,omitempty"`

	Amount      float64 `json:"amount,omitempty"`
	PaymentMode string  `json:"paymentMode,omitempty"`

	GSTIN     string `json:"gstin,omitempty"`
	HSN       string `json:"hsn,omitempty"`
	InvoiceID string `json:"invoiceId,omitempty"`

	ReturnTracking *returnTrackingDTO `json:"returnTracking,omitempty"`

	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

type returnTrackingDTO struct {
	CurrentStatus            string     `json:"currentStatus,omitempty"`
	EkartTrackingID          string     `json:"ekartTrackingId,omitempty"`
	LastUpdated              *time.Time `json:"lastUpdated,omitempty"`
	RetryCount               int32      `json:"retryCount,omitempty"`
	PreviousAttemptCancelled bool       `json:"previousAttemptCancelled,omitempty"`
	CancelledDate            *time.Time `json:"cancelledDate,omitempty"`
	PreviousTrackingID       string     `json:"previousTrackingId,omitempty"`
}

type returnEventDTO struct {
	Status             string    `json:"status"`
	Description        string    `json:"description,omitempty"`
	City               *string   `json:"city,omitempty"`
	HubName            *string   `json:"hubName,omitempty"`
	PreviousTrackingID *string   `json:"previousTrackingId,omitempty"`
	EventTime          time.Time `json:"eventTime"`
}

type orderListDTO struct {
	Total  int         `json:"total"`
	Page   int         `json:"page"`
	Limit  int         `json:"limit"`
	Orders []*orderDTO `json:"orders"`
}

func (d *orderDTO) toModel() *models.Order {
	return &models.Order{
		OrderID: d.OrderID,
		Status:  d.Status,

		CustomerName:    d.CustomerName,
		CustomerPhone:   d.CustomerPhone,
		CustomerEmail:   d.CustomerEmail,
		CustomerAddress: d.CustomerAddress,
		City:            d.City,
		State:           d.State,
		Pincode:         d.Pincode,

		DestinationName:         d.DestinationName,
		DestinationAddressLine1: d.DestinationAddressLine1,
		DestinationAddressLine2: d.DestinationAddressLine2,
		DestinationCity:         d.DestinationCity,
		DestinationState:        d.DestinationState,
		DestinationPincode:      d.DestinationPincode,
		DestinationPhone:        d.DestinationPhone,

		PickupAddress: d.PickupAddress,
		PickupCity:    d.PickupCity,
		PickupState:   d.PickupState,
		PickupPincode: d.PickupPincode,

		Products: d.Products,

		DeadWeight:       d.DeadWeight,
		Length:           d.Length,
		Breadth:          d.Breadth,
		Height:           d.Height,
		VolumetricWeight: d.VolumetricWeight,

		Amount:      d.Amount,
		PaymentMode: d.PaymentMode,

		GSTIN:     d.GSTIN,
		HSN:       d.HSN,
		InvoiceID: d.InvoiceID,
	}
}

func toOrderDTO(o *models.Order) *orderDTO {
	d := &orderDTO{
		OrderID: o.OrderID,
		Status:  o.Status,

		CustomerName:    o.CustomerName,
		CustomerPhone:   o.CustomerPhone,
		CustomerEmail:   o.CustomerEmail,
		CustomerAddress: o.CustomerAddress,
		City:            o.City,
		State:           o.State,
		Pincode:         o.Pincode,

		DestinationName:         o.DestinationName,
		DestinationAddressLine1: o.DestinationAddressLine1,
		DestinationAddressLine2: o.DestinationAddressLine2,
		DestinationCity:         o.DestinationCity,
		DestinationState:        o.DestinationState,
		DestinationPincode:      o.DestinationPincode,
		DestinationPhone:        o.DestinationPhone,

		PickupAddress: o.PickupAddress,
		PickupCity:    o.PickupCity,
		PickupState:   o.PickupState,
		PickupPincode: o.PickupPincode,

		Products: o.Products,

		DeadWeight:       o.DeadWeight,
		Length:           o.Length,
		Breadth:          o.Breadth,
		Height:           o.Height,
		VolumetricWeight: o.VolumetricWeight,

		Amount:      o.Amount,
		PaymentMode: o.PaymentMode,

		GSTIN:     o.GSTIN,
		HSN:       o.HSN,
		InvoiceID: o.InvoiceID,
	}
	if !o.CreatedAt.IsZero() {
		t := o.CreatedAt
		d.CreatedAt = &t
	}
	if !o.UpdatedAt.IsZero() {
		t := o.UpdatedAt
		d.UpdatedAt = &t
	}
	if o.ReturnTracking.EkartTrackingID != "" || o.ReturnTracking.CurrentStatus != "" {
		d.ReturnTracking = &returnTrackingDTO{
			CurrentStatus:            o.ReturnTracking.CurrentStatus,
			EkartTrackingID:          o.ReturnTracking.EkartTrackingID,
			LastUpdated:              o.ReturnTracking.LastUpdated,
			RetryCount:               o.ReturnTracking.RetryCount,
			PreviousAttemptCancelled: o.ReturnTracking.PreviousAttemptCancelled,
			CancelledDate:            o.ReturnTracking.CancelledDate,
			PreviousTrackingID:       o.ReturnTracking.PreviousTrackingID,
		}
	}
	return d
}

func toReturnEventDTO(e *models.ReturnEvent) *returnEventDTO {
	return &returnEventDTO{
		Status:             e.Status,
		Description:        e.Description,
		City:               e.City,
		HubName:            e.HubName,
		PreviousTrackingID: e.PreviousTrackingID,
		EventTime:          e.EventTime,
	}
}
