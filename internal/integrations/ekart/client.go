package ekart

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Client — интеграция с reverse-logistics API Ekart.
// Реализации: ekarthttp (боевой HTTP) и fake (детерминированная заглушка).
type Client interface {
	CreateShipment(ctx context.Context, req *ShipmentRequest) (CreateResult, error)
	TrackShipments(ctx context.Context, requestID string, trackingIDs []string) (TrackResponse, error)
}

// Статусы, которые Ekart возвращает на создание отправления и которые
// считаются принятием заявки. Всё остальное — отказ.
const (
	StatusRequestAccepted = "REQUEST_ACCEPTED"
	StatusRequestReceived = "REQUEST_RECEIVED"
)

func Accepted(status string) bool {
	return status == StatusRequestAccepted || status == StatusRequestReceived
}

type Address struct {
	FirstName            string `json:"first_name,omitempty"`
	AddressLine1         string `json:"address_line1,omitempty"`
	AddressLine2         string `json:"address_line2,omitempty"`
	Pincode              string `json:"pincode,omitempty"`
	City                 string `json:"city,omitempty"`
	State                string `json:"state,omitempty"`
	PrimaryContactNumber string `json:"primary_contact_number,omitempty"`
}

// Location: либо полный адрес (source), либо код склада мерчанта (destination).
type Location struct {
	Address      *Address `json:"address,omitempty"`
	LocationCode string   `json:"location_code,omitempty"`
}

type DimensionValue struct {
	Value float64 `json:"value"`
}

type ShipmentDimensions struct {
	Length  DimensionValue `json:"length"`
	Breadth DimensionValue `json:"breadth"`
	Height  DimensionValue `json:"height"`
	Weight  DimensionValue `json:"weight"`
}

type TaxBreakup struct {
	CGST string `json:"cgst"`
	SGST string `json:"sgst"`
	IGST string `json:"igst"`
}

type ItemCost struct {
	TotalSaleValue float64    `json:"total_sale_value"`
	TotalTaxValue  float64    `json:"total_tax_value"`
	TaxBreakup     TaxBreakup `json:"tax_breakup"`
}

type SellerDetails struct {
	SellerRegName string `json:"seller_reg_name"`
	GSTINID       string `json:"gstin_id"`
}

type ItemAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type PickupInfo struct {
	Reason            string `json:"reason"`
	SubReason         string `json:"sub_reason"`
	ReasonDescription string `json:"reason_description"`
}

type SmartCheck struct {
	Code        string   `json:"code"`
	Inputs      []string `json:"inputs,omitempty"`
	IsMandatory bool     `json:"is_mandatory"`
}

type ShipmentItem struct {
	ProductID      string          `json:"product_id"`
	Category       string          `json:"category"`
	ProductTitle   string          `json:"product_title"`
	Quantity       int             `json:"quantity"`
	Cost           ItemCost        `json:"cost"`
	SellerDetails  SellerDetails   `json:"seller_details"`
	HSN            string          `json:"hsn"`
	ERN            string          `json:"ern"`
	Discount       string          `json:"discount"`
	ItemAttributes []ItemAttribute `json:"item_attributes"`
	PickupInfo     PickupInfo      `json:"pickup_info"`
	SmartChecks    []SmartCheck    `json:"smart_checks"`
}

type Shipment struct {
	ClientReferenceID  string             `json:"client_reference_id"`
	TrackingID         string             `json:"tracking_id"`
	ShipmentValue      float64            `json:"shipment_value"`
	ShipmentDimensions ShipmentDimensions `json:"shipment_dimensions"`
	ShipmentItems      []ShipmentItem     `json:"shipment_items"`
}

type ServiceData struct {
	AmountToCollect float64  `json:"amount_to_collect"`
	DeliveryType    string   `json:"delivery_type"`
	Source          Location `json:"source"`
	Destination     Location `json:"destination"`
}

type ServiceDetail struct {
	ServiceLeg  string      `json:"service_leg"`
	ServiceData ServiceData `json:"service_data"`
	Shipment    Shipment    `json:"shipment"`
}

type ServiceBlock struct {
	ServiceCode    string          `json:"service_code"`
	ServiceDetails []ServiceDetail `json:"service_details"`
}

type ShipmentRequest struct {
	ClientName    string         `json:"client_name"`
	GoodsCategory string         `json:"goods_category"`
	Services      []ServiceBlock `json:"services"`
}

// CreateResult — разобранный ответ на создание. Status проверяется через Accepted;
// Message заполнен при отказе (уже склеенный человекочитаемый текст).
type CreateResult struct {
	Status     string
	TrackingID string
	Message    string
}

type createResponseEntry struct {
	Status     string          `json:"status"`
	TrackingID string          `json:"tracking_id"`
	Message    json.RawMessage `json:"message,omitempty"`
}

// CreateResponse — сырой ответ Ekart на создание отправления.
type CreateResponse struct {
	Response []createResponseEntry `json:"response"`
}

// Result разворачивает первый элемент ответа. Ekart иногда присылает message
// строкой, иногда списком строк — склеиваем в один текст.
func (r *CreateResponse) Result() CreateResult {
	if r == nil || len(r.Response) == 0 {
		return CreateResult{}
	}
	e := r.Response[0]
	return CreateResult{
		Status:     e.Status,
		TrackingID: e.TrackingID,
		Message:    joinMessage(e.Message),
	}
}

func joinMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		return strings.Join(list, "; ")
	}
	return string(raw)
}

// TrackEvent — событие истории. История приходит в обратном хронологическом
// порядке: индекс 0 — самое свежее событие.
type TrackEvent struct {
	Status            string `json:"status"`
	EventDate         string `json:"event_date"`
	PublicDescription string `json:"public_description"`
	City              string `json:"city"`
	HubName           string `json:"hub_name"`
}

type TrackInfo struct {
	History              []TrackEvent `json:"history"`
	Delivered            bool         `json:"delivered"`
	ShipmentValue        float64      `json:"shipment_value"`
	CurrentHub           string       `json:"current_hub"`
	ExpectedDeliveryDate string       `json:"expected_delivery_date"`
}

// TrackResponse — map по tracking ID. Отсутствие ключа для известного
// tracking ID трактуется вызывающей стороной как NotFound, не как переход.
type TrackResponse map[string]TrackInfo

// ParseEventTime разбирает event_date: Ekart присылает его в нескольких
// форматах; непарсимое значение считаем временем опроса.
func ParseEventTime(v string, fallback time.Time) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return fallback
}
