package returns

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/BearBump/ReturnBox/internal/integrations/ekart"
	"github.com/BearBump/ReturnBox/internal/models"
)

// Хардкод-фоллбеки: используются, когда ни запрос, ни заказ не дали значения.
const (
	defaultClientName         = "IKK"
	defaultReturnLocationCode = "IKK_BLR_06"
	defaultSellerRegName      = "Ikkasa Concept Pvt Limite"
)

// CreateReturnInput — поля создания/пересоздания возврата. Значение из
// запроса побеждает сохранённое в заказе; сохранённое — хардкод-фоллбек.
type CreateReturnInput struct {
	OrderID string `json:"orderId"`

	CustomerName    string `json:"customerName"`
	CustomerPhone   string `json:"customerPhone"`
	CustomerEmail   string `json:"customerEmail"`
	CustomerAddress string `json:"customerAddress"`
	City            string `json:"city"`
	State           string `json:"state"`
	Pincode         string `json:"pincode"`

	Products []models.OrderProduct `json:"products"`

	DeadWeight       float64 `json:"deadWeight"`
	Length           float64 `json:"length"`
	Breadth          float64 `json:"breadth"`
	Height           float64 `json:"height"`
	VolumetricWeight float64 `json:"volumetricWeight"`

	Amount      float64 `json:"amount"`
	PaymentMode string  `json:"paymentMode"`

	GSTIN     string `json:"gstin"`
	HSN       string `json:"hsn"`
	InvoiceID string `json:"invoiceId"`

	// Переопределение склада назначения (destination-of-record).
	DestinationLocationCode string `json:"destinationLocationCode"`
}

func pick(override, stored string) string {
	if override != "" {
		return override
	}
	return stored
}

func pickF(override, stored float64) float64 {
	if override > 0 {
		return override
	}
	return stored
}

// floorDim: Ekart отклоняет нулевые габариты/вес, минимум 1.
func floorDim(v float64) float64 {
	if v < 1 {
		return 1
	}
	return v
}

// newTrackingID выводит корреляционный ID из цифр orderId плюс время и
// случайный хвост. Повтор ID для того же заказа недопустим: Ekart отвечает
// жёстким отказом DUPLICATE_SHIPMENT на дубль.
func newTrackingID(orderID string) string {
	var digits strings.Builder
	for _, r := range orderID {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
			if digits.Len() >= 10 {
				break
			}
		}
	}
	return fmt.Sprintf("CLTC%s%06d%04d", digits.String(), time.Now().UnixNano()%1_000_000, rand.Intn(10_000))
}

// clientReferenceID: только алфавитно-цифровые символы, максимум 20.
func clientReferenceID(orderID string) string {
	var b strings.Builder
	for _, r := range orderID {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
			if b.Len() >= 20 {
				break
			}
		}
	}
	return b.String()
}

type merged struct {
	CustomerName    string
	CustomerPhone   string
	CustomerAddress string
	City            string
	State           string
	Pincode         string

	Products []models.OrderProduct

	Weight  float64
	Length  float64
	Breadth float64
	Height  float64

	Amount    float64
	GSTIN     string
	HSN       string
	InvoiceID string

	LocationCode string
}

func mergeInput(o *models.Order, in CreateReturnInput, fallbackLocation string) merged {
	m := merged{
		CustomerName:    pick(in.CustomerName, o.CustomerName),
		CustomerPhone:   pick(in.CustomerPhone, o.CustomerPhone),
		CustomerAddress: pick(in.CustomerAddress, o.CustomerAddress),
		City:            pick(in.City, o.City),
		State:           pick(in.State, o.State),
		Pincode:         pick(in.Pincode, o.Pincode),

		Products: in.Products,

		Weight:  pickF(pickF(in.DeadWeight, in.VolumetricWeight), pickF(o.DeadWeight, o.VolumetricWeight)),
		Length:  pickF(in.Length, o.Length),
		Breadth: pickF(in.Breadth, o.Breadth),
		Height:  pickF(in.Height, o.Height),

		Amount:    pickF(in.Amount, o.Amount),
		GSTIN:     pick(in.GSTIN, o.GSTIN),
		HSN:       pick(in.HSN, o.HSN),
		InvoiceID: pick(in.InvoiceID, o.InvoiceID),

		LocationCode: pick(in.DestinationLocationCode, fallbackLocation),
	}
	if len(m.Products) == 0 {
		m.Products = o.Products
	}
	if m.LocationCode == "" {
		m.LocationCode = defaultReturnLocationCode
	}
	return m
}

func (m merged) validate() error {
	switch {
	case m.CustomerName == "":
		return &ValidationError{Field: "customerName"}
	case m.CustomerPhone == "":
		return &ValidationError{Field: "customerPhone"}
	case m.CustomerAddress == "":
		return &ValidationError{Field: "customerAddress"}
	case m.City == "":
		return &ValidationError{Field: "city"}
	case m.State == "":
		return &ValidationError{Field: "state"}
	case m.Pincode == "":
		return &ValidationError{Field: "pincode"}
	case len(m.Products) == 0:
		return &ValidationError{Field: "products"}
	case m.Amount <= 0:
		return &ValidationError{Field: "amount"}
	case m.HSN == "":
		return &ValidationError{Field: "hsn"}
	case m.InvoiceID == "":
		return &ValidationError{Field: "invoiceId"}
	}
	return nil
}

// buildShipmentRequest собирает payload создания возврата по схеме Ekart.
// Чистая функция: читает заказ и входные поля, ничего не мутирует.
func buildShipmentRequest(o *models.Order, in CreateReturnInput, clientName string, fallbackLocation, trackingID string) (*ekart.ShipmentRequest, error) {
	m := mergeInput(o, in, fallbackLocation)
	if err := m.validate(); err != nil {
		return nil, err
	}
	if clientName == "" {
		clientName = defaultClientName
	}

	items := make([]ekart.ShipmentItem, 0, len(m.Products))
	for i, p := range m.Products {
		items = append(items, ekart.ShipmentItem{
			ProductID:    fmt.Sprintf("SKU-%d", i+1),
			Category:     "Apparel",
			ProductTitle: p.ProductName,
			Quantity:     p.Quantity,
			Cost: ekart.ItemCost{
				TotalSaleValue: m.Amount,
				TaxBreakup:     ekart.TaxBreakup{CGST: "0.0", SGST: "0.0", IGST: "0.0"},
			},
			SellerDetails: ekart.SellerDetails{
				SellerRegName: defaultSellerRegName,
				GSTINID:       m.GSTIN,
			},
			HSN: m.HSN,
			ItemAttributes: []ekart.ItemAttribute{
				{Name: "order_id", Value: o.OrderID},
				{Name: "invoice_id", Value: m.InvoiceID},
			},
			PickupInfo: ekart.PickupInfo{
				Reason:            "OTHER_REASON",
				SubReason:         "OTHER_REASON",
				ReasonDescription: "Customer requested for Return",
			},
			SmartChecks: buildSmartChecks(p),
		})
	}

	return &ekart.ShipmentRequest{
		ClientName:    clientName,
		GoodsCategory: "ESSENTIAL",
		Services: []ekart.ServiceBlock{{
			ServiceCode: "RETURNS_SMART_CHECK",
			ServiceDetails: []ekart.ServiceDetail{{
				ServiceLeg: "REVERSE",
				ServiceData: ekart.ServiceData{
					DeliveryType: "SMALL",
					Source: ekart.Location{Address: &ekart.Address{
						FirstName:            m.CustomerName,
						AddressLine1:         m.CustomerAddress,
						AddressLine2:         m.City,
						Pincode:              m.Pincode,
						City:                 m.City,
						State:                m.State,
						PrimaryContactNumber: m.CustomerPhone,
					}},
					Destination: ekart.Location{LocationCode: m.LocationCode},
				},
				Shipment: ekart.Shipment{
					ClientReferenceID: clientReferenceID(o.OrderID),
					TrackingID:        trackingID,
					ShipmentValue:     m.Amount,
					ShipmentDimensions: ekart.ShipmentDimensions{
						Length:  ekart.DimensionValue{Value: floorDim(m.Length)},
						Breadth: ekart.DimensionValue{Value: floorDim(m.Breadth)},
						Height:  ekart.DimensionValue{Value: floorDim(m.Height)},
						Weight:  ekart.DimensionValue{Value: floorDim(m.Weight)},
					},
					ShipmentItems: items,
				},
			}},
		}},
	}, nil
}

// buildSmartChecks транслирует клиентские проверки в схему Ekart;
// без них — одна минимальная проверка по умолчанию.
func buildSmartChecks(p models.OrderProduct) []ekart.SmartCheck {
	if len(p.SmartChecks) == 0 {
		return []ekart.SmartCheck{{
			Code:        "PHYSICAL_CONDITION",
			Inputs:      []string{p.ProductName},
			IsMandatory: true,
		}}
	}
	out := make([]ekart.SmartCheck, 0, len(p.SmartChecks))
	for _, c := range p.SmartChecks {
		out = append(out, ekart.SmartCheck{
			Code:        c.Code,
			Inputs:      c.Inputs,
			IsMandatory: c.IsMandatory,
		})
	}
	return out
}
