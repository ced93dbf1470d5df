package fake

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/BearBump/ReturnBox/internal/integrations/ekart"
	"github.com/BearBump/ReturnBox/internal/models"
)

// FakeClient — локальная заглушка Ekart для демо и тестов.
// Создание всегда принимается; трекинг детерминирован по tracking ID:
// часть отправлений "доставлена", часть "отменена", остальные в пути.
type FakeClient struct{}

func New() *FakeClient { return &FakeClient{} }

func (f *FakeClient) CreateShipment(ctx context.Context, req *ekart.ShipmentRequest) (ekart.CreateResult, error) {
	tid := ""
	if len(req.Services) > 0 && len(req.Services[0].ServiceDetails) > 0 {
		tid = req.Services[0].ServiceDetails[0].Shipment.TrackingID
	}
	return ekart.CreateResult{
		Status:     ekart.StatusRequestAccepted,
		TrackingID: tid,
	}, nil
}

func (f *FakeClient) TrackShipments(ctx context.Context, requestID string, trackingIDs []string) (ekart.TrackResponse, error) {
	now := time.Now().UTC()
	out := make(ekart.TrackResponse, len(trackingIDs))
	for _, tid := range trackingIDs {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tid))
		v := h.Sum32()

		status := "In Transit"
		desc := "Shipment is moving to the hub"
		switch v % 5 {
		case 0:
			status = models.ReturnStatusDelivered
			desc = "Shipment delivered to merchant warehouse"
		case 1:
			status = models.ReturnStatusPickupCancelled
			desc = "Pickup attempt cancelled by field executive"
		}

		out[tid] = ekart.TrackInfo{
			History: []ekart.TrackEvent{
				{
					Status:            status,
					EventDate:         now.Format("2006-01-02 15:04:05"),
					PublicDescription: desc,
					City:              "Bengaluru",
					HubName:           "BLR_HUB_06",
				},
				{
					Status:            "Pickup scheduled",
					EventDate:         now.Add(-24 * time.Hour).Format("2006-01-02 15:04:05"),
					PublicDescription: "Reverse pickup scheduled",
					City:              "Bengaluru",
				},
			},
			Delivered:  status == models.ReturnStatusDelivered,
			CurrentHub: "BLR_HUB_06",
		}
	}
	return out, nil
}
