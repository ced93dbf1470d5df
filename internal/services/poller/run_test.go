package poller

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/ReturnBox/internal/broker/messages"
	"github.com/BearBump/ReturnBox/internal/integrations/ekart"
	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	calls int
}

func (r *fakeRepo) ClaimDueReturns(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Order, error) {
	r.calls++
	return []*models.Order{}, nil
}

type noopProducer struct{}

func (p noopProducer) PublishReturnUpdated(ctx context.Context, topic string, msg messages.ReturnUpdated) error {
	return nil
}

type noopCourier struct{}

func (c noopCourier) CreateShipment(ctx context.Context, req *ekart.ShipmentRequest) (ekart.CreateResult, error) {
	return ekart.CreateResult{}, nil
}

func (c noopCourier) TrackShipments(ctx context.Context, requestID string, trackingIDs []string) (ekart.TrackResponse, error) {
	return ekart.TrackResponse{}, nil
}

func TestPoller_Run_StopsOnContextCancel(t *testing.T) {
	repo := &fakeRepo{}
	p := New(repo, noopCourier{}, noopProducer{}, nil, "t").WithSettings(5*time.Millisecond, 1, 1, 1*time.Second, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := p.Run(ctx)
	require.Error(t, err)
	require.GreaterOrEqual(t, repo.calls, 1)
}
