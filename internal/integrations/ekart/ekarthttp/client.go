package ekarthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/BearBump/ReturnBox/internal/integrations/ekart"
	"github.com/pkg/errors"
)

const (
	createPath = "/v2/shipments/create"
	trackPath  = "/v2/shipments/track"
)

type Client struct {
	baseURL      string
	merchantCode string
	tokens       *TokenCache
	httpc        *http.Client
}

func New(baseURL, merchantCode string, tokens *TokenCache) *Client {
	return &Client{
		baseURL:      baseURL,
		merchantCode: merchantCode,
		tokens:       tokens,
		httpc: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *Client) CreateShipment(ctx context.Context, req *ekart.ShipmentRequest) (ekart.CreateResult, error) {
	var out ekart.CreateResponse
	status, err := c.post(ctx, c.baseURL+createPath, req, &out)
	if err != nil {
		return ekart.CreateResult{}, err
	}
	res := out.Result()
	if status/100 != 2 && res.Status == "" {
		// Не-2xx без структурированного тела — транспортная ошибка.
		return ekart.CreateResult{}, ekart.NewTransportError(fmt.Errorf("ekart create http %d", status))
	}
	return res, nil
}

type trackRequest struct {
	RequestID   string   `json:"request_id"`
	TrackingIDs []string `json:"tracking_ids"`
}

func (c *Client) TrackShipments(ctx context.Context, requestID string, trackingIDs []string) (ekart.TrackResponse, error) {
	var out ekart.TrackResponse
	status, err := c.post(ctx, c.baseURL+trackPath, trackRequest{RequestID: requestID, TrackingIDs: trackingIDs}, &out)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		return nil, ekart.NewTransportError(fmt.Errorf("ekart track http %d", status))
	}
	return out, nil
}

// post шлёт авторизованный запрос и декодирует тело в out (если оно есть).
// Возвращает HTTP-статус: отказ Ekart может прийти и с не-2xx, но со
// структурированным телом — решает вызывающий.
func (c *Client) post(ctx context.Context, url string, in, out any) (int, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return 0, err
	}

	body, err := json.Marshal(in)
	if err != nil {
		return 0, errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP_X_MERCHANT_CODE", c.merchantCode)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, ekart.NewTransportError(errors.Wrap(err, "do request"))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// Токен протух раньше окна кэша — сбросим, чтобы следующий вызов обновил.
		c.tokens.Invalidate()
		return resp.StatusCode, ekart.NewAuthError("ekart rejected bearer token")
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, ekart.NewTransportError(errors.Wrap(err, "read body"))
	}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, out)
	}
	return resp.StatusCode, nil
}
