package ekarthttp

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BearBump/ReturnBox/internal/integrations/ekart"
	"github.com/pkg/errors"
)

// Ekart выдаёт токен на ~60 минут; кэшируем на 55, чтобы не использовать
// токен на границе истечения.
const tokenTTL = 55 * time.Minute

const authTimeout = 15 * time.Second

// TokenCache — инжектируемый кэш bearer-токена (не пакетный синглтон).
// Конкурентные обновления безопасны: записать более свежий валидный токен
// поверх старого безвредно, поэтому обмен делаем без удержания блокировки.
type TokenCache struct {
	authURL      string
	basicAuth    string
	merchantCode string
	httpc        *http.Client

	mu     sync.RWMutex
	token  string
	expiry time.Time
}

func NewTokenCache(authURL, basicAuth, merchantCode string) *TokenCache {
	return &TokenCache{
		authURL:      authURL,
		basicAuth:    basicAuth,
		merchantCode: merchantCode,
		httpc:        &http.Client{Timeout: authTimeout},
	}
}

// Token возвращает закэшированный токен или выполняет обмен учётных данных.
func (t *TokenCache) Token(ctx context.Context) (string, error) {
	t.mu.RLock()
	tok, exp := t.token, t.expiry
	t.mu.RUnlock()
	if tok != "" && time.Now().Before(exp) {
		return tok, nil
	}

	tok, err := t.refresh(ctx)
	if err != nil {
		return "", err
	}

	t.mu.Lock()
	t.token = tok
	t.expiry = time.Now().Add(tokenTTL)
	t.mu.Unlock()
	return tok, nil
}

// Invalidate сбрасывает кэш (например, после 401 от Ekart).
func (t *TokenCache) Invalidate() {
	t.mu.Lock()
	t.token = ""
	t.expiry = time.Time{}
	t.mu.Unlock()
}

func (t *TokenCache) refresh(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.authURL, strings.NewReader("{}"))
	if err != nil {
		return "", errors.Wrap(err, "new auth request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP_X_MERCHANT_CODE", t.merchantCode)
	req.Header.Set("Authorization", "Basic "+t.basicAuth)

	resp, err := t.httpc.Do(req)
	if err != nil {
		return "", ekart.NewTransportError(errors.Wrap(err, "auth request"))
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", ekart.NewAuthError("ekart auth http " + resp.Status)
	}

	var body struct {
		Authorization string `json:"Authorization"`
		Token         string `json:"token"`
	}
	// Тело может быть пустым (токен только в заголовке) — ошибку декода не считаем фатальной.
	_ = json.NewDecoder(resp.Body).Decode(&body)

	if tok := extractToken(body.Authorization); tok != "" {
		return tok, nil
	}
	if body.Token != "" {
		return body.Token, nil
	}
	if tok := extractToken(resp.Header.Get("Authorization")); tok != "" {
		return tok, nil
	}
	return "", ekart.NewAuthError("token missing in auth response")
}

// extractToken отрезает схему ("Bearer xxx" -> "xxx"); значение без схемы
// возвращается как есть.
func extractToken(v string) string {
	if v == "" {
		return ""
	}
	parts := strings.Fields(v)
	if len(parts) == 2 {
		return parts[1]
	}
	return parts[0]
}
