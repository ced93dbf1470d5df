package ekart

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorKind — стабильный тег для программной обработки на стороне вызывающего.
type ErrorKind string

const (
	KindAuth           ErrorKind = "AUTH_ERROR"
	KindTransport      ErrorKind = "TRANSPORT_ERROR"
	KindServiceability ErrorKind = "SERVICEABILITY_ERROR"
	KindDuplicate      ErrorKind = "DUPLICATE_SHIPMENT"
	KindRejected       ErrorKind = "REQUEST_REJECTED"
)

// APIError — классифицированный отказ внешнего API.
type APIError struct {
	Kind        ErrorKind
	Message     string
	Remediation string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ekart: %s: %s", e.Kind, e.Message)
}

// Классификация по подстрокам текста отказа Ekart. Это данные, не код:
// новые вендорские сообщения добавляются строкой в таблицу.
var rejectionPatterns = []struct {
	substr      string
	kind        ErrorKind
	remediation string
}{
	{"no vendor has pickup serviceability", KindServiceability, "provide an alternate address"},
	{"shipment already present", KindDuplicate, "regenerate tracking ID and retry"},
}

// ClassifyRejection переводит текст отказа в типизированную ошибку.
// Несовпавшие сообщения — generic REQUEST_REJECTED.
func ClassifyRejection(message string) *APIError {
	low := strings.ToLower(message)
	for _, p := range rejectionPatterns {
		if strings.Contains(low, p.substr) {
			return &APIError{Kind: p.kind, Message: message, Remediation: p.remediation}
		}
	}
	if message == "" {
		message = "request rejected by Ekart"
	}
	return &APIError{Kind: KindRejected, Message: message}
}

func NewAuthError(message string) *APIError {
	return &APIError{Kind: KindAuth, Message: message}
}

// NewTransportError оборачивает сетевые/таймаут/не-2xx ошибки без
// структурированного тела. Состояние заказа при таких ошибках не трогается.
func NewTransportError(err error) *APIError {
	return &APIError{Kind: KindTransport, Message: err.Error()}
}

// IsKind проверяет классификацию через errors.As (ошибка может быть обёрнута).
func IsKind(err error, kind ErrorKind) bool {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}
