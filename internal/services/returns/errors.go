package returns

import (
	"fmt"

	"github.com/BearBump/ReturnBox/internal/models"
)

// NotFoundError: нет локальной записи или активного tracking ID —
// "нечего обновлять", в отличие от отказа курьера.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// InvalidTransitionError: операция не разрешена из текущего статуса возврата.
// Текущий статус включён для диагностики.
type InvalidTransitionError struct {
	Current string
	Reason  string
}

func (e *InvalidTransitionError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = fmt.Sprintf("operation requires return status %q", models.ReturnStatusPickupCancelled)
	}
	return fmt.Sprintf("%s, current status is %q", reason, e.Current)
}

// ValidationError: обязательное поле заказа отсутствует до построения запроса.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing or invalid field: %s", e.Field)
}
