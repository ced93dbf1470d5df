package returns_api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/BearBump/ReturnBox/internal/integrations/ekart"
	"github.com/BearBump/ReturnBox/internal/services/returns"
	"github.com/BearBump/ReturnBox/internal/storage/pgorders"
	"github.com/pkg/errors"
)

type errorBody struct {
	ErrorType   string `json:"errorType"`
	Message     string `json:"message"`
	Remediation string `json:"remediation,omitempty"`
}

// writeError переводит доменные ошибки в HTTP. Отказ курьера по данным
// заявки — 422 (проблема заявки), сбой самого курьера — 502 (проблема апстрима).
func writeError(w http.ResponseWriter, err error) {
	var (
		code int
		body errorBody
	)

	var vErr *returns.ValidationError
	var nfErr *returns.NotFoundError
	var trErr *returns.InvalidTransitionError
	var apiErr *ekart.APIError

	switch {
	case errors.As(err, &vErr):
		code = http.StatusBadRequest
		body = errorBody{ErrorType: "validation", Message: vErr.Error()}
	case errors.As(err, &nfErr):
		code = http.StatusNotFound
		body = errorBody{ErrorType: "not_found", Message: nfErr.Error()}
	case errors.Is(err, pgorders.ErrNotFound):
		code = http.StatusNotFound
		body = errorBody{ErrorType: "not_found", Message: "order not found"}
	case errors.As(err, &trErr):
		code = http.StatusConflict
		body = errorBody{ErrorType: "invalid_transition", Message: trErr.Error()}
	case errors.As(err, &apiErr):
		switch apiErr.Kind {
		case ekart.KindAuth, ekart.KindTransport:
			code = http.StatusBadGateway
			body = errorBody{ErrorType: "courier_unavailable", Message: apiErr.Message}
		default:
			code = http.StatusUnprocessableEntity
			body = errorBody{
				ErrorType:   string(apiErr.Kind),
				Message:     apiErr.Message,
				Remediation: apiErr.Remediation,
			}
		}
	default:
		slog.Error("internal error", "error", err.Error())
		code = http.StatusInternalServerError
		body = errorBody{ErrorType: "internal", Message: "internal server error"}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
