package returns_api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/BearBump/ReturnBox/internal/integrations/ekart"
	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/BearBump/ReturnBox/internal/services/returns"
	"github.com/go-chi/chi/v5"
)

type OrdersRepository interface {
	CreateOrder(ctx context.Context, o *models.Order) (*models.Order, error)
	GetOrderByOrderID(ctx context.Context, orderID string) (*models.Order, error)
	ListOrders(ctx context.Context, page, limit int) (*models.OrderListPage, error)
	UpdateOrder(ctx context.Context, o *models.Order) (*models.Order, error)
	DeleteOrder(ctx context.Context, orderID string) error
	UpsertOrders(ctx context.Context, orders []*models.Order) (int, error)
	ListReturnEvents(ctx context.Context, orderID string, limit, offset int) ([]*models.ReturnEvent, error)
}

type ReturnsService interface {
	CreateReturn(ctx context.Context, in returns.CreateReturnInput) (*returns.CreateReturnResult, error)
	ReschedulePickup(ctx context.Context, in returns.CreateReturnInput) (*returns.CreateReturnResult, error)
	RetryFailedReturn(ctx context.Context, orderID string) (*models.Order, error)
	TrackReturn(ctx context.Context, orderID string) (*returns.TrackResult, error)
	GetOrderTracking(ctx context.Context, orderID string) (*returns.LocalTracking, error)
	BulkTrack(ctx context.Context, trackingIDs []string) (ekart.TrackResponse, error)
}

type ReturnsAPI struct {
	orders OrdersRepository
	svc    ReturnsService
}

func New(orders OrdersRepository, svc ReturnsService) *ReturnsAPI {
	return &ReturnsAPI{orders: orders, svc: svc}
}

func (a *ReturnsAPI) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", a.createOrder)
		r.Get("/", a.listOrders)
		r.Post("/import", a.importOrdersCSV)
		r.Route("/{orderID}", func(r chi.Router) {
			r.Get("/", a.getOrder)
			r.Put("/", a.updateOrder)
			r.Delete("/", a.deleteOrder)
		})
	})

	r.Route("/returns", func(r chi.Router) {
		r.Post("/", a.createReturn)
		r.Post("/track", a.bulkTrack)
		r.Route("/{orderID}", func(r chi.Router) {
			r.Get("/", a.getOrderTracking)
			r.Get("/events", a.listReturnEvents)
			r.Get("/track", a.trackReturn)
			r.Post("/reschedule", a.reschedulePickup)
			r.Post("/retry", a.retryReturn)
		})
	})

	return r
}

func (a *ReturnsAPI) createOrder(w http.ResponseWriter, r *http.Request) {
	var in orderDTO
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, &returns.ValidationError{Field: "body"})
		return
	}
	if in.OrderID == "" {
		writeError(w, &returns.ValidationError{Field: "orderId"})
		return
	}
	o, err := a.orders.CreateOrder(r.Context(), in.toModel())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderDTO(o))
}

func (a *ReturnsAPI) listOrders(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	p, err := a.orders.ListOrders(r.Context(), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := orderListDTO{Total: p.Total, Page: p.Page, Limit: p.Limit, Orders: make([]*orderDTO, 0, len(p.Orders))}
	for _, o := range p.Orders {
		out.Orders = append(out.Orders, toOrderDTO(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *ReturnsAPI) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := a.orders.GetOrderByOrderID(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

func (a *ReturnsAPI) updateOrder(w http.ResponseWriter, r *http.Request) {
	var in orderDTO
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, &returns.ValidationError{Field: "body"})
		return
	}
	in.OrderID = chi.URLParam(r, "orderID")
	o, err := a.orders.UpdateOrder(r.Context(), in.toModel())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

func (a *ReturnsAPI) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := a.orders.DeleteOrder(r.Context(), chi.URLParam(r, "orderID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (a *ReturnsAPI) createReturn(w http.ResponseWriter, r *http.Request) {
	var in returns.CreateReturnInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, &returns.ValidationError{Field: "body"})
		return
	}
	res, err := a.svc.CreateReturn(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *ReturnsAPI) reschedulePickup(w http.ResponseWriter, r *http.Request) {
	var in returns.CreateReturnInput
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, &returns.ValidationError{Field: "body"})
			return
		}
	}
	in.OrderID = chi.URLParam(r, "orderID")
	res, err := a.svc.ReschedulePickup(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *ReturnsAPI) retryReturn(w http.ResponseWriter, r *http.Request) {
	o, err := a.svc.RetryFailedReturn(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

func (a *ReturnsAPI) trackReturn(w http.ResponseWriter, r *http.Request) {
	res, err := a.svc.TrackReturn(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *ReturnsAPI) getOrderTracking(w http.ResponseWriter, r *http.Request) {
	res, err := a.svc.GetOrderTracking(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *ReturnsAPI) listReturnEvents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 100
	}
	evs, err := a.orders.ListReturnEvents(r.Context(), chi.URLParam(r, "orderID"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]*returnEventDTO, 0, len(evs))
	for _, e := range evs {
		out = append(out, toReturnEventDTO(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

type bulkTrackRequest struct {
	TrackingIDs []string `json:"trackingIds"`
}

func (a *ReturnsAPI) bulkTrack(w http.ResponseWriter, r *http.Request) {
	var in bulkTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, &returns.ValidationError{Field: "body"})
		return
	}
	res, err := a.svc.BulkTrack(r.Context(), in.TrackingIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
