package returns_api

import (
	"encoding/csv"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/BearBump/ReturnBox/internal/services/returns"
)

// importOrdersCSV принимает CSV с шапкой и делает upsert заказов.
// Существующие заказы обновляются только в клиентских полях: статус и
// состояние возврата импорт не трогает.
func (a *ReturnsAPI) importOrdersCSV(w http.ResponseWriter, r *http.Request) {
	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		f, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, &returns.ValidationError{Field: "file"})
			return
		}
		defer f.Close()
		src = f
	}

	orders, skipped, err := parseOrdersCSV(src)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(orders) == 0 {
		writeError(w, &returns.ValidationError{Field: "file"})
		return
	}

	n, err := a.orders.UpsertOrders(r.Context(), orders)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": n, "skipped": skipped})
}

func parseOrdersCSV(src io.Reader) ([]*models.Order, int, error) {
	cr := csv.NewReader(src)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, 0, &returns.ValidationError{Field: "header"}
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := col["order_id"]; !ok {
		return nil, 0, &returns.ValidationError{Field: "order_id"}
	}

	get := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	getF := func(rec []string, name string) float64 {
		v, _ := strconv.ParseFloat(get(rec, name), 64)
		return v
	}

	var (
		orders  []*models.Order
		skipped int
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Кривую строку пропускаем, не роняя весь импорт.
			skipped++
			continue
		}
		orderID := get(rec, "order_id")
		if orderID == "" {
			skipped++
			continue
		}

		o := &models.Order{
			OrderID: orderID,
			Status:  models.OrderStatusNew,

			CustomerName:    get(rec, "customer_name"),
			CustomerPhone:   get(rec, "customer_phone"),
			CustomerEmail:   get(rec, "customer_email"),
			CustomerAddress: get(rec, "customer_address"),
			City:            get(rec, "city"),
			State:           get(rec, "state"),
			Pincode:         get(rec, "pincode"),

			DeadWeight: getF(rec, "dead_weight"),
			Length:     getF(rec, "length"),
			Breadth:    getF(rec, "breadth"),
			Height:     getF(rec, "height"),

			Amount:      getF(rec, "amount"),
			PaymentMode: get(rec, "payment_mode"),

			GSTIN:     get(rec, "gstin"),
			HSN:       get(rec, "hsn"),
			InvoiceID: get(rec, "invoice_id"),
		}
		if name := get(rec, "product_name"); name != "" {
			qty, _ := strconv.Atoi(get(rec, "quantity"))
			if qty <= 0 {
				qty = 1
			}
			o.Products = []models.OrderProduct{{ProductName: name, Quantity: qty, ImageURL: get(rec, "image_url")}}
		}
		orders = append(orders, o)
	}
	return orders, skipped, nil
}
