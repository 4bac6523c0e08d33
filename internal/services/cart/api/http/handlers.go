package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	apperrors "github.com/wrenshaw/cartledger/internal/platform/errors"
	"github.com/wrenshaw/cartledger/internal/services/cart/domain/command"
	"github.com/wrenshaw/cartledger/internal/services/cart/domain/event"
	"github.com/wrenshaw/cartledger/internal/services/cart/storage"
)

type openCartRequest struct {
	CustomerID string `json:"customer_id"`
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type cartItemResponse struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int64           `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type cartResponse struct {
	CartID        string             `json:"cart_id"`
	CustomerID    string             `json:"customer_id"`
	Status        string             `json:"status"`
	Items         []cartItemResponse `json:"items"`
	TotalQuantity int64              `json:"total_quantity"`
	TotalPrice    decimal.Decimal    `json:"total_price"`
	OpenedAt      time.Time          `json:"opened_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	Version       uint64             `json:"version"`
}

type commandResponse struct {
	CartID  string `json:"cart_id"`
	Status  string `json:"status"`
	Version uint64 `json:"version"`
	Events  int    `json:"events"`
}

type eventResponse struct {
	EventID    string          `json:"event_id"`
	Version    uint64          `json:"version"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

type eventsResponse struct {
	CartID  string          `json:"cart_id"`
	Version uint64          `json:"version"`
	Events  []eventResponse `json:"events"`
}

type customerCartResponse struct {
	Status string          `json:"status"`
	Total  decimal.Decimal `json:"total"`
}

type customerResponse struct {
	CustomerID     string                          `json:"customer_id"`
	CartsOpened    int64                           `json:"carts_opened"`
	CartsConfirmed int64                           `json:"carts_confirmed"`
	CartsCancelled int64                           `json:"carts_cancelled"`
	TotalSpent     decimal.Decimal                 `json:"total_spent"`
	Carts          map[string]customerCartResponse `json:"carts"`
	UpdatedAt      time.Time                       `json:"updated_at"`
}

func (s *Server) openCart(w http.ResponseWriter, r *http.Request) {
	var req openCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeCommandUnknown, "malformed request body", err))
		return
	}
	s.execute(w, r, command.TypeOpenCart, command.OpenCartPayload{CustomerID: req.CustomerID})
}

func (s *Server) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeCommandUnknown, "malformed request body", err))
		return
	}
	s.execute(w, r, command.TypeAddItem, command.AddItemPayload{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
}

func (s *Server) removeItem(w http.ResponseWriter, r *http.Request) {
	quantity := int64(1)
	if raw := r.URL.Query().Get("quantity"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, apperrors.New(apperrors.CodeQuantityInvalid, "malformed quantity parameter"))
			return
		}
		quantity = parsed
	}
	s.execute(w, r, command.TypeRemoveItem, command.RemoveItemPayload{
		ProductID: chi.URLParam(r, "productID"),
		Quantity:  quantity,
	})
}

func (s *Server) confirmCart(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, command.TypeConfirmCart, command.ConfirmCartPayload{})
}

func (s *Server) cancelCart(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, command.TypeCancelCart, command.CancelCartPayload{})
}

// execute runs one command for the routed cart and renders the outcome.
func (s *Server) execute(w http.ResponseWriter, r *http.Request, cmdType command.Type, payload any) {
	expected, err := expectedVersion(r)
	if err != nil {
		writeError(w, err)
		return
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		writeError(w, err)
		return
	}
	cmd := command.Command{
		CartID:      chi.URLParam(r, "cartID"),
		Type:        cmdType,
		PayloadJSON: payloadJSON,
	}

	result, err := s.Handler.Execute(r.Context(), cmd, expected)
	if err != nil {
		writeError(w, err)
		return
	}

	setVersionETag(w, result.Version)
	writeJSON(w, http.StatusOK, commandResponse{
		CartID:  cmd.CartID,
		Status:  string(result.State.Status),
		Version: result.Version,
		Events:  len(result.Events),
	})
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	record, err := s.Queries.GetCart(r.Context(), chi.URLParam(r, "cartID"))
	if err != nil {
		writeError(w, err)
		return
	}
	setVersionETag(w, record.Version)
	writeJSON(w, http.StatusOK, toCartResponse(record))
}

func (s *Server) getCartEvents(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cartID")
	events, version, err := s.Queries.GetCartEvents(r.Context(), cartID)
	if err != nil {
		writeError(w, err)
		return
	}

	body := eventsResponse{CartID: cartID, Version: version, Events: make([]eventResponse, 0, len(events))}
	for _, evt := range events {
		body.Events = append(body.Events, toEventResponse(evt))
	}
	setVersionETag(w, version)
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) deleteCart(w http.ResponseWriter, r *http.Request) {
	if err := s.Queries.DeleteCart(r.Context(), chi.URLParam(r, "cartID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getCustomerSummary(w http.ResponseWriter, r *http.Request) {
	record, err := s.Queries.GetCustomerSummary(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		writeError(w, err)
		return
	}

	carts := make(map[string]customerCartResponse, len(record.Carts))
	for cartID, tracked := range record.Carts {
		carts[cartID] = customerCartResponse{Status: tracked.Status, Total: tracked.Total}
	}
	writeJSON(w, http.StatusOK, customerResponse{
		CustomerID:     record.CustomerID,
		CartsOpened:    record.CartsOpened,
		CartsConfirmed: record.CartsConfirmed,
		CartsCancelled: record.CartsCancelled,
		TotalSpent:     record.TotalSpent,
		Carts:          carts,
		UpdatedAt:      record.UpdatedAt,
	})
}

func (s *Server) listCustomerCarts(w http.ResponseWriter, r *http.Request) {
	records, err := s.Queries.ListCustomerCarts(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		writeError(w, err)
		return
	}
	body := make([]cartResponse, 0, len(records))
	for _, record := range records {
		body = append(body, toCartResponse(record))
	}
	writeJSON(w, http.StatusOK, body)
}

func toCartResponse(record storage.CartRecord) cartResponse {
	items := make([]cartItemResponse, 0, len(record.Items))
	for _, line := range record.Items {
		items = append(items, cartItemResponse{
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			LineTotal: line.LineTotal,
		})
	}
	return cartResponse{
		CartID:        record.CartID,
		CustomerID:    record.CustomerID,
		Status:        record.Status,
		Items:         items,
		TotalQuantity: record.TotalQuantity,
		TotalPrice:    record.TotalPrice,
		OpenedAt:      record.OpenedAt,
		UpdatedAt:     record.UpdatedAt,
		Version:       record.Version,
	}
}

func toEventResponse(evt event.Event) eventResponse {
	return eventResponse{
		EventID:    evt.EventID,
		Version:    evt.Version,
		Type:       string(evt.Type),
		OccurredAt: evt.OccurredAt,
		Payload:    json.RawMessage(evt.PayloadJSON),
	}
}
