package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/floor/internal/database"
	"github.com/kiwari-pos/floor/internal/enum"
	"github.com/kiwari-pos/floor/internal/middleware"
	"github.com/kiwari-pos/floor/internal/service"
	"github.com/shopspring/decimal"
)

// OrderServicer is satisfied by *service.OrderService.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.OrderView, error)
	FindOrderByID(ctx context.Context, id uuid.UUID) (*service.OrderView, error)
	ListOrders(ctx context.Context, f service.OrderFilter) ([]service.OrderSummary, error)
	UpdateItemsInOrder(ctx context.Context, id uuid.UUID, req service.UpdateItemsRequest) (*service.OrderView, error)
	UpdateOrderProperties(ctx context.Context, id uuid.UUID, req service.UpdateOrderPropertiesRequest) (*service.OrderView, error)
	PrintOrderItems(ctx context.Context, sel service.ItemSelection) (int, error)
	CallOrderItems(ctx context.Context, sel service.ItemSelection) (int, error)
	DeleteOrder(ctx context.Context, id uuid.UUID) error
}

type OrderHandler struct {
	svc OrderServicer
	log *slog.Logger
}

func NewOrderHandler(svc OrderServicer, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{svc: svc, log: logger}
}

// RegisterRoutes registers order endpoints. Expects an authenticated router;
// MANAGER passes every role check.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	floor := middleware.RequireRole(enum.RoleServer)
	anyone := middleware.RequireRole(enum.RoleServer, enum.RoleCashier, enum.RoleKitchen)

	r.With(floor).Post("/orders", h.Create)
	r.With(anyone).Get("/orders", h.List)
	r.With(floor).Post("/orders/items/print", h.Print)
	r.With(middleware.RequireRole(enum.RoleServer, enum.RoleKitchen)).Post("/orders/items/fire", h.Fire)
	r.With(anyone).Get("/orders/{id}", h.Get)
	r.With(floor).Put("/orders/{id}/items", h.UpdateItems)
	r.With(floor).Patch("/orders/{id}", h.UpdateProperties)
	r.With(floor).Delete("/orders/{id}", h.Delete)
}

// --- Request / Response types ---

type lineItemRequest struct {
	CatalogItemID  uuid.UUID       `json:"catalog_item_id"`
	Discount       decimal.Decimal `json:"discount"`
	SpecialRequest string          `json:"special_request"`
	Allergies      []string        `json:"allergies"`
}

type guestGroupRequest struct {
	GuestNumber int32             `json:"guest_number"`
	Items       []lineItemRequest `json:"items"`
}

type createOrderRequest struct {
	TableNumber string              `json:"table_number"`
	ServerID    *uuid.UUID          `json:"server_id"`
	GuestCount  int32               `json:"guest_count"`
	Discount    decimal.Decimal     `json:"discount"`
	FoodItems   []guestGroupRequest `json:"food_items"`
	DrinkItems  []guestGroupRequest `json:"drink_items"`
}

type updateItemsRequest struct {
	ExpectedVersion int32               `json:"expected_version"`
	FoodItems       []guestGroupRequest `json:"food_items"`
	DrinkItems      []guestGroupRequest `json:"drink_items"`
}

type updatePropertiesRequest struct {
	ExpectedVersion int32            `json:"expected_version"`
	TableNumber     *string          `json:"table_number"`
	ServerID        *uuid.UUID       `json:"server_id"`
	GuestCount      *int32           `json:"guest_count"`
	Status          *string          `json:"status"`
	Discount        *decimal.Decimal `json:"discount"`
}

type selectionRequest struct {
	FoodItemIDs  []uuid.UUID `json:"food_item_ids"`
	DrinkItemIDs []uuid.UUID `json:"drink_item_ids"`
}

type lineItemResponse struct {
	ID             uuid.UUID `json:"id"`
	CatalogItemID  uuid.UUID `json:"catalog_item_id"`
	Name           string    `json:"name"`
	Price          string    `json:"price"`
	Discount       string    `json:"discount"`
	FinalPrice     string    `json:"final_price"`
	SpecialRequest string    `json:"special_request"`
	Allergies      []string  `json:"allergies"`
	Printed        bool      `json:"printed"`
	Fired          bool      `json:"fired"`
	PaymentStatus  string    `json:"payment_status"`
}

type guestGroupResponse struct {
	GuestNumber int32              `json:"guest_number"`
	Items       []lineItemResponse `json:"items"`
}

type orderSummaryResponse struct {
	ID          uuid.UUID  `json:"id"`
	TableNumber string     `json:"table_number"`
	ServerID    uuid.UUID  `json:"server_id"`
	GuestCount  int32      `json:"guest_count"`
	Status      string     `json:"status"`
	Discount    string     `json:"discount"`
	TotalAmount string     `json:"total_amount"`
	Version     int32      `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

type orderResponse struct {
	orderSummaryResponse
	FoodItems  []guestGroupResponse `json:"food_items"`
	DrinkItems []guestGroupResponse `json:"drink_items"`
}

type orderListResponse struct {
	Orders []orderSummaryResponse `json:"orders"`
	Limit  int32                  `json:"limit"`
	Offset int32                  `json:"offset"`
}

// --- Handlers ---

// Create handles POST /orders. The server defaults to the caller.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	serverID := claims.UserID
	if req.ServerID != nil {
		serverID = *req.ServerID
	}

	view, err := h.svc.CreateOrder(r.Context(), service.CreateOrderRequest{
		TableNumber: req.TableNumber,
		ServerID:    serverID,
		GuestCount:  req.GuestCount,
		Discount:    req.Discount,
		FoodItems:   toGuestGroups(req.FoodItems),
		DrinkItems:  toGuestGroups(req.DrinkItems),
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(view))
}

// List handles GET /orders?status=&server_id=&table=&limit=&offset=.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := service.OrderFilter{
		Status:      database.OrderStatus(q.Get("status")),
		TableNumber: q.Get("table"),
	}
	if v := q.Get("server_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid server_id"})
			return
		}
		f.ServerID = id
	}
	var ok bool
	if f.Limit, ok = int32Query(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if f.Offset, ok = int32Query(w, q.Get("offset"), "offset"); !ok {
		return
	}

	orders, err := h.svc.ListOrders(r.Context(), f)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	resp := orderListResponse{Orders: make([]orderSummaryResponse, len(orders)), Limit: f.Limit, Offset: f.Offset}
	for i, o := range orders {
		resp.Orders[i] = toOrderSummaryResponse(o)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	view, err := h.svc.FindOrderByID(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(view))
}

// UpdateItems handles PUT /orders/{id}/items. Items are only ever added.
func (h *OrderHandler) UpdateItems(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req updateItemsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := h.svc.UpdateItemsInOrder(r.Context(), id, service.UpdateItemsRequest{
		ExpectedVersion: req.ExpectedVersion,
		FoodItems:       toGuestGroups(req.FoodItems),
		DrinkItems:      toGuestGroups(req.DrinkItems),
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(view))
}

func (h *OrderHandler) UpdateProperties(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req updatePropertiesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	patch := service.UpdateOrderPropertiesRequest{
		ExpectedVersion: req.ExpectedVersion,
		TableNumber:     req.TableNumber,
		ServerID:        req.ServerID,
		GuestCount:      req.GuestCount,
		Discount:        req.Discount,
	}
	if req.Status != nil {
		status := database.OrderStatus(*req.Status)
		patch.Status = &status
	}

	view, err := h.svc.UpdateOrderProperties(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(view))
}

func (h *OrderHandler) Print(w http.ResponseWriter, r *http.Request) {
	h.mark(w, r, h.svc.PrintOrderItems, "printed")
}

func (h *OrderHandler) Fire(w http.ResponseWriter, r *http.Request) {
	h.mark(w, r, h.svc.CallOrderItems, "fired")
}

func (h *OrderHandler) mark(w http.ResponseWriter, r *http.Request, fn func(context.Context, service.ItemSelection) (int, error), key string) {
	var req selectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := fn(r.Context(), service.ItemSelection{FoodItemIDs: req.FoodItemIDs, DrinkItemIDs: req.DrinkItemIDs})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{key: n})
}

func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteOrder(r.Context(), id); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func int32Query(w http.ResponseWriter, v, name string) (int32, bool) {
	if v == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + name})
		return 0, false
	}
	return int32(n), true
}

func toGuestGroups(in []guestGroupRequest) []service.GuestItemGroup {
	out := make([]service.GuestItemGroup, 0, len(in))
	for _, g := range in {
		items := make([]service.LineItem, len(g.Items))
		for i, it := range g.Items {
			items[i] = service.LineItem{
				CatalogItemID:  it.CatalogItemID,
				Discount:       it.Discount,
				SpecialRequest: it.SpecialRequest,
				Allergies:      it.Allergies,
			}
		}
		out = append(out, service.GuestItemGroup{GuestNumber: g.GuestNumber, Items: items})
	}
	return out
}

func toOrderSummaryResponse(o service.OrderSummary) orderSummaryResponse {
	return orderSummaryResponse{
		ID:          o.ID,
		TableNumber: o.TableNumber,
		ServerID:    o.ServerID,
		GuestCount:  o.GuestCount,
		Status:      string(o.Status),
		Discount:    money(o.Discount),
		TotalAmount: money(o.TotalAmount),
		Version:     o.Version,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
		CompletedAt: o.CompletedAt,
	}
}

func toOrderResponse(v *service.OrderView) orderResponse {
	return orderResponse{
		orderSummaryResponse: toOrderSummaryResponse(v.OrderSummary),
		FoodItems:            toGuestGroupResponses(v.FoodItems),
		DrinkItems:           toGuestGroupResponses(v.DrinkItems),
	}
}

func toGuestGroupResponses(groups []service.GuestItemGroup) []guestGroupResponse {
	out := make([]guestGroupResponse, len(groups))
	for i, g := range groups {
		items := make([]lineItemResponse, len(g.Items))
		for j, it := range g.Items {
			allergies := it.Allergies
			if allergies == nil {
				allergies = []string{}
			}
			items[j] = lineItemResponse{
				ID:             it.ID,
				CatalogItemID:  it.CatalogItemID,
				Name:           it.Name,
				Price:          money(it.Price),
				Discount:       money(it.Discount),
				FinalPrice:     money(it.FinalPrice),
				SpecialRequest: it.SpecialRequest,
				Allergies:      allergies,
				Printed:        it.Printed,
				Fired:          it.Fired,
				PaymentStatus:  string(it.PaymentStatus),
			}
		}
		out[i] = guestGroupResponse{GuestNumber: g.GuestNumber, Items: items}
	}
	return out
}
