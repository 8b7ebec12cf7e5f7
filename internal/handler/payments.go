package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/floor/internal/enum"
	"github.com/kiwari-pos/floor/internal/middleware"
	"github.com/kiwari-pos/floor/internal/service"
	"github.com/shopspring/decimal"
)

// PaymentServicer is satisfied by *service.PaymentService.
type PaymentServicer interface {
	CreatePayment(ctx context.Context, req service.CreatePaymentRequest) (*service.PaymentView, error)
	CompletePayment(ctx context.Context, paymentID uuid.UUID) (*service.CompletePaymentResult, error)
	RefundPayment(ctx context.Context, paymentID uuid.UUID, reason string) (*service.RefundResult, error)
	CancelPayment(ctx context.Context, paymentID uuid.UUID) (*service.PaymentView, error)
	FindPaymentByID(ctx context.Context, id uuid.UUID) (*service.PaymentView, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]service.PaymentView, error)
}

type PaymentHandler struct {
	svc PaymentServicer
	log *slog.Logger
}

func NewPaymentHandler(svc PaymentServicer, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{svc: svc, log: logger}
}

// RegisterRoutes registers payment endpoints. Refunds are MANAGER only.
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	till := middleware.RequireRole(enum.RoleServer, enum.RoleCashier)

	r.With(till).Post("/orders/{id}/payments", h.Create)
	r.With(till).Get("/orders/{id}/payments", h.ListByOrder)
	r.With(till).Get("/payments/{pid}", h.Get)
	r.With(middleware.RequireRole(enum.RoleCashier)).Post("/payments/{pid}/complete", h.Complete)
	r.With(middleware.RequireRole()).Post("/payments/{pid}/refund", h.Refund)
	r.With(till).Post("/payments/{pid}/cancel", h.Cancel)
}

// --- Request / Response types ---

type createPaymentRequest struct {
	FoodItemIDs  []uuid.UUID     `json:"food_item_ids"`
	DrinkItemIDs []uuid.UUID     `json:"drink_item_ids"`
	Tip          decimal.Decimal `json:"tip"`
}

type refundPaymentRequest struct {
	Reason string `json:"reason"`
}

type paymentResponse struct {
	ID            uuid.UUID   `json:"id"`
	OrderID       uuid.UUID   `json:"order_id"`
	Amount        string      `json:"amount"`
	Tax           string      `json:"tax"`
	ServiceCharge string      `json:"service_charge"`
	TotalAmount   string      `json:"total_amount"`
	Tip           string      `json:"tip"`
	Status        string      `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	CompletedAt   *time.Time  `json:"completed_at"`
	FoodItemIDs   []uuid.UUID `json:"food_item_ids"`
	DrinkItemIDs  []uuid.UUID `json:"drink_item_ids"`
}

type completePaymentResponse struct {
	Payment        paymentResponse `json:"payment"`
	OrderCompleted bool            `json:"order_completed"`
	OrderStatus    string          `json:"order_status"`
}

type refundResponse struct {
	ID        uuid.UUID `json:"id"`
	PaymentID uuid.UUID `json:"payment_id"`
	Reason    string    `json:"reason"`
	Amount    string    `json:"amount"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type refundPaymentResponse struct {
	Payment     paymentResponse `json:"payment"`
	Refund      refundResponse  `json:"refund"`
	OrderStatus string          `json:"order_status"`
}

// --- Handlers ---

func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	orderID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req createPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.svc.CreatePayment(r.Context(), service.CreatePaymentRequest{
		OrderID:      orderID,
		FoodItemIDs:  req.FoodItemIDs,
		DrinkItemIDs: req.DrinkItemIDs,
		Tip:          req.Tip,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentResponse(*p))
}

func (h *PaymentHandler) ListByOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	payments, err := h.svc.ListPaymentsByOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	resp := make([]paymentResponse, len(payments))
	for i, p := range payments {
		resp[i] = toPaymentResponse(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "pid")
	if !ok {
		return
	}
	p, err := h.svc.FindPaymentByID(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(*p))
}

func (h *PaymentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "pid")
	if !ok {
		return
	}
	res, err := h.svc.CompletePayment(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, completePaymentResponse{
		Payment:        toPaymentResponse(res.Payment),
		OrderCompleted: res.OrderCompleted,
		OrderStatus:    string(res.OrderStatus),
	})
}

func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "pid")
	if !ok {
		return
	}
	var req refundPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.RefundPayment(r.Context(), id, req.Reason)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, refundPaymentResponse{
		Payment: toPaymentResponse(res.Payment),
		Refund: refundResponse{
			ID:        res.Refund.ID,
			PaymentID: res.Refund.PaymentID,
			Reason:    res.Refund.Reason,
			Amount:    money(res.Refund.Amount),
			Status:    string(res.Refund.Status),
			CreatedAt: res.Refund.CreatedAt,
		},
		OrderStatus: string(res.OrderStatus),
	})
}

func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "pid")
	if !ok {
		return
	}
	p, err := h.svc.CancelPayment(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(*p))
}

func toPaymentResponse(p service.PaymentView) paymentResponse {
	return paymentResponse{
		ID:            p.ID,
		OrderID:       p.OrderID,
		Amount:        money(p.Amount),
		Tax:           money(p.Tax),
		ServiceCharge: money(p.ServiceCharge),
		TotalAmount:   money(p.TotalAmount),
		Tip:           money(p.Tip),
		Status:        string(p.Status),
		CreatedAt:     p.CreatedAt,
		CompletedAt:   p.CompletedAt,
		FoodItemIDs:   orEmpty(p.FoodItemIDs),
		DrinkItemIDs:  orEmpty(p.DrinkItemIDs),
	}
}
