package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/fjod/go_marketplace/internal/domain"
	"github.com/fjod/go_marketplace/internal/service"
	"github.com/go-chi/chi/v5"
)

type CartHandler struct {
	registry *service.Registry
	timeout  time.Duration
}

func NewCartHandler(registry *service.Registry, timeout time.Duration) *CartHandler {
	return &CartHandler{
		registry: registry,
		timeout:  timeout,
	}
}

type AddItemRequestDTO struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url"`
	Price    float64 `json:"price"`
}

type CartResponseDTO struct {
	Items      []domain.CartItem `json:"items"`
	TotalItems int               `json:"total_items"`
	TotalPrice float64           `json:"total_price"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *CartHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(UserMiddleware)
	r.Get("/", h.GetCart)
	r.Delete("/", h.ClearCart)
	r.Post("/items", h.AddItem)
	r.Post("/items/{id}/increment", h.Increment)
	r.Post("/items/{id}/decrement", h.Decrement)
	return r
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	store, ok := h.storeFor(w, r)
	if !ok {
		return
	}

	if err := store.Hydrate(ctx); err != nil {
		h.handleStoreError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, cartResponse(store.Products()))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	store, ok := h.storeFor(w, r)
	if !ok {
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	product := domain.Product{
		ID:       req.ID,
		Title:    req.Title,
		ImageURL: req.ImageURL,
		Price:    req.Price,
	}
	items, err := store.AddToCartSnapshot(ctx, product)
	if err != nil {
		h.handleStoreError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, cartResponse(items))
}

func (h *CartHandler) Increment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	store, ok := h.storeFor(w, r)
	if !ok {
		return
	}

	items, err := store.IncrementSnapshot(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.handleStoreError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, cartResponse(items))
}

func (h *CartHandler) Decrement(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	store, ok := h.storeFor(w, r)
	if !ok {
		return
	}

	items, err := store.DecrementSnapshot(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.handleStoreError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, cartResponse(items))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	store, ok := h.storeFor(w, r)
	if !ok {
		return
	}

	if err := store.Clear(ctx); err != nil {
		h.handleStoreError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, cartResponse(nil))
}

func (h *CartHandler) storeFor(w http.ResponseWriter, r *http.Request) (*service.CartStore, bool) {
	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user identification")
		return nil, false
	}

	store, err := h.registry.Store(userID)
	if err != nil {
		h.handleStoreError(w, r, err)
		return nil, false
	}
	return store, true
}

func (h *CartHandler) handleStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidItem):
		respondError(w, http.StatusBadRequest, "invalid_item", "product id must not be empty")
	case errors.Is(err, service.ErrInvalidUser):
		respondError(w, http.StatusBadRequest, "invalid_user", err.Error())
	case errors.Is(err, domain.ErrMalformedSnapshot):
		log.Printf("request %s: %v", getRequestID(r.Context()), err)
		respondError(w, http.StatusInternalServerError, "malformed_snapshot", "saved cart could not be read and was discarded")
	case errors.Is(err, service.ErrNotConfigured):
		log.Printf("request %s: %v", getRequestID(r.Context()), err)
		respondError(w, http.StatusInternalServerError, "not_configured", "cart store is not configured")
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "storage did not answer in time")
	default:
		log.Printf("request %s: storage failure: %v", getRequestID(r.Context()), err)
		respondError(w, http.StatusServiceUnavailable, "storage_unavailable", "cart storage is unavailable")
	}
}

func cartResponse(items []domain.CartItem) CartResponseDTO {
	if items == nil {
		items = []domain.CartItem{}
	}
	totals := domain.ComputeTotals(items)
	return CartResponseDTO{
		Items:      items,
		TotalItems: totals.Items,
		TotalPrice: totals.Price,
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// HealthHandler reports ok; storage reachability is exposed over gRPC health.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
