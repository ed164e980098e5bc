package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
	"github.com/vladislavdragonenkov/bookshop/internal/service/orders"
)

// OrderEngine — операции движка заказов, которые публикует HTTP API.
type OrderEngine interface {
	Create(ctx context.Context, userID string) (domain.Order, error)
	AddItem(ctx context.Context, userID, bookID string) (domain.Order, bool, error)
	RemoveItem(ctx context.Context, userID, bookID string) (domain.Order, error)
	ApplyCoupon(ctx context.Context, userID, code string) (domain.Order, error)
	List(ctx context.Context, userID string) ([]domain.Order, error)
	Get(ctx context.Context, userID, orderID string) (domain.Order, error)
	Timeline(ctx context.Context, userID, orderID string) ([]domain.TimelineEvent, error)
	Transition(ctx context.Context, userID, orderID string, target domain.StatusID) (orders.TransitionResult, error)
	AdminTransition(ctx context.Context, staffID, orderID string, target domain.StatusID) (orders.TransitionResult, error)
	Statuses(ctx context.Context) ([]domain.OrderStatus, error)
}

type handler struct {
	engine OrderEngine
	logger *log.Entry
}

func (h *handler) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, domain.ErrCallerRequired)
	}
	return userID, ok
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	err := dec.Decode(dst)
	if err == nil {
		return nil
	}
	// Синтаксически верный JSON с нечисловым значением числового поля.
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && isNumericKind(typeErr.Type.Kind()) {
		return fmt.Errorf("%w: %s must be an integer, got %s", domain.ErrUnprocessable, typeErr.Field, typeErr.Value)
	}
	return fmt.Errorf("%w: %v", errBadRequest, err)
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func (h *handler) createOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	order, err := h.engine.Create(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *handler) listOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	list, err := h.engine.List(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(list))
}

func (h *handler) getOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "id")

	order, err := h.engine.Get(r.Context(), userID, orderID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	events, err := h.engine.Timeline(r.Context(), userID, orderID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, orderDetailsResponse{orderResponse: toOrderResponse(order), Timeline: toTimeline(events)})
}

func (h *handler) addItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req bookRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	order, created, err := h.engine.AddItem(r.Context(), userID, req.BookID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, addItemResponse{orderResponse: toOrderResponse(order), Created: created})
}

func (h *handler) removeItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req bookRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	order, err := h.engine.RemoveItem(r.Context(), userID, req.BookID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req couponRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	order, err := h.engine.ApplyCoupon(r.Context(), userID, req.CouponCode)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *handler) transition(w http.ResponseWriter, r *http.Request) {
	h.doTransition(w, r, h.engine.Transition)
}

func (h *handler) adminTransition(w http.ResponseWriter, r *http.Request) {
	h.doTransition(w, r, h.engine.AdminTransition)
}

type transitionFunc func(ctx context.Context, userID, orderID string, target domain.StatusID) (orders.TransitionResult, error)

func (h *handler) doTransition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	res, err := fn(r.Context(), userID, chi.URLParam(r, "id"), domain.StatusID(req.StatusID))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransitionResponse(res))
}

func (h *handler) listStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.engine.Statuses(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatuses(statuses))
}
