package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/orderdesk/apiserver/internal/logging"
	"github.com/orderdesk/apiserver/internal/services"
	"github.com/orderdesk/apiserver/internal/store"
	"github.com/orderdesk/apiserver/types"
)

const (
	maxFieldBytes         = 64 << 10
	formOverheadBytes     = 1 << 20
	defaultMaxUploadBytes = 10 << 20

	formFieldItem     = "item"
	formFieldAddress  = "deliveryAddress"
	formFieldQuantity = "quantity"
	formFieldPhone    = "phone"
	formFieldNotes    = "notes"
	formFieldAgree    = "agree"
	formFieldImage    = "image"

	msgOrderNotFound      = "Order not found"
	msgOrderDeleted       = "Order deleted successfully"
	msgForbiddenUpdate    = "Forbidden: Not allowed to update this order"
	msgForbiddenDelete    = "Forbidden: Not allowed to delete this order"
	msgTooManyImages      = "Only one image file is allowed"
	msgImageTooLarge      = "Image file is too large"
	msgInvalidOrderForm   = "Invalid form data"
	msgOrderStorageFailed = "Failed to save order"
)

// OrderHandler provides HTTP handlers for orders.
type OrderHandler struct {
	orderService   *services.OrderService
	maxUploadBytes int64
}

// NewOrderHandler constructs a handler; maxUploadBytes <= 0 selects the default.
func NewOrderHandler(orderService *services.OrderService, maxUploadBytes int64) *OrderHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &OrderHandler{
		orderService:   orderService,
		maxUploadBytes: maxUploadBytes,
	}
}

// OrderRouter registers order routes on the given router. Every route
// requires authentication.
func OrderRouter(
	r chi.Router,
	orderService *services.OrderService,
	authMiddleware func(http.Handler) http.Handler,
	maxUploadBytes int64,
) {
	handler := NewOrderHandler(orderService, maxUploadBytes)

	r.Use(authMiddleware)
	r.Get("/", handler.ListOrders)
	r.Post("/", handler.CreateOrder)
	r.Route("/{orderID}", func(r chi.Router) {
		r.Put("/", handler.UpdateOrder)
		r.Delete("/", handler.DeleteOrder)
	})
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	orders, err := h.orderService.List(r.Context(), identity)
	if err != nil {
		logging.FromContext(r.Context()).Error("list orders failed", "user_id", identity.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list orders")
		return
	}
	if orders == nil {
		orders = []types.Order{}
	}

	writeJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	form, err := h.parseOrderForm(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidOrderForm)
		return
	}
	defer form.Close()
	if len(form.Errors) > 0 {
		writeValidationErrors(w, form.Errors)
		return
	}

	created, err := h.orderService.Create(r.Context(), identity, form.Fields, form.Image)
	if err != nil {
		logging.FromContext(r.Context()).Error("create order failed", "user_id", identity.ID, "error", err)
		writeError(w, http.StatusInternalServerError, msgOrderStorageFailed)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *OrderHandler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	form, err := h.parseOrderForm(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidOrderForm)
		return
	}
	defer form.Close()
	if len(form.Errors) > 0 {
		writeValidationErrors(w, form.Errors)
		return
	}

	id, ok := parseOrderID(r)
	if !ok {
		writeError(w, http.StatusNotFound, msgOrderNotFound)
		return
	}

	updated, err := h.orderService.Update(r.Context(), identity, id, form.Fields, form.Image)
	if err != nil {
		h.writeServiceError(w, r, err, msgForbiddenUpdate)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *OrderHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	id, ok := parseOrderID(r)
	if !ok {
		writeError(w, http.StatusNotFound, msgOrderNotFound)
		return
	}

	if err := h.orderService.Delete(r.Context(), identity, id); err != nil {
		h.writeServiceError(w, r, err, msgForbiddenDelete)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{Success: true, Message: msgOrderDeleted})
}

func (h *OrderHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, forbiddenMessage string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, msgOrderNotFound)
	case errors.Is(err, services.ErrForbidden):
		writeError(w, http.StatusForbidden, forbiddenMessage)
	default:
		logging.FromContext(r.Context()).Error("order request failed", "method", r.Method, "error", err)
		writeError(w, http.StatusInternalServerError, msgOrderStorageFailed)
	}
}

// orderForm is the parsed and validated body of a create/update request.
type orderForm struct {
	Fields types.OrderFields
	Image  *services.ImageUpload
	Errors []string

	imageCount int
	tooLarge   bool
	file       *os.File
}

// Close removes the spooled image file.
func (f *orderForm) Close() {
	if f.file != nil {
		_ = f.file.Close()
		_ = os.Remove(f.file.Name())
		f.file = nil
	}
}

// parseOrderForm reads a multipart or urlencoded order body. Field and image
// problems are reported together in Errors; a malformed body is returned as
// err. When the body exceeds the size limit, the fields read before that
// point are still validated.
func (h *OrderHandler) parseOrderForm(w http.ResponseWriter, r *http.Request) (*orderForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+formOverheadBytes)

	form := &orderForm{}
	var values url.Values
	if isMultipart(r) {
		var err error
		if values, err = h.readMultipart(r, form); err != nil {
			form.Close()
			return nil, err
		}
	} else {
		if err := r.ParseForm(); err != nil {
			if !isTooLarge(err) {
				return nil, err
			}
			form.tooLarge = true
		}
		values = r.PostForm
	}

	payload := services.OrderPayload{
		Item:            values.Get(formFieldItem),
		DeliveryAddress: values.Get(formFieldAddress),
		Quantity:        values.Get(formFieldQuantity),
		Phone:           values.Get(formFieldPhone),
		Notes:           values.Get(formFieldNotes),
	}
	if v, ok := values[formFieldAgree]; ok && len(v) > 0 {
		agree := v[0]
		payload.Agree = &agree
	}

	form.Fields, form.Errors = payload.Parse()
	switch {
	case form.imageCount > 1:
		form.Errors = append(form.Errors, msgTooManyImages)
	case form.tooLarge:
		form.Errors = append(form.Errors, msgImageTooLarge)
	}
	if len(form.Errors) > 0 {
		form.Close()
		form.Image = nil
		return form, nil
	}

	if form.Image != nil {
		if _, err := form.file.Seek(0, io.SeekStart); err != nil {
			form.Close()
			return nil, err
		}
	}
	return form, nil
}

// readMultipart streams the parts of r. Text fields are collected; the first
// image part is spooled to a temporary file, later ones are only counted.
func (h *OrderHandler) readMultipart(r *http.Request, form *orderForm) (url.Values, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}

	values := url.Values{}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return values, nil
		}
		if err != nil {
			if isTooLarge(err) {
				form.tooLarge = true
				return values, nil
			}
			return nil, err
		}

		name := part.FormName()
		if part.FileName() == "" {
			data, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
			if err != nil {
				if isTooLarge(err) {
					form.tooLarge = true
					return values, nil
				}
				return nil, err
			}
			if len(data) > maxFieldBytes {
				return nil, fmt.Errorf("form field %q too long", name)
			}
			values.Add(name, string(data))
			continue
		}
		if name != formFieldImage {
			continue
		}

		form.imageCount++
		if form.imageCount > 1 || form.tooLarge {
			continue
		}
		if err := h.spoolImage(part.FileName(), part.Header.Get("Content-Type"), part, form); err != nil {
			if isTooLarge(err) {
				form.tooLarge = true
				return values, nil
			}
			return nil, err
		}
	}
}

func (h *OrderHandler) spoolImage(filename, contentType string, body io.Reader, form *orderForm) error {
	tmp, err := os.CreateTemp("", "order-image-*")
	if err != nil {
		return err
	}
	form.file = tmp

	n, err := io.Copy(tmp, io.LimitReader(body, h.maxUploadBytes+1))
	if err != nil {
		return err
	}
	if n > h.maxUploadBytes {
		form.tooLarge = true
		form.Close()
		return nil
	}

	form.Image = &services.ImageUpload{
		Filename:    filename,
		ContentType: contentType,
		Size:        n,
		Body:        tmp,
	}
	return nil
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data")
}

func parseOrderID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}
