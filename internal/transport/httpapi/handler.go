package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ims/internal/domain"
	"github.com/vladislavdragonenkov/ims/internal/service/catalog"
	"github.com/vladislavdragonenkov/ims/internal/service/order"
)

// OrderService описывает сценарии заказов, которые обслуживает API.
type OrderService interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (domain.Order, error)
	CancelOrder(ctx context.Context, id string) error
	UpdateDeliveryStatus(ctx context.Context, id, status string) (domain.Order, error)
	ListOrders(ctx context.Context, filter string) ([]domain.OrderView, error)
	GetOrder(ctx context.Context, id string) (domain.OrderView, error)
}

// CustomerService управляет клиентами.
type CustomerService interface {
	Create(ctx context.Context, input catalog.CustomerInput) (domain.Customer, error)
	Update(ctx context.Context, id string, input catalog.CustomerInput) (domain.Customer, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (domain.Customer, error)
	List(ctx context.Context) ([]domain.Customer, error)
}

// ProductService управляет каталогом товаров.
type ProductService interface {
	Create(ctx context.Context, input catalog.ProductInput) (domain.Product, error)
	Update(ctx context.Context, id string, input catalog.ProductInput) (domain.Product, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (domain.Product, error)
	List(ctx context.Context) ([]domain.Product, error)
	ListAvailable(ctx context.Context) ([]domain.Product, error)
}

// Handler обслуживает JSON API клиентов, товаров и заказов.
type Handler struct {
	orders    OrderService
	customers CustomerService
	products  ProductService
	logger    *log.Entry
}

// NewHandler создаёт обработчики API.
func NewHandler(orders OrderService, customers CustomerService, products ProductService, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	return &Handler{
		orders:    orders,
		customers: customers,
		products:  products,
		logger:    logger,
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidJSON, err.Error())
		return false
	}
	return true
}

func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.customers.List(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	resp := make([]customerResponse, 0, len(customers))
	for _, c := range customers {
		resp = append(resp, toCustomerResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if !h.decode(w, r, &req) {
		return
	}

	customer, err := h.customers.Create(r.Context(), catalog.CustomerInput(req))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCustomerResponse(customer))
}

func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := h.customers.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerResponse(customer))
}

func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if !h.decode(w, r, &req) {
		return
	}

	customer, err := h.customers.Update(r.Context(), chi.URLParam(r, "id"), catalog.CustomerInput(req))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerResponse(customer))
}

func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	if err := h.customers.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	list := h.products.List
	if available, _ := strconv.ParseBool(r.URL.Query().Get("available")); available {
		list = h.products.ListAvailable
	}

	products, err := list(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, toProductResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}

	product, err := h.products.Create(r.Context(), input)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(product))
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.products.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}

	product, err := h.products.Update(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.products.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeProduct требует наличия цены и остатка, как форма каталога.
func (h *Handler) decodeProduct(w http.ResponseWriter, r *http.Request) (catalog.ProductInput, bool) {
	var req productRequest
	if !h.decode(w, r, &req) {
		return catalog.ProductInput{}, false
	}

	switch {
	case req.Price == nil:
		writeDomainError(w, h.logger, domain.ErrProductPriceRequired)
		return catalog.ProductInput{}, false
	case req.Quantity == nil:
		writeDomainError(w, h.logger, domain.ErrProductQuantityRequired)
		return catalog.ProductInput{}, false
	}

	return catalog.ProductInput{
		Name:        req.Name,
		Description: req.Description,
		UnitPrice:   *req.Price,
		Quantity:    *req.Quantity,
	}, true
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	views, err := h.orders.ListOrders(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	resp := make([]orderResponse, 0, len(views))
	for _, view := range views {
		resp = append(resp, toOrderResponse(view.Order, view.CustomerName))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	placed, err := h.orders.PlaceOrder(r.Context(), req.toServiceRequest())
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(placed, ""))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	view, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(view.Order, view.CustomerName))
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.CancelOrder(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UpdateDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	var req deliveryStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	updated, err := h.orders.UpdateDeliveryStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(updated, ""))
}
