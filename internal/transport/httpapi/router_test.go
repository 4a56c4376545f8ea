package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ims/internal/domain"
	"github.com/vladislavdragonenkov/ims/internal/service/catalog"
	"github.com/vladislavdragonenkov/ims/internal/service/order"
	"github.com/vladislavdragonenkov/ims/internal/storage/memory"
	"github.com/vladislavdragonenkov/ims/internal/transport/httpapi"
)

type testAPI struct {
	server   *httptest.Server
	products domain.ProductRepository
	orders   domain.OrderRepository
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	products := memory.NewProductRepository()
	customers := memory.NewCustomerRepository()
	orders := memory.NewOrderRepository()

	handler := httpapi.NewHandler(
		order.NewService(products, customers, orders),
		catalog.NewCustomerService(customers, nil),
		catalog.NewProductService(products, nil),
		nil,
	)
	server := httptest.NewServer(httpapi.NewRouter(handler, httpapi.RouterOptions{
		Idempotency: memory.NewIdempotencyRepository(),
	}))
	t.Cleanup(server.Close)

	return &testAPI{server: server, products: products, orders: orders}
}

func (a *testAPI) do(t *testing.T, method, path, body string, headers ...string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, a.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := a.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

type idResponse struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

type orderBody struct {
	ID             string  `json:"id"`
	CustomerName   string  `json:"customer_name"`
	Total          float64 `json:"total"`
	Status         string  `json:"status"`
	DeliveryStatus string  `json:"delivery_status"`
	Lines          []struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	} `json:"lines"`
	DeliveryAddress *struct {
		City string `json:"city"`
	} `json:"delivery_address"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details []struct {
		ProductID string `json:"product_id"`
		Message   string `json:"message"`
	} `json:"details"`
}

func (a *testAPI) seed(t *testing.T) (customerID, productID string) {
	t.Helper()

	resp, body := a.do(t, http.MethodPost, "/customers", `{"name":"Maria","email":"maria@example.com"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	customerID = decode[idResponse](t, body).ID

	resp, body = a.do(t, http.MethodPost, "/products", `{"name":"Caderno","price":5,"quantity":10}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	productID = decode[idResponse](t, body).ID
	return customerID, productID
}

func TestOrderLifecycle(t *testing.T) {
	api := newTestAPI(t)
	customerID, productID := api.seed(t)

	resp, body := api.do(t, http.MethodPost, "/orders", `{
		"customer_id": "`+customerID+`",
		"lines": [{"product_id": "`+productID+`", "quantity": "4"}],
		"delivery_address": {"street": "Rua A", "number": "10", "city": "Santos"}
	}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	placed := decode[orderBody](t, body)
	require.Equal(t, 20.0, placed.Total)
	require.Equal(t, "confirmed", placed.Status)
	require.Equal(t, "pending", placed.DeliveryStatus)
	require.Equal(t, "Santos", placed.DeliveryAddress.City)

	resp, body = api.do(t, http.MethodGet, "/products/"+productID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 6, decode[idResponse](t, body).Quantity)

	resp, body = api.do(t, http.MethodPost, "/orders", `{"customer_id":"`+customerID+`","lines":[{"product_id":"`+productID+`","quantity":100}]}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	rejected := decode[errorBody](t, body)
	require.Equal(t, string(domain.KindStockInsufficient), rejected.Error)
	require.Len(t, rejected.Details, 1)
	require.Equal(t, productID, rejected.Details[0].ProductID)
	require.Equal(t, "insufficient stock: available 6", rejected.Details[0].Message)

	resp, body = api.do(t, http.MethodPatch, "/orders/"+placed.ID+"/delivery-status", `{"status":"delivered"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.Equal(t, "delivered", decode[orderBody](t, body).DeliveryStatus)

	resp, _ = api.do(t, http.MethodPatch, "/orders/"+placed.ID+"/delivery-status", `{"status":"bogus"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = api.do(t, http.MethodGet, "/orders?status=delivered", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listed := decode[[]orderBody](t, body)
	require.Len(t, listed, 1)
	require.Equal(t, "Maria", listed[0].CustomerName)

	resp, body = api.do(t, http.MethodGet, "/orders?status=pending", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, decode[[]orderBody](t, body))

	resp, _ = api.do(t, http.MethodDelete, "/customers/"+customerID, "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = api.do(t, http.MethodGet, "/orders/"+placed.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, domain.RemovedCustomerLabel, decode[orderBody](t, body).CustomerName)

	resp, _ = api.do(t, http.MethodDelete, "/orders/"+placed.ID, "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = api.do(t, http.MethodGet, "/products/"+productID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 10, decode[idResponse](t, body).Quantity)

	resp, _ = api.do(t, http.MethodDelete, "/orders/"+placed.ID, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPlaceOrder_QuantityCoercion(t *testing.T) {
	api := newTestAPI(t)
	customerID, productID := api.seed(t)

	resp, body := api.do(t, http.MethodPost, "/orders", `{"customer_id":"`+customerID+`","lines":[
		{"product_id":"`+productID+`","quantity":"abc"},
		{"product_id":"missing","quantity":null}
	]}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, string(domain.KindValidationFailed), decode[errorBody](t, body).Error)

	resp, body = api.do(t, http.MethodPost, "/orders", `{"customer_id":"`+customerID+`","lines":[
		{"product_id":"`+productID+`","quantity":2},
		{"product_id":"missing","quantity":"1"}
	]}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	rejected := decode[errorBody](t, body)
	require.Len(t, rejected.Details, 1)
	require.Equal(t, "missing", rejected.Details[0].ProductID)

	product, err := api.products.Get(context.Background(), productID)
	require.NoError(t, err)
	require.Equal(t, 10, product.Quantity)
}

func TestPlaceOrder_IdempotencyKey(t *testing.T) {
	api := newTestAPI(t)
	customerID, productID := api.seed(t)
	payload := `{"customer_id":"` + customerID + `","lines":[{"product_id":"` + productID + `","quantity":3}]}`

	first, firstBody := api.do(t, http.MethodPost, "/orders", payload, httpapi.HeaderIdempotencyKey, "key-1")
	require.Equal(t, http.StatusCreated, first.StatusCode)

	second, secondBody := api.do(t, http.MethodPost, "/orders", payload, httpapi.HeaderIdempotencyKey, "key-1")
	require.Equal(t, http.StatusCreated, second.StatusCode)
	require.Equal(t, "true", second.Header.Get(httpapi.HeaderIdempotentReplay))
	require.JSONEq(t, string(firstBody), string(secondBody))

	product, err := api.products.Get(context.Background(), productID)
	require.NoError(t, err)
	require.Equal(t, 7, product.Quantity, "replayed request must not decrement stock again")

	orders, err := api.orders.List(context.Background(), domain.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, orders, 1)

	conflict, body := api.do(t, http.MethodPost, "/orders", `{"customer_id":"`+customerID+`","lines":[]}`, httpapi.HeaderIdempotencyKey, "key-1")
	require.Equal(t, http.StatusConflict, conflict.StatusCode)
	require.Equal(t, "idempotency_conflict", decode[errorBody](t, body).Error)

	failed, _ := api.do(t, http.MethodPost, "/orders", `{"customer_id":"`+customerID+`","lines":[]}`, httpapi.HeaderIdempotencyKey, "key-2")
	require.Equal(t, http.StatusBadRequest, failed.StatusCode)
	replayed, _ := api.do(t, http.MethodPost, "/orders", `{"customer_id":"`+customerID+`","lines":[]}`, httpapi.HeaderIdempotencyKey, "key-2")
	require.Equal(t, http.StatusBadRequest, replayed.StatusCode)
	require.Equal(t, "true", replayed.Header.Get(httpapi.HeaderIdempotentReplay))
}

func TestCatalogEndpoints(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodPost, "/customers", `{"name":"","email":""}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, string(domain.KindValidationFailed), decode[errorBody](t, body).Error)

	resp, _ = api.do(t, http.MethodPost, "/customers", `{not json`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = api.do(t, http.MethodPost, "/products", `{"name":"Caneta","price":2}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, decode[errorBody](t, body).Message, "quantity is required")

	_, productID := api.seed(t)
	resp, _ = api.do(t, http.MethodPost, "/products", `{"name":"Borracha","price":1,"quantity":0}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = api.do(t, http.MethodGet, "/products?available=true", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	available := decode[[]idResponse](t, body)
	require.Len(t, available, 1)
	require.Equal(t, productID, available[0].ID)

	resp, body = api.do(t, http.MethodGet, "/products", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, decode[[]idResponse](t, body), 2)

	resp, body = api.do(t, http.MethodPut, "/products/"+productID, `{"name":"Caderno","price":6,"quantity":4}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 4, decode[idResponse](t, body).Quantity)

	resp, _ = api.do(t, http.MethodGet, "/customers/missing", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = api.do(t, http.MethodPut, "/customers/missing", `{"name":"A","email":"a@example.com"}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = api.do(t, http.MethodDelete, "/products/"+productID, "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

type unavailableOrders struct {
	httpapi.OrderService
}

func (unavailableOrders) ListOrders(context.Context, string) ([]domain.OrderView, error) {
	return nil, errors.Join(errors.New("dial tcp 10.0.0.1:5432"), domain.ErrStorageUnavailable)
}

func (unavailableOrders) GetOrder(context.Context, string) (domain.OrderView, error) {
	return domain.OrderView{}, errors.New("unexpected")
}

func TestErrorMapping(t *testing.T) {
	handler := httpapi.NewHandler(unavailableOrders{}, nil, nil, nil)
	router := httpapi.NewRouter(handler, httpapi.RouterOptions{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[errorBody](t, rec.Body.Bytes())
	require.Equal(t, string(domain.KindConnectionUnavailable), body.Error)
	require.NotContains(t, body.Message, "10.0.0.1")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/x", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "internal", decode[errorBody](t, rec.Body.Bytes()).Error)
}
