package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const idempotencyHeader = "Idempotency-Key"

// apiClient вызывает IMS API во время нагрузочного прогона.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(addr string, timeout time.Duration) *apiClient {
	base := strings.TrimRight(strings.TrimSpace(addr), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &apiClient{
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
	}
}

type apiResponse struct {
	status int
	body   []byte
}

func (c *apiClient) do(ctx context.Context, method, path string, payload any, headers map[string]string) (apiResponse, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return apiResponse{}, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apiResponse{}, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apiResponse{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apiResponse{status: resp.StatusCode}, err
	}
	return apiResponse{status: resp.StatusCode, body: raw}, nil
}

type createdEntity struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

func (c *apiClient) createCustomer(ctx context.Context, tag string) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/customers", map[string]string{
		"name":  "Load " + tag,
		"email": tag + "@load.test",
	}, nil)
	if err != nil {
		return "", err
	}
	return decodeCreated(resp, http.StatusCreated, "create customer")
}

func (c *apiClient) createProduct(ctx context.Context, tag string, price float64, stock int) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/products", map[string]any{
		"name":     "Load " + tag,
		"price":    price,
		"quantity": stock,
	}, nil)
	if err != nil {
		return "", err
	}
	return decodeCreated(resp, http.StatusCreated, "create product")
}

func (c *apiClient) productQuantity(ctx context.Context, productID string) (int, error) {
	resp, err := c.do(ctx, http.MethodGet, "/products/"+productID, nil, nil)
	if err != nil {
		return 0, err
	}
	if resp.status != http.StatusOK {
		return 0, fmt.Errorf("get product: unexpected status %d", resp.status)
	}
	var entity createdEntity
	if err := json.Unmarshal(resp.body, &entity); err != nil {
		return 0, fmt.Errorf("get product: %w", err)
	}
	return entity.Quantity, nil
}

func (c *apiClient) placeOrder(ctx context.Context, customerID, productID string, qty int) (apiResponse, error) {
	return c.do(ctx, http.MethodPost, "/orders", map[string]any{
		"customer_id": customerID,
		"lines": []map[string]any{
			{"product_id": productID, "quantity": qty},
		},
	}, map[string]string{idempotencyHeader: uuid.NewString()})
}

func (c *apiClient) cancelOrder(ctx context.Context, orderID string) (apiResponse, error) {
	return c.do(ctx, http.MethodDelete, "/orders/"+orderID, nil, nil)
}

func decodeCreated(resp apiResponse, want int, action string) (string, error) {
	if resp.status != want {
		return "", fmt.Errorf("%s: unexpected status %d: %s", action, resp.status, strings.TrimSpace(string(resp.body)))
	}
	var entity createdEntity
	if err := json.Unmarshal(resp.body, &entity); err != nil {
		return "", fmt.Errorf("%s: %w", action, err)
	}
	if entity.ID == "" {
		return "", fmt.Errorf("%s: response returned empty id", action)
	}
	return entity.ID, nil
}
