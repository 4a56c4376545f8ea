package httpapi

import (
	"strconv"
	"time"

	"github.com/vladislavdragonenkov/ims/internal/domain"
	"github.com/vladislavdragonenkov/ims/internal/service/order"
)

// Quantity принимает число или строку. Всё, что не разбирается как целое >= 0, становится 0.
type Quantity int

func (q *Quantity) UnmarshalJSON(data []byte) error {
	raw := string(data)
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = unquoted
	}
	*q = Quantity(order.ParseQuantity(raw))
	return nil
}

type customerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type customerResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type productRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       *float64 `json:"price"`
	Quantity    *int     `json:"quantity"`
}

type productResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price"`
	Quantity    int       `json:"quantity"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type addressDTO struct {
	Street       string `json:"street"`
	Number       string `json:"number"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
}

type orderLineRequest struct {
	ProductID string   `json:"product_id"`
	Quantity  Quantity `json:"quantity"`
}

type placeOrderRequest struct {
	CustomerID      string             `json:"customer_id"`
	Lines           []orderLineRequest `json:"lines"`
	DeliveryAddress *addressDTO        `json:"delivery_address,omitempty"`
}

type deliveryStatusRequest struct {
	Status string `json:"status"`
}

type orderLineResponse struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Subtotal  float64 `json:"subtotal"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	CustomerID      string              `json:"customer_id"`
	CustomerName    string              `json:"customer_name,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	Lines           []orderLineResponse `json:"lines"`
	Total           float64             `json:"total"`
	Status          string              `json:"status"`
	DeliveryStatus  string              `json:"delivery_status"`
	DeliveryAddress *addressDTO         `json:"delivery_address,omitempty"`
}

func (r placeOrderRequest) toServiceRequest() order.PlaceOrderRequest {
	lines := make([]order.LineRequest, 0, len(r.Lines))
	for _, line := range r.Lines {
		lines = append(lines, order.LineRequest{ProductID: line.ProductID, Quantity: int(line.Quantity)})
	}

	req := order.PlaceOrderRequest{CustomerID: r.CustomerID, Lines: lines}
	if r.DeliveryAddress != nil {
		req.DeliveryAddress = &domain.DeliveryAddress{
			Street:       r.DeliveryAddress.Street,
			Number:       r.DeliveryAddress.Number,
			Neighborhood: r.DeliveryAddress.Neighborhood,
			City:         r.DeliveryAddress.City,
		}
	}
	return req
}

func toCustomerResponse(c domain.Customer) customerResponse {
	return customerResponse{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Phone:     c.Phone,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func toProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.UnitPrice,
		Quantity:    p.Quantity,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toOrderResponse(o domain.Order, customerName string) orderResponse {
	lines := make([]orderLineResponse, 0, len(o.Lines))
	for _, line := range o.Lines {
		lines = append(lines, orderLineResponse{
			ProductID: line.ProductID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Subtotal:  line.Subtotal,
		})
	}

	resp := orderResponse{
		ID:             o.ID,
		CustomerID:     o.CustomerID,
		CustomerName:   customerName,
		CreatedAt:      o.CreatedAt,
		Lines:          lines,
		Total:          o.Total,
		Status:         string(o.Status),
		DeliveryStatus: string(o.DeliveryStatus),
	}
	if o.DeliveryAddress != nil {
		resp.DeliveryAddress = &addressDTO{
			Street:       o.DeliveryAddress.Street,
			Number:       o.DeliveryAddress.Number,
			Neighborhood: o.DeliveryAddress.Neighborhood,
			City:         o.DeliveryAddress.City,
		}
	}
	return resp
}
