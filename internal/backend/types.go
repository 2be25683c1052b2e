package backend

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// FlexString accepts JSON strings and numbers, keeping the textual form.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// Bundle is a catalog entry as served by the backend. Price is the wholesale cost.
type Bundle struct {
	ID          FlexString      `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Network     string          `json:"network"`
	Image       string          `json:"image"`
	Price       decimal.Decimal `json:"price"`
}

// User is the account record returned by login and profile endpoints.
type User struct {
	Email   string          `json:"email"`
	Name    string          `json:"name"`
	Role    string          `json:"role"`
	Balance decimal.Decimal `json:"balance"`
}

// Result is the generic acknowledgement shape.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// AuthResponse answers /login and /auth/google.
type AuthResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	User    *User  `json:"user"`
	Message string `json:"message"`
}

// PlaceOrderRequest is the order placement payload.
type PlaceOrderRequest struct {
	Network     string `json:"network"`
	Beneficiary string `json:"beneficiary"`
	BundleID    string `json:"bundleId"`
	UserEmail   string `json:"userEmail,omitempty"`
}

// MarshalJSON also emits the supplier package key the backend forwards unchanged.
func (r PlaceOrderRequest) MarshalJSON() ([]byte, error) {
	type plain PlaceOrderRequest
	return json.Marshal(struct {
		plain
		Package string `json:"pa_data-bundle-packages"`
	}{plain: plain(r), Package: r.BundleID})
}

// PlaceOrderResponse carries any of the success signals the backend may send.
type PlaceOrderResponse struct {
	Success       bool       `json:"success"`
	TransactionID FlexString `json:"transactionId"`
	OrderID       FlexString `json:"order_id"`
	Status        string     `json:"status"`
	Message       string     `json:"message"`
}

// Succeeded reports whether any success signal is present.
func (r PlaceOrderResponse) Succeeded() bool {
	return r.Success || r.TransactionID != "" || r.OrderID != ""
}

// Reference returns the best identifier for the placed order.
func (r PlaceOrderResponse) Reference() string {
	if r.OrderID != "" {
		return r.OrderID.String()
	}
	return r.TransactionID.String()
}

// InitializePaymentResponse answers /initialize-payment.
type InitializePaymentResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// ChargeMomoRequest starts a direct mobile-money charge.
type ChargeMomoRequest struct {
	Amount   int64  `json:"amount"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Provider string `json:"provider"`
}

// ChargeMomoResponse answers /charge-momo.
type ChargeMomoResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Reference string `json:"reference"`
}

// VerifyPaymentRequest asks the backend to confirm a payment reference.
type VerifyPaymentRequest struct {
	Reference string      `json:"reference"`
	Email     string      `json:"email,omitempty"`
	Amount    json.Number `json:"amount,omitempty"`
}

// VerifyPaymentResponse answers /verify-payment.
type VerifyPaymentResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Verified reports a confirmed payment. Some deployments answer {"status":"success"} instead of a flag.
func (r VerifyPaymentResponse) Verified() bool {
	return r.Success || strings.EqualFold(strings.TrimSpace(r.Status), "success")
}

// Purchase is a purchase history row.
type Purchase struct {
	ID        FlexString          `json:"id"`
	Date      string              `json:"date"`
	Title     string              `json:"title"`
	Network   string              `json:"network"`
	Phone     string              `json:"phone"`
	Status    string              `json:"status"`
	Price     decimal.Decimal     `json:"price"`
	Cost      decimal.NullDecimal `json:"cost"`
	BundleID  FlexString          `json:"bundleId,omitempty"`
	UserEmail string              `json:"userEmail,omitempty"`
}

// Stats is the admin dashboard summary.
type Stats struct {
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalProfit  decimal.Decimal `json:"total_profit"`
	TotalUsers   int64           `json:"total_users"`
	TotalOrders  int64           `json:"total_orders"`
}

// SupplierBalance answers /admin/balance.
type SupplierBalance struct {
	Balance  decimal.NullDecimal `json:"balance"`
	Currency string              `json:"currency"`
}
