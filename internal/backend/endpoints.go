package backend

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// Bundles lists the catalog with wholesale prices.
func (c *Client) Bundles(ctx context.Context) ([]Bundle, error) {
	var out []Bundle
	if err := c.get(ctx, "bundles", "/bundles", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Bundle fetches one catalog entry.
func (c *Client) Bundle(ctx context.Context, id string) (Bundle, error) {
	var out Bundle
	err := c.get(ctx, "bundle", "/bundles/"+url.PathEscape(id), nil, &out)
	return out, err
}

// SupplierBalance returns the upstream supplier float. A response without a balance reads as zero.
func (c *Client) SupplierBalance(ctx context.Context) (decimal.Decimal, error) {
	var out SupplierBalance
	if err := c.get(ctx, "admin_balance", "/admin/balance", nil, &out); err != nil {
		return decimal.Zero, err
	}
	if !out.Balance.Valid {
		return decimal.Zero, nil
	}
	return out.Balance.Decimal, nil
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResponse, error) {
	var out AuthResponse
	err := c.post(ctx, "login", "/login", map[string]string{"email": email, "password": password}, &out)
	return out, err
}

// Signup registers an account.
func (c *Client) Signup(ctx context.Context, name, email, password string) (Result, error) {
	var out Result
	err := c.post(ctx, "signup", "/signup", map[string]string{"name": name, "email": email, "password": password}, &out)
	return out, err
}

// GoogleAuth exchanges a Google identity credential for a session.
func (c *Client) GoogleAuth(ctx context.Context, credential string) (AuthResponse, error) {
	var out AuthResponse
	err := c.post(ctx, "auth_google", "/auth/google", map[string]string{"token": credential}, &out)
	return out, err
}

// UserProfile fetches the current account record.
func (c *Client) UserProfile(ctx context.Context, email string) (User, error) {
	var out User
	err := c.get(ctx, "user_profile", "/user/profile", url.Values{"email": {email}}, &out)
	return out, err
}

// UserPurchases lists the purchase history of email.
func (c *Client) UserPurchases(ctx context.Context, email string) ([]Purchase, error) {
	var out []Purchase
	if err := c.get(ctx, "user_purchases", "/user/purchases", url.Values{"email": {email}}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PlaceOrder submits an order. Never retried.
func (c *Client) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (PlaceOrderResponse, error) {
	var out PlaceOrderResponse
	err := c.post(ctx, "place_order", "/place-order", req, &out)
	return out, err
}

// InitializePayment opens a hosted payment page for amount.
func (c *Client) InitializePayment(ctx context.Context, amount int64, email string) (InitializePaymentResponse, error) {
	var out InitializePaymentResponse
	err := c.post(ctx, "initialize_payment", "/initialize-payment", map[string]any{"amount": amount, "email": email}, &out)
	return out, err
}

// ChargeMomo pushes a direct mobile-money charge to the payer's phone.
func (c *Client) ChargeMomo(ctx context.Context, req ChargeMomoRequest) (ChargeMomoResponse, error) {
	var out ChargeMomoResponse
	err := c.post(ctx, "charge_momo", "/charge-momo", req, &out)
	return out, err
}

// VerifyPayment asks whether a payment reference settled.
func (c *Client) VerifyPayment(ctx context.Context, req VerifyPaymentRequest) (VerifyPaymentResponse, error) {
	var out VerifyPaymentResponse
	err := c.post(ctx, "verify_payment", "/verify-payment", req, &out)
	return out, err
}

// AdminStats returns the dashboard totals.
func (c *Client) AdminStats(ctx context.Context) (Stats, error) {
	var out struct {
		Success bool   `json:"success"`
		Stats   Stats  `json:"stats"`
		Message string `json:"message"`
	}
	if err := c.get(ctx, "admin_stats", "/admin/stats", nil, &out); err != nil {
		return Stats{}, err
	}
	if !out.Success {
		return Stats{}, &StatusError{Endpoint: "admin_stats", StatusCode: 422, Message: out.Message}
	}
	return out.Stats, nil
}

// AdminOrders lists every order in the system.
func (c *Client) AdminOrders(ctx context.Context) ([]Purchase, error) {
	var out struct {
		Success bool       `json:"success"`
		Orders  []Purchase `json:"orders"`
		Message string     `json:"message"`
	}
	if err := c.get(ctx, "admin_orders", "/admin/orders", nil, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, &StatusError{Endpoint: "admin_orders", StatusCode: 422, Message: out.Message}
	}
	return out.Orders, nil
}

// AdminUsers lists registered accounts.
func (c *Client) AdminUsers(ctx context.Context) ([]User, error) {
	var out struct {
		Success bool   `json:"success"`
		Users   []User `json:"users"`
		Message string `json:"message"`
	}
	if err := c.get(ctx, "admin_users", "/admin/users", nil, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, &StatusError{Endpoint: "admin_users", StatusCode: 422, Message: out.Message}
	}
	return out.Users, nil
}

// UpdateOrderStatus changes an order's status.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID, status string) (Result, error) {
	var out Result
	err := c.post(ctx, "admin_order_update", "/admin/order/update", map[string]string{"order_id": orderID, "status": status}, &out)
	return out, err
}

// UpdateUserBalance overwrites a user's wallet balance.
func (c *Client) UpdateUserBalance(ctx context.Context, email string, balance decimal.Decimal) (Result, error) {
	var out Result
	payload := map[string]any{"email": email, "balance": balance.InexactFloat64()}
	err := c.post(ctx, "admin_user_balance", "/admin/user/update-balance", payload, &out)
	return out, err
}

// VerifyAdmin asks the backend whether email holds the admin role.
func (c *Client) VerifyAdmin(ctx context.Context, email string) (bool, error) {
	var out Result
	err := c.post(ctx, "admin_verify", "/admin/verify", map[string]string{"email": strings.TrimSpace(email)}, &out)
	if errors.Is(err, ErrRejected) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return out.Success, nil
}
