package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Flag is a boolean that also accepts the 0/1 integers sent by the POS frontend.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	switch string(raw) {
	case "", "null", "false", "0", `""`, `"0"`, `"false"`:
		*f = false
		return nil
	case "true", "1", `"1"`, `"true"`:
		*f = true
		return nil
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return fmt.Errorf("invalid flag value %s", raw)
	}
	*f = n != 0
	return nil
}

type Product struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	WeightGrams int    `json:"weight_grams"`
}

// CartLine is one line item of a cart as submitted by the client.
// WeightGrams is the unit weight; nil means the default pack size.
type CartLine struct {
	ProductID   int64 `json:"product_id"`
	Quantity    int   `json:"quantity"`
	Price       int64 `json:"price"`
	WeightGrams *int  `json:"weight_grams,omitempty"`
}

type DiscountResult struct {
	DiscountAmount int64 `json:"discount_amount"`
	TotalGrams     int64 `json:"total_grams"`
}

type CreateTransactionRequest struct {
	TransactionDetails []CartLine `json:"transaction_details"`
	IsReseller         Flag       `json:"is_reseller"`
	PaymentMethod      string     `json:"payment_method"`
	CashAmount         *int64     `json:"cash_amount,omitempty"`
	IsOnlineOrder      Flag       `json:"is_online_order"`
	CustomerName       string     `json:"customer_name,omitempty"`
	CustomerAddress    string     `json:"customer_address,omitempty"`
	CustomerPhone      string     `json:"customer_phone,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	UserID             int64      `json:"user_id"`
}

type CreateTransactionResponse struct {
	Message         string `json:"message"`
	TransactionCode string `json:"transaction_code"`
	TotalPrice      int64  `json:"total_price"`
	DiscountAmount  int64  `json:"discount_amount"`
	ChangeAmount    *int64 `json:"change_amount"`
}

type ReceiptRequest struct {
	TransactionCode string `json:"transaction_code"`
}

type ReceiptLine struct {
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Price       int64  `json:"price"`
	Subtotal    int64  `json:"subtotal"`
}

type Receipt struct {
	TransactionCode string        `json:"transaction_code"`
	Cashier         string        `json:"cashier"`
	Products        []ReceiptLine `json:"products"`
	TotalPrice      int64         `json:"total_price"`
	DiscountAmount  int64         `json:"discount_amount"`
	PaymentMethod   string        `json:"payment_method"`
	CashAmount      int64         `json:"cash_amount"`
	ChangeAmount    int64         `json:"change_amount"`
	IsOnlineOrder   bool          `json:"is_online_order"`
	CustomerName    string        `json:"customer_name"`
	CustomerAddress string        `json:"customer_address"`
	CustomerPhone   string        `json:"customer_phone"`
	Notes           string        `json:"notes"`
	Date            string        `json:"tanggal"`
}

// Transaction is the persisted sale header. Details are owned by the header
// and are written and deleted together with it.
type Transaction struct {
	ID              int64               `json:"id"`
	Code            string              `json:"transaction_code"`
	UserID          int64               `json:"user_id"`
	CashierUsername string              `json:"cashier"`
	TotalPrice      int64               `json:"total_price"`
	PaymentMethod   string              `json:"payment_method"`
	IsOnlineOrder   bool                `json:"is_online_order"`
	CashAmount      *int64              `json:"cash_amount"`
	ChangeAmount    *int64              `json:"change_amount"`
	CustomerName    string              `json:"customer_name,omitempty"`
	CustomerAddress string              `json:"customer_address,omitempty"`
	CustomerPhone   string              `json:"customer_phone,omitempty"`
	Notes           string              `json:"notes,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	Details         []TransactionDetail `json:"-"`
}

type TransactionDetail struct {
	ID            int64  `json:"id"`
	TransactionID int64  `json:"transaction_id"`
	ProductID     int64  `json:"product_id"`
	ProductName   string `json:"product_name"`
	Quantity      int    `json:"quantity"`
	Price         int64  `json:"price"`
	Subtotal      int64  `json:"subtotal"`
	WeightGrams   *int   `json:"weight_grams,omitempty"`
}

type TransactionView struct {
	Transaction Transaction         `json:"transactions"`
	Details     []TransactionDetail `json:"transaction_details"`
}

// TransactionListQuery carries the raw list filters as sent by clients.
// StartDate accepts YYYY-MM-DD or "today"; EndDate is inclusive.
type TransactionListQuery struct {
	Username  string
	StartDate string
	EndDate   string
}

// TransactionFilter is the resolved form of a list query. To is exclusive.
type TransactionFilter struct {
	Username string
	From     *time.Time
	To       *time.Time
}

type TransactionSummary struct {
	TransactionCode string    `json:"transaction_code"`
	Cashier         string    `json:"kasir"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	TotalPrice      int64     `json:"total_price"`
	CreatedAt       time.Time `json:"-"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      int64  `json:"user_id"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	ID       int64
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID        int64
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

const (
	PaymentCash     = "cash"
	PaymentQRIS     = "qris"
	PaymentTransfer = "transfer"
	PaymentCard     = "card"
	PaymentEwallet  = "ewallet"
	PaymentOther    = "other"
)
