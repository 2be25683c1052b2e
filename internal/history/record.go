// Package history keeps a local copy of completed purchases.
package history

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidRecord is returned for a record without an id.
var ErrInvalidRecord = errors.New("history: record id is required")

// Record is one purchase row.
type Record struct {
	ID        string              `json:"id"`
	Date      time.Time           `json:"date"`
	BundleID  string              `json:"bundleId,omitempty"`
	Title     string              `json:"title"`
	Network   string              `json:"network"`
	Phone     string              `json:"phone"`
	Status    string              `json:"status"`
	Price     decimal.Decimal     `json:"price"`
	Cost      decimal.NullDecimal `json:"cost"`
	UserEmail string              `json:"userEmail,omitempty"`
	Prepaid   bool                `json:"prepaid"`
}

func (r Record) normalized() (Record, error) {
	r.ID = strings.TrimSpace(r.ID)
	if r.ID == "" {
		return r, ErrInvalidRecord
	}
	r.UserEmail = strings.ToLower(strings.TrimSpace(r.UserEmail))
	if r.Date.IsZero() {
		r.Date = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = "Processing"
	}
	return r, nil
}

// Store persists purchase records. Record is insert-if-absent by id and reports whether a row was written.
type Store interface {
	Record(ctx context.Context, rec Record) (bool, error)
	ListByEmail(ctx context.Context, email string, limit int) ([]Record, error)
}
