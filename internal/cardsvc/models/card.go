package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusExpired Status = "EXPIRED"
	StatusUsed    Status = "USED"
)

// ParseStatus accepts a status name in any letter case.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusActive, StatusExpired, StatusUsed:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
}

type Category string

const (
	CategoryGiftCard   Category = "GIFTCARD"
	CategoryCoupon     Category = "COUPON"
	CategoryVoucher    Category = "VOUCHER"
	CategoryTicket     Category = "TICKET"
	CategoryMembership Category = "MEMBERSHIP"
	CategoryOther      Category = "OTHER"
)

var categories = []Category{
	CategoryGiftCard, CategoryCoupon, CategoryVoucher,
	CategoryTicket, CategoryMembership, CategoryOther,
}

func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory accepts a category name in any letter case.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown category %q", ErrValidation, s)
	}
	return c, nil
}

// Card represents the gift_cards table in the database.
type Card struct {
	ID             int64            `json:"id"`
	Name           string           `json:"name"`
	Category       Category         `json:"category"`
	ExpirationDate Date             `json:"expirationDate"`
	Status         Status           `json:"status"`
	ImageBase64    *string          `json:"imageBase64,omitempty"`
	Barcode        *string          `json:"barcode,omitempty"`
	Memo           *string          `json:"memo,omitempty"`
	UserID         *string          `json:"userId,omitempty"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
	UsedAt         *time.Time       `json:"usedAt"`
}

// DaysUntilExpiration is negative once the expiration date has passed.
func (c *Card) DaysUntilExpiration(today Date) int {
	return c.ExpirationDate.DaysSince(today)
}

const (
	maxNameLen    = 255
	maxBarcodeLen = 100
	maxMemoLen    = 500
	maxUserIDLen  = 100
)

// CardInput is the client payload for create and update. Status is accepted
// so older clients can keep sending it, but it is never applied.
type CardInput struct {
	Name           string           `json:"name"`
	Category       Category         `json:"category"`
	ExpirationDate *Date            `json:"expirationDate"`
	ImageBase64    *string          `json:"imageBase64,omitempty"`
	Barcode        *string          `json:"barcode,omitempty"`
	Memo           *string          `json:"memo,omitempty"`
	UserID         *string          `json:"userId,omitempty"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	Status         Status           `json:"status,omitempty"`
}

func (in *CardInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if utf8.RuneCountInString(in.Name) > maxNameLen {
		return fmt.Errorf("%w: name exceeds %d characters", ErrValidation, maxNameLen)
	}
	if in.Category == "" {
		return fmt.Errorf("%w: category is required", ErrValidation)
	}
	if !in.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrValidation, in.Category)
	}
	if in.ExpirationDate == nil || in.ExpirationDate.IsZero() {
		return fmt.Errorf("%w: expirationDate is required", ErrValidation)
	}
	if tooLong(in.Barcode, maxBarcodeLen) {
		return fmt.Errorf("%w: barcode exceeds %d characters", ErrValidation, maxBarcodeLen)
	}
	if tooLong(in.Memo, maxMemoLen) {
		return fmt.Errorf("%w: memo exceeds %d characters", ErrValidation, maxMemoLen)
	}
	if tooLong(in.UserID, maxUserIDLen) {
		return fmt.Errorf("%w: userId exceeds %d characters", ErrValidation, maxUserIDLen)
	}
	if in.Amount != nil && in.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}
	return nil
}

func tooLong(s *string, max int) bool {
	return s != nil && utf8.RuneCountInString(*s) > max
}

// Stats is the dashboard summary. Total only sums the three tracked statuses.
type Stats struct {
	Total          int64           `json:"total"`
	Active         int64           `json:"active"`
	Expired        int64           `json:"expired"`
	Used           int64           `json:"used"`
	ExpiringSoon7  int64           `json:"expiringSoon7"`
	ExpiringSoon30 int64           `json:"expiringSoon30"`
	ActiveAmount   decimal.Decimal `json:"activeAmount"`
}
