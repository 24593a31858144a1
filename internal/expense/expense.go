package expense

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/expense-tracker/internal/scanning"
)

var (
	ErrNoFile            = errors.New("no file uploaded")
	ErrNotFound          = errors.New("not found")
	ErrInvalidCategory   = errors.New("category does not exist")
	ErrDuplicateCategory = errors.New("category already exists")
	ErrValidation        = errors.New("invalid input")
)

// Expense is a confirmed expense, usually created from a scanned receipt
type Expense struct {
	ID              string          `json:"id"`
	Description     string          `json:"description"`
	Amount          decimal.Decimal `json:"amount"`
	Date            time.Time       `json:"date"`
	CategoryID      string          `json:"category_id"`
	MerchantName    string          `json:"merchant_name,omitempty"`
	ReceiptFilename string          `json:"receipt_filename,omitempty"`
	ContentType     string          `json:"content_type,omitempty"`
	RawText         string          `json:"raw_text,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Category groups expenses. Position keeps the list order stable.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// ExpenseInput is the user-editable part of an Expense
type ExpenseInput struct {
	Description     string          `json:"description"`
	Amount          decimal.Decimal `json:"amount"`
	Date            time.Time       `json:"date"`
	CategoryID      string          `json:"category_id"`
	MerchantName    string          `json:"merchant_name"`
	ReceiptFilename string          `json:"receipt_filename"`
	ContentType     string          `json:"content_type"`
	RawText         string          `json:"raw_text"`
}

// ScannedReceipt is a draft the user reviews before saving it as an Expense
type ScannedReceipt struct {
	scanning.ReceiptDraft
	SuggestedCategoryID string `json:"suggestedCategoryId,omitempty"`
	Filename            string `json:"filename"`
	ContentType         string `json:"contentType"`
}

type defaultCategory struct {
	name  string
	color string
}

// defaultCategories are created the first time categories are listed
var defaultCategories = []defaultCategory{
	{"Food & Dining", "#FF6B6B"},
	{"Transportation", "#4ECDC4"},
	{"Shopping", "#45B7D1"},
	{"Entertainment", "#FFA07A"},
	{"Bills & Utilities", "#98D8C8"},
	{"Healthcare", "#F7DC6F"},
	{"Education", "#BB8FCE"},
	{"Other", "#95A5A6"},
}

// DefaultColor is used for categories created without a color
const DefaultColor = "#95A5A6"
