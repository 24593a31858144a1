package scanning

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// UnknownMerchant is used when the receipt has no readable merchant name.
const UnknownMerchant = "Unknown Merchant"

// ReceiptDraft is the structured result of scanning a receipt.
type ReceiptDraft struct {
	MerchantName          string              `json:"merchantName"`
	TotalAmount           decimal.NullDecimal `json:"totalAmount"`
	TransactionDate       *time.Time          `json:"transactionDate"`
	SuggestedCategoryName *string             `json:"suggestedCategoryName"`
	RawText               string              `json:"rawText"`
}

// Scanner defines the interface for receipt scanning operations
type Scanner interface {
	// Extract analyzes a receipt image and returns a draft expense whose
	// suggested category is one of categories (or unset).
	Extract(ctx context.Context, imageData []byte, contentType string, categories []string) (*ReceiptDraft, error)
	// Close closes the scanner and releases resources
	Close() error
}
