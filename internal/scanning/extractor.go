package scanning

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// dateLayouts are tried in order when reading the transaction date.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"02.01.2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

// Extractor runs the scanning pipeline: encode, build, send, parse, reconcile.
// It holds no per-call state and is safe for concurrent use.
type Extractor struct {
	encoder   *MediaEncoder
	transport Transport
}

// NewExtractor creates an Extractor. A nil encoder uses the default (no conversion).
func NewExtractor(transport Transport, encoder *MediaEncoder) *Extractor {
	if encoder == nil {
		encoder = NewMediaEncoder(false)
	}
	return &Extractor{
		encoder:   encoder,
		transport: transport,
	}
}

// Extract scans a receipt image. Either a complete draft or an error is returned.
func (e *Extractor) Extract(ctx context.Context, imageData []byte, contentType string, categories []string) (*ReceiptDraft, error) {
	start := time.Now()

	draft, err := e.extract(ctx, imageData, contentType, categories)
	if err != nil {
		slog.Error("Receipt extraction failed",
			"content_type", contentType,
			"size", len(imageData),
			"categories", len(categories),
			"error_kind", errorKind(err),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	slog.Info("Receipt extracted",
		"merchant", draft.MerchantName,
		"has_amount", draft.TotalAmount.Valid,
		"has_date", draft.TransactionDate != nil,
		"has_category", draft.SuggestedCategoryName != nil,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return draft, nil
}

func (e *Extractor) extract(ctx context.Context, imageData []byte, contentType string, categories []string) (*ReceiptDraft, error) {
	media, err := e.encoder.Encode(imageData, contentType)
	if err != nil {
		return nil, err
	}

	body, err := e.transport.Send(ctx, BuildRequest(media, categories))
	if err != nil {
		return nil, err
	}

	fields, err := ParseResponse(body)
	if err != nil {
		return nil, err
	}

	return buildDraft(fields, categories), nil
}

func buildDraft(fields *ExtractedFields, categories []string) *ReceiptDraft {
	draft := &ReceiptDraft{
		MerchantName: UnknownMerchant,
		TotalAmount:  fields.TotalAmount,
		RawText:      fields.RawText,
	}

	if fields.MerchantName != nil {
		if name := strings.TrimSpace(*fields.MerchantName); name != "" {
			draft.MerchantName = name
		}
	}

	if fields.TransactionDate != nil {
		draft.TransactionDate = parseTransactionDate(*fields.TransactionDate)
	}

	if fields.SuggestedCategory != nil {
		if name, ok := ReconcileCategory(*fields.SuggestedCategory, categories); ok {
			draft.SuggestedCategoryName = &name
		}
	}

	return draft
}

// parseTransactionDate is best effort; nil means the date is unknown.
func parseTransactionDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	case errors.Is(err, ErrEmptyUpstreamResult):
		return "empty_upstream_result"
	case errors.Is(err, ErrMalformedExtraction):
		return "malformed_extraction"
	default:
		return "unknown"
	}
}

// Close releases the transport if it holds resources.
func (e *Extractor) Close() error {
	if c, ok := e.transport.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("closing transport: %w", err)
		}
	}
	return nil
}
