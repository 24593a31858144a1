package scanning

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
)

// Envelope is the outer generateContent response.
type Envelope struct {
	Candidates []Candidate `json:"candidates"`
}

type Candidate struct {
	Content *CandidateContent `json:"content,omitempty"`
}

type CandidateContent struct {
	Parts []TextPart `json:"parts"`
}

type TextPart struct {
	Text string `json:"text,omitempty"`
}

// ExtractedFields is the structured object the model embeds as text.
// Every field is optional.
type ExtractedFields struct {
	MerchantName      *string
	TotalAmount       decimal.NullDecimal
	TransactionDate   *string
	SuggestedCategory *string

	// RawText is the embedded JSON text exactly as received.
	RawText string
}

// extractionShape rejects payloads that are not objects or whose known
// fields carry the wrong JSON type. Unknown fields are allowed.
var extractionShape = jsonschema.MustCompileString("extraction.json", `{
	"type": "object",
	"properties": {
		"merchantName":      {"type": ["string", "null"]},
		"totalAmount":       {"type": ["number", "string", "null"]},
		"transactionDate":   {"type": ["string", "null"]},
		"suggestedCategory": {"type": ["string", "null"]}
	}
}`)

// ParseResponse decodes the envelope, pulls out the embedded text and decodes
// that text as the structured receipt object.
func ParseResponse(body []byte) (*ExtractedFields, error) {
	text, err := firstText(body)
	if err != nil {
		return nil, err
	}

	fields, err := parseFields(text)
	if err != nil {
		return nil, &MalformedExtractionError{Fragment: text, Err: err}
	}
	fields.RawText = text
	return fields, nil
}

// firstText walks candidates[0].content.parts for the first non-empty text.
func firstText(body []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("%w: decoding envelope: %v", ErrEmptyUpstreamResult, err)
	}
	if len(env.Candidates) == 0 || env.Candidates[0].Content == nil {
		return "", ErrEmptyUpstreamResult
	}
	for _, part := range env.Candidates[0].Content.Parts {
		if strings.TrimSpace(part.Text) != "" {
			return part.Text, nil
		}
	}
	return "", ErrEmptyUpstreamResult
}

// wireFields mirrors the structured object. encoding/json matches keys
// case-insensitively, which gives the tolerant field mapping we need.
type wireFields struct {
	MerchantName      *string    `json:"merchantName"`
	TotalAmount       wireAmount `json:"totalAmount"`
	TransactionDate   *string    `json:"transactionDate"`
	SuggestedCategory *string    `json:"suggestedCategory"`
}

func parseFields(text string) (*ExtractedFields, error) {
	var generic any
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decoding JSON: %w", err)
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON object")
	}
	if err := extractionShape.Validate(generic); err != nil {
		return nil, fmt.Errorf("validating shape: %w", err)
	}

	var wf wireFields
	if err := json.Unmarshal([]byte(text), &wf); err != nil {
		return nil, fmt.Errorf("decoding fields: %w", err)
	}

	return &ExtractedFields{
		MerchantName:      wf.MerchantName,
		TotalAmount:       wf.TotalAmount.NullDecimal,
		TransactionDate:   wf.TransactionDate,
		SuggestedCategory: wf.SuggestedCategory,
	}, nil
}

// wireAmount accepts a JSON number or a plain numeric string. Empty,
// non-numeric or ambiguous strings are treated as absent.
type wireAmount struct {
	decimal.NullDecimal
}

func (a *wireAmount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		a.Valid = false
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		cleaned, ok := cleanAmount(s)
		if !ok {
			a.Valid = false
			return nil
		}
		d, err := decimal.NewFromString(cleaned)
		if err != nil {
			a.Valid = false
			return nil
		}
		a.NullDecimal = decimal.NewNullDecimal(d)
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return fmt.Errorf("decoding totalAmount: %w", err)
	}
	a.NullDecimal = decimal.NewNullDecimal(d)
	return nil
}

// Amount strings must be a plain decimal. A comma is only read as a
// thousands separator when a decimal point follows.
var (
	plainAmount   = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)
	groupedAmount = regexp.MustCompile(`^-?[0-9]{1,3}(,[0-9]{3})+\.[0-9]+$`)
)

// cleanAmount normalizes strings like "$1,234.50". Decimal commas, unit
// words and anything else ambiguous report false.
func cleanAmount(s string) (string, bool) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = strings.TrimSpace(s[1:])
	}
	if r, size := utf8.DecodeRuneInString(s); size > 0 && unicode.Is(unicode.Sc, r) {
		s = strings.TrimSpace(s[size:])
	}
	if neg {
		s = "-" + s
	}
	switch {
	case plainAmount.MatchString(s):
		return s, true
	case groupedAmount.MatchString(s):
		return strings.ReplaceAll(s, ",", ""), true
	default:
		return "", false
	}
}
