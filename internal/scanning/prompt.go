package scanning

import (
	"fmt"
	"strings"
)

// Request is the generateContent request body.
type Request struct {
	Contents         []Content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part holds either inline media or text.
type Part struct {
	InlineData *InlineData `json:"inline_data,omitempty"`
	Text       string      `json:"text,omitempty"`
}

type InlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type GenerationConfig struct {
	ResponseMIMEType string  `json:"responseMimeType"`
	ResponseSchema   *Schema `json:"responseSchema,omitempty"`
}

// Schema is the OpenAPI subset accepted as a response schema.
type Schema struct {
	Type       string             `json:"type"`
	Properties map[string]*Schema `json:"properties,omitempty"`
	Items      *Schema            `json:"items,omitempty"`
	Required   []string           `json:"required,omitempty"`
}

// Field names of the structured receipt object.
const (
	FieldMerchantName      = "merchantName"
	FieldTotalAmount       = "totalAmount"
	FieldTransactionDate   = "transactionDate"
	FieldSuggestedCategory = "suggestedCategory"
)

const receiptInstruction = `Analyze this receipt image and extract the following information in JSON format:
- merchantName: The name of the store/merchant
- totalAmount: The total amount paid (as a decimal number)
- transactionDate: The date of the transaction (in ISO 8601 format: YYYY-MM-DD)
- suggestedCategory: The expense category that best fits this purchase. It MUST be exactly one of: %s
- items: Array of items purchased (optional, if visible)

Category guidance (illustrative only, always answer with a name from the list above):
- Restaurants, cafes, bars, fast food, groceries -> Food & Dining
- Fuel stations, parking, taxis, rideshare, public transit -> Transportation
- Clothing, electronics, department stores, online retail -> Shopping
- Cinemas, concerts, streaming, games -> Entertainment
- Electricity, water, internet, phone bills -> Bills & Utilities
- Pharmacies, clinics, doctors -> Healthcare
- Books, courses, tuition -> Education
If nothing fits, use "Other" when it is in the list.

If any field is not clearly visible, use null for that field.
Return ONLY valid JSON, no additional text.`

// BuildRequest builds the generateContent request for a receipt image. The
// caller's category names are embedded verbatim and in order.
func BuildRequest(media Media, categories []string) *Request {
	return &Request{
		Contents: []Content{
			{
				Role: "user",
				Parts: []Part{
					{InlineData: &InlineData{MIMEType: media.MIMEType, Data: media.Data}},
					{Text: buildInstruction(categories)},
				},
			},
		},
		GenerationConfig: GenerationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   receiptSchema(),
		},
	}
}

func buildInstruction(categories []string) string {
	return fmt.Sprintf(receiptInstruction, strings.Join(categories, ", "))
}

func receiptSchema() *Schema {
	return &Schema{
		Type: "object",
		Properties: map[string]*Schema{
			FieldMerchantName:      {Type: "string"},
			FieldTotalAmount:       {Type: "number"},
			FieldTransactionDate:   {Type: "string"},
			FieldSuggestedCategory: {Type: "string"},
			"items": {
				Type: "array",
				Items: &Schema{
					Type: "object",
					Properties: map[string]*Schema{
						"name":  {Type: "string"},
						"price": {Type: "number"},
					},
				},
			},
		},
		Required: []string{
			FieldMerchantName,
			FieldTotalAmount,
			FieldTransactionDate,
			FieldSuggestedCategory,
		},
	}
}

// Instruction returns the text part of the request.
func (r *Request) Instruction() string {
	for _, c := range r.Contents {
		for _, p := range c.Parts {
			if p.Text != "" {
				return p.Text
			}
		}
	}
	return ""
}

// Media returns the first inline media part of the request.
func (r *Request) Media() (Media, bool) {
	for _, c := range r.Contents {
		for _, p := range c.Parts {
			if p.InlineData != nil {
				return Media{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data}, true
			}
		}
	}
	return Media{}, false
}
