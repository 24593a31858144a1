package scanning

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

// fakeTransport records the request and replays a canned body.
type fakeTransport struct {
	body     []byte
	err      error
	requests []*Request
	closed   bool
}

func (f *fakeTransport) Send(ctx context.Context, req *Request) ([]byte, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.body, nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

var _ = Describe("Extractor", func() {
	var (
		transport  *fakeTransport
		extractor  *Extractor
		image      []byte
		categories []string
		draft      *ReceiptDraft
		err        error
	)

	BeforeEach(func() {
		transport = &fakeTransport{}
		extractor = NewExtractor(transport, nil)
		image = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}
		categories = []string{"Food & Dining", "Transportation", "Other"}
	})

	JustBeforeEach(func() {
		draft, err = extractor.Extract(context.Background(), image, "image/jpeg", categories)
	})

	When("the provider returns every field", func() {
		const text = `{"merchantName":"Joe's Diner","totalAmount":18.75,"transactionDate":"2024-05-10","suggestedCategory":"Food & Dining"}`

		BeforeEach(func() {
			transport.body = envelope(text)
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should build a complete draft", func() {
			Expect(draft.MerchantName).To(Equal("Joe's Diner"))
			Expect(draft.TotalAmount.Valid).To(BeTrue())
			Expect(draft.TotalAmount.Decimal.Equal(decimal.RequireFromString("18.75"))).To(BeTrue())
			Expect(*draft.TransactionDate).To(Equal(time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)))
			Expect(*draft.SuggestedCategoryName).To(Equal("Food & Dining"))
			Expect(draft.RawText).To(Equal(text))
		})

		It("should send one request with the caller's categories", func() {
			Expect(transport.requests).To(HaveLen(1))
			Expect(transport.requests[0].Instruction()).To(ContainSubstring("Food & Dining, Transportation, Other"))
		})
	})

	When("the merchant is missing or blank", func() {
		BeforeEach(func() {
			transport.body = envelope(`{"merchantName":"  ","totalAmount":5}`)
		})

		It("should use the unknown merchant name", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(draft.MerchantName).To(Equal(UnknownMerchant))
		})
	})

	When("the merchant has surrounding whitespace", func() {
		BeforeEach(func() {
			transport.body = envelope(`{"merchantName":"  Corner Shop "}`)
		})

		It("should trim it", func() {
			Expect(draft.MerchantName).To(Equal("Corner Shop"))
		})
	})

	When("the date cannot be parsed", func() {
		BeforeEach(func() {
			transport.body = envelope(`{"merchantName":"Shop","transactionDate":"sometime last week"}`)
		})

		It("should leave the date absent without failing", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(draft.TransactionDate).To(BeNil())
		})
	})

	When("the suggestion is not one of the categories", func() {
		BeforeEach(func() {
			transport.body = envelope(`{"merchantName":"Shop","suggestedCategory":"Groceries"}`)
		})

		It("should fall back to Other", func() {
			Expect(*draft.SuggestedCategoryName).To(Equal("Other"))
		})
	})

	When("the suggestion uses different casing", func() {
		BeforeEach(func() {
			transport.body = envelope(`{"suggestedCategory":"transportation"}`)
		})

		It("should use the caller's casing", func() {
			Expect(*draft.SuggestedCategoryName).To(Equal("Transportation"))
		})
	})

	When("the caller has no categories", func() {
		BeforeEach(func() {
			categories = nil
			transport.body = envelope(`{"suggestedCategory":"Food & Dining"}`)
		})

		It("should leave the suggestion unset", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(draft.SuggestedCategoryName).To(BeNil())
		})
	})

	When("the image is empty", func() {
		BeforeEach(func() {
			image = nil
		})

		It("should fail before any request is sent", func() {
			Expect(err).To(MatchError(ErrEmptyInput))
			Expect(draft).To(BeNil())
			Expect(transport.requests).To(BeEmpty())
		})
	})

	When("the transport fails", func() {
		BeforeEach(func() {
			transport.err = &TransportError{Err: errors.New("connection reset")}
		})

		It("should return the transport error and no draft", func() {
			Expect(err).To(MatchError(ErrTransport))
			Expect(draft).To(BeNil())
		})
	})

	When("the embedded text is malformed", func() {
		BeforeEach(func() {
			transport.body = envelope("Sorry, I can't read that.")
		})

		It("should return ErrMalformedExtraction and no draft", func() {
			Expect(err).To(MatchError(ErrMalformedExtraction))
			Expect(draft).To(BeNil())
		})
	})

	Describe("Close", func() {
		It("should close a closable transport", func() {
			Expect(extractor.Close()).To(Succeed())
			Expect(transport.closed).To(BeTrue())
		})
	})
})

var _ = Describe("parseTransactionDate", func() {
	DescribeTable("supported layouts",
		func(input string, expected time.Time) {
			got := parseTransactionDate(input)
			Expect(got).NotTo(BeNil())
			Expect(got.Year()).To(Equal(expected.Year()))
			Expect(got.Month()).To(Equal(expected.Month()))
			Expect(got.Day()).To(Equal(expected.Day()))
		},
		Entry("ISO date", "2024-05-10", time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)),
		Entry("ISO date with whitespace", " 2024-05-10 ", time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)),
		Entry("RFC 3339", "2024-05-10T13:45:00Z", time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)),
		Entry("slashes", "2024/05/10", time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)),
		Entry("US format", "05/10/2024", time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)),
		Entry("month name", "May 10, 2024", time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)),
	)

	DescribeTable("unparsable input",
		func(input string) {
			Expect(parseTransactionDate(input)).To(BeNil())
		},
		Entry("empty", ""),
		Entry("prose", "yesterday"),
		Entry("impossible date", "2024-13-45"),
	)
})

var _ = Describe("Extractor with the REST client", func() {
	var (
		server    *ghttp.Server
		extractor *Extractor
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		client, err := NewClient(ClientConfig{APIKey: "test-key", BaseURL: server.URL()})
		Expect(err).NotTo(HaveOccurred())
		extractor = NewExtractor(client, NewMediaEncoder(false))
	})

	AfterEach(func() {
		server.Close()
	})

	It("should scan a receipt end to end", func() {
		server.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodPost, generatePath, "key=test-key"),
			ghttp.RespondWith(http.StatusOK, envelope(`{"merchantName":"Joe's Diner","totalAmount":18.75,"transactionDate":"2024-05-10","suggestedCategory":"Food & Dining"}`)),
		))

		draft, err := extractor.Extract(context.Background(), []byte("image"), "image/png", []string{"Food & Dining", "Other"})
		Expect(err).NotTo(HaveOccurred())
		Expect(draft.MerchantName).To(Equal("Joe's Diner"))
		Expect(*draft.SuggestedCategoryName).To(Equal("Food & Dining"))
	})

	It("should surface upstream failures", func() {
		server.AppendHandlers(ghttp.RespondWith(http.StatusTooManyRequests, `{"error":{"code":429}}`))

		draft, err := extractor.Extract(context.Background(), []byte("image"), "image/png", []string{"Other"})
		Expect(draft).To(BeNil())
		Expect(err).To(MatchError(ErrUpstream))
	})
})

var _ = Describe("errorKind", func() {
	It("should name each error kind", func() {
		Expect(errorKind(&ConfigError{Field: "api key"})).To(Equal("configuration"))
		Expect(errorKind(ErrEmptyInput)).To(Equal("empty_input"))
		Expect(errorKind(&TransportError{Err: errors.New("x")})).To(Equal("transport"))
		Expect(errorKind(&UpstreamError{StatusCode: 500})).To(Equal("upstream"))
		Expect(errorKind(ErrEmptyUpstreamResult)).To(Equal("empty_upstream_result"))
		Expect(errorKind(&MalformedExtractionError{Err: errors.New("x")})).To(Equal("malformed_extraction"))
		Expect(errorKind(errors.New("other"))).To(Equal("unknown"))
	})
})
