package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

const generatePath = "/v1beta/models/gemini-2.0-flash:generateContent"

var _ = Describe("Client", func() {
	var (
		server *ghttp.Server
		client *Client
		req    *Request
	)

	BeforeEach(func() {
		server = ghttp.NewServer()

		var err error
		client, err = NewClient(ClientConfig{APIKey: "test-key", BaseURL: server.URL()})
		Expect(err).NotTo(HaveOccurred())

		req = BuildRequest(Media{MIMEType: MIMETypeJPEG, Data: "aGVsbG8="}, []string{"Other"})
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("NewClient", func() {
		It("should reject a missing API key", func() {
			_, err := NewClient(ClientConfig{})
			Expect(err).To(MatchError(ErrConfiguration))

			var cfgErr *ConfigError
			Expect(errors.As(err, &cfgErr)).To(BeTrue())
			Expect(cfgErr.Field).To(Equal("api key"))
		})

		It("should reject a blank API key", func() {
			_, err := NewClient(ClientConfig{APIKey: "   "})
			Expect(err).To(MatchError(ErrConfiguration))
		})
	})

	Describe("Send", func() {
		When("the service answers 200", func() {
			var received Request

			BeforeEach(func() {
				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodPost, generatePath, "key=test-key"),
					ghttp.VerifyContentType("application/json"),
					func(w http.ResponseWriter, r *http.Request) {
						body, err := io.ReadAll(r.Body)
						Expect(err).NotTo(HaveOccurred())
						Expect(json.Unmarshal(body, &received)).To(Succeed())
					},
					ghttp.RespondWith(http.StatusOK, envelope(`{"merchantName":"Cafe X"}`)),
				))
			})

			It("should return the raw body", func() {
				body, err := client.Send(context.Background(), req)
				Expect(err).NotTo(HaveOccurred())
				Expect(body).To(Equal(envelope(`{"merchantName":"Cafe X"}`)))
			})

			It("should send exactly one request carrying the media and instruction", func() {
				_, err := client.Send(context.Background(), req)
				Expect(err).NotTo(HaveOccurred())
				Expect(server.ReceivedRequests()).To(HaveLen(1))

				media, ok := received.Media()
				Expect(ok).To(BeTrue())
				Expect(media.Data).To(Equal("aGVsbG8="))
				Expect(received.Instruction()).To(ContainSubstring("exactly one of: Other"))
			})
		})

		When("logging a successful call", func() {
			var logs *bytes.Buffer

			BeforeEach(func() {
				logs = &bytes.Buffer{}
				var err error
				client, err = NewClient(ClientConfig{
					APIKey:  "test-key",
					BaseURL: server.URL(),
					Logger:  slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
				})
				Expect(err).NotTo(HaveOccurred())

				server.AppendHandlers(ghttp.RespondWith(http.StatusOK, envelope(`{}`)))
			})

			It("should keep request and response lines at debug level", func() {
				_, err := client.Send(context.Background(), req)
				Expect(err).NotTo(HaveOccurred())

				Expect(logs.String()).To(ContainSubstring("msg=scanning.request"))
				Expect(logs.String()).To(ContainSubstring("mime_type=image/jpeg"))
				Expect(logs.String()).To(ContainSubstring("msg=scanning.response"))
				Expect(logs.String()).NotTo(ContainSubstring("level=INFO"))
				Expect(logs.String()).NotTo(ContainSubstring("test-key"))
			})
		})

		When("another model is configured", func() {
			BeforeEach(func() {
				var err error
				client, err = NewClient(ClientConfig{APIKey: "test-key", BaseURL: server.URL() + "/", Model: "gemini-1.5-pro"})
				Expect(err).NotTo(HaveOccurred())

				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodPost, "/v1beta/models/gemini-1.5-pro:generateContent"),
					ghttp.RespondWith(http.StatusOK, envelope(`{}`)),
				))
			})

			It("should use the configured model", func() {
				_, err := client.Send(context.Background(), req)
				Expect(err).NotTo(HaveOccurred())
			})
		})

		DescribeTable("non-2xx responses",
			func(status int) {
				server.AppendHandlers(ghttp.RespondWith(status, `{"error":{"message":"nope"}}`))

				body, err := client.Send(context.Background(), req)
				Expect(body).To(BeNil())
				Expect(err).To(MatchError(ErrUpstream))

				var upstream *UpstreamError
				Expect(errors.As(err, &upstream)).To(BeTrue())
				Expect(upstream.StatusCode).To(Equal(status))
				Expect(upstream.Body).To(ContainSubstring("nope"))
			},
			Entry("bad request", http.StatusBadRequest),
			Entry("forbidden", http.StatusForbidden),
			Entry("rate limited", http.StatusTooManyRequests),
			Entry("server error", http.StatusInternalServerError),
			Entry("unavailable", http.StatusServiceUnavailable),
		)

		It("should not retry on failure", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "boom"))

			_, err := client.Send(context.Background(), req)
			Expect(err).To(HaveOccurred())
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})

		When("the service is unreachable", func() {
			It("should return a TransportError without leaking the key", func() {
				url := server.URL()
				server.Close()

				c, err := NewClient(ClientConfig{APIKey: "secret-key-123", BaseURL: url})
				Expect(err).NotTo(HaveOccurred())

				_, err = c.Send(context.Background(), req)
				Expect(err).To(MatchError(ErrTransport))
				Expect(err.Error()).NotTo(ContainSubstring("secret-key-123"))
			})
		})

		When("the request times out", func() {
			BeforeEach(func() {
				var err error
				client, err = NewClient(ClientConfig{
					APIKey:     "test-key",
					BaseURL:    server.URL(),
					HTTPClient: &http.Client{Timeout: 50 * time.Millisecond},
				})
				Expect(err).NotTo(HaveOccurred())

				server.AppendHandlers(func(w http.ResponseWriter, r *http.Request) {
					time.Sleep(200 * time.Millisecond)
					w.WriteHeader(http.StatusOK)
				})
			})

			It("should return a TransportError", func() {
				_, err := client.Send(context.Background(), req)
				Expect(err).To(MatchError(ErrTransport))
			})
		})

		When("the context is already cancelled", func() {
			It("should return a TransportError", func() {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()

				_, err := client.Send(ctx, req)
				Expect(err).To(MatchError(ErrTransport))
				Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			})
		})
	})
})
