package httpserver_test

import (
	"context"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/l7-load-balancer/internal/httpserver"
)

var _ = Describe("HTTP Server", func() {
	noop := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	Context("server creation", func() {
		DescribeTable("address validation",
			func(addr string, valid bool) {
				srv, err := httpserver.New(addr, noop)
				if valid {
					Expect(err).NotTo(HaveOccurred())
					Expect(srv).NotTo(BeNil())
				} else {
					Expect(err).To(HaveOccurred())
					Expect(srv).To(BeNil())
				}
			},
			Entry("host name", "localhost:9999", true),
			Entry("IP address", "127.0.0.1:9999", true),
			Entry("port only", ":3000", true),
			Entry("ephemeral port", ":0", true),
			Entry("too many colons", "invalid:host:port", false),
			Entry("missing port", "localhost", false),
			Entry("empty port", "localhost:", false),
			Entry("non numeric port", "localhost:http-alt", false),
			Entry("bad host", "bad_host!:80", false),
		)
	})

	Context("server lifecycle", func() {
		var testServer *httpserver.Server

		AfterEach(func() {
			if testServer != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
				defer cancel()
				_ = testServer.Shutdown(ctx)
			}
		})

		It("starts and handles requests", func() {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("test"))
			})
			var err error
			testServer, err = httpserver.New("127.0.0.1:0", handler)
			Expect(err).NotTo(HaveOccurred())
			Expect(testServer.Listen()).To(Succeed())

			go func() {
				defer GinkgoRecover()
				Expect(testServer.Start()).To(Succeed())
			}()

			resp, err := http.Get("http://" + testServer.Addr())
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(Equal("test"))
		})

		It("reports the configured address before binding", func() {
			var err error
			testServer, err = httpserver.New(":3001", noop)
			Expect(err).NotTo(HaveOccurred())
			Expect(testServer.Addr()).To(Equal(":3001"))
		})

		It("shuts down gracefully", func() {
			var err error
			testServer, err = httpserver.New("127.0.0.1:0", noop, httpserver.WithShutdownTimeout(time.Second))
			Expect(err).NotTo(HaveOccurred())
			Expect(testServer.Listen()).To(Succeed())

			done := make(chan error, 1)
			go func() {
				done <- testServer.Start()
			}()

			Eventually(func() error {
				resp, err := http.Get("http://" + testServer.Addr())
				if err == nil {
					resp.Body.Close()
				}
				return err
			}).Should(Succeed())

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			Expect(testServer.Shutdown(ctx)).To(Succeed())
			Eventually(done).Should(Receive(BeNil()))
		})
	})
})
