package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/l7-load-balancer/internal/api"
	"github.com/angeloszaimis/l7-load-balancer/internal/backend"
	"github.com/angeloszaimis/l7-load-balancer/internal/broadcast"
	"github.com/angeloszaimis/l7-load-balancer/internal/loadbalancer"
	"github.com/angeloszaimis/l7-load-balancer/internal/registry"
	"github.com/angeloszaimis/l7-load-balancer/internal/strategy"
)

var _ = Describe("API", func() {
	var (
		lb      *loadbalancer.LoadBalancer
		hub     *broadcast.Hub
		routes  http.Handler
		metrics http.Handler
	)

	BeforeEach(func() {
		reg, err := registry.New([]backend.Config{
			{ID: "backend-1", URL: mustParseURL("http://localhost:4001"), Weight: 1},
			{ID: "backend-2", URL: mustParseURL("http://localhost:4002"), Weight: 2},
		})
		Expect(err).NotTo(HaveOccurred())

		engine, err := strategy.NewEngine(strategy.RoundRobin)
		Expect(err).NotTo(HaveOccurred())

		hub = broadcast.NewHub(discardLogger())
		lb = loadbalancer.NewLoadBalancer(reg, engine, hub, discardLogger())
		lb.Publish()

		metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("lb_state_version 1\n"))
		})
		routes = api.New(lb, hub, metrics, discardLogger()).Routes()
	})

	AfterEach(func() {
		hub.Close()
	})

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		routes.ServeHTTP(w, req)
		return w
	}

	decode := func(w *httptest.ResponseRecorder) map[string]any {
		var body map[string]any
		Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
		return body
	}

	Describe("GET /api/state", func() {
		It("should return the algorithm and every backend", func() {
			w := do(http.MethodGet, "/api/state", "")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(Equal("application/json"))

			var state broadcast.State
			Expect(json.Unmarshal(w.Body.Bytes(), &state)).To(Succeed())
			Expect(state.Algorithm).To(Equal(strategy.RoundRobin))
			Expect(state.Backends).To(HaveLen(2))
			Expect(state.Backends[1].Weight).To(Equal(2))
			Expect(state.Backends[0].Status).To(Equal(backend.StatusHealthy))
		})

		It("should not expose probe counters", func() {
			w := do(http.MethodGet, "/api/state", "")
			Expect(w.Body.String()).NotTo(ContainSubstring("failCount"))
			Expect(w.Body.String()).NotTo(ContainSubstring("successCount"))
			Expect(w.Body.String()).To(ContainSubstring(`"lastChecked":null`))
		})
	})

	Describe("POST /api/algorithm", func() {
		It("should switch the algorithm", func() {
			w := do(http.MethodPost, "/api/algorithm", `{"algorithm":"least-connections"}`)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(decode(w)).To(HaveKeyWithValue("algorithm", "least-connections"))
			Expect(lb.Algorithm()).To(Equal(strategy.LeastConnections))
			latest, _ := hub.Latest()
			Expect(latest.Algorithm).To(Equal(strategy.LeastConnections))
		})

		It("should reject unknown algorithms with 400", func() {
			w := do(http.MethodPost, "/api/algorithm", `{"algorithm":"random"}`)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(decode(w)).To(HaveKeyWithValue("error", "Invalid algorithm: random"))
			Expect(lb.Algorithm()).To(Equal(strategy.RoundRobin))
		})

		It("should reject malformed JSON with 400", func() {
			w := do(http.MethodPost, "/api/algorithm", `{`)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("should only accept POST", func() {
			w := do(http.MethodGet, "/api/algorithm", "")
			Expect(w.Code).To(Equal(http.StatusMethodNotAllowed))
		})
	})

	Describe("POST /api/backends/{id}/toggle", func() {
		It("should disable and enable a backend", func() {
			w := do(http.MethodPost, "/api/backends/backend-2/toggle", `{"enabled":false}`)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(decode(w)).To(HaveKeyWithValue("message", "Backend backend-2 disabled"))
			Expect(lb.Available()).To(HaveLen(1))

			w = do(http.MethodPost, "/api/backends/backend-2/toggle", `{"enabled":true}`)
			Expect(decode(w)).To(HaveKeyWithValue("message", "Backend backend-2 enabled"))
			Expect(lb.Available()).To(HaveLen(2))
		})

		It("should answer 404 for an unknown backend", func() {
			w := do(http.MethodPost, "/api/backends/nope/toggle", `{"enabled":false}`)
			Expect(w.Code).To(Equal(http.StatusNotFound))
			Expect(decode(w)).To(HaveKeyWithValue("error", "Backend nope not found"))
		})

		It("should require the enabled field", func() {
			w := do(http.MethodPost, "/api/backends/backend-1/toggle", `{}`)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(lb.Available()).To(HaveLen(2))
		})
	})

	Describe("auxiliary routes", func() {
		It("should serve metrics", func() {
			w := do(http.MethodGet, "/metrics", "")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring("lb_state_version"))
		})

		It("should serve a liveness probe", func() {
			w := do(http.MethodGet, "/healthz", "")
			Expect(w.Code).To(Equal(http.StatusOK))
		})

		It("should answer CORS preflight requests", func() {
			req := httptest.NewRequest(http.MethodOptions, "/api/algorithm", nil)
			req.Header.Set("Origin", "http://dashboard.local")
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			w := httptest.NewRecorder()
			routes.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusNoContent))
			Expect(w.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})

		It("should stream state over the WebSocket", func() {
			server := httptest.NewServer(routes)
			defer server.Close()

			conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
			Expect(err).NotTo(HaveOccurred())
			defer conn.Close()

			var msg broadcast.Message
			Expect(conn.SetReadDeadline(time.Now().Add(2 * time.Second))).To(Succeed())
			Expect(conn.ReadJSON(&msg)).To(Succeed())
			Expect(msg.Event).To(Equal("lb:state"))
			Expect(msg.Data.Backends).To(HaveLen(2))

			Expect(lb.ToggleBackend("backend-1", false)).To(Succeed())
			Expect(conn.SetReadDeadline(time.Now().Add(2 * time.Second))).To(Succeed())
			Expect(conn.ReadJSON(&msg)).To(Succeed())
			Expect(msg.Data.Backends[0].Enabled).To(BeFalse())
		})
	})
})
