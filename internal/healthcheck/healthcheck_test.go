package healthcheck_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/l7-load-balancer/internal/backend"
	"github.com/angeloszaimis/l7-load-balancer/internal/healthcheck"
	"github.com/angeloszaimis/l7-load-balancer/internal/registry"
)

var _ = Describe("Monitor", func() {
	var (
		reg      *registry.Registry
		prober   *scriptedProber
		notifier *countingNotifier
		monitor  *healthcheck.Monitor
		cfg      healthcheck.Config
	)

	statusOf := func(id string) backend.Status {
		for _, s := range reg.Snapshot().Backends {
			if s.ID == id {
				return s.Status
			}
		}
		Fail("unknown backend " + id)
		return 0
	}

	BeforeEach(func() {
		var err error
		reg, err = registry.New([]backend.Config{
			{ID: "A", URL: mustParseURL("http://localhost:4001"), Weight: 1},
			{ID: "B", URL: mustParseURL("http://localhost:4002"), Weight: 1},
			{ID: "C", URL: mustParseURL("http://localhost:4003"), Weight: 1},
		})
		Expect(err).NotTo(HaveOccurred())

		prober = newScriptedProber()
		notifier = &countingNotifier{}
		cfg = healthcheck.Config{
			Interval:   time.Hour,
			Timeout:    time.Second,
			Thresholds: backend.DefaultThresholds,
		}
	})

	JustBeforeEach(func() {
		monitor = healthcheck.New(reg, notifier, cfg, discardLogger(), healthcheck.WithProber(prober))
	})

	Describe("CheckAll", func() {
		It("should probe every backend and notify once", func() {
			report := monitor.CheckAll(context.Background())

			Expect(report.Outcomes).To(HaveLen(3))
			Expect(report.Outcomes[0].BackendID).To(Equal("A"))
			Expect(report.Outcomes[2].BackendID).To(Equal("C"))
			Expect(notifier.Count()).To(Equal(1))
			for _, host := range []string{"localhost:4001", "localhost:4002", "localhost:4003"} {
				Expect(prober.Calls(host)).To(Equal(1))
			}
		})

		It("should set lastChecked on every outcome", func() {
			fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
			monitor = healthcheck.New(reg, notifier, cfg, discardLogger(),
				healthcheck.WithProber(prober),
				healthcheck.WithClock(func() time.Time { return fixed }))
			prober.Set("localhost:4002", false)

			monitor.CheckAll(context.Background())

			for _, s := range reg.Snapshot().Backends {
				Expect(s.LastChecked).NotTo(BeNil())
				Expect(*s.LastChecked).To(Equal(fixed))
			}
		})

		It("should take a backend down after three failures and back after one success", func() {
			prober.Set("localhost:4002", false)

			monitor.CheckAll(context.Background())
			monitor.CheckAll(context.Background())
			Expect(statusOf("B")).To(Equal(backend.StatusHealthy))

			report := monitor.CheckAll(context.Background())
			Expect(statusOf("B")).To(Equal(backend.StatusUnhealthy))
			Expect(report.Outcomes[1].Changed).To(BeTrue())
			Expect(report.Outcomes[1].Status).To(Equal(backend.StatusUnhealthy))
			Expect(reg.Available()).To(HaveLen(2))

			prober.Set("localhost:4002", true)
			report = monitor.CheckAll(context.Background())
			Expect(statusOf("B")).To(Equal(backend.StatusHealthy))
			Expect(report.Outcomes[1].Changed).To(BeTrue())

			Expect(notifier.Count()).To(Equal(4))
		})

		It("should leave other backends untouched", func() {
			prober.Set("localhost:4002", false)
			for i := 0; i < 5; i++ {
				monitor.CheckAll(context.Background())
			}
			Expect(statusOf("A")).To(Equal(backend.StatusHealthy))
			Expect(statusOf("C")).To(Equal(backend.StatusHealthy))
		})

		Context("with custom thresholds", func() {
			BeforeEach(func() {
				cfg.Thresholds = backend.Thresholds{Unhealthy: 1, Healthy: 2}
			})

			It("should honour them", func() {
				prober.Set("localhost:4001", false)
				monitor.CheckAll(context.Background())
				Expect(statusOf("A")).To(Equal(backend.StatusUnhealthy))

				prober.Set("localhost:4001", true)
				monitor.CheckAll(context.Background())
				Expect(statusOf("A")).To(Equal(backend.StatusUnhealthy))
				monitor.CheckAll(context.Background())
				Expect(statusOf("A")).To(Equal(backend.StatusHealthy))
			})
		})

		It("should probe backends concurrently", func() {
			prober.delay = 100 * time.Millisecond

			start := time.Now()
			monitor.CheckAll(context.Background())
			Expect(time.Since(start)).To(BeNumerically("<", 250*time.Millisecond))
		})

		It("should discard results and skip notification when cancelled", func() {
			prober.Block("localhost:4001")
			prober.Block("localhost:4002")
			prober.Block("localhost:4003")

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan healthcheck.Report, 1)
			go func() {
				done <- monitor.CheckAll(ctx)
			}()

			Eventually(func() int { return prober.Calls("localhost:4003") }).Should(Equal(1))
			cancel()

			var report healthcheck.Report
			Eventually(done).Should(Receive(&report))
			Expect(report.Outcomes).To(BeEmpty())
			Expect(notifier.Count()).To(BeZero())
			for _, s := range reg.Snapshot().Backends {
				Expect(s.LastChecked).To(BeNil())
			}
		})
	})

	Describe("Start and Stop", func() {
		It("should run a tick immediately", func() {
			monitor.Start(context.Background())
			defer monitor.Stop()

			Eventually(notifier.Count).Should(Equal(1))
			Consistently(notifier.Count, 100*time.Millisecond).Should(Equal(1))
		})

		Context("with a short interval", func() {
			BeforeEach(func() {
				cfg.Interval = 20 * time.Millisecond
			})

			It("should keep ticking", func() {
				monitor.Start(context.Background())
				defer monitor.Stop()

				Eventually(notifier.Count).Should(BeNumerically(">=", 3))
			})

			It("should not let a slow backend delay the next tick", func() {
				release := prober.Block("localhost:4001")
				defer close(release)

				monitor.Start(context.Background())
				defer monitor.Stop()

				Eventually(func() int { return prober.Calls("localhost:4002") }).Should(BeNumerically(">=", 3))
			})

			It("should stop ticking after Stop", func() {
				monitor.Start(context.Background())
				Eventually(notifier.Count).Should(BeNumerically(">=", 1))

				monitor.Stop()
				count := notifier.Count()
				Consistently(notifier.Count, 100*time.Millisecond).Should(Equal(count))
			})

			It("should cancel blocked probes on Stop", func() {
				prober.Block("localhost:4001")

				monitor.Start(context.Background())
				Eventually(func() int { return prober.Calls("localhost:4001") }).Should(BeNumerically(">=", 1))

				stopped := make(chan struct{})
				go func() {
					monitor.Stop()
					close(stopped)
				}()
				Eventually(stopped).Should(BeClosed())
			})
		})

		It("should tolerate Stop without Start and repeated calls", func() {
			monitor.Stop()
			monitor.Start(context.Background())
			monitor.Start(context.Background())
			monitor.Stop()
			monitor.Stop()
		})
	})
})
