package strategy_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/l7-load-balancer/internal/backend"
	"github.com/angeloszaimis/l7-load-balancer/internal/strategy"
)

var _ = Describe("Roundrobin", func() {
	var (
		strat    strategy.Strategy
		backends []*backend.Backend
	)

	BeforeEach(func() {
		strat = strategy.NewRoundRobinStrategy()
		backends = newBackends("A", "B", "C")
	})

	Describe("SelectBackend", func() {
		It("should cycle through backends in order", func() {
			Expect(strat.SelectBackend(backends)).To(Equal(backends[0]))
			Expect(strat.SelectBackend(backends)).To(Equal(backends[1]))
			Expect(strat.SelectBackend(backends)).To(Equal(backends[2]))
			Expect(strat.SelectBackend(backends)).To(Equal(backends[0]))
			Expect(strat.SelectBackend(backends)).To(Equal(backends[1]))
			Expect(strat.SelectBackend(backends)).To(Equal(backends[2]))
		})

		It("should return each of K backends exactly once in K selections", func() {
			for _, k := range []int{1, 2, 5, 7} {
				ids := make([]string, k)
				for i := range ids {
					ids[i] = string(rune('a' + i))
				}
				set := newBackends(ids...)
				s := strategy.NewRoundRobinStrategy()

				// start from an arbitrary cursor position
				s.SelectBackend(set)

				seen := make(map[*backend.Backend]int)
				for i := 0; i < k; i++ {
					seen[s.SelectBackend(set)]++
				}
				Expect(seen).To(HaveLen(k))
				for _, n := range seen {
					Expect(n).To(Equal(1))
				}
			}
		})

		It("should wrap the cursor against a shrunken set", func() {
			strat.SelectBackend(backends) // A, cursor 1
			strat.SelectBackend(backends) // B, cursor 2

			shrunk := []*backend.Backend{backends[0], backends[2]}
			// cursor 2 mod 2 = 0
			Expect(strat.SelectBackend(shrunk)).To(Equal(backends[0]))
			Expect(strat.SelectBackend(shrunk)).To(Equal(backends[2]))
		})

		It("should return nil for an empty list", func() {
			Expect(strat.SelectBackend([]*backend.Backend{})).To(BeNil())
			Expect(strat.SelectBackend(nil)).To(BeNil())
		})

		It("should report its name", func() {
			Expect(strat.Name()).To(Equal(strategy.RoundRobin))
		})
	})
})
