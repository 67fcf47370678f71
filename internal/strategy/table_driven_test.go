package strategy_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/l7-load-balancer/internal/strategy"
)

var _ = Describe("Table-Driven Strategy Tests", func() {
	DescribeTable("New accepts the enumerated algorithms",
		func(name string) {
			strat, err := strategy.New(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(strat.Name()).To(Equal(name))
		},
		Entry("Round Robin", strategy.RoundRobin),
		Entry("Least Connections", strategy.LeastConnections),
	)

	DescribeTable("New rejects anything else",
		func(name string) {
			strat, err := strategy.New(name)
			Expect(errors.Is(err, strategy.ErrInvalidArgument)).To(BeTrue())
			Expect(errors.Is(err, strategy.ErrInvalidAlgorithm)).To(BeTrue())
			Expect(strat).To(BeNil())
		},
		Entry("empty", ""),
		Entry("mixed case", "Round-Robin"),
		Entry("short name", "least-conn"),
		Entry("weighted", "weighted-round-robin"),
		Entry("garbage", "!!invalid!!"),
	)

	DescribeTable("All strategies select from the given backends",
		func(name string) {
			strat, err := strategy.New(name)
			Expect(err).NotTo(HaveOccurred())

			backends := newBackends("A", "B", "C")
			selected := strat.SelectBackend(backends)
			Expect(selected).NotTo(BeNil())
			Expect(backends).To(ContainElement(selected))
		},
		Entry("Round Robin", strategy.RoundRobin),
		Entry("Least Connections", strategy.LeastConnections),
	)
})
