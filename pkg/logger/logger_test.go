package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/l7-load-balancer/pkg/logger"
)

var _ = Describe("Logger", func() {
	ctx := context.Background()

	Describe("New", func() {
		DescribeTable("level handling",
			func(level string, enabled, disabled slog.Level) {
				log := logger.New(logger.Options{Level: level, Environment: "dev", Output: &bytes.Buffer{}})
				Expect(log.Enabled(ctx, enabled)).To(BeTrue())
				Expect(log.Enabled(ctx, disabled)).To(BeFalse())
			},
			Entry("info", "info", slog.LevelInfo, slog.LevelDebug),
			Entry("debug", "debug", slog.LevelDebug, slog.LevelDebug-1),
			Entry("warn", "warn", slog.LevelWarn, slog.LevelInfo),
			Entry("error", "error", slog.LevelError, slog.LevelWarn),
			Entry("upper case", "WARN", slog.LevelWarn, slog.LevelInfo),
			Entry("invalid defaults to info", "invalid", slog.LevelInfo, slog.LevelDebug),
		)

		It("should write JSON with the environment in prod", func() {
			var buf bytes.Buffer
			log := logger.New(logger.Options{Level: "info", Environment: "prod", Output: &buf})
			log.Info("hello", slog.String("component", "test"))

			var entry map[string]any
			Expect(json.Unmarshal(buf.Bytes(), &entry)).To(Succeed())
			Expect(entry).To(HaveKeyWithValue("msg", "hello"))
			Expect(entry).To(HaveKeyWithValue("environment", "prod"))
			Expect(entry).To(HaveKeyWithValue("component", "test"))
		})

		It("should write text outside prod", func() {
			var buf bytes.Buffer
			log := logger.New(logger.Options{Level: "info", Environment: "dev", Output: &buf})
			log.Info("hello")

			Expect(buf.String()).To(ContainSubstring("msg=hello"))
			Expect(buf.String()).To(ContainSubstring("environment=dev"))
		})

		It("should support the source option", func() {
			var buf bytes.Buffer
			log := logger.New(logger.Options{Environment: "dev", AddSource: true, Output: &buf})
			log.Info("hello")

			Expect(buf.String()).To(ContainSubstring("source="))
		})
	})

	Describe("Discard", func() {
		It("should accept writes", func() {
			log := logger.Discard()
			Expect(log).NotTo(BeNil())
			log.Info("dropped")
		})
	})
})
