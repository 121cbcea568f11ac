package config_test

import (
	"errors"
	"testing"

	"github.com/okian/proctor/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.FrameInterval().Seconds(), convey.ShouldEqual, 5)
			convey.So(cfg.ViolationThreshold, convey.ShouldEqual, 5)
			convey.So(cfg.AnalyzerMode, convey.ShouldEqual, config.AnalyzerSimulated)
			convey.So(cfg.StoreDriver, convey.ShouldEqual, "memory")
			convey.So(cfg.MetricsEnabled, convey.ShouldBeTrue)
			convey.So(cfg.MetricsRefresh().Seconds(), convey.ShouldEqual, 10)
			convey.So(cfg.MetricsNamespace, convey.ShouldEqual, "proctor")
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs that break a constraint", t, func() {
		cases := map[string]func(*config.Config){
			"empty addr":            func(c *config.Config) { c.Addr = "" },
			"zero interval":         func(c *config.Config) { c.FrameIntervalMS = 0 },
			"zero threshold":        func(c *config.Config) { c.ViolationThreshold = 0 },
			"inverted latency":      func(c *config.Config) { c.AnalyzerLatencyMinMS, c.AnalyzerLatencyMaxMS = 200, 100 },
			"http without url":      func(c *config.Config) { c.AnalyzerMode = config.AnalyzerHTTP },
			"unknown analyzer":      func(c *config.Config) { c.AnalyzerMode = "oracle" },
			"kafka without brokers": func(c *config.Config) { c.SinkDriver = config.SinkKafka },
			"unknown sink":          func(c *config.Config) { c.SinkDriver = "smtp" },
			"unknown log format":    func(c *config.Config) { c.LogFormat = "xml" },
			"rate above one":        func(c *config.Config) { c.AnalyzerViolationP = 1.5 },
			"zero metrics refresh":  func(c *config.Config) { c.MetricsRefreshMS = 0 },
			"empty namespace":       func(c *config.Config) { c.MetricsNamespace = "" },
			"bare metrics label":    func(c *config.Config) { c.MetricsLabels = "env" },
			"unordered buckets":     func(c *config.Config) { c.MetricsBuckets = "10,5" },
			"non-numeric bucket":    func(c *config.Config) { c.MetricsBuckets = "fast" },
		}

		for name, mutate := range cases {
			cfg := config.New()
			mutate(cfg)

			convey.Convey("Then "+name+" should be rejected", func() {
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})

	convey.Convey("Given a kafka broker list with blanks", t, func() {
		cfg := config.New()
		cfg.KafkaBrokers = " a:9092, ,b:9092 "
		convey.So(cfg.Brokers(), convey.ShouldResemble, []string{"a:9092", "b:9092"})
	})

	convey.Convey("Given metric labels and buckets", t, func() {
		cfg := config.New()
		cfg.MetricsLabels = " env=prod , region = eu ,"
		cfg.MetricsBuckets = "5, 10,25.5"

		labels, err := cfg.MetricLabels()
		convey.So(err, convey.ShouldBeNil)
		convey.So(labels, convey.ShouldResemble, map[string]string{"env": "prod", "region": "eu"})

		buckets, err := cfg.HistogramBuckets()
		convey.So(err, convey.ShouldBeNil)
		convey.So(buckets, convey.ShouldResemble, []float64{5, 10, 25.5})
		convey.So(cfg.Validate(), convey.ShouldBeNil)
	})
}
