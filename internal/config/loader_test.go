package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/proctor/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading with defaults only", func() {
			clearConfigEnvVars(t)
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load the defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.FrameIntervalMS, convey.ShouldEqual, 5000)
				convey.So(cfg.SinkDriver, convey.ShouldEqual, config.SinkHTTP)
			})
		})

		convey.Convey("When loading with environment variables", func() {
			clearConfigEnvVars(t)
			t.Setenv("PROCTOR_ADDR", ":8080")
			t.Setenv("PROCTOR_VIOLATION_THRESHOLD", "3")
			t.Setenv("PROCTOR_SINK_QUEUE_SIZE", "64")
			t.Setenv("PROCTOR_STORE_DRIVER", "sqlite")
			t.Setenv("PROCTOR_METRICS_ENABLED", "false")
			t.Setenv("PROCTOR_METRICS_REFRESH_MS", "2500")
			t.Setenv("PROCTOR_METRICS_NAMESPACE", "exam")

			cfg, err := config.Load(ctx)

			convey.Convey("Then env should override defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.ViolationThreshold, convey.ShouldEqual, 3)
				convey.So(cfg.SinkQueueSize, convey.ShouldEqual, 64)
				convey.So(cfg.StoreDriver, convey.ShouldEqual, "sqlite")
				convey.So(cfg.MetricsEnabled, convey.ShouldBeFalse)
				convey.So(cfg.MetricsRefreshMS, convey.ShouldEqual, 2500)
				convey.So(cfg.MetricsNamespace, convey.ShouldEqual, "exam")
			})
		})

		convey.Convey("When loading with a YAML file and env overrides", func() {
			clearConfigEnvVars(t)
			path := writeConfig(t, `
addr: ":9090"
frame_interval_ms: 1000
analyzer_mode: http
analyzer_url: "http://vision.local/analyze"
sink_driver: kafka
kafka_brokers: "k1:9092,k2:9092"
`)
			t.Setenv("PROCTOR_CONFIG", path)
			t.Setenv("PROCTOR_ADDR", ":7070")

			cfg, err := config.Load(ctx)

			convey.Convey("Then file values apply and env wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.FrameIntervalMS, convey.ShouldEqual, 1000)
				convey.So(cfg.AnalyzerMode, convey.ShouldEqual, config.AnalyzerHTTP)
				convey.So(cfg.Brokers(), convey.ShouldResemble, []string{"k1:9092", "k2:9092"})
			})
		})

		convey.Convey("When the YAML file is invalid", func() {
			clearConfigEnvVars(t)
			t.Setenv("PROCTOR_CONFIG", writeConfig(t, `invalid: yaml: content: [`))
			cfg, err := config.Load(ctx)

			convey.Convey("Then a load error should be returned", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the file does not exist", func() {
			clearConfigEnvVars(t)
			t.Setenv("PROCTOR_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
			_, err := config.Load(ctx)
			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the result is invalid", func() {
			clearConfigEnvVars(t)
			t.Setenv("PROCTOR_SINK_DRIVER", "carrier-pigeon")
			_, err := config.Load(ctx)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "proctor.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearConfigEnvVars(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				if key := kv[:i]; len(key) > len(config.EnvPrefix) && key[:len(config.EnvPrefix)] == config.EnvPrefix {
					t.Setenv(key, "")
					_ = os.Unsetenv(key)
				}
				break
			}
		}
	}
}
