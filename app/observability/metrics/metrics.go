package metrics

import (
	"log"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	RegisterRequestsTotal    metric.Int64Counter
	LoginRequestsTotal       metric.Int64Counter
	TokenVerificationsTotal  metric.Int64Counter
	AuthFailuresTotal        metric.Int64Counter
	ClaimsResyncsTotal       metric.Int64Counter
	DbQueryDurationSeconds   metric.Float64Histogram
	IdentityCallDurationSecs metric.Float64Histogram
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// SetupProvider wires the OTel meter provider to a Prometheus exporter and
// returns the scrape handler to mount on the metrics port.
func SetupProvider() (http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	return promhttp.Handler(), nil
}

// Get initializes the global metric instruments once and returns them.
func Get() *AppMetrics {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("medicalq-backend")
		m := &AppMetrics{}
		var err error

		m.RegisterRequestsTotal, err = meter.Int64Counter(
			"register_requests_total",
			metric.WithDescription("Total number of registration requests completed"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create register_requests_total: %v", err)
		}

		m.LoginRequestsTotal, err = meter.Int64Counter(
			"login_requests_total",
			metric.WithDescription("Total number of login requests completed"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create login_requests_total: %v", err)
		}

		m.TokenVerificationsTotal, err = meter.Int64Counter(
			"token_verifications_total",
			metric.WithDescription("Total bearer token verifications performed by the auth middleware"),
			metric.WithUnit("{verification}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create token_verifications_total: %v", err)
		}

		m.AuthFailuresTotal, err = meter.Int64Counter(
			"auth_failures_total",
			metric.WithDescription("Requests rejected by authentication or authorization"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create auth_failures_total: %v", err)
		}

		m.ClaimsResyncsTotal, err = meter.Int64Counter(
			"claims_resyncs_total",
			metric.WithDescription("Lazy claim repairs issued when local state diverged from token claims"),
			metric.WithUnit("{resync}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create claims_resyncs_total: %v", err)
		}

		m.DbQueryDurationSeconds, err = meter.Float64Histogram(
			"db_query_duration_seconds",
			metric.WithDescription("Duration of database queries in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create db_query_duration_seconds: %v", err)
		}

		m.IdentityCallDurationSecs, err = meter.Float64Histogram(
			"identity_call_duration_seconds",
			metric.WithDescription("Duration of identity provider calls in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create identity_call_duration_seconds: %v", err)
		}

		appMetrics = m
	})
	return appMetrics
}
