package rates

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"triviabot/internal/metrics"
)

func rateServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestService(t *testing.T, sources []string) *Service {
	t.Helper()
	return NewService(NewClient(2*time.Second), Config{
		BaseCurrency:    "USD",
		TargetCurrency:  "XAF",
		RefreshInterval: time.Nanosecond,
		FallbackRate:    600,
		SourceURLs:      sources,
	}, nil, metrics.Registry("test"), slog.Default())
}

func TestQuoteUsesFirstHealthySource(t *testing.T) {
	good := rateServer(t, `{"result":"success","rates":{"XAF":612.5,"EUR":0.9}}`, http.StatusOK)

	svc := newTestService(t, []string{good.URL})
	q := svc.Quote(context.Background())
	require.Equal(t, 612.5, q.Rate)
	require.Equal(t, good.URL, q.Source)
	require.False(t, q.UpdatedAt.IsZero())
}

func TestQuoteFallsThroughFailedSources(t *testing.T) {
	down := rateServer(t, `upstream exploded`, http.StatusBadGateway)
	missing := rateServer(t, `{"rates":{"EUR":0.9}}`, http.StatusOK)
	good := rateServer(t, `{"rates":{"XAF":598.0}}`, http.StatusOK)

	svc := newTestService(t, []string{down.URL, missing.URL, good.URL})
	q := svc.Quote(context.Background())
	require.Equal(t, 598.0, q.Rate)
	require.Equal(t, good.URL, q.Source)
}

func TestQuoteRetainsPreviousValueWhenAllSourcesFail(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"rates":{"XAF":605.0}}`))
	}))
	t.Cleanup(srv.Close)

	svc := newTestService(t, []string{srv.URL})
	ctx := context.Background()

	q := svc.Quote(ctx)
	require.Equal(t, 605.0, q.Rate)

	// The source going dark must not disturb the held quote.
	healthy.Store(false)
	q = svc.Refresh(ctx)
	require.Equal(t, 605.0, q.Rate)
	require.Equal(t, srv.URL, q.Source)
}

func TestQuoteStartsFromFallbackWhenNothingEverSucceeded(t *testing.T) {
	down := rateServer(t, `nope`, http.StatusInternalServerError)

	svc := newTestService(t, []string{down.URL})
	q := svc.Quote(context.Background())
	require.Equal(t, 600.0, q.Rate)
	require.Equal(t, "fallback", q.Source)
}

func TestConvertAppliesCurrentRate(t *testing.T) {
	good := rateServer(t, `{"rates":{"XAF":600.0}}`, http.StatusOK)

	svc := newTestService(t, []string{good.URL})
	amount, q := svc.Convert(context.Background(), 2.5)
	require.Equal(t, 1500.0, amount)
	require.Equal(t, 600.0, q.Rate)
}
