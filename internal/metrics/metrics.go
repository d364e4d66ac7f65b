package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	QuestionsServed   *prometheus.CounterVec
	AnswersProcessed  *prometheus.CounterVec
	BonusesAwarded    prometheus.Counter
	PurchaseRequests  *prometheus.CounterVec
	PurchaseApprovals *prometheus.CounterVec
	Redemptions       *prometheus.CounterVec
	LotteryDraws      *prometheus.CounterVec
	RateRefreshes     *prometheus.CounterVec
	RateRefreshLag    prometheus.Histogram
	Errors            *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			QuestionsServed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "questions_served_total",
				Help:      "Total quiz questions served, by zone.",
			}, []string{"zone"}),
			AnswersProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "answers_processed_total",
				Help:      "Total answers graded, by result.",
			}, []string{"result"}),
			BonusesAwarded: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "streak_bonuses_total",
				Help:      "Total streak bonuses paid out.",
			}),
			PurchaseRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "purchase_requests_total",
				Help:      "Total token purchase requests, by kind.",
			}, []string{"kind"}),
			PurchaseApprovals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "purchase_approvals_total",
				Help:      "Total purchase approval attempts, by outcome.",
			}, []string{"outcome"}),
			Redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reward_redemptions_total",
				Help:      "Total reward redemptions, by outcome.",
			}, []string{"outcome"}),
			LotteryDraws: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lottery_draws_total",
				Help:      "Total lottery draws, by kind and outcome.",
			}, []string{"kind", "outcome"}),
			RateRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_refreshes_total",
				Help:      "Total exchange-rate refresh attempts, by source and status.",
			}, []string{"source", "status"}),
			RateRefreshLag: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rate_refresh_duration_seconds",
				Help:      "Latency distribution for exchange-rate refreshes.",
				Buckets:   prometheus.DefBuckets,
			}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.QuestionsServed,
			metricsInstance.AnswersProcessed,
			metricsInstance.BonusesAwarded,
			metricsInstance.PurchaseRequests,
			metricsInstance.PurchaseApprovals,
			metricsInstance.Redemptions,
			metricsInstance.LotteryDraws,
			metricsInstance.RateRefreshes,
			metricsInstance.RateRefreshLag,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
