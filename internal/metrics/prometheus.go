package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PlansGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mealplan_plans_generated_total",
			Help: "Meal plans returned, by origin (generated or cache)",
		},
		[]string{"origin"},
	)

	PlanRequestsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mealplan_plan_requests_failed_total",
			Help: "Meal plan requests that ended in an error, by kind",
		},
		[]string{"kind"},
	)

	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mealplan_cache_requests_total",
			Help: "Plan cache lookups by result",
		},
		[]string{"result"},
	)

	Fallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mealplan_fallbacks_total",
			Help: "Meals produced by a fallback tier",
		},
		[]string{"tier"},
	)

	LLMTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mealplan_llm_tokens_total",
			Help: "Tokens consumed by model calls, by agent",
		},
		[]string{"agent"},
	)

	DayGenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mealplan_day_generation_duration_seconds",
			Help:    "Time to produce one day of meals, fallbacks included",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
		},
	)
)
