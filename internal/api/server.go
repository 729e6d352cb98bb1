package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"ai-meal-plan-api/internal/metrics"
	"ai-meal-plan-api/internal/planner"
	"ai-meal-plan-api/internal/query"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	serviceName       = "meal-planner-api"
	maxBodyBytes      = 1 << 20
	generationFailure = "Failed to generate meal plan. Please try again."
)

// PlanGenerator is what the API needs from the planner.
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, q string) (*planner.MealPlanResponse, error)
}

// MealPlanRequest is the body of POST /api/generate-meal-plan.
type MealPlanRequest struct {
	Query string `json:"query" validate:"required,min=1"`
}

// ValidationDetail describes one problem with a request body.
type ValidationDetail struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

type errorResponse struct {
	Detail any `json:"detail"`
}

// Server serves the meal plan HTTP API.
type Server struct {
	plans    PlanGenerator
	health   metrics.HealthSources
	validate *validator.Validate
	logger   *zap.Logger
}

// NewServer creates a Server. health is what the health check reports on.
func NewServer(plans PlanGenerator, health metrics.HealthSources, logger *zap.Logger) *Server {
	return &Server{
		plans:    plans,
		health:   health,
		validate: validator.New(),
		logger:   logger.Named("api"),
	}
}

// Handler returns the router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors)

	r.Route("/api", func(r chi.Router) {
		r.Post("/generate-meal-plan", s.handleGenerateMealPlan)
		r.Get("/health", s.handleHealth)
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) handleGenerateMealPlan(w http.ResponseWriter, r *http.Request) {
	var req MealPlanRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		s.logger.Warn("malformed request body", zap.Error(err))
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: []ValidationDetail{{
			Loc:  []string{"body"},
			Msg:  err.Error(),
			Type: "json_invalid",
		}}})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.logger.Warn("invalid request body", zap.Error(err))
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: validationDetails(err)})
		return
	}

	plan, err := s.plans.GeneratePlan(r.Context(), req.Query)
	if err != nil {
		var extractionErr *query.ExtractionError
		if errors.As(err, &extractionErr) {
			s.logger.Info("rejected meal plan request", zap.String("reason", extractionErr.Message))
			writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "Invalid request: " + extractionErr.Message})
			return
		}
		s.logger.Error("failed to generate meal plan", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: generationFailure})
		return
	}

	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": serviceName,
		"system":  metrics.GetSysHealth(r.Context(), s.health),
	})
}

func validationDetails(err error) []ValidationDetail {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ValidationDetail{{Loc: []string{"body"}, Msg: err.Error(), Type: "value_error"}}
	}
	details := make([]ValidationDetail, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		details = append(details, ValidationDetail{
			Loc:  []string{"body", field},
			Msg:  fmt.Sprintf("%s failed on the %q rule", field, fe.Tag()),
			Type: fe.Tag(),
		})
	}
	return details
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
