package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	gorillaws "github.com/gorilla/websocket"
	"github.com/skills-gamification/internal/auth"
	"github.com/skills-gamification/internal/domain"
	"github.com/skills-gamification/internal/service"
	"github.com/skills-gamification/internal/websocket"
)

// Handler provides HTTP handlers for the gamification API
type Handler struct {
	service  *service.GamificationService
	verifier auth.Verifier
	hub      *websocket.Hub
	upgrader *gorillaws.Upgrader
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates a new HTTP handler. hub may be nil when live push
// is disabled.
func NewHandler(svc *service.GamificationService, verifier auth.Verifier, hub *websocket.Hub, upgrader *gorillaws.Upgrader, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:  svc,
		verifier: verifier,
		hub:      hub,
		upgrader: upgrader,
		validate: validator.New(),
		logger:   logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(h.verifier))

		r.Get("/ws", h.HandleWebSocket)

		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/workouts/complete", h.CompleteWorkout)

			r.Route("/me", func(r chi.Router) {
				r.Get("/status", h.GetStatus)
				r.Get("/balances", h.GetBalances)
				r.Get("/balances/{currency}", h.GetBalance)
				r.Get("/rank", h.GetRank)
				r.Get("/streak", h.GetStreak)
				r.Get("/badges", h.ListBadges)
				r.Get("/badges/eligibility", h.GetBadgeEligibility)
				r.Get("/access/{axis}", h.GetAccess)
				r.Get("/access/{axis}/{feature}", h.CheckFeature)
			})

			r.Get("/badges", h.GetBadgeCatalog)
			r.Route("/ranks", func(r chi.Router) {
				r.Get("/", h.GetRankCatalog)
				r.Get("/leaderboard", h.GetLeaderboard)
				r.Get("/distribution", h.GetRankDistribution)
			})
			r.Get("/teams/roster-limit", h.CheckRosterLimit)

			r.Get("/ws/stats", h.GetWebSocketStats)
		})
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID, X-User-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeServiceError maps a service error onto a status code. Anything
// unclassified is logged and reported as an internal error.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case domain.IsValidationError(err):
		h.writeError(w, http.StatusBadRequest, err)
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrDuplicateRequest):
		h.writeError(w, http.StatusConflict, err)
	case errors.Is(err, domain.ErrUnauthenticated):
		h.writeError(w, http.StatusUnauthorized, err)
	default:
		h.logger.Error("request failed",
			"op", op,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

func userID(r *http.Request) string {
	user, _ := auth.UserFromContext(r.Context())
	return user.UserID
}

// CompleteWorkout records a workout for the authenticated user. The
// body's user_id, if any, is replaced by the caller's identity.
func (h *Handler) CompleteWorkout(w http.ResponseWriter, r *http.Request) {
	var sub domain.WorkoutSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: malformed body", domain.ErrValidation))
		return
	}
	sub.UserID = userID(r)

	if err := h.validate.Struct(sub); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}

	result, err := h.service.CompleteWorkout(r.Context(), sub)
	if err != nil {
		h.writeServiceError(w, r, "complete workout", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    result,
	})
}

// GetStatus returns the caller's gamification snapshot
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.GetStatus(r.Context(), userID(r))
	if err != nil {
		h.writeServiceError(w, r, "get status", err)
		return
	}
	h.writeSuccess(w, status)
}

// GetBalances returns every balance of the caller
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.service.GetBalances(r.Context(), userID(r))
	if err != nil {
		h.writeServiceError(w, r, "get balances", err)
		return
	}
	h.writeSuccess(w, balances)
}

// GetBalance returns one currency balance of the caller
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	currency := domain.Currency(chi.URLParam(r, "currency"))
	balance, err := h.service.GetBalance(r.Context(), userID(r), currency)
	if err != nil {
		h.writeServiceError(w, r, "get balance", err)
		return
	}
	h.writeSuccess(w, domain.PointBalance{
		UserID:   userID(r),
		Currency: currency,
		Balance:  balance,
	})
}

// GetRank returns the caller's rank and progress
func (h *Handler) GetRank(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.GetRank(r.Context(), userID(r))
	if err != nil {
		h.writeServiceError(w, r, "get rank", err)
		return
	}
	h.writeSuccess(w, state)
}

// GetStreak returns the caller's streak as of today
func (h *Handler) GetStreak(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GetStreak(r.Context(), userID(r))
	if err != nil {
		h.writeServiceError(w, r, "get streak", err)
		return
	}
	h.writeSuccess(w, res)
}

// ListBadges returns the caller's earned badges
func (h *Handler) ListBadges(w http.ResponseWriter, r *http.Request) {
	badges, err := h.service.ListUserBadges(r.Context(), userID(r))
	if err != nil {
		h.writeServiceError(w, r, "list badges", err)
		return
	}
	h.writeSuccess(w, badges)
}

// GetBadgeEligibility returns progress toward unearned badges
func (h *Handler) GetBadgeEligibility(w http.ResponseWriter, r *http.Request) {
	progress, err := h.service.GetBadgeEligibility(r.Context(), userID(r))
	if err != nil {
		h.writeServiceError(w, r, "badge eligibility", err)
		return
	}
	h.writeSuccess(w, progress)
}

// GetAccess lists the caller's features on one membership axis
func (h *Handler) GetAccess(w http.ResponseWriter, r *http.Request) {
	axis := domain.Axis(chi.URLParam(r, "axis"))
	summary, err := h.service.GetAccess(r.Context(), userID(r), axis)
	if err != nil {
		h.writeServiceError(w, r, "get access", err)
		return
	}
	h.writeSuccess(w, summary)
}

// CheckFeature answers whether the caller may use one feature
func (h *Handler) CheckFeature(w http.ResponseWriter, r *http.Request) {
	axis := domain.Axis(chi.URLParam(r, "axis"))
	feature := chi.URLParam(r, "feature")
	access, err := h.service.CheckFeature(r.Context(), userID(r), axis, feature)
	if err != nil {
		h.writeServiceError(w, r, "check feature", err)
		return
	}
	h.writeSuccess(w, access)
}

// GetBadgeCatalog returns active badges grouped by category
func (h *Handler) GetBadgeCatalog(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, h.service.GetBadgeCatalog())
}

// GetRankCatalog returns the rank ladder
func (h *Handler) GetRankCatalog(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, h.service.GetRankCatalog())
}

// LeaderboardResponse is the top of the leaderboard plus the caller's row
type LeaderboardResponse struct {
	Entries []domain.LeaderboardEntry `json:"entries"`
	Me      *domain.LeaderboardEntry  `json:"me,omitempty"`
}

// GetLeaderboard returns the top users by rank currency
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	entries, err := h.service.GetTopN(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, r, "get leaderboard", err)
		return
	}

	h.writeSuccess(w, LeaderboardResponse{
		Entries: entries,
		Me:      h.service.GetPosition(r.Context(), userID(r)),
	})
}

// GetRankDistribution returns how many users hold each rank
func (h *Handler) GetRankDistribution(w http.ResponseWriter, r *http.Request) {
	brackets, err := h.service.GetRankDistribution(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "rank distribution", err)
		return
	}
	h.writeSuccess(w, brackets)
}

// CheckRosterLimit checks ?size= against the academy roster cap
func (h *Handler) CheckRosterLimit(w http.ResponseWriter, r *http.Request) {
	size, err := strconv.Atoi(r.URL.Query().Get("size"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: size must be an integer", domain.ErrValidation))
		return
	}
	limit, err := h.service.CheckRosterLimit(size)
	if err != nil {
		h.writeServiceError(w, r, "roster limit", err)
		return
	}
	h.writeSuccess(w, limit)
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		h.writeError(w, http.StatusNotFound, fmt.Errorf("%w: live updates are disabled", domain.ErrNotFound))
		return
	}
	websocket.ServeWs(h.hub, h.upgrader, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		h.writeSuccess(w, websocket.Stats{Channels: map[string]int{}})
		return
	}
	h.writeSuccess(w, h.hub.Stats())
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck reports ready once the store answers
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, errors.New("store unavailable"))
		return
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}
