package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/skills-gamification/internal/auth"
	"github.com/skills-gamification/internal/badge"
	"github.com/skills-gamification/internal/domain"
	"github.com/skills-gamification/internal/drills"
	"github.com/skills-gamification/internal/memory"
	"github.com/skills-gamification/internal/rank"
	"github.com/skills-gamification/internal/scoring"
	"github.com/skills-gamification/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	router http.Handler
	repo   *memory.Repository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := memory.NewRepository()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 6, 15, 0, 0, 0, time.UTC))

	source := drills.NewMemorySource()
	source.Add(domain.WorkoutSkillsAcademy,
		domain.Drill{ID: 11, Title: "Split Dodge", DifficultyScore: 2, Category: "attack"},
		domain.Drill{ID: 12, Title: "Approach", DifficultyScore: 3, Category: "defense"},
		domain.Drill{ID: 13, Title: "Ride", DifficultyScore: 4, Category: "midfield"},
	)
	ranks, err := rank.NewCatalog(domain.CurrencyLaxCredit, rank.DefaultDefinitions)
	require.NoError(t, err)
	badges, err := badge.NewCatalog(badge.DefaultDefinitions)
	require.NoError(t, err)

	svc := service.NewGamificationService(repo, drills.NewCatalog(source, 16, 0, clock, nil),
		scoring.NewDefaultPolicy(), ranks, badges, service.Options{}, clock, nil)
	verifier, err := auth.NewVerifier(auth.Config{Mode: auth.ModeHeader})
	require.NoError(t, err)

	return &testEnv{router: NewHandler(svc, verifier, nil, nil, nil).Router(), repo: repo}
}

func (e *testEnv) do(t *testing.T, method, path, user string, body interface{}) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func workoutBody(requestID string) map[string]interface{} {
	return map[string]interface{}{
		"drill_ids":    []int64{11, 12, 13},
		"workout_type": "skills_academy",
		"request_id":   requestID,
	}
}

func dataAs(t *testing.T, resp APIResponse, out interface{}) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func TestCompleteWorkout(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/api/v1/workouts/complete", "u1", workoutBody(""))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, resp.Success)

	var result domain.WorkoutResult
	dataAs(t, resp, &result)
	assert.Equal(t, int64(10), result.Points.Total)
	assert.Equal(t, 1, result.Streak.Current)
	require.Len(t, result.Badges, 1)
	assert.Equal(t, "first_workout", result.Badges[0].BadgeKey)

	rec, resp = env.do(t, http.MethodGet, "/api/v1/me/balances/lax_credit", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balance domain.PointBalance
	dataAs(t, resp, &balance)
	assert.Equal(t, int64(10), balance.Balance)
}

func TestCompleteWorkoutIgnoresBodyUser(t *testing.T) {
	env := newTestEnv(t)
	body := workoutBody("")
	body["user_id"] = "someone-else"

	rec, _ := env.do(t, http.MethodPost, "/api/v1/workouts/complete", "u1", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, env.repo.Completions("u1"), 1)
	assert.Empty(t, env.repo.Completions("someone-else"))
}

func TestCompleteWorkoutErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		user   string
		body   interface{}
		status int
	}{
		{"anonymous", "", workoutBody(""), http.StatusUnauthorized},
		{"malformed body", "u1", `{"drill_ids":`, http.StatusBadRequest},
		{"empty drills", "u1", map[string]interface{}{"drill_ids": []int64{}, "workout_type": "custom"}, http.StatusBadRequest},
		{"unknown workout type", "u1", map[string]interface{}{"drill_ids": []int64{11}, "workout_type": "scrimmage"}, http.StatusBadRequest},
		{"unknown drills", "u1", map[string]interface{}{"drill_ids": []int64{999999}, "workout_type": "skills_academy"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := env.do(t, http.MethodPost, "/api/v1/workouts/complete", tt.user, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
	assert.Empty(t, env.repo.Transactions("u1"))
}

func TestCompleteWorkoutDuplicateRequest(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/api/v1/workouts/complete", "u1", workoutBody("req-1"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, resp := env.do(t, http.MethodPost, "/api/v1/workouts/complete", "u1", workoutBody("req-1"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, domain.ErrDuplicateRequest.Error(), resp.Error)
}

func TestReadEndpoints(t *testing.T) {
	env := newTestEnv(t)
	rec, _ := env.do(t, http.MethodPost, "/api/v1/workouts/complete", "u1", workoutBody(""))
	require.Equal(t, http.StatusCreated, rec.Code)

	for _, path := range []string{
		"/api/v1/me/status",
		"/api/v1/me/balances",
		"/api/v1/me/rank",
		"/api/v1/me/streak",
		"/api/v1/me/badges",
		"/api/v1/me/badges/eligibility",
		"/api/v1/me/access/team",
		"/api/v1/badges",
		"/api/v1/ranks",
		"/api/v1/ranks/leaderboard",
		"/api/v1/ranks/distribution",
		"/api/v1/ws/stats",
	} {
		t.Run(path, func(t *testing.T) {
			rec, resp := env.do(t, http.MethodGet, path, "u1", nil)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.True(t, resp.Success)
		})
	}

	_, resp := env.do(t, http.MethodGet, "/api/v1/ranks/leaderboard?limit=5", "u1", nil)
	var board LeaderboardResponse
	dataAs(t, resp, &board)
	require.Len(t, board.Entries, 1)
	assert.Equal(t, "u1", board.Entries[0].UserID)
	assert.Equal(t, "Lacrosse Bot", board.Entries[0].Title)
	assert.Nil(t, board.Me)
}

func TestAccessEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.repo.SetMembership(domain.Membership{UserID: "coach", TeamTier: domain.TierLeadership})

	rec, resp := env.do(t, http.MethodGet, "/api/v1/me/access/team/academy_access", "coach", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var access service.FeatureAccess
	dataAs(t, resp, &access)
	assert.False(t, access.HasAccess)
	assert.Equal(t, domain.TierActivated, access.Upgrade.TargetTier)

	rec, _ = env.do(t, http.MethodGet, "/api/v1/me/access/league", "coach", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/v1/me/balances/Not%20Valid", "coach", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRosterLimit(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodGet, "/api/v1/teams/roster-limit?size=30", "coach", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var limit domain.RosterLimit
	dataAs(t, resp, &limit)
	assert.False(t, limit.WithinLimit)
	assert.Equal(t, 25, limit.Limit)

	rec, _ = env.do(t, http.MethodGet, "/api/v1/teams/roster-limit?size=abc", "coach", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = env.do(t, http.MethodGet, "/api/v1/teams/roster-limit?size=-1", "coach", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = env.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebSocketDisabled(t *testing.T) {
	env := newTestEnv(t)
	rec, _ := env.do(t, http.MethodGet, "/ws", "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
