package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/underworld/app/combat/internal/errcode"
	"github.com/lk2023060901/underworld/app/combat/internal/model"
	"github.com/lk2023060901/underworld/app/combat/internal/service"
	"github.com/lk2023060901/underworld/pkg/logger"
	"github.com/lk2023060901/underworld/pkg/web"
	weberrors "github.com/lk2023060901/underworld/pkg/web/errors"
)

type fakeFighter struct {
	err      error
	attacker int64
	defender int64
}

func (f *fakeFighter) RunFight(_ context.Context, a, d int64) (*service.FightOutcome, error) {
	f.attacker, f.defender = a, d
	if f.err != nil {
		return nil, f.err
	}
	return &service.FightOutcome{Fight: &model.FightRecord{ID: 9, AttackerID: a, DefenderID: d, WinnerID: a}}, nil
}

func (f *fakeFighter) History(_ context.Context, userID int64, limit int) ([]*model.FightRecord, error) {
	return []*model.FightRecord{{ID: int64(limit), AttackerID: userID}}, nil
}

type fakeCrimes struct {
	err error
}

func (f *fakeCrimes) ExecuteCrime(_ context.Context, userID, crimeID int64) (*service.CrimeOutcome, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &service.CrimeOutcome{Log: &model.CrimeLog{UserID: userID, CrimeID: crimeID, Success: true}}, nil
}

func (f *fakeCrimes) History(context.Context, int64, int) ([]*model.CrimeLog, error) {
	return nil, nil
}

type fakeConfiner struct {
	kind model.ConfinementKind
}

func (f *fakeConfiner) Status(_ context.Context, _ int64, kind model.ConfinementKind) (*service.ConfinementStatus, error) {
	f.kind = kind
	return &service.ConfinementStatus{Kind: kind, Confined: true, RemainingSeconds: 90, Cost: 20}, nil
}

func (f *fakeConfiner) PayEarlyRelease(context.Context, int64, model.ConfinementKind) (*service.ReleaseResult, error) {
	return nil, errcode.New(errcode.ReasonInsufficientFunds, "not enough money").WithMeta("cost", int64(20))
}

type fakeCatalog struct{}

func (fakeCatalog) List() []*model.CrimeDefinition {
	return []*model.CrimeDefinition{{ID: 1, Name: "pickpocketing"}}
}

type testEnv struct {
	fights *fakeFighter
	crimes *fakeCrimes
	conf   *fakeConfiner
	srv    *web.Server
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{fights: &fakeFighter{}, crimes: &fakeCrimes{}, conf: &fakeConfiner{}}
	srv, err := web.NewServer(&web.Config{Mode: gin.TestMode}, nil)
	require.NoError(t, err)
	NewHandler(env.fights, env.crimes, env.conf, fakeCatalog{}, logger.NewNoop()).Register(srv.Router())
	env.srv = srv
	return env
}

func (e *testEnv) do(t *testing.T, method, path, user string, body any) (*httptest.ResponseRecorder, web.Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(HeaderUserID, user)
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)

	var resp web.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestRequiresUser(t *testing.T) {
	env := newEnv(t)
	for _, user := range []string{"", "abc", "-3"} {
		w, resp := env.do(t, http.MethodPost, "/v1/fights", user, gin.H{"defender_id": 2})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, weberrors.CodeUnAuthorized, resp.Code)
	}
}

func TestRunFight(t *testing.T) {
	env := newEnv(t)

	w, resp := env.do(t, http.MethodPost, "/v1/fights", "7", gin.H{"defender_id": 8})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, weberrors.CodeOK, resp.Code)
	assert.Equal(t, int64(7), env.fights.attacker)
	assert.Equal(t, int64(8), env.fights.defender)

	w, resp = env.do(t, http.MethodPost, "/v1/fights", "7", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, weberrors.CodeInvalidParams, resp.Code)
}

func TestBusinessErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   int
		reason string
	}{
		{"busy", errcode.Busy(), http.StatusConflict, weberrors.CodeConflict, "busy"},
		{"self target", errcode.SelfTarget(), http.StatusBadRequest, CodeSelfTarget, "self_target"},
		{"confined", errcode.Confined(7, "hospital"), http.StatusBadRequest, CodeConfined, "confined"},
		{"not found", errcode.NotFound("character", 8), http.StatusNotFound, weberrors.CodeNotFound, "not_found"},
		{"cooldown", errcode.OnCooldown(12), http.StatusTooManyRequests, weberrors.CodeRateLimited, "on_cooldown"},
		{"transient", errcode.Wrap(errors.New("deadlock"), errcode.ReasonTransientFailure, "try again"), http.StatusServiceUnavailable, weberrors.CodeUnavailable, "transient_failure"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, weberrors.CodeInternalError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t)
			env.fights.err = tt.err

			w, resp := env.do(t, http.MethodPost, "/v1/fights", "7", gin.H{"defender_id": 8})
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.reason, resp.Reason)
		})
	}
}

func TestUnknownErrorHidesDetails(t *testing.T) {
	env := newEnv(t)
	env.fights.err = errors.New("pq: connection refused to 10.0.0.3")

	_, resp := env.do(t, http.MethodPost, "/v1/fights", "7", gin.H{"defender_id": 8})
	assert.Equal(t, "internal error", resp.Message)
}

func TestCooldownMetaReturned(t *testing.T) {
	env := newEnv(t)
	env.crimes.err = errcode.OnCooldown(12)

	_, resp := env.do(t, http.MethodPost, "/v1/crimes/3", "7", nil)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(12), data["remaining_seconds"])
}

func TestConfinementRoutes(t *testing.T) {
	env := newEnv(t)

	w, resp := env.do(t, http.MethodGet, "/v1/confinement/hospital", "7", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.KindHospital, env.conf.kind)
	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["confined"])
	assert.Equal(t, float64(20), data["cost"])

	w, _ = env.do(t, http.MethodGet, "/v1/confinement/morgue", "7", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = env.do(t, http.MethodPost, "/v1/confinement/jail/release", "7", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeInsufficientFunds, resp.Code)
}

func TestHistoryAndCatalog(t *testing.T) {
	env := newEnv(t)

	w, resp := env.do(t, http.MethodGet, "/v1/fights?limit=5", "7", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	fights := resp.Data.([]any)
	require.Len(t, fights, 1)
	assert.Equal(t, float64(5), fights[0].(map[string]any)["id"])

	w, _ = env.do(t, http.MethodGet, "/v1/fights?limit=1000", "7", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = env.do(t, http.MethodGet, "/v1/crimes", "7", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data.([]any), 1)
}
