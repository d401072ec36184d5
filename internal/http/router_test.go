package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podium/internal/auth"
	"podium/internal/config"
	"podium/internal/db/dbtest"
	httpx "podium/internal/http"
	"podium/internal/queue"
	"podium/internal/registration"
)

type apiResp struct {
	RegistrationID string `json:"registrationId"`
	Message        string `json:"message"`
	Error          string `json:"error"`
}

func TestRouterRegisterFlow(t *testing.T) {
	gdb := dbtest.Open(t)
	regs := registration.NewService(gdb, queue.NewRepo(gdb, zerolog.Nop()), zerolog.Nop())
	jwtSvc := auth.NewJWT("test-secret")
	cfg := config.Config{CORSAllowedOrigins: []string{"http://localhost:3000"}}
	h := httpx.NewRouter(cfg, regs, jwtSvc, zerolog.Nop())

	alice := dbtest.User(t, gdb, "alice@example.com")
	bob := dbtest.User(t, gdb, "bob@example.com")
	comp := dbtest.Competition(t, gdb, "Solo Slot", 1, time.Now().Add(time.Hour), nil)

	post := func(userID, compID, key string) (int, apiResp) {
		req := httptest.NewRequest(http.MethodPost, "/competitions/"+compID+"/register", nil)
		if userID != "" {
			tok, err := jwtSvc.Sign(userID)
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		var body apiResp
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return rec.Code, body
	}

	code, first := post(alice.ID, comp.ID, "k-alice")
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, registration.MsgRegistered, first.Message)

	code, again := post(alice.ID, comp.ID, "k-alice")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, first.RegistrationID, again.RegistrationID)

	code, full := post(bob.ID, comp.ID, "k-bob")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "competition is full", full.Error)

	code, missing := post(bob.ID, "no-such-competition", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "competition not found", missing.Error)

	code, _ = post("", comp.ID, "")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRouterHealthAndCORS(t *testing.T) {
	cfg := config.Config{CORSAllowedOrigins: []string{"http://localhost:3000"}}
	h := httpx.NewRouter(cfg, nil, auth.NewJWT("x"), zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	req := httptest.NewRequest(http.MethodOptions, "/competitions/c1/register", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Idempotency-Key")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
