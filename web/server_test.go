package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatpot/database"
	"chatpot/economy"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *economy.Engine) {
	t.Helper()

	db, err := sqlx.Connect("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.EnsureSchema(db))
	repo := database.NewRepository(db)

	engine := economy.NewEngine(repo)
	engine.Draw = func() float64 { return 0.9 } // never win unless a test says so

	return NewServer(repo, engine, "test-secret", 30*time.Minute), engine
}

// doRequest runs one request through the full handler stack and decodes the
// JSON response.
func doRequest(t *testing.T, s *Server, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reqBody *bytes.Buffer = bytes.NewBuffer(nil)
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(raw)
	}

	req := httptest.NewRequest(method, path, reqBody)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&decoded))
	return rec.Code, decoded
}

func registerUser(t *testing.T, s *Server, username, password string) string {
	t.Helper()
	status, body := doRequest(t, s, "POST", "/users/register", "", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, status)
	token, _ := body["access_token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestRegisterAndLogin(t *testing.T) {
	s, _ := newTestServer(t)

	status, body := doRequest(t, s, "POST", "/users/register", "", map[string]string{
		"username": "alice",
		"password": "pw1",
	})
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["access_token"])
	assert.Equal(t, "bearer", body["token_type"])

	t.Run("duplicate username", func(t *testing.T) {
		status, body := doRequest(t, s, "POST", "/users/register", "", map[string]string{
			"username": "alice",
			"password": "other",
		})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Username already exists", body["detail"])
	})

	t.Run("login with valid credentials", func(t *testing.T) {
		status, body := doRequest(t, s, "POST", "/users/login", "", map[string]string{
			"username": "alice",
			"password": "pw1",
		})
		assert.Equal(t, http.StatusOK, status)
		assert.NotEmpty(t, body["access_token"])
		assert.Equal(t, "bearer", body["token_type"])
	})

	t.Run("login with wrong password", func(t *testing.T) {
		status, body := doRequest(t, s, "POST", "/users/login", "", map[string]string{
			"username": "alice",
			"password": "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "Invalid credentials", body["detail"])
	})

	t.Run("login with unknown user", func(t *testing.T) {
		status, body := doRequest(t, s, "POST", "/users/login", "", map[string]string{
			"username": "nobody",
			"password": "pw1",
		})
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "Invalid credentials", body["detail"])
	})
}

func TestAuthRequired(t *testing.T) {
	s, _ := newTestServer(t)

	protected := []struct {
		method string
		path   string
	}{
		{"GET", "/users/me"},
		{"GET", "/currency/balance"},
		{"POST", "/currency/deduct?cost=5"},
		{"POST", "/pot/contribute?contribution=5"},
		{"POST", "/pot/reset"},
		{"POST", "/messages/send"},
	}

	for _, route := range protected {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			status, _ := doRequest(t, s, route.method, route.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, status)

			status, _ = doRequest(t, s, route.method, route.path, "not-a-token", nil)
			assert.Equal(t, http.StatusUnauthorized, status)
		})
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	db, err := sqlx.Connect("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.EnsureSchema(db))

	repo := database.NewRepository(db)
	engine := economy.NewEngine(repo)

	// Tokens from this server are already expired when issued
	s := NewServer(repo, engine, "test-secret", -time.Minute)

	token := registerUser(t, s, "alice", "pw1")
	status, _ := doRequest(t, s, "GET", "/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestProfileAndBalance(t *testing.T) {
	s, _ := newTestServer(t)
	token := registerUser(t, s, "bob", "secret")

	status, body := doRequest(t, s, "GET", "/users/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "bob", body["username"])
	assert.EqualValues(t, 100, body["balance"])
	assert.EqualValues(t, 0, body["message_count"])
	assert.NotNil(t, body["id"])

	status, body = doRequest(t, s, "GET", "/currency/balance", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 100, body["balance"])
}

func TestDeductEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	token := registerUser(t, s, "carol", "secret")

	status, body := doRequest(t, s, "POST", "/currency/deduct?cost=40", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Currency deducted", body["message"])
	assert.EqualValues(t, 60, body["new_balance"])

	t.Run("insufficient balance", func(t *testing.T) {
		status, body := doRequest(t, s, "POST", "/currency/deduct?cost=1000", token, nil)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Insufficient balance", body["detail"])

		// Balance unchanged
		status, body = doRequest(t, s, "GET", "/currency/balance", token, nil)
		require.Equal(t, http.StatusOK, status)
		assert.EqualValues(t, 60, body["balance"])
	})

	t.Run("negative cost credits the account", func(t *testing.T) {
		status, body := doRequest(t, s, "POST", "/currency/deduct?cost=-40", token, nil)
		require.Equal(t, http.StatusOK, status)
		assert.EqualValues(t, 100, body["new_balance"])
	})

	t.Run("non-numeric cost", func(t *testing.T) {
		status, _ := doRequest(t, s, "POST", "/currency/deduct?cost=abc", token, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestPotEndpoints(t *testing.T) {
	s, _ := newTestServer(t)
	token := registerUser(t, s, "dave", "secret")

	// Pot starts empty and is publicly readable
	status, body := doRequest(t, s, "GET", "/pot/", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["pot_amount"])

	status, body = doRequest(t, s, "POST", "/pot/contribute?contribution=50", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Contribution added", body["message"])
	assert.EqualValues(t, 50, body["new_pot_amount"])

	t.Run("non-positive contribution", func(t *testing.T) {
		for _, amount := range []string{"0", "-10"} {
			status, body := doRequest(t, s, "POST", "/pot/contribute?contribution="+amount, token, nil)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "Contribution must be greater than zero", body["detail"])
		}

		// Pot unchanged
		status, body := doRequest(t, s, "GET", "/pot/", "", nil)
		require.Equal(t, http.StatusOK, status)
		assert.EqualValues(t, 50, body["pot_amount"])
	})

	t.Run("reset", func(t *testing.T) {
		status, body := doRequest(t, s, "POST", "/pot/reset", token, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "Pot reset", body["message"])
		assert.EqualValues(t, 0, body["new_pot_amount"])

		status, body = doRequest(t, s, "GET", "/pot/", "", nil)
		require.Equal(t, http.StatusOK, status)
		assert.EqualValues(t, 0, body["pot_amount"])
	})
}

func TestSendMessageEndpoint(t *testing.T) {
	s, engine := newTestServer(t)
	token := registerUser(t, s, "erin", "secret")

	status, body := doRequest(t, s, "POST", "/messages/send", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Sorry, better luck next time!", body["message"])
	assert.EqualValues(t, 5, body["pot_amount"])

	status, body = doRequest(t, s, "GET", "/currency/balance", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 95, body["balance"])

	t.Run("winning send pays out the pot", func(t *testing.T) {
		engine.Draw = func() float64 { return 0.0 }

		// Second message costs 10, so the pot holds 15 at the draw
		status, body := doRequest(t, s, "POST", "/messages/send", token, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "Congratulations! You won the pot!", body["message"])
		assert.EqualValues(t, 15, body["pot_amount"])

		// 95 - 10 + 15
		status, body = doRequest(t, s, "GET", "/currency/balance", token, nil)
		require.Equal(t, http.StatusOK, status)
		assert.EqualValues(t, 100, body["balance"])

		status, body = doRequest(t, s, "GET", "/pot/", "", nil)
		require.Equal(t, http.StatusOK, status)
		assert.EqualValues(t, 0, body["pot_amount"])
	})

	t.Run("insufficient balance still counts the attempt", func(t *testing.T) {
		engine.Draw = func() float64 { return 0.9 }
		other := registerUser(t, s, "frank", "secret")

		// Drain the balance down to 3
		status, _ := doRequest(t, s, "POST", "/currency/deduct?cost=97", other, nil)
		require.Equal(t, http.StatusOK, status)

		status, body := doRequest(t, s, "POST", "/messages/send", other, nil)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Insufficient balance", body["detail"])

		status, body = doRequest(t, s, "GET", "/users/me", other, nil)
		require.Equal(t, http.StatusOK, status)
		assert.EqualValues(t, 3, body["balance"])
		assert.EqualValues(t, 1, body["message_count"])
	})
}

// Mirrors the dashboard's happy path: register, send one message, top up
// the pot by hand, then reset it.
func TestEndToEndScenario(t *testing.T) {
	s, _ := newTestServer(t)
	token := registerUser(t, s, "alice", "pw1")

	status, body := doRequest(t, s, "GET", "/currency/balance", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 100, body["balance"])

	status, body = doRequest(t, s, "POST", "/messages/send", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 5, body["pot_amount"])

	status, body = doRequest(t, s, "GET", "/currency/balance", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 95, body["balance"])

	status, body = doRequest(t, s, "POST", "/pot/contribute?contribution=50", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 55, body["new_pot_amount"])

	status, body = doRequest(t, s, "POST", "/pot/reset", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["new_pot_amount"])
}
