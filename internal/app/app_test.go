package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/manager-sync/internal/config"
	"github.com/riskibarqy/manager-sync/internal/domain/game"
	"github.com/riskibarqy/manager-sync/internal/platform/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJobToken = "job-token"

func newPartnerServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "partner-key", r.Header.Get("X-Api-Key"))
		switch {
		case strings.HasSuffix(r.URL.Path, "/elements"):
			_, _ = w.Write([]byte(`{"elements":[
				{"id":11,"fullName":"Alpha Skater","teamId":1,"value":100},
				{"id":12,"fullName":"Beta Goalie","teamId":2,"value":90,"injured":true}
			]}`))
		case strings.HasSuffix(r.URL.Path, "/users"):
			_, _ = w.Write([]byte(`{"page":1,"pages":1,"total":2,"users":[
				{"externalId":"u-1","team":{"name":"Icebreakers","score":40,"rank":1,"lineup":[{"elementId":11},{"elementId":12,"injured":true}]}},
				{"externalId":"","team":{"name":"anonymous"}}
			]}`))
		case strings.HasSuffix(r.URL.Path, "/games/hockey"):
			_, _ = w.Write([]byte(`{"name":"Nordic Hockey","currentRound":2,"userCount":2,"rounds":[
				{"index":1,"state":"finished"},
				{"index":2,"state":"open","deadline":"2030-01-01T18:00:00Z"}
			]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string) config.Config {
	return config.Config{
		AppEnv:                   config.EnvDev,
		ServiceName:              "manager-sync",
		HTTPAddr:                 ":0",
		ReadTimeout:              time.Second,
		WriteTimeout:             time.Second,
		InternalJobToken:         testJobToken,
		PartnerAPIBaseURL:        baseURL,
		PartnerAPIKey:            "partner-key",
		PartnerAPITimeout:        5 * time.Second,
		PartnerAPIPageSize:       100,
		APIBudgetDailyLimit:      100,
		APIBudgetReserve:         10,
		APIBudgetStore:           config.BudgetStoreMemory,
		SyncBatchSize:            50,
		ScheduleCriticalLead:     time.Hour,
		ScheduleCriticalLag:      30 * time.Minute,
		ScheduleCriticalInterval: 5 * time.Minute,
		BootstrapGames: []config.BootstrapGame{
			{SubsiteKey: "nordic", GameKey: "hockey", SyncIntervalMinutes: 30},
		},
	}
}

func serve(t *testing.T, h http.Handler, method, path, body string) map[string]any {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-Internal-Job-Token", testJobToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var envelope map[string]any
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &envelope))
	data, ok := envelope["data"].(map[string]any)
	require.True(t, ok)
	return data
}

func TestNew_InMemorySyncRoundTrip(t *testing.T) {
	partner := newPartnerServer(t)

	a, err := New(context.Background(), testConfig(partner.URL), logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.Nil(t, a.Scheduler)

	result := serve(t, a.Server.Handler, http.MethodPost, "/v1/internal/jobs/sync-game", `{"game_id":1}`)
	assert.Equal(t, "completed", result["status"])
	assert.EqualValues(t, 2, result["elements_synced"])
	assert.EqualValues(t, 1, result["users_synced"])
	assert.EqualValues(t, 1, result["users_without_id"])

	budget := serve(t, a.Server.Handler, http.MethodGet, "/v1/internal/budget", "")
	assert.EqualValues(t, 3, budget["used"])
	assert.EqualValues(t, 87, budget["remaining"])

	logs := serve(t, a.Server.Handler, http.MethodGet, "/v1/internal/games/1/sync-logs", "")
	items, ok := logs["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, "manual", items[0].(map[string]any)["trigger"])

	schedule := serve(t, a.Server.Handler, http.MethodGet, "/v1/internal/schedule", "")
	assert.EqualValues(t, 0, schedule["due"])
}

func TestNew_SchedulerEnabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.SchedulerEnabled = true
	cfg.SchedulerInterval = 2 * time.Minute

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.NotNil(t, a.Scheduler)
	assert.Equal(t, 2*time.Minute, a.Scheduler.interval)
}

func TestNew_RejectsInvalidBootstrapGame(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.BootstrapGames = []config.BootstrapGame{{SubsiteKey: "nordic", GameKey: "hockey", SyncIntervalMinutes: 1}}

	_, err := New(context.Background(), cfg, logging.NewNop())

	require.Error(t, err)
}

func TestNew_RequiresHTTPAddr(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.HTTPAddr = ""

	_, err := New(context.Background(), cfg, logging.NewNop())

	require.Error(t, err)
}

func TestBootstrapGames(t *testing.T) {
	games := bootstrapGames([]config.BootstrapGame{{SubsiteKey: "nordic", GameKey: "hockey", SyncIntervalMinutes: 30}})

	require.Len(t, games, 1)
	assert.Equal(t, game.Game{
		SubsiteKey:          "nordic",
		GameKey:             "hockey",
		Name:                "nordic/hockey",
		RoundState:          game.RoundStatePending,
		IsActive:            true,
		SyncIntervalMinutes: 30,
	}, games[0])
}
