package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/scry-assess/internal/config"
	"github.com/phrazzld/scry-assess/internal/domain"
	"github.com/phrazzld/scry-assess/internal/domain/mastery"
	"github.com/phrazzld/scry-assess/internal/domain/session"
	"github.com/phrazzld/scry-assess/internal/domain/srs"
	"github.com/phrazzld/scry-assess/internal/mocks"
	"github.com/phrazzld/scry-assess/internal/service/assessment"
	"github.com/phrazzld/scry-assess/internal/service/auth"
	"github.com/phrazzld/scry-assess/internal/service/cardsync"
	"github.com/phrazzld/scry-assess/internal/service/review"
	"github.com/phrazzld/scry-assess/internal/service/userlock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, LogLevel: "info", ShutdownTimeoutSeconds: 1},
		Auth:   config.AuthConfig{JWTSecret: testSecret, TokenLifetimeMinutes: 60},
		Engine: config.EngineConfig{
			MasteryK:       8,
			AlphaMax:       0.6,
			AlphaMin:       0.2,
			Diagnostic:     config.ModeConfig{MaxQuestions: 12, MinQuestions: 3, TargetConfidence: 0.7},
			WeakThreshold:  0.5,
			TimeoutMinutes: 30,
			Location:       "Europe/Paris",
			MaxSyncBatch:   50,

			MaxConsecutiveWrong: 4,
		},
	}
}

func TestParamsFromConfig(t *testing.T) {
	t.Parallel()
	cfg := testConfig()

	mp := masteryParams(cfg.Engine)
	assert.Equal(t, 0.6, mp.AlphaMax)
	assert.Equal(t, 0.2, mp.AlphaMin)
	assert.Equal(t, 8.0, mp.ConfidenceK)
	assert.Equal(t, mastery.NewDefaultParams().MasteredThreshold, mp.MasteredThreshold)

	sp := sessionParams(cfg.Engine)
	assert.Equal(t, session.ModeDefaults{MaxQuestions: 12, MinQuestions: 3, TargetConfidence: 0.7}, sp.Diagnostic)
	assert.Equal(t, session.NewDefaultParams().Practice, sp.Practice, "zero practice limits keep the defaults")
	assert.Equal(t, 0.5, sp.WeakThreshold)
	assert.Equal(t, 4, sp.MaxConsecutiveWrong)

	assert.Equal(t, "Europe/Paris", srsParams(cfg).Location.String())
	cfg.Engine.Location = "Nowhere/Invalid"
	assert.Equal(t, time.UTC, srsParams(cfg).Location)
}

// newTestApplication wires the real services over in-memory stores.
func newTestApplication(t *testing.T) *application {
	t.Helper()
	cfg := testConfig()
	log := discardLogger()

	jwtService, err := auth.NewJWTService(cfg.Auth)
	require.NoError(t, err)
	scale, err := config.LoadScoringScale("")
	require.NoError(t, err)

	catalog := mocks.NewCatalogStore().
		AddSkill(domain.Skill{ID: 1, Code: "GR-01", Name: "Grammar", Category: "grammar"}).
		AddQuestion(domain.Question{
			ID: 10, SkillID: 1, Category: "grammar", Difficulty: 0.5,
			Content:       json.RawMessage(`{"prompt":"pick one"}`),
			CorrectAnswer: json.RawMessage(`"b"`),
		})
	cards := mocks.NewCardStore()
	tx := &mocks.Transactor{}
	locker := userlock.NewLocalLocker()
	scheduler := srs.NewServiceWithParams(srsParams(cfg))

	return &application{
		config:     cfg,
		logger:     log,
		jwtService: jwtService,
		assessment: assessment.NewService(assessment.Deps{
			Tx:        tx,
			Sessions:  mocks.NewSessionStore(),
			Masteries: mocks.NewMasteryStore(),
			Cards:     cards,
			Catalog:   catalog,
			Engine:    session.NewEngine(sessionParams(cfg.Engine)),
			Model:     mastery.NewModel(masteryParams(cfg.Engine)),
			Scheduler: scheduler,
			Scale:     scale,
			Locker:    locker,
		}, log),
		reviews: review.NewService(review.Deps{
			Tx: tx, Cards: cards, Catalog: catalog, Scheduler: scheduler, MaxBatch: cfg.Engine.MaxSyncBatch,
		}, log),
		sync: cardsync.NewService(cardsync.Deps{
			Tx: tx, Cards: cards, Catalog: catalog, Locker: locker, MaxBatch: cfg.Engine.MaxSyncBatch,
		}, log),
	}
}

func TestRouter(t *testing.T) {
	t.Parallel()
	app := newTestApplication(t)
	h := app.handler()

	token, err := app.jwtService.GenerateToken(context.Background(), uuid.New())
	require.NoError(t, err)

	send := func(method, path, body, bearer string) *httptest.ResponseRecorder {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, path, reader)
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	t.Run("health is public", func(t *testing.T) {
		rec := send(http.MethodGet, "/health", "", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))
	})

	t.Run("api requires a token", func(t *testing.T) {
		rec := send(http.MethodGet, "/api/v1/cards", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = send(http.MethodGet, "/api/v1/cards", "", "not-a-jwt")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("diagnostic session end to end", func(t *testing.T) {
		rec := send(http.MethodPost, "/api/v1/sessions", `{"mode":"diagnostic"}`, token)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var started struct {
			ID             uuid.UUID `json:"id"`
			Status         string    `json:"status"`
			MaxQuestions   int       `json:"max_questions"`
			TimeoutMinutes int       `json:"timeout_minutes"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
		assert.Equal(t, "IN_PROGRESS", started.Status)
		assert.Equal(t, 12, started.MaxQuestions)
		assert.Equal(t, 30, started.TimeoutMinutes)

		rec = send(http.MethodGet, "/api/v1/sessions/"+started.ID.String()+"/next", "", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), `"skill_id":1`)
		assert.NotContains(t, rec.Body.String(), `"b"`)

		rec = send(http.MethodPost, "/api/v1/sessions/"+started.ID.String()+"/answers",
			`{"question_id":10,"answer":"b","response_time_ms":900}`, token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = send(http.MethodGet, "/api/v1/mastery", "", token)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"skill_id":1`)
	})
}

func TestRunServerStopsOnCancel(t *testing.T) {
	t.Parallel()
	server := &http.Server{
		Addr:              "127.0.0.1:0",
		Handler:           http.NotFoundHandler(),
		ReadHeaderTimeout: time.Second,
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServer(ctx, server, time.Second, discardLogger()) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}

func TestCleanupClosesDatabase(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	app := &application{config: testConfig(), logger: discardLogger(), db: db}
	app.cleanup()

	assert.NoError(t, mock.ExpectationsWereMet())
}
