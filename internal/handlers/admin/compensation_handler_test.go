package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"compengine/internal/models"
	"compengine/internal/repositories/memory"
	"compengine/internal/scheduler"
	"compengine/internal/services"
	"compengine/internal/utils"
	"compengine/pkg/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubEngine struct {
	registration *services.RegistrationResult
	investment   *services.InvestmentResult
	rewards      *services.RewardResult
	err          error

	gotAmount float64
}

func (e *stubEngine) DistributeRegistrationIncome(ctx context.Context, participantID primitive.ObjectID) (*services.RegistrationResult, error) {
	return e.registration, e.err
}

func (e *stubEngine) DistributeInvestmentBonuses(ctx context.Context, investorID primitive.ObjectID, amount float64) (*services.InvestmentResult, error) {
	e.gotAmount = amount
	return e.investment, e.err
}

func (e *stubEngine) SettlePendingBonuses(ctx context.Context) (*services.SettlementResult, error) {
	return nil, e.err
}

func (e *stubEngine) SettleMonthlyROI(ctx context.Context) (*services.SettlementResult, error) {
	return nil, e.err
}

func (e *stubEngine) PruneMatchingCounters(ctx context.Context) (*services.SettlementResult, error) {
	return nil, e.err
}

func (e *stubEngine) CheckAndAwardRewards(ctx context.Context, participantID primitive.ObjectID) (*services.RewardResult, error) {
	return e.rewards, e.err
}

type stubJobs struct {
	runs  map[string]*scheduler.Run
	names []string
	err   error
}

func (j *stubJobs) RunJob(ctx context.Context, name string) (*scheduler.Run, error) {
	if j.err != nil {
		return nil, j.err
	}
	return &scheduler.Run{Job: name}, nil
}

func (j *stubJobs) LastRun(name string) (*scheduler.Run, bool) {
	run, ok := j.runs[name]
	return run, ok
}

func (j *stubJobs) JobNames() []string { return j.names }

type stubReports struct {
	files []*storage.ObjectInfo
	runs  map[string]*scheduler.Run
}

func (r *stubReports) List(ctx context.Context, job string) ([]*storage.ObjectInfo, error) {
	return r.files, nil
}

func (r *stubReports) Fetch(ctx context.Context, job, name string) (*scheduler.Run, error) {
	run, ok := r.runs[job+"/"+strings.TrimPrefix(name, "/")]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return run, nil
}

type published struct {
	topic, eventType string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(topic, eventType string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{topic, eventType})
}

type handlerFixture struct {
	engine  *stubEngine
	store   *memory.Store
	jobs    *stubJobs
	reports *stubReports
	events  *recordingPublisher
	router  *gin.Engine
}

func newHandlerFixture(t *testing.T, withReports bool) *handlerFixture {
	t.Helper()

	f := &handlerFixture{
		engine: &stubEngine{},
		store:  memory.New(),
		jobs:   &stubJobs{names: []string{"pending-bonus", "roi"}, runs: map[string]*scheduler.Run{}},
		events: &recordingPublisher{},
	}

	var reports ReportReader
	if withReports {
		f.reports = &stubReports{runs: map[string]*scheduler.Run{}}
		reports = f.reports
	}
	h := NewCompensationHandler(f.engine, f.store, f.jobs, reports, f.events)

	r := gin.New()
	g := r.Group("/c")
	g.POST("/registrations/:participant_id/distribute", h.DistributeRegistration)
	g.POST("/investments", h.DistributeInvestment)
	g.POST("/participants/:participant_id/rewards/check", h.CheckRewards)
	g.GET("/participants/:participant_id", h.GetParticipant)
	g.GET("/participants/:participant_id/history", h.GetHistory)
	g.GET("/jobs", h.ListJobs)
	g.GET("/jobs/:job", h.GetJob)
	g.POST("/jobs/:job/run", h.RunJob)
	g.GET("/jobs/:job/reports", h.ListReports)
	g.GET("/jobs/:job/reports/*report", h.GetReport)
	f.router = r
	return f
}

func (f *handlerFixture) do(t *testing.T, method, path string, body interface{}) (int, utils.APIResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestDistributeRegistration(t *testing.T) {
	f := newHandlerFixture(t, false)
	id := primitive.NewObjectID()
	f.engine.registration = &services.RegistrationResult{ParticipantID: id, LevelsCredited: 3, TotalDistributed: 3600}

	code, resp := f.do(t, http.MethodPost, "/c/registrations/"+id.Hex()+"/distribute", nil)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, utils.StatusSuccess, resp.Status)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, 3600.0, data["total_distributed"])
	assert.Equal(t, []published{{EventTopicDistributions, EventRegistration}}, f.events.events)
}

func TestDistributeRegistration_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"already processed", services.ErrAlreadyProcessed, http.StatusOK, ""},
		{"not found", fmt.Errorf("participant: %w", services.ErrNotFound), http.StatusNotFound, utils.CodeNotFound},
		{"invalid amount", services.ErrInvalidAmount, http.StatusBadRequest, utils.CodeInvalidAmount},
		{"aborted", fmt.Errorf("commit: %w", services.ErrTransactionAborted), http.StatusConflict, utils.CodeTransactionAborted},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError, utils.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture(t, false)
			f.engine.err = tt.err

			code, resp := f.do(t, http.MethodPost, "/c/registrations/"+primitive.NewObjectID().Hex()+"/distribute", nil)

			assert.Equal(t, tt.wantCode, code)
			if tt.wantErr == "" {
				assert.Equal(t, "Already processed", resp.Message)
			} else {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tt.wantErr, resp.Error.Code)
			}
			assert.Empty(t, f.events.events)
		})
	}
}

func TestDistributeRegistration_InvalidID(t *testing.T) {
	f := newHandlerFixture(t, false)

	code, resp := f.do(t, http.MethodPost, "/c/registrations/not-an-id/distribute", nil)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, utils.ErrInvalidID, resp.Error.Message)
}

func TestDistributeInvestment(t *testing.T) {
	f := newHandlerFixture(t, false)
	investor := primitive.NewObjectID()
	f.engine.investment = &services.InvestmentResult{InvestorID: investor, Amount: 10000, MonthlyROI: 400}

	code, resp := f.do(t, http.MethodPost, "/c/investments", map[string]interface{}{
		"investor_id": investor.Hex(),
		"amount":      10000,
	})

	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, 10000.0, f.engine.gotAmount)
	assert.Equal(t, 400.0, resp.Data.(map[string]interface{})["monthly_roi"])
	assert.Equal(t, []published{{EventTopicDistributions, EventInvestment}}, f.events.events)
}

func TestDistributeInvestment_Validation(t *testing.T) {
	f := newHandlerFixture(t, false)

	code, resp := f.do(t, http.MethodPost, "/c/investments", map[string]interface{}{
		"investor_id": "xyz",
		"amount":      10.5,
	})

	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, utils.CodeValidation, resp.Error.Code)
	assert.Contains(t, resp.Error.Details, "InvestorID")
	assert.Contains(t, resp.Error.Details, "Amount")
}

func TestDistributeInvestment_BelowMinimum(t *testing.T) {
	f := newHandlerFixture(t, false)
	f.engine.err = fmt.Errorf("%w: below minimum", services.ErrInvalidAmount)

	code, resp := f.do(t, http.MethodPost, "/c/investments", map[string]interface{}{
		"investor_id": primitive.NewObjectID().Hex(),
		"amount":      100,
	})

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, utils.CodeInvalidAmount, resp.Error.Code)
}

func TestCheckRewards_PublishesOnlyWhenAwarded(t *testing.T) {
	f := newHandlerFixture(t, false)
	id := primitive.NewObjectID()

	f.engine.rewards = &services.RewardResult{ParticipantID: id, TotalPairs: 1}
	code, _ := f.do(t, http.MethodPost, "/c/participants/"+id.Hex()+"/rewards/check", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, f.events.events)

	f.engine.rewards = &services.RewardResult{ParticipantID: id, TotalPairs: 5, Awarded: []string{"Starter"}}
	code, _ = f.do(t, http.MethodPost, "/c/participants/"+id.Hex()+"/rewards/check", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []published{{EventTopicDistributions, EventRewards}}, f.events.events)
}

func TestGetParticipantAndHistory(t *testing.T) {
	f := newHandlerFixture(t, false)
	ctx := context.Background()
	p := &models.Participant{ID: primitive.NewObjectID(), Name: "alice", WalletBalance: 360}
	require.NoError(t, f.store.Participants().Create(ctx, p))

	entries := make([]*models.HistoryEntry, 0, 3)
	for i := 0; i < 3; i++ {
		entries = append(entries, &models.HistoryEntry{
			ParticipantID: p.ID,
			Type:          models.HistoryTypeReferral,
			Amount:        float64(100 * (i + 1)),
			CreatedAt:     time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC),
		})
	}
	require.NoError(t, f.store.Histories().InsertMany(ctx, entries))

	code, resp := f.do(t, http.MethodGet, "/c/participants/"+p.ID.Hex(), nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alice", resp.Data.(map[string]interface{})["name"])

	code, resp = f.do(t, http.MethodGet, "/c/participants/"+p.ID.Hex()+"/history?page=2&page_size=2", nil)
	assert.Equal(t, http.StatusOK, code)
	page := resp.Data.([]interface{})
	require.Len(t, page, 1)
	assert.Equal(t, 300.0, page[0].(map[string]interface{})["amount"])
	require.NotNil(t, resp.Pagination)
	assert.Equal(t, int64(3), resp.Pagination.Total)

	code, _ = f.do(t, http.MethodGet, "/c/participants/"+primitive.NewObjectID().Hex(), nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestJobs(t *testing.T) {
	f := newHandlerFixture(t, false)
	f.jobs.runs["roi"] = &scheduler.Run{Job: "roi", Error: "boom"}

	code, resp := f.do(t, http.MethodGet, "/c/jobs", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []interface{}{"pending-bonus", "roi"}, resp.Data)

	code, resp = f.do(t, http.MethodGet, "/c/jobs/roi", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "boom", resp.Data.(map[string]interface{})["error"])

	code, resp = f.do(t, http.MethodGet, "/c/jobs/pending-bonus", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Job has not run yet", resp.Message)

	code, _ = f.do(t, http.MethodGet, "/c/jobs/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, resp = f.do(t, http.MethodPost, "/c/jobs/roi/run", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "roi", resp.Data.(map[string]interface{})["job"])
}

func TestRunJob_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"unknown", fmt.Errorf("%w: nope", scheduler.ErrUnknownJob), http.StatusNotFound},
		{"locked", scheduler.ErrJobLocked, http.StatusConflict},
		{"failed", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture(t, false)
			f.jobs.err = tt.err

			code, _ := f.do(t, http.MethodPost, "/c/jobs/nope/run", nil)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestReports(t *testing.T) {
	f := newHandlerFixture(t, true)
	f.reports.files = []*storage.ObjectInfo{{Key: "settlements/roi/2026-02-01/a.json"}}
	f.reports.runs["roi/2026-02-01/a.json"] = &scheduler.Run{Job: "roi"}

	code, resp := f.do(t, http.MethodGet, "/c/jobs/roi/reports", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, resp.Data, 1)

	code, resp = f.do(t, http.MethodGet, "/c/jobs/roi/reports/2026-02-01/a.json", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "roi", resp.Data.(map[string]interface{})["job"])
}

func TestReports_Disabled(t *testing.T) {
	f := newHandlerFixture(t, false)

	code, resp := f.do(t, http.MethodGet, "/c/jobs/roi/reports", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Report archive not found", resp.Error.Message)

	code, _ = f.do(t, http.MethodGet, "/c/jobs/roi/reports/x.json", nil)
	assert.Equal(t, http.StatusNotFound, code)
}
