package handlers

import (
	"context"
	"errors"
	"net/http"

	"compengine/internal/repositories/interfaces"
	"compengine/internal/scheduler"
	"compengine/internal/services"
	"compengine/internal/utils"
	"compengine/internal/validators"
	"compengine/pkg/storage"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// JobRunner triggers and reports settlement jobs.
type JobRunner interface {
	RunJob(ctx context.Context, name string) (*scheduler.Run, error)
	LastRun(name string) (*scheduler.Run, bool)
	JobNames() []string
}

// ReportReader serves archived settlement run reports.
type ReportReader interface {
	List(ctx context.Context, job string) ([]*storage.ObjectInfo, error)
	Fetch(ctx context.Context, job, name string) (*scheduler.Run, error)
}

const (
	EventTopicDistributions = "distributions"
	EventRegistration       = "registration.distributed"
	EventInvestment         = "investment.distributed"
	EventRewards            = "rewards.awarded"
)

type CompensationHandler struct {
	engine  services.CompensationEngine
	store   interfaces.LedgerStore
	jobs    JobRunner
	reports ReportReader        // optional
	events  scheduler.Publisher // optional
}

func NewCompensationHandler(engine services.CompensationEngine, store interfaces.LedgerStore, jobs JobRunner, reports ReportReader, events scheduler.Publisher) *CompensationHandler {
	return &CompensationHandler{
		engine:  engine,
		store:   store,
		jobs:    jobs,
		reports: reports,
		events:  events,
	}
}

// DistributeRegistration pays registration and matching income for a participant
func (h *CompensationHandler) DistributeRegistration(c *gin.Context) {
	participantID, ok := parseObjectID(c, "participant_id")
	if !ok {
		return
	}

	result, err := h.engine.DistributeRegistrationIncome(c.Request.Context(), participantID)
	if err != nil {
		h.handleEngineError(c, err, "Participant")
		return
	}

	h.publish(EventRegistration, result)
	utils.SuccessResponse(c, "Registration income distributed", result)
}

// DistributeInvestment records an investment and pays its upline bonuses
func (h *CompensationHandler) DistributeInvestment(c *gin.Context) {
	var request validators.InvestmentRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateInvestment(&request); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Map())
		return
	}

	investorID, err := primitive.ObjectIDFromHex(request.InvestorID)
	if err != nil {
		utils.BadRequestResponse(c, utils.ErrInvalidID)
		return
	}

	result, err := h.engine.DistributeInvestmentBonuses(c.Request.Context(), investorID, request.Amount)
	if err != nil {
		h.handleEngineError(c, err, "Investor")
		return
	}

	h.publish(EventInvestment, result)
	utils.CreatedResponse(c, "Investment bonuses distributed", result)
}

// CheckRewards awards any milestone the participant has reached
func (h *CompensationHandler) CheckRewards(c *gin.Context) {
	participantID, ok := parseObjectID(c, "participant_id")
	if !ok {
		return
	}

	result, err := h.engine.CheckAndAwardRewards(c.Request.Context(), participantID)
	if err != nil {
		h.handleEngineError(c, err, "Participant")
		return
	}

	if len(result.Awarded) > 0 {
		h.publish(EventRewards, result)
	}
	utils.SuccessResponse(c, "Rewards checked", result)
}

// GetParticipant returns a participant's balances and counters
func (h *CompensationHandler) GetParticipant(c *gin.Context) {
	participantID, ok := parseObjectID(c, "participant_id")
	if !ok {
		return
	}

	participant, err := h.store.Participants().GetByID(c.Request.Context(), participantID)
	if err != nil {
		h.handleEngineError(c, err, "Participant")
		return
	}

	utils.SuccessResponse(c, "Participant retrieved", participant)
}

// GetHistory lists a participant's credit history in the order it was written
func (h *CompensationHandler) GetHistory(c *gin.Context) {
	participantID, ok := parseObjectID(c, "participant_id")
	if !ok {
		return
	}

	entries, err := h.store.Histories().GetByParticipant(c.Request.Context(), participantID)
	if err != nil {
		h.handleEngineError(c, err, "Participant")
		return
	}

	params := utils.GetPaginationParams(c)
	utils.PagedResponse(c, "History retrieved", utils.Paginate(entries, params), utils.CreatePaginationMeta(params, int64(len(entries))))
}

// RunJob triggers a settlement job immediately
func (h *CompensationHandler) RunJob(c *gin.Context) {
	run, err := h.jobs.RunJob(c.Request.Context(), c.Param("job"))
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		utils.NotFoundResponse(c, "Job")
		return
	case errors.Is(err, scheduler.ErrJobLocked):
		utils.ErrorResponse(c, http.StatusConflict, utils.CodeTransactionAborted, err.Error())
		return
	case err != nil:
		utils.ErrorResponse(c, http.StatusInternalServerError, "JOB_FAILED", err.Error())
		return
	}

	utils.SuccessResponse(c, "Job completed", run)
}

// GetJob returns the most recent run of a job
func (h *CompensationHandler) GetJob(c *gin.Context) {
	name := c.Param("job")
	run, ok := h.jobs.LastRun(name)
	if !ok {
		for _, known := range h.jobs.JobNames() {
			if known == name {
				utils.SuccessResponse(c, "Job has not run yet", gin.H{"job": name})
				return
			}
		}
		utils.NotFoundResponse(c, "Job")
		return
	}

	utils.SuccessResponse(c, "Job retrieved", run)
}

// ListJobs returns the scheduled job names
func (h *CompensationHandler) ListJobs(c *gin.Context) {
	utils.SuccessResponse(c, "Jobs retrieved", h.jobs.JobNames())
}

// ListReports returns archived run reports for a job, newest first
func (h *CompensationHandler) ListReports(c *gin.Context) {
	if h.reports == nil {
		utils.NotFoundResponse(c, "Report archive")
		return
	}

	files, err := h.reports.List(c.Request.Context(), c.Param("job"))
	if err != nil {
		utils.InternalServerErrorResponse(c)
		return
	}

	params := utils.GetPaginationParams(c)
	utils.PagedResponse(c, "Reports retrieved", utils.Paginate(files, params), utils.CreatePaginationMeta(params, int64(len(files))))
}

// GetReport returns one archived run report
func (h *CompensationHandler) GetReport(c *gin.Context) {
	if h.reports == nil {
		utils.NotFoundResponse(c, "Report archive")
		return
	}

	run, err := h.reports.Fetch(c.Request.Context(), c.Param("job"), c.Param("report"))
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		utils.NotFoundResponse(c, "Report")
		return
	case err != nil:
		utils.InternalServerErrorResponse(c)
		return
	}

	utils.SuccessResponse(c, "Report retrieved", run)
}

func (h *CompensationHandler) publish(eventType string, data interface{}) {
	if h.events != nil {
		h.events.Publish(EventTopicDistributions, eventType, data)
	}
}

func (h *CompensationHandler) handleEngineError(c *gin.Context, err error, resource string) {
	switch {
	case errors.Is(err, services.ErrAlreadyProcessed):
		utils.SuccessResponse(c, "Already processed", gin.H{"already_processed": true})
	case errors.Is(err, services.ErrNotFound):
		utils.NotFoundResponse(c, resource)
	case errors.Is(err, services.ErrInvalidAmount):
		utils.ErrorResponse(c, http.StatusBadRequest, utils.CodeInvalidAmount, err.Error())
	case errors.Is(err, services.ErrTransactionAborted):
		utils.ErrorResponse(c, http.StatusConflict, utils.CodeTransactionAborted, "Transaction aborted, retry the request")
	default:
		utils.InternalServerErrorResponse(c)
	}
}

func parseObjectID(c *gin.Context, param string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(param))
	if err != nil {
		utils.BadRequestResponse(c, utils.ErrInvalidID)
		return primitive.NilObjectID, false
	}
	return id, true
}
