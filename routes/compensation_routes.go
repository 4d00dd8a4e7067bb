package routes

import (
	handlers "compengine/internal/handlers/admin"
	"compengine/internal/middleware"
	"compengine/pkg/websocket"

	"github.com/gin-gonic/gin"
)

// SetupCompensationRoutes registers the admin-only engine triggers. events may
// be nil when the live feed is disabled.
func SetupCompensationRoutes(r *gin.RouterGroup, h *handlers.CompensationHandler, events *websocket.Handler, jwtSecret, adminRole string) {
	admin := r.Group("/admin/compensation")
	admin.Use(middleware.AuthRequired(jwtSecret), middleware.AdminRequired(adminRole))
	{
		// Event triggers
		admin.POST("/registrations/:participant_id/distribute", h.DistributeRegistration)
		admin.POST("/investments", h.DistributeInvestment)
		admin.POST("/participants/:participant_id/rewards/check", h.CheckRewards)

		// Ledger reads
		admin.GET("/participants/:participant_id", h.GetParticipant)
		admin.GET("/participants/:participant_id/history", h.GetHistory)

		// Settlement jobs
		admin.GET("/jobs", h.ListJobs)
		admin.GET("/jobs/:job", h.GetJob)
		admin.POST("/jobs/:job/run", h.RunJob)
		admin.GET("/jobs/:job/reports", h.ListReports)
		admin.GET("/jobs/:job/reports/*report", h.GetReport)

		// Live feed
		if events != nil {
			admin.GET("/events", events.HandleWebSocket)
		}
	}
}
