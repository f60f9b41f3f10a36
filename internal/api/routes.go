package api

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	router.GET("/health", handler.Health)

	api := router.Group("/api", RequireActor())
	{
		api.POST("/listings/:id/interests", handler.ExpressInterest)
		api.DELETE("/listings/:id/interests/me", handler.WithdrawInterest)
		api.DELETE("/listings/:id/interests/:tenant_id", handler.RemoveInterest)
		api.GET("/listings/:id/queue", handler.GetQueue)
		api.POST("/listings/:id/open-days", handler.CreateOpenDay)
		api.POST("/listings/:id/slots", handler.CreateSlot)

		api.POST("/groups/:id/dissolve", handler.DissolveGroup)

		api.POST("/interests/:id/certifications", handler.RequestCertification)
		api.GET("/interests/:id/certifications", handler.ListCertifications)
		api.POST("/interests/:id/approve-scheduling", handler.ApproveScheduling)

		api.POST("/certifications/:id/submit", handler.SubmitDocument)
		api.POST("/certifications/:id/review", handler.ReviewCertification)

		api.POST("/slots/:id/bookings", handler.BookVisit)
		api.POST("/slots/:id/attendance", handler.ReportAttendance)

		api.POST("/bookings/:id/confirm", handler.ConfirmBooking)
		api.POST("/bookings/:id/cancel", handler.CancelBooking)
	}
}
