package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/tourdesk/ledger-backend/internal/middleware"
	"github.com/tourdesk/ledger-backend/internal/models"
)

// RegisterRoutes mounts the ledger and reminder endpoints on an authenticated group
func RegisterRoutes(api *gin.RouterGroup, payments *PaymentHandler, reminders *ReminderHandler) {
	members := api.Group("/tour-members")
	{
		members.GET("/:id", payments.GetBooking)
		members.POST("/:id/payments", payments.AddPayment)
		members.PUT("/:id/payments/:paymentId", payments.UpdatePayment)
		members.DELETE("/:id/payments/:paymentId", payments.DeletePayment)
		members.GET("/:id/payments/:paymentId/receipt", payments.GetReceipt)
		members.PATCH("/:id/payment-status", payments.OverrideStatus)
		members.GET("/:id/payment-audits", middleware.RequireRole(models.RoleAdmin), payments.ListAudits)
	}

	paymentReminders := api.Group("/payment-reminders")
	{
		paymentReminders.GET("/tour-members/payment-reminders", reminders.ListCandidates)
		paymentReminders.PATCH("/tour-members/:id/reminder", reminders.RecordReminder)
		paymentReminders.GET("/tour-packages", reminders.ListPackages)
		paymentReminders.POST("/sms/bulk", reminders.SendBulk)
		paymentReminders.POST("/sms/individual", reminders.SendIndividual)
	}
}
