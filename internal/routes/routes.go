package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"clinic-management-server/internal/clock"
	"clinic-management-server/internal/config"
	"clinic-management-server/internal/handlers"
	"clinic-management-server/internal/messaging"
	"clinic-management-server/internal/middleware"
	"clinic-management-server/internal/models"
	"clinic-management-server/internal/queue"
	"clinic-management-server/internal/scheduling"
	"clinic-management-server/internal/ws"
)

// Dependencies carries the shared services the route handlers are built on.
type Dependencies struct {
	DB        *gorm.DB
	Cfg       *config.Config
	Clock     clock.Clock
	Scheduler *scheduling.Service
	Queue     *queue.Service
	Messages  *messaging.Service
	WS        *ws.Handler
}

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	authHandler := handlers.NewAuthHandler(deps.DB, deps.Cfg)
	userHandler := handlers.NewUserHandler(deps.DB)
	appointmentHandler := handlers.NewAppointmentHandler(deps.DB, deps.Scheduler)
	queueHandler := handlers.NewQueueHandler(deps.Queue, deps.Clock)
	messageHandler := handlers.NewMessageHandler(deps.Messages)
	consultationHandler := handlers.NewConsultationHandler(deps.DB, deps.Scheduler, deps.Queue)

	// Public routes (no authentication required)
	public := router.Group("/api/v1")
	{
		authRoutes := public.Group("/auth")
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/refresh-token", authHandler.RefreshToken)
		}
	}

	// The websocket endpoint authenticates itself from the token query
	// parameter, so it sits outside the auth middleware.
	router.GET("/api/v1/ws", deps.WS.HandleConnect)

	// Authenticated routes
	private := router.Group("/api/v1")
	private.Use(middleware.AuthMiddleware(deps.Cfg))
	{
		authRoutesPrivate := private.Group("/auth")
		{
			authRoutesPrivate.POST("/logout", authHandler.Logout)
			authRoutesPrivate.GET("/profile", authHandler.GetProfile)
			authRoutesPrivate.PUT("/profile", authHandler.UpdateProfile)
		}

		// User management routes
		userRoutes := private.Group("/users")
		{
			// Accessible by all authenticated users, for booking
			userRoutes.GET("/doctors", userHandler.GetDoctors)

			// Accessible by clinical users and admins
			userRoutes.GET("/patients", userHandler.GetPatients)

			adminRoutes := userRoutes.Group("")
			adminRoutes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin))
			{
				adminRoutes.POST("", userHandler.CreateUser)
				adminRoutes.GET("", userHandler.GetUsers)
				adminRoutes.GET("/:id", userHandler.GetUserByID)
				adminRoutes.PUT("/:id", userHandler.UpdateUser)
				adminRoutes.DELETE("/:id", userHandler.DeactivateUser)
			}
		}

		// Appointment routes. Fine-grained authorization (capability table
		// and ownership) lives in the scheduling service.
		appointmentRoutes := private.Group("/appointments")
		{
			appointmentRoutes.POST("", middleware.RoleAuthMiddleware(models.RolePatient, models.RoleStaff, models.RoleAdmin), appointmentHandler.CreateAppointment)
			appointmentRoutes.GET("", appointmentHandler.GetAppointments)
			appointmentRoutes.GET("/available-slots", appointmentHandler.GetAvailableSlots)
			appointmentRoutes.GET("/:id", appointmentHandler.GetAppointmentByID)
			appointmentRoutes.PATCH("/:id/confirm", appointmentHandler.ConfirmAppointment)
			appointmentRoutes.PATCH("/:id/cancel", appointmentHandler.CancelAppointment)
			appointmentRoutes.PATCH("/:id/start", appointmentHandler.StartAppointment)
			appointmentRoutes.PATCH("/:id/complete", appointmentHandler.CompleteAppointment)
			appointmentRoutes.PATCH("/:id/no-show", appointmentHandler.MarkNoShow)
			appointmentRoutes.PATCH("/:id/reschedule", appointmentHandler.RescheduleAppointment)
		}

		// Queue routes (clinical users and admins)
		queueRoutes := private.Group("/queue")
		queueRoutes.Use(middleware.RoleAuthMiddleware(models.RoleDoctor, models.RoleStaff, models.RoleAdmin))
		{
			queueRoutes.GET("", queueHandler.GetQueue)
			queueRoutes.POST("/check-in/:appointmentId", queueHandler.CheckIn)
			queueRoutes.PATCH("/:id/status", queueHandler.UpdateQueueStatus)
			queueRoutes.GET("/:id/wait", queueHandler.GetWaitEstimate)
		}

		// Internal messaging routes (clinical users and admins)
		messageRoutes := private.Group("/messages")
		messageRoutes.Use(middleware.RoleAuthMiddleware(models.RoleDoctor, models.RoleStaff, models.RoleAdmin))
		{
			messageRoutes.POST("/send", messageHandler.SendMessage)
			messageRoutes.GET("/inbox", messageHandler.GetInbox)
			messageRoutes.GET("/sent", messageHandler.GetSent)
			messageRoutes.GET("/conversations", messageHandler.GetConversations)
			messageRoutes.GET("/conversations/:userId", messageHandler.GetConversation)
			messageRoutes.PATCH("/conversations/:userId/read", messageHandler.MarkConversationRead)
			messageRoutes.PATCH("/:id/read", messageHandler.MarkMessageRead)
			messageRoutes.DELETE("/:id", messageHandler.DeleteMessage)
			messageRoutes.GET("/unread-count", messageHandler.GetUnreadCount)
			messageRoutes.GET("/latest", messageHandler.GetLatestMessages)
		}

		// Consultation routes (doctors write, patients read their own)
		consultationRoutes := private.Group("/consultations")
		{
			consultationRoutes.POST("", middleware.RoleAuthMiddleware(models.RoleDoctor), consultationHandler.CreateConsultation)
			consultationRoutes.GET("/:id", consultationHandler.GetConsultation)
			consultationRoutes.PUT("/:id", middleware.RoleAuthMiddleware(models.RoleDoctor), consultationHandler.UpdateConsultation)
			consultationRoutes.POST("/:id/complete", middleware.RoleAuthMiddleware(models.RoleDoctor), consultationHandler.CompleteConsultation)
		}
	}

	// Simple health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "UP"})
	})
}
