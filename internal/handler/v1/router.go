package v1

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clinicops/appointment-service/internal/config"
	"github.com/clinicops/appointment-service/internal/domain"
	"github.com/clinicops/appointment-service/pkg/auth"
	"github.com/clinicops/appointment-service/pkg/metrics"
)

type RouterDeps struct {
	Appointments *AppointmentHandler
	Auth         *AuthHandler
	Health       *HealthHandler
	JWTManager   *auth.JWTManager
	Metrics      *metrics.Collector
	Logger       *zap.Logger
}

func NewRouter(cfg *config.Config, deps RouterDeps) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(deps.Logger))
	r.Use(Metrics(deps.Metrics))

	r.GET("/healthz", deps.Health.Live)
	r.GET("/readyz", deps.Health.Ready)
	r.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", deps.Auth.Login)
		authGroup.POST("/refresh", deps.Auth.Refresh)
	}

	protected := api.Group("")
	protected.Use(Authenticate(deps.JWTManager))
	{
		appts := protected.Group("/appointments")
		{
			appts.POST("", deps.Appointments.Book)
			appts.GET("/:id", deps.Appointments.Get)
			appts.POST("/:id/reschedule", deps.Appointments.Reschedule)
			appts.POST("/:id/cancel", deps.Appointments.Cancel)
			appts.POST("/:id/confirm",
				RequireRole(domain.RoleProvider, domain.RoleReceptionist),
				deps.Appointments.Confirm)
			appts.POST("/:id/complete",
				RequireRole(domain.RoleProvider, domain.RoleReceptionist),
				deps.Appointments.Complete)
			appts.POST("/:id/no-show",
				RequireRole(domain.RoleProvider, domain.RoleReceptionist),
				deps.Appointments.MarkNoShow)
		}

		protected.GET("/providers/:id/appointments", deps.Appointments.ListByProvider)
		protected.GET("/requesters/:id/appointments", deps.Appointments.ListByRequester)
	}

	return r
}
