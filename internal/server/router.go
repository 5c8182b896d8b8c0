package server

import (
	"time"

	"taskify/backend/internal/handlers"
	"taskify/backend/internal/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Router wires middleware and routes. Monitoring endpoints sit outside the
// rate limiter and authentication.
func (s *Server) Router() *gin.Engine {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RecoveryWithLog(s.logger))
	router.Use(middleware.RequestLogger(s.logger.Named("http")))
	if s.metrics != nil {
		router.Use(s.metrics.Middleware())
	}
	router.Use(cors.New(s.corsConfig()))

	if s.metrics != nil {
		router.GET(s.cfg.Metrics.Path, s.metrics.Handler())
	}
	router.GET("/health", s.health.HealthHandler())
	router.GET("/ready", s.health.ReadinessHandler())
	router.GET("/live", s.health.LivenessHandler())

	api := router.Group("/api/v1")
	if s.limiter != nil {
		api.Use(s.limiter.Middleware())
	}

	authHandler := handlers.NewAuthHandler(s.db, s.auth, s.logger)
	refreshHandler := handlers.NewRefreshHandler(s.db, s.auth)
	logoutHandler := handlers.NewLogoutHandler(s.db, s.auth, s.logger)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Token)
	auth.POST("/refresh", refreshHandler.Refresh)
	auth.POST("/logout", logoutHandler.Logout)

	protected := api.Group("")
	protected.Use(middleware.AuthzMiddleware(middleware.AuthzConfig{
		Secret: s.cfg.Auth.JWTSecret,
		Issuer: s.cfg.Auth.Issuer,
	}))

	taskHandler := handlers.NewTaskHandler(s.db, s.tasks, s.logger)
	protected.GET("/tasks", taskHandler.ListTasks)
	protected.POST("/tasks", taskHandler.CreateTask)
	protected.GET("/tasks/:id", taskHandler.GetTaskByID)
	protected.PUT("/tasks/:id", taskHandler.UpdateTask)
	protected.DELETE("/tasks/:id", taskHandler.DeleteTask)
	protected.GET("/tasks/assignee/:assignee_id", taskHandler.ListTasksByAssignee)
	protected.GET("/me/tasks", taskHandler.MyTasks)
	protected.GET("/cache/stats", taskHandler.CacheStats)

	memberHandler := handlers.NewMemberHandler(s.db, s.members, s.logger)
	protected.POST("/members", memberHandler.AddMember)
	protected.GET("/members", memberHandler.ListMembers)
	protected.GET("/members/:id", memberHandler.GetMember)

	return router
}

func (s *Server) corsConfig() cors.Config {
	config := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	origins := s.cfg.Server.AllowedOrigins
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		config.AllowAllOrigins = true
		return config
	}
	config.AllowOrigins = origins
	config.AllowCredentials = true
	return config
}
