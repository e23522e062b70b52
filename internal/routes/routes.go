package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"teamflow/internal/handlers"
	"teamflow/internal/middleware"
)

func SetupRoutes(
	r *gin.Engine,
	tokens middleware.TokenParser,
	authHandler *handlers.AuthHandler,
	projectHandler *handlers.ProjectHandler,
	taskHandler *handlers.TaskHandler,
) *gin.Engine {

	// ---- public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/auth/register", authHandler.Register)
	r.POST("/auth/login", authHandler.Login)

	// ---- protected
	protected := r.Group("/", middleware.AuthMiddleware(tokens))

	protected.GET("/auth/me", authHandler.Me)

	projects := protected.Group("/projects")
	{
		projects.GET("", projectHandler.List)
		projects.POST("", projectHandler.Create)
		projects.GET("/:id", projectHandler.GetByID)
		projects.PUT("/:id", projectHandler.Update)
		projects.DELETE("/:id", projectHandler.Delete)
		projects.GET("/:id/report.pdf", projectHandler.Report)
	}

	tasks := protected.Group("/tasks")
	{
		tasks.GET("", taskHandler.List)
		tasks.POST("", taskHandler.Create)
		tasks.GET("/tags", taskHandler.Tags)
		tasks.GET("/:id", taskHandler.GetByID)
		tasks.PUT("/:id", taskHandler.Update)
		tasks.DELETE("/:id", taskHandler.Delete)
	}

	return r
}
