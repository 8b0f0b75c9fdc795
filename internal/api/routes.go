package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes sets up the API routes
func SetupRoutes(handler *Handler) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(Recovery())
	router.Use(CORS())
	router.Use(RequestID())
	router.Use(gin.Logger())

	// Health check
	router.GET("/health", handler.HealthCheck)

	// API v1
	v1 := router.Group("/api/v1")
	{
		v1.POST("/bootstrap", handler.Bootstrap)

		users := v1.Group("/users")
		{
			users.POST("", handler.CreateUser)
			users.GET("", handler.ListUsers)
			users.GET("/:uid", handler.GetUser)
			users.PUT("/:uid", handler.EditUser)
			users.DELETE("/:uid", handler.DeleteUser)
			users.POST("/:uid/lock", handler.LockUser)
			users.POST("/:uid/unlock", handler.UnlockUser)
			users.GET("/:uid/projects", handler.MemberProjects)
			users.GET("/:uid/administered", handler.AdministeredProjects)
			users.GET("/:uid/administered-users", handler.AdministeredUsers)
		}

		projects := v1.Group("/projects")
		{
			projects.POST("", handler.CreateProject)
			projects.GET("", handler.ListProjects)
			projects.GET("/:cn", handler.GetProject)
			projects.PUT("/:cn", handler.EditProject)
			projects.DELETE("/:cn", handler.DeleteProject)

			projects.POST("/:cn/members", handler.AddMember)
			projects.DELETE("/:cn/members/:uid", handler.RemoveMember)
			projects.POST("/:cn/admins", handler.AddAdmin)
			projects.DELETE("/:cn/admins/:uid", handler.RemoveAdmin)
			projects.POST("/:cn/repos", handler.AddRepository)
			projects.DELETE("/:cn/repos/:kind", handler.RemoveRepository)
		}
	}

	return router
}
