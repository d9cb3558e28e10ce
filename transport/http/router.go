package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupRouter sets up the Gin router
func SetupRouter(h *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger())

	auth := router.Group("/auth")
	{
		auth.POST("/challenge", h.Challenge)
		auth.POST("/authenticate", h.Authenticate)
		auth.POST("/logout", h.Logout)
	}

	router.POST("/onboard", h.Onboard)
	router.POST("/apps", h.CreateApp)

	session := router.Group("/session")
	{
		session.GET("", h.Session)
		session.GET("/all", h.Sessions)
	}

	accounts := router.Group("/accounts/:address")
	{
		accounts.GET("/last", h.LastAccount)
		accounts.GET("/available", h.AvailableAccounts)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}
