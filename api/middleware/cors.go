package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func CORS() gin.HandlerFunc {
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", HeaderAPIKey, "X-Filename", HeaderRequestID}
	config.ExposeHeaders = []string{HeaderRequestID, "X-Document-Format", "Content-Disposition"}

	return cors.New(config)
}
