package middleware

import (
	"strings"

	"github.com/AtRiskMedia/launchtrack-go/pkg/config"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var localOrigins = []string{
	"http://localhost:3000",
	"http://localhost:4321",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:4321",
	"http://[::1]:3000", // IPv6 localhost
	"http://[::1]:4321", // IPv6 localhost
}

// CORSMiddleware allows the dashboard origins plus the public share site
func CORSMiddleware() gin.HandlerFunc {
	origins := append([]string{}, localOrigins...)
	if base := strings.TrimRight(config.PublicBaseURL, "/"); base != "" && !contains(origins, base) {
		origins = append(origins, base)
	}

	corsConfig := cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{
			"GET", "POST", "PATCH", "DELETE", "OPTIONS",
		},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization",
			"X-Requested-With", "X-Share-Password",
			"Cache-Control",
		},
		AllowCredentials: true,
		ExposeHeaders: []string{
			"Content-Type", "Content-Disposition", "Cache-Control",
		},
	}

	return cors.New(corsConfig)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
