package http

import (
	"github.com/gin-gonic/gin"

	"docqa/internal/config"
	"docqa/internal/session"
	"docqa/internal/transport/http/handler"
)

func NewRouter(sess *session.Session, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.MaxMultipartMemory = cfg.Server.MaxUploadBytes

	healthHandler := handler.NewHealthHandler(sess)
	docqaHandler := handler.NewDocQAHandler(sess, cfg.Server.MaxUploadBytes)

	router.GET("/healthz", healthHandler.Check)

	v1 := router.Group("/api/v1")
	v1.POST("/upload", docqaHandler.Upload)
	v1.POST("/ask", docqaHandler.Ask)
	v1.POST("/reset", docqaHandler.Reset)

	return router
}
