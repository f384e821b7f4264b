package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"coursepilot/internal/ai"
	appsvc "coursepilot/internal/app"
	"coursepilot/internal/assembler"
	"coursepilot/internal/bootstrap"
	"coursepilot/internal/cache"
	"coursepilot/internal/repository"
	"coursepilot/internal/transport/http/handler"
	"coursepilot/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	docRepo := repository.NewDocumentRepository(app.MySQL)
	chunkRepo := repository.NewChunkRepository(app.MySQL)
	sessionRepo := repository.NewChatSessionRepository(app.MySQL)
	messageRepo := repository.NewMessageRepository(app.MySQL)
	courseRepo := repository.NewCourseRepository(app.MySQL)

	historyCache := cache.NewHistoryCache(
		app.Redis,
		time.Duration(app.Config.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(app.Config.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)

	chatService := appsvc.NewChatService(
		sessionRepo,
		messageRepo,
		courseRepo,
		assembler.New(docRepo, chunkRepo),
		ai.NewOpenAICompatibleClient(),
		historyCache,
		ai.ChatConfig{
			BaseURL:     app.Config.LLM.BaseURL,
			APIKey:      app.Config.LLM.APIKey,
			Model:       app.Config.LLM.Model,
			Temperature: app.Config.LLM.Temperature,
		},
		app.Config.LLM.MaxContextMessage,
	)

	documentHandler := handler.NewDocumentHandler(app.Orchestrator)
	chatHandler := handler.NewChatHandler(chatService)

	auth := middleware.AuthJWT(app.Config.Auth.JWTSecret)

	v1 := router.Group("/api/v1")

	docGroup := v1.Group("/documents")
	docGroup.Use(auth)
	docGroup.POST("", middleware.RateLimit(app.UploadLimiter, "document_upload"), documentHandler.Upload)
	docGroup.GET("", documentHandler.List)
	docGroup.GET("/:id", documentHandler.Get)
	docGroup.DELETE("/:id", documentHandler.Delete)
	docGroup.POST("/:id/reprocess", documentHandler.Reprocess)

	chatGroup := v1.Group("/chat")
	chatGroup.Use(auth)
	chatGroup.POST("/sessions", chatHandler.CreateSession)
	chatGroup.GET("/sessions", chatHandler.ListSessions)
	chatGroup.DELETE("/sessions/:id", chatHandler.DeleteSession)
	chatGroup.GET("/history", chatHandler.GetHistory)
	chatGroup.POST("/stream", middleware.RateLimit(app.MessageLimiter, "chat_message"), chatHandler.StreamMessage)
	chatGroup.POST("/regenerate", middleware.RateLimit(app.MessageLimiter, "chat_message"), chatHandler.Regenerate)

	return router
}
