package http

import (
	"github.com/gin-gonic/gin"

	"bimagent/internal/bootstrap"
	"bimagent/internal/transport/http/handler"
	"bimagent/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	authHandler := handler.NewAuthHandler(app.AuthService)
	chatHandler := handler.NewChatHandler(app.ChatService)
	projectHandler := handler.NewProjectHandler(app.ProjectService)
	documentHandler := handler.NewDocumentHandler(app.DocumentService)
	generateHandler := handler.NewGenerateHandler(app.GenerationService)
	verifyHandler := handler.NewVerifyHandler(app.VerifierService)
	ragHandler := handler.NewRAGHandler(app.RAGAdminService)

	authJWT := middleware.AuthJWT(app.Config.Auth.JWTSecret)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", authJWT, authHandler.Me)

	chatGroup := v1.Group("/chat")
	chatGroup.Use(authJWT)
	chatGroup.POST("/sessions", chatHandler.CreateSession)
	chatGroup.GET("/sessions", chatHandler.ListSessions)
	chatGroup.DELETE("/sessions/:id", chatHandler.DeleteSession)
	chatGroup.POST("/messages", chatHandler.SendMessage)
	chatGroup.POST("/messages/stream", chatHandler.StreamMessage)
	chatGroup.GET("/history", chatHandler.GetHistory)

	projectGroup := v1.Group("/projects")
	projectGroup.Use(authJWT)
	projectGroup.POST("", projectHandler.Create)
	projectGroup.GET("", projectHandler.List)
	projectGroup.GET("/:id", projectHandler.Get)
	projectGroup.DELETE("/:id", projectHandler.Delete)
	projectGroup.PUT("/:id/context", projectHandler.SetContext)

	documentGroup := v1.Group("/documents")
	documentGroup.Use(authJWT)
	documentGroup.GET("", documentHandler.List)
	documentGroup.GET("/:id", documentHandler.Get)
	documentGroup.DELETE("/:id", documentHandler.Delete)

	generateGroup := v1.Group("/generate")
	generateGroup.Use(authJWT)
	generateGroup.GET("/types", generateHandler.DocTypes)
	generateGroup.POST("", generateHandler.Start)
	generateGroup.GET("/status/:job_id", generateHandler.Status)

	verifyGroup := v1.Group("/verify")
	verifyGroup.Use(authJWT)
	verifyGroup.POST("/bep", verifyHandler.VerifyBEP)
	verifyGroup.GET("/bep/history/:project_id", verifyHandler.History)

	ragGroup := v1.Group("/rag")
	ragGroup.GET("/status", ragHandler.Status)
	ragGroup.Use(authJWT)
	ragGroup.POST("/query", ragHandler.Query)
	ragGroup.POST("/reindex", ragHandler.Reindex)
	ragGroup.GET("/reindex", ragHandler.ReindexState)
	ragGroup.GET("/corpus", ragHandler.ListCorpus)
	ragGroup.POST("/corpus", ragHandler.UploadCorpus)

	return router
}
