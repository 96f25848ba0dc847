package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/quizpack/internal/middleware"
)

type RouterDeps struct {
	Imports  *ImportHandler
	Packages *PackageHandler
	Files    *FileHandler
	Metrics  http.Handler
	// UploadEvery spaces out uploads per user; zero disables the limit.
	UploadEvery time.Duration
	UploadBurst int
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	if deps.Metrics != nil {
		api.GET("/metrics", gin.WrapH(deps.Metrics))
	}
	api.GET("/files/*key", deps.Files.Get)

	userGroup := api.Group("")
	userGroup.Use(middleware.UserID())
	userGroup.POST("/imports", middleware.RateLimit(deps.UploadEvery, deps.UploadBurst), deps.Imports.Upload)
	userGroup.GET("/imports/:job_id", deps.Imports.Status)
	userGroup.POST("/imports/:job_id/cancel", deps.Imports.Cancel)

	userGroup.GET("/packages/:id", deps.Packages.Get)
	userGroup.PUT("/packages/:id/numbering", deps.Packages.SetNumbering)
	userGroup.POST("/packages/:id/tours", deps.Packages.AddTour)
	userGroup.DELETE("/packages/:id/tours/:tour_id", deps.Packages.RemoveTour)
	userGroup.PUT("/packages/:id/tours/:tour_id/move", deps.Packages.MoveTour)
	userGroup.PUT("/packages/:id/tours/:tour_id/warmup", deps.Packages.SetWarmup)
	userGroup.POST("/packages/:id/tours/:tour_id/questions", deps.Packages.AddQuestion)
	userGroup.DELETE("/packages/:id/questions/:question_id", deps.Packages.RemoveQuestion)
	userGroup.PUT("/packages/:id/questions/:question_id/move", deps.Packages.MoveQuestion)
}
