package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/basit/packshare-backend/handlers"
	"github.com/basit/packshare-backend/middleware"
)

func RegisterArchiveRoutes(r *gin.Engine, h *handlers.Handler, captcha middleware.CaptchaVerifier) {
	archives := r.Group("/api/archives")

	// public, token-gated reads
	archives.GET("/:ref", h.GetArchive)
	archives.GET("/:ref/download", h.DownloadArchive)
	archives.GET("/:ref/files/:fileToken", h.ExtractFile)
	archives.GET("/:ref/qr", h.ArchiveQR)
	archives.GET("/:ref/tree", h.GetArchiveTree)

	// mutations that accept new content sit behind the human check; delete
	// is already gated by the edit token and takes no uploads
	archives.POST("", middleware.CaptchaRequired(captcha), h.CreateArchive)
	archives.PATCH("/:ref", middleware.CaptchaRequired(captcha), h.EditArchive)
	archives.DELETE("/:ref", h.DeleteArchive)
}
