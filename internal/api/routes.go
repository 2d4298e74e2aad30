package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/AlexanderCholiy/resume-safari/internal/api/middleware"
	"github.com/AlexanderCholiy/resume-safari/internal/auth"
	"github.com/AlexanderCholiy/resume-safari/internal/config"
	"github.com/AlexanderCholiy/resume-safari/internal/profile"
	"github.com/AlexanderCholiy/resume-safari/internal/resume"
	"github.com/AlexanderCholiy/resume-safari/internal/snapshot"
)

// Dependencies 汇总路由需要的服务与客户端。
type Dependencies struct {
	Config    *config.Config
	DB        *gorm.DB
	Auth      *auth.AuthService
	Sessions  SessionStore
	Notify    NotifySubscriber
	Resumes   *resume.Service
	Profiles  *profile.Service
	Snapshots *snapshot.Cache
	Avatars   AvatarStore
	Scanner   VirusScanner
	Logger    *slog.Logger
}

// RegisterRoutes 注册 /v1 下的全部 API 路由。
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	cfg := deps.Config

	authHandler := NewAuthHandler(deps.DB, deps.Auth, deps.Sessions, cfg.Auth, cfg.API.CookieDomain)
	catalogHandler := NewCatalogHandler(deps.DB, deps.Resumes, deps.Snapshots)
	profileHandler := NewProfileHandler(deps.Profiles)
	avatarHandler := NewAvatarHandler(deps.DB, deps.Avatars, deps.Scanner, cfg.Limits.AvatarMaxBytes)
	resumeHandler := NewResumeHandler(deps.Resumes, deps.Snapshots)
	wsHandler := NewWsHandler(deps.Notify, deps.Auth, deps.Logger, cfg.API.AllowedOrigins)

	authenticated := middleware.AuthMiddleware(deps.Auth)
	optional := middleware.OptionalAuthMiddleware(deps.Auth)
	passwordGate := middleware.RequirePasswordChangeCompletedMiddleware()
	ready := []gin.HandlerFunc{authenticated, passwordGate}
	staff := []gin.HandlerFunc{authenticated, passwordGate, middleware.RequireStaffMiddleware()}

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authenticated, authHandler.Logout)
			authGroup.POST("/password", authenticated, authHandler.ChangePassword)
		}

		catalogs := []struct {
			path   string
			list   gin.HandlerFunc
			upsert gin.HandlerFunc
		}{
			{"/hard-skills", catalogHandler.ListHardSkills, catalogHandler.UpsertHardSkill},
			{"/soft-skills", catalogHandler.ListSoftSkills, catalogHandler.UpsertSoftSkill},
			{"/locations", catalogHandler.ListLocations, catalogHandler.UpsertLocation},
			{"/positions", catalogHandler.ListPositions, catalogHandler.UpsertPosition},
		}
		for _, cat := range catalogs {
			v1.GET(cat.path, cat.list)
			v1.POST(cat.path, append(staff, cat.upsert)...)
		}

		me := v1.Group("/users/me", ready...)
		{
			me.GET("", profileHandler.GetMe)
			me.PATCH("", profileHandler.UpdateMe)
			me.POST("/avatar", avatarHandler.UploadAvatar)
			me.GET("/avatar", avatarHandler.GetAvatarURL)
		}

		resumes := v1.Group("/resumes")
		{
			resumes.GET("", resumeHandler.ListResumes)
			resumes.GET("/mine", append(ready, resumeHandler.ListMine)...)
			resumes.POST("", append(ready, resumeHandler.CreateResume)...)
			resumes.GET("/:slug", optional, resumeHandler.GetResume)
			resumes.GET("/:slug/grid", optional, resumeHandler.GetGrid)
			resumes.PATCH("/:slug", append(ready, resumeHandler.UpdateResume)...)
			resumes.PUT("/:slug/nested", append(ready, resumeHandler.ReplaceNested)...)
			resumes.DELETE("/:slug", append(ready, resumeHandler.DeleteResume)...)
		}
	}
}
