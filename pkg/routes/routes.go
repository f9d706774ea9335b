package pkg

import (
	"context"
	"os"

	"CampusVote/internal/auth"
	"CampusVote/internal/config"
	"CampusVote/internal/election"
	"CampusVote/internal/otp"
	"CampusVote/pkg/middleware"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Modules = fx.Module("campusvote",
	fx.Provide(config.NewLogger),
	fx.Provide(NewEchoServer),
	fx.Provide(config.NewMongoDBConfig),
	fx.Provide(config.NewMongoDBClient),
	fx.Provide(config.NewNotifier),
	fx.Provide(otp.NewRepository),
	fx.Provide(otp.NewService),
	fx.Provide(auth.NewUserRepository),
	fx.Provide(auth.NewUserService),
	fx.Provide(auth.NewAuthHandler),
	fx.Provide(election.NewRepository),
	fx.Provide(election.NewService),
	fx.Provide(election.NewHandler),
	fx.Invoke(config.EnsureIndexes),
	fx.Invoke(RegisterRoutes))

func NewEchoServer(lc fx.Lifecycle, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"http://localhost:5173"},
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.DELETE, echo.OPTIONS},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Server starting", zap.String("port", port))
			go func() {
				if err := e.Start(":" + port); err != nil {
					logger.Error("Server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down the server ...")
			return e.Shutdown(ctx)
		},
	})
	return e
}

func RegisterRoutes(e *echo.Echo, authHandler *auth.AuthHandler, electionHandler *election.Handler) {
	e.POST("/register", authHandler.Register)
	e.POST("/login", authHandler.Login)
	e.POST("/login/verify-otp", authHandler.VerifyLoginOTP)
	e.POST("/forgot-password", authHandler.ForgotPassword)
	e.POST("/reset-password", authHandler.ResetPassword)

	protected := e.Group("/api")
	protected.Use(middleware.JWTMiddleware)
	protected.GET("/profile", authHandler.Profile)
	protected.POST("/otp/request", electionHandler.RequestVoteOTP)
	protected.POST("/otp/verify", electionHandler.VerifyVoteOTP)
	protected.POST("/vote", electionHandler.Vote)
	protected.GET("/standings", electionHandler.Standings)
	protected.GET("/audit/votes", electionHandler.AuditVotes)

	admin := protected.Group("/admin")
	admin.Use(middleware.CasbinMiddleware)
	admin.POST("/positions/assign", electionHandler.AssignPositions)
	admin.GET("/settings", electionHandler.GetSettings)
	admin.PUT("/settings", electionHandler.UpdateSettings)
	admin.PUT("/candidates/:id/approval", electionHandler.SetCandidateApproval)
}
