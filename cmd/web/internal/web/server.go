package web

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"thirdcoast.systems/edits/cmd/web/auth"
	authhandlers "thirdcoast.systems/edits/cmd/web/handlers/auth"
	"thirdcoast.systems/edits/cmd/web/handlers/common"

	"thirdcoast.systems/edits/cmd/web/handlers/api/edit_api"
	"thirdcoast.systems/edits/cmd/web/handlers/api/fileserver"
	"thirdcoast.systems/edits/cmd/web/handlers/api/profile_api"
	"thirdcoast.systems/edits/cmd/web/handlers/api/search_api"

	"thirdcoast.systems/edits/internal/db"
	"thirdcoast.systems/edits/internal/edits"
	"thirdcoast.systems/edits/internal/profiles"
	"thirdcoast.systems/edits/internal/storage"
	"thirdcoast.systems/edits/internal/thumbnail"
)

// jsonBodyLimit applies to every route that does not take an upload.
const jsonBodyLimit = "2M"

type Dependencies struct {
	DB             *db.DatabaseConnection
	SessionManager *auth.SessionManager
	Media          storage.Storage
	Dispatcher     thumbnail.Dispatcher
	// UploadMaxBytes bounds video and avatar uploads.
	UploadMaxBytes uint64
	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler
}

type Webserver struct {
	*echo.Echo
	sessionManager *auth.SessionManager
	dbc            *db.DatabaseConnection
	queries        *db.Queries
	media          storage.Storage
	fileServer     *fileserver.FileServer
	edits          *edits.Service
	profiles       *profiles.Service
	uploadLimit    string
	metrics        http.Handler
}

func NewWebserver(deps Dependencies) (*Webserver, error) {
	if deps.SessionManager == nil || deps.Media == nil || deps.Dispatcher == nil {
		return nil, errors.New("webserver: session manager, media storage and dispatcher are required")
	}
	if deps.UploadMaxBytes == 0 {
		return nil, errors.New("webserver: upload limit must be positive")
	}

	queries := db.New(deps.DB)
	webserver := &Webserver{
		Echo:           echo.New(),
		sessionManager: deps.SessionManager,
		dbc:            deps.DB,
		queries:        queries,
		media:          deps.Media,
		fileServer:     fileserver.NewFileServer(),
		edits:          edits.NewService(edits.NewStore(deps.DB), deps.Media, deps.Dispatcher, slog.Default().With("component", "edits")),
		profiles:       profiles.NewService(queries, deps.Media, slog.Default().With("component", "profiles")),
		uploadLimit:    fmt.Sprintf("%dB", deps.UploadMaxBytes),
		metrics:        deps.Metrics,
	}
	slog.Info("upload limit", "max", humanize.Bytes(deps.UploadMaxBytes))

	if err := webserver.setupMiddleware(); err != nil {
		return nil, err
	}
	if err := webserver.registerRoutes(); err != nil {
		return nil, err
	}
	return webserver, nil
}

func isUploadRoute(c echo.Context) bool {
	switch c.Request().Method + " " + c.Path() {
	case "POST /api/edits", "POST /api/edits/:id/video", "PUT /api/profile":
		return true
	default:
		return false
	}
}

func (s *Webserver) setupMiddleware() error {
	s.HideBanner = true
	s.HidePort = true
	s.Use(middleware.Recover())
	s.Use(middleware.RequestID())
	s.Use(middleware.BodyLimitWithConfig(middleware.BodyLimitConfig{
		Skipper: isUploadRoute,
		Limit:   jsonBodyLimit,
	}))
	s.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Path(), "/media/") || strings.HasSuffix(c.Path(), "/thumbnail")
		},
	}))
	s.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/healthz" || c.Path() == "/metrics"
		},
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  false,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				fields = append(fields, "error", v.Error)
			}
			slog.Info("request", fields...)
			return nil
		},
	}))

	// Drop sessions whose user no longer exists or whose role changed since sign in.
	s.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if s.dbc == nil {
				return next(c)
			}
			userID, session, err := common.RequireSessionUser(c, s.sessionManager)
			if err != nil {
				return next(c)
			}
			user, err := s.queries.GetUserByID(c.Request().Context(), userID)
			switch {
			case errors.Is(err, pgx.ErrNoRows):
				slog.Info("session for deleted user cleared", "user_id", session.ID)
				s.sessionManager.ClearSession(c.Response().Writer, c.Request())
				c.Request().Header.Del("Cookie")
			case err != nil:
				slog.Warn("session validation failed", "user_id", session.ID, "error", err)
			case auth.AccessLevelForRole(string(user.Role)) != session.AccessLevel:
				session.AccessLevel = auth.AccessLevelForRole(string(user.Role))
				if err := s.sessionManager.SaveSession(c.Response().Writer, c.Request(), session); err != nil {
					slog.Warn("failed to refresh session", "user_id", session.ID, "error", err)
				}
			}
			return next(c)
		}
	})

	return nil
}

func (s *Webserver) registerRoutes() error {
	uploads := middleware.BodyLimit(s.uploadLimit)

	s.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if s.metrics != nil {
		s.GET("/metrics", echo.WrapHandler(s.metrics))
	}
	s.GET("/media/*", s.fileServer.MediaHandler(s.media))

	apiGroup := s.Group("/api")

	apiGroup.POST("/auth/register", authhandlers.HandleRegister(s.sessionManager, s.dbc))
	apiGroup.POST("/auth/login", authhandlers.HandleLogin(s.sessionManager, s.queries))
	apiGroup.POST("/auth/logout", authhandlers.HandleLogout(s.sessionManager))
	apiGroup.GET("/me", authhandlers.HandleMe(s.sessionManager))

	apiGroup.GET("/edits", edit_api.HandleFeed(s.sessionManager, s.queries, s.media))
	apiGroup.POST("/edits", edit_api.HandleCreate(s.sessionManager, s.edits, s.queries, s.media), uploads)
	apiGroup.GET("/edits/:id", edit_api.HandleDetail(s.sessionManager, s.queries, s.media))
	apiGroup.PUT("/edits/:id", edit_api.HandleUpdate(s.sessionManager, s.edits, s.queries, s.media))
	apiGroup.DELETE("/edits/:id", edit_api.HandleDelete(s.sessionManager, s.edits))
	apiGroup.POST("/edits/:id/video", edit_api.HandleReplaceVideo(s.sessionManager, s.edits, s.queries, s.media), uploads)
	apiGroup.GET("/edits/:id/thumbnail", edit_api.HandleThumbnail(s.queries, s.media, s.fileServer))
	apiGroup.POST("/edits/:id/thumbnail/regenerate", edit_api.HandleRegenerateThumbnail(s.sessionManager, s.edits))
	apiGroup.POST("/edits/:id/views", edit_api.HandleView(s.queries))
	apiGroup.POST("/edits/:id/like", edit_api.HandleLike(s.sessionManager, s.dbc))

	apiGroup.GET("/users/:username", profile_api.HandleProfile(s.sessionManager, s.queries, s.media))
	apiGroup.POST("/users/:username/follow", profile_api.HandleFollow(s.sessionManager, s.queries, s.dbc))
	apiGroup.PUT("/profile", profile_api.HandleUpdateProfile(s.sessionManager, s.profiles, s.media), uploads)

	apiGroup.GET("/search", search_api.HandleSearch(s.sessionManager, s.queries, s.media))
	apiGroup.GET("/tags/popular", search_api.HandlePopularTags(s.queries))
	apiGroup.GET("/categories", search_api.HandleCategories(s.queries))

	return nil
}
