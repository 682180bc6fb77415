package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	imagelabeler "github.com/menta2k/image-labeler"
	"github.com/menta2k/image-labeler/internal/handler"
)

type Server struct {
	httpServer *http.Server
	log        *zap.Logger
}

// NewRouter mounts every route. The snapshot and runs routes exist only
// when their integrations are configured.
func NewRouter(h *handler.Handler, labeler *imagelabeler.Labeler, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))
	router.MaxMultipartMemory = 8 << 20

	router.GET("/health", h.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/upload", h.UploadImage)
		api.GET("/images", h.ListImages)
		api.GET("/label/:filename", h.GetLabel)
		api.POST("/translate", h.Translate)
		api.GET("/export", h.Export)
		api.DELETE("/image/:filename", h.DeleteImage)
		api.POST("/images/delete", h.DeleteImages)
		api.POST("/images/label", h.LabelImages)
		if h.S3Enabled() {
			api.POST("/export/s3", h.ExportS3)
		}
		if h.JournalEnabled() {
			api.GET("/runs", h.ListRuns)
		}
	}

	// Images are served locally unless the URL prefix points elsewhere
	if prefix := labeler.Config.Storage.ImageURLPrefix; strings.HasPrefix(prefix, "/") {
		router.Static(prefix, labeler.Config.Storage.UploadDir)
	}

	return router
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

func New(labeler *imagelabeler.Labeler, log *zap.Logger) *Server {
	if labeler.Config.Log.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	h := handler.NewHandler(labeler, log.Named("handler"))
	router := NewRouter(h, labeler, log.Named("http"))

	cfg := labeler.Config
	// Labeling requests hold the connection across two model calls
	writeTimeout := 2*cfg.Model.Timeout + time.Minute

	server := &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       2 * time.Minute,
			WriteTimeout:      writeTimeout,
			MaxHeaderBytes:    1 << 20, // 1 MB
		},
		log: log,
	}

	log.Info("Server created successfully",
		zap.String("address", server.httpServer.Addr),
		zap.String("backend", cfg.Model.Backend),
		zap.String("model_url", cfg.Model.URL))

	return server
}

func (s *Server) Run() error {
	s.log.Info("Server is running", zap.String("address", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server")
	return s.httpServer.Shutdown(ctx)
}
