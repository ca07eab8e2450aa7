package api

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/NgigiN/stkpush/internal/payment"
)

type Payer interface {
	Pay(ctx context.Context, phoneNumber string, amount int64) (*payment.Outcome, error)
}

type Options struct {
	CORSOrigins   []string
	DefaultAmount int64
}

type Server struct {
	payments Payer
	opts     Options
	log      *zap.Logger
	started  time.Time
}

func NewServer(payments Payer, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{payments: payments, opts: opts, log: log, started: time.Now()}
}

// Router wires the inbound HTTP surface.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log), cors.New(corsConfig(s.opts.CORSOrigins)))

	r.GET("/health", s.health)

	api := r.Group("/api")
	{
		api.POST("/stk-push", s.stkPush)
		api.POST("/tiny", s.stkPush)
		api.GET("/amount", s.amount)
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
