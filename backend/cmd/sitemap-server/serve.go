package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"sitemap-service/backend/config"
	"sitemap-service/backend/internal/events"
	"sitemap-service/backend/internal/handler"
	"sitemap-service/backend/internal/httpapi/middleware"
	"sitemap-service/backend/internal/manager"
	"sitemap-service/backend/internal/sitemap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve sitemap documents over HTTP",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("init config failed: %w", err)
	}
	d, err := wire(cfg)
	if err != nil {
		return err
	}
	defer d.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatcher := events.NewDispatcher(d.manager, manager.SourceKafka, events.DefaultDispatcherOptions())
	defer dispatcher.Close()
	if group := newConsumerGroup(cfg); group != nil {
		defer group.Close()
		go events.Run(ctx, group, []string{cfg.Kafka.Topic}, events.NewConsumer(dispatcher))
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Running.Port),
		Handler: newRouter(cfg, d.manager, d.engine.router),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("sitemap-server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newConsumerGroup joins the invalidation topic. Kafka is optional: any
// failure is logged and push invalidation stays off.
func newConsumerGroup(cfg *config.Config) sarama.ConsumerGroup {
	if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topic == "" {
		return nil
	}
	kafkaCfg := sarama.NewConfig()
	kafkaCfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	kafkaCfg.Consumer.Return.Errors = false
	group, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.Kafka.Group, kafkaCfg)
	if err != nil {
		log.Printf("connect kafka failed, push invalidation disabled: %v", err)
		return nil
	}
	return group
}

func newRouter(cfg *config.Config, m *manager.Manager, rt *sitemap.Router) *gin.Engine {
	if !cfg.Running.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	// 通过网关访问时网关已经加了 CORS，重复添加会被浏览器拦截，默认关闭。
	// 直连调试时设置 SITEMAP_ENABLE_CORS=1
	if os.Getenv("SITEMAP_ENABLE_CORS") == "1" {
		router.Use(cors.New(cors.Config{
			AllowOriginFunc:  func(origin string) bool { return true },
			AllowMethods:     []string{"GET", "HEAD", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "If-Modified-Since"},
			ExposeHeaders:    []string{"Content-Length", "Last-Modified"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	h := handler.NewSitemapHandler(m, rt, cfg)
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/:file", h.Document())
	router.HEAD("/:file", h.Document())

	admin := router.Group("/admin")
	admin.Use(middleware.AuthMiddleware(cfg.Auth.Path, nil))
	{
		admin.POST("/sitemaps/invalidate", h.Invalidate())
	}
	return router
}
