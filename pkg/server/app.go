package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"QuoteForge/internal/handler/api"
	internalrepo "QuoteForge/internal/repository"
	"QuoteForge/internal/service/control"
	"QuoteForge/internal/service/stream"
	"QuoteForge/internal/usecase"
	pkgch "QuoteForge/pkg/clickhouse"
	"QuoteForge/pkg/config"
	xhttp "QuoteForge/pkg/http"
	pkgkafka "QuoteForge/pkg/kafka"
	applogger "QuoteForge/pkg/logger"
	"QuoteForge/pkg/queue"

	"github.com/labstack/echo/v4"
)

// App owns the process lifecycle: the market engine, the optional feed and
// consumer sides, the retry queue and the HTTP surface.
type App struct {
	cfg       *config.Config
	log       *applogger.Logger
	engine    *usecase.MarketEngine
	control   *control.Center
	audit     *internalrepo.AuditLog
	hub       *stream.Hub
	collector *usecase.FeedCollector // nil without a websocket feed
	consumer  *pkgkafka.Consumer     // nil without a kafka feed
	qh        *usecase.KafkaQuotesHandler
	retryQ    *queue.RedisQueue // nil without redis
	payout    *usecase.PayoutJob
	producer  *pkgkafka.Producer // nil without kafka
	chClient  *pkgch.Client      // nil without clickhouse

	httpServer *xhttp.Server
}

// New creates the App.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	engine *usecase.MarketEngine,
	ctl *control.Center,
	audit *internalrepo.AuditLog,
	hub *stream.Hub,
	collector *usecase.FeedCollector,
	consumer *pkgkafka.Consumer,
	qh *usecase.KafkaQuotesHandler,
	retryQ *queue.RedisQueue,
	payout *usecase.PayoutJob,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:       cfg,
		log:       log,
		engine:    engine,
		control:   ctl,
		audit:     audit,
		hub:       hub,
		collector: collector,
		consumer:  consumer,
		qh:        qh,
		retryQ:    retryQ,
		payout:    payout,
		producer:  producer,
		chClient:  chClient,
	}
}

// logPublisher lets the log collector flush aggregated entries through the
// Kafka producer.
type logPublisher struct {
	producer *pkgkafka.Producer
}

func (p logPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}

type appRoutes struct {
	market *api.MarketEchoHandler
	admin  *api.AdminEchoHandler
	hub    *stream.Hub
}

func (r appRoutes) RegisterRoutes(e *echo.Echo) {
	r.market.RegisterRoutes(e)
	r.admin.RegisterRoutes(e)
	e.GET("/ws", echo.WrapHandler(r.hub))
}

// Run starts everything and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.engine.Start(ctx); err != nil {
		return err
	}

	if a.producer != nil && a.cfg.Kafka.Topics.Logs != "" {
		a.log.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          a.cfg.Kafka.Topics.Logs,
			Publisher:      logPublisher{producer: a.producer},
		})
	}

	if a.collector != nil {
		go func() {
			if err := a.collector.Start(ctx); err != nil {
				a.log.Error("feed collector error", applogger.Error(err))
			}
		}()
	}

	if a.consumer != nil && a.qh != nil {
		a.consumer.RegisterHandler(a.qh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("kafka quote consumer started", applogger.String("topic", a.qh.Topic()))
	}

	if a.retryQ != nil {
		a.retryQ.RegisterJob(a.payout)
		if err := a.retryQ.Start(); err != nil {
			a.log.Error("retry queue start error", applogger.Error(err))
		} else {
			a.retryQ.StartRetryProcessor()
		}
	}

	routes := appRoutes{
		market: api.NewMarketEchoHandler(a.log, a.engine),
		admin:  api.NewAdminEchoHandler(a.log, a.engine, a.control, a.audit),
		hub:    a.hub,
	}
	a.httpServer = xhttp.NewServer(routes,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(a.log),
	)
	if err := a.httpServer.Start(); err != nil {
		return err
	}
	a.log.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

func (a *App) shutdown(ctx context.Context) error {
	sctx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(sctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.collector != nil {
		if err := a.collector.Stop(); err != nil {
			a.log.Error("feed close error", applogger.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(sctx); err != nil {
			a.log.Error("consumer stop error", applogger.Error(err))
		}
	}
	a.engine.Stop()
	if a.retryQ != nil {
		if err := a.retryQ.Stop(sctx); err != nil {
			a.log.Error("retry queue stop error", applogger.Error(err))
		}
	}
	if err := a.hub.Close(); err != nil {
		a.log.Error("hub close error", applogger.Error(err))
	}
	a.log.RemoveCollector()
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Error("producer close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Error("clickhouse close error", applogger.Error(err))
		}
	}
	a.log.Info("shutdown complete")
	return nil
}
