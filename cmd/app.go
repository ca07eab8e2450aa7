package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/NgigiN/stkpush/internal/cache"
	"github.com/NgigiN/stkpush/internal/config"
	"github.com/NgigiN/stkpush/internal/discord"
	"github.com/NgigiN/stkpush/internal/events"
	"github.com/NgigiN/stkpush/internal/logging"
	"github.com/NgigiN/stkpush/internal/mpesa"
	"github.com/NgigiN/stkpush/internal/payment"
	"github.com/NgigiN/stkpush/internal/storage"
)

// app holds the process-wide collaborators. They are built once here and
// passed explicitly to whoever needs them.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *storage.Database
	service *payment.Service
	bot     *discord.Bot
	closers []func() error
}

func newApp(withNotifiers bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return nil, err
	}

	db, err := storage.NewDatabase(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize the database: %w", err)
	}
	a := &app{cfg: cfg, log: log, db: db, closers: []func() error{db.Close}}

	var locker payment.Locker = payment.NewMemoryLocker()
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
		locker = cache.NewRedisLocker(rdb, cfg.LockTTL, log)
		log.Info("using redis dedup locks", zap.String("addr", cfg.RedisAddr))
	}

	var observers []payment.Observer
	if withNotifiers && len(cfg.KafkaBrokers) > 0 {
		producer, err := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, producer.Close)
		observers = append(observers, producer)
	}

	upstream := mpesa.NewClient(mpesa.ClientConfig{
		APIKey:        cfg.TinyPesaAPIKey,
		InitializeURL: cfg.TinyPesaInitializeURL,
		StatusURL:     cfg.TinyPesaStatusURL,
		Timeout:       cfg.TinyPesaTimeout,
	})
	engine := payment.NewEngine(upstream, db, payment.Config{
		Warmup:          cfg.Warmup,
		PollInterval:    cfg.PollInterval,
		MaxPollAttempts: cfg.MaxPollAttempts,
		PollTimeout:     cfg.PollTimeout,
		PersistFailures: cfg.PersistFailures,
	}, log, observers...)
	a.service = payment.NewService(payment.NewGuard(db), engine, locker, log)

	if withNotifiers && cfg.DiscordBotToken != "" {
		bot, err := discord.NewBot(cfg.DiscordBotToken, cfg.DiscordChannelId, db, a.service, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize the discord bot: %w", err)
		}
		a.bot = bot
		engine.Observe(bot)
	}

	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", zap.Error(err))
		}
	}
	a.log.Sync()
}
