package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/iliyamo/kart-rental/internal/booking"
	"github.com/iliyamo/kart-rental/internal/config"
	"github.com/iliyamo/kart-rental/internal/database"
	"github.com/iliyamo/kart-rental/internal/handler"
	"github.com/iliyamo/kart-rental/internal/logging"
	"github.com/iliyamo/kart-rental/internal/metrics"
	"github.com/iliyamo/kart-rental/internal/repository"
	"github.com/iliyamo/kart-rental/internal/router"
	"github.com/iliyamo/kart-rental/internal/service"
)

// stores is the persistence wiring shared by the engine and the auth
// handlers.
type stores struct {
	deps   booking.Deps
	users  handler.UserStore
	tokens handler.TokenStore
	ping   handler.Pinger
	close  func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal("open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer func() { _ = st.close() }()

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		log.Warn("redis unavailable; rate limiting, catalog cache and idempotency are off")
	} else {
		defer func() { _ = rdb.Close() }()
	}

	opts := []booking.Option{
		booking.WithLogger(log),
		booking.WithRecorder(metrics.Recorder{}),
	}
	if cfg.AMQP.Enabled {
		pub := service.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
		defer func() { _ = pub.Close() }()
		opts = append(opts, booking.WithPublisher(pub))
	}
	engine := booking.New(st.deps, opts...)

	e := router.New(router.Deps{
		Cfg:      cfg,
		Log:      log,
		Redis:    rdb,
		Store:    st.ping,
		Auth:     handler.NewAuthHandler(cfg, st.deps.Tx, st.users, st.tokens, engine.Ledger(), log),
		Balance:  handler.NewBalanceHandler(engine.Ledger(), log),
		Karts:    handler.NewKartHandler(engine, cfg.Location, cfg.Cache, rdb, log),
		Bookings: handler.NewBookingHandler(engine, cfg.Location, log),
	})

	log.Info("starting", zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
	if err := router.Serve(ctx, e, ":"+cfg.Port, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
	log.Info("server exiting")
}

func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (stores, error) {
	if cfg.StoreDriver == config.DriverMemory {
		log.Warn("using in-memory store; data is lost on restart")
		m := repository.NewMemoryStore()
		return stores{
			deps: booking.Deps{
				Tx:       m,
				Karts:    m.Karts(),
				Balances: m.Balances(),
				Bookings: m.Bookings(),
				Users:    m.Users(),
			},
			users:  m.Users(),
			tokens: m.Tokens(),
			ping:   m,
			close:  func() error { return nil },
		}, nil
	}

	db, err := database.Open(ctx, database.DSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName))
	if err != nil {
		return stores{}, err
	}
	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return stores{}, fmt.Errorf("migrate: %w", err)
		}
	}
	users := repository.NewUserRepo(db)
	return stores{
		deps: booking.Deps{
			Tx:       repository.NewTxManager(db),
			Karts:    repository.NewKartRepo(db),
			Balances: repository.NewBalanceRepo(db),
			Bookings: repository.NewBookingRepo(db),
			Users:    users,
		},
		users:  users,
		tokens: repository.NewTokenRepo(db),
		ping:   handler.PingFunc(db.PingContext),
		close:  db.Close,
	}, nil
}
