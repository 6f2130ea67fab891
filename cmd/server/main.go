package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	contractsmodule "github.com/iota-uz/contracts/modules/contracts"
	contractsoutbox "github.com/iota-uz/contracts/modules/contracts/infrastructure/outbox"
	"github.com/iota-uz/contracts/pkg/application"
	"github.com/iota-uz/contracts/pkg/configuration"
	"github.com/iota-uz/contracts/pkg/eventbus"
	"github.com/iota-uz/contracts/pkg/httpapi"
	"github.com/iota-uz/contracts/pkg/metrics"
	"github.com/iota-uz/contracts/pkg/middleware"
	"github.com/iota-uz/contracts/pkg/outbox"
	"github.com/iota-uz/contracts/pkg/server"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	logger := conf.Logger()

	if err := runMigrations(conf); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		panic(err)
	}

	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: eventbus.NewEventPublisher(logger),
		Logger:   logger,
	})
	if err := application.RegisterModules(app, contractsmodule.NewModule()); err != nil {
		log.Fatalf("failed to load modules: %v", err)
	}
	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path))
	}
	app.RegisterMiddleware(
		middleware.RequestLogger(logger),
		middleware.ProvidePool(pool),
		middleware.ProvideTenant(),
		middleware.WithTransaction(),
	)

	startOutboxBackground(conf, pool, logger, app.EventPublisher())

	srv := server.NewHTTPServer(
		app,
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = httpapi.WriteError(w, http.StatusNotFound, "NOT_FOUND", "resource not found", nil)
		}),
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = httpapi.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
		}),
	)
	log.Printf("Listening on: %s\n", conf.SocketAddress)
	if err := srv.Start(conf.SocketAddress); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

func runMigrations(conf *configuration.Configuration) error {
	db, err := sql.Open("pgx", conf.Database.Opts)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, filepath.Join(conf.MigrationsDir, "contracts"))
}

func startOutboxBackground(
	conf *configuration.Configuration,
	pool *pgxpool.Pool,
	logger *logrus.Logger,
	bus eventbus.EventBusWithError,
) {
	outboxLog := logger.WithField("component", "outbox")
	table := contractsoutbox.Table

	if conf.Outbox.RelayEnabled {
		relay, err := outbox.NewRelay(pool, table, contractsoutbox.NewDispatcher(bus), outbox.RelayOptions{
			PollInterval:    conf.Outbox.RelayPollInterval,
			BatchSize:       conf.Outbox.RelayBatchSize,
			LockTTL:         conf.Outbox.RelayLockTTL,
			MaxAttempts:     conf.Outbox.RelayMaxAttempts,
			SingleActive:    conf.Outbox.RelaySingleActive,
			LastErrorMaxLen: conf.Outbox.LastErrorMaxBytes,
			DispatchTimeout: conf.Outbox.RelayDispatchTimeout,
			Logger:          outboxLog.WithField("table", outbox.TableLabel(table)),
		})
		if err != nil {
			outboxLog.WithError(err).Warn("outbox: failed to create relay")
		} else {
			go func() {
				if err := relay.Run(context.Background()); err != nil {
					outboxLog.WithError(err).Error("outbox: relay stopped")
				}
			}()
		}
	}

	cleaner, err := outbox.NewCleaner(pool, table, outbox.CleanerOptions{
		Enabled:   conf.Outbox.CleanerEnabled,
		Interval:  conf.Outbox.CleanerInterval,
		Retention: conf.Outbox.CleanerRetention,
		Logger:    outboxLog.WithField("table", outbox.TableLabel(table)),
	})
	if err != nil {
		outboxLog.WithError(err).Warn("outbox: failed to create cleaner")
		return
	}
	go func() {
		if err := cleaner.Run(context.Background()); err != nil {
			outboxLog.WithError(err).Error("outbox: cleaner stopped")
		}
	}()
}
