package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/cannetwork/notifier/internal/dispatch"
	"github.com/cannetwork/notifier/internal/store"
	"github.com/cannetwork/notifier/pkg/config"
	"github.com/cannetwork/notifier/pkg/db"
	"github.com/cannetwork/notifier/pkg/lambdahttp"
	"github.com/cannetwork/notifier/pkg/logx"
	"github.com/cannetwork/notifier/pkg/queue"
	"github.com/cannetwork/notifier/pkg/rmq"
	"github.com/cannetwork/notifier/pkg/sqsq"
	"github.com/cannetwork/notifier/services/notify-api/server"
)

type backend interface {
	queue.Sender
	Ping(ctx context.Context) error
}

func main() {
	logx.Init()
	defer logx.Sync()

	config.MustLoadAPI()
	cfg := config.API

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	sender, destination, closeSender := openBackend(ctx, cfg)
	cancel()
	defer closeSender()

	var (
		st     *store.Store
		ledger dispatch.Ledger
	)
	if cfg.DBDSN != "" {
		sqlDB := openLedger(cfg.DBDSN)
		defer func() {
			if err := sqlDB.Close(); err != nil {
				logx.L().Warnw("db_close_error", "error", err)
			} else {
				logx.L().Infow("db_closed")
			}
		}()
		st = store.New(sqlDB)
		ledger = st
	}

	disp, err := dispatch.New(dispatch.Config{
		Queue:            destination,
		ConfigurationSet: cfg.ConfigurationSet,
		RenderWorkers:    cfg.RenderWorkers,
	}, sender, ledger)
	if err != nil {
		logx.L().Fatalw("dispatcher_init_error", "error", err)
	}

	h := server.NewHandlers(disp, st, sender, cfg.MaxBodyBytes)

	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		logx.L().Infow("lambda_start", "backend", cfg.Backend)
		lambda.Start(lambdahttp.Handler(server.NewRouter(h)))
		return
	}

	srv := server.NewHTTPServer(":"+cfg.Port, h)

	go func() {
		logx.L().Infow("api_listen_start", "addr", ":"+cfg.Port, "backend", cfg.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.L().Fatalw("http_server_error", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	logx.L().Infow("signal_received", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logx.L().Errorw("server_shutdown_error", "error", err)
	} else {
		logx.L().Infow("server_shutdown_success")
	}

	logx.L().Infow("notify-api stopped gracefully")
}

func openBackend(ctx context.Context, cfg config.APIConfig) (backend, string, func()) {
	switch cfg.Backend {
	case config.BackendRabbitMQ:
		pub, err := rmq.NewPublisher(cfg.RMQURL, cfg.Queue)
		if err != nil {
			logx.L().Fatalw("rmq_init_error", "error", err)
		}
		return pub, cfg.Queue, func() {
			if err := pub.Close(); err != nil {
				logx.L().Warnw("rmq_publisher_close_error", "error", err)
			} else {
				logx.L().Infow("rmq_publisher_closed")
			}
		}
	default:
		s, err := sqsq.New(ctx, sqsq.Config{
			QueueURL:  cfg.QueueURL,
			Region:    cfg.Region,
			Endpoint:  cfg.SQSEndpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		})
		if err != nil {
			logx.L().Fatalw("sqs_init_error", "error", err)
		}
		return s, cfg.QueueURL, func() {}
	}
}

func openLedger(dsn string) *sql.DB {
	sqlDB, err := db.Open(dsn)
	if err != nil {
		logx.L().Fatalw("db_open_error", "error", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.Migrate(ctx, sqlDB); err != nil {
		logx.L().Fatalw("db_migrate_error", "error", err)
	}
	return sqlDB
}
