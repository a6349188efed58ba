// Package server wires the authentication core together: configuration,
// logging, PostgreSQL with migrations, the verification mailer and the user
// service, and exposes them through the operator CLI.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/yanglog/yanglog/internal/logging"
	"github.com/yanglog/yanglog/internal/tracing"
	"github.com/yanglog/yanglog/internal/server/auth"
	"github.com/yanglog/yanglog/internal/server/cli"
	"github.com/yanglog/yanglog/internal/server/config"
	"github.com/yanglog/yanglog/internal/server/credentials"
	"github.com/yanglog/yanglog/internal/server/mailer"
	"github.com/yanglog/yanglog/internal/server/repositories/repomanager"
	"github.com/yanglog/yanglog/internal/server/services"
)

const serviceName = "authctl"

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	tokens      *auth.TokenIssuer
	userService *services.UserService
	closers     []func() error
	stdout      io.Writer
	stderr      io.Writer
}

// seams for tests
var (
	openDB = func(ctx context.Context, dsn string) (*sql.DB, error) {
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}
	newRepoManager = repomanager.NewPostgresRepositoryManager
	newNatsMailer  = func(c *config.Config) (mailer.Mailer, func() error, error) {
		m, err := mailer.NewNatsMailer(c.NatsURL, c.NatsSubject, c.VerifyURLBase)
		if err != nil {
			return nil, nil, err
		}
		return m, m.Close, nil
	}
)

// NewApp validates c and connects every dependency. Missing signing secrets
// fail here with common.ErrConfiguration.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	if err := c.Validate(); err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenIssuer(c.AccessTokenSecret, c.RefreshTokenSecret,
		c.AccessTokenValidityDuration, c.RefreshTokenValidityDuration)
	if err != nil {
		return nil, err
	}

	db, err := openDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app := &App{config: c, logger: logger, db: db, tokens: tokens, closers: []func() error{db.Close},
		stdout: os.Stdout, stderr: os.Stderr}

	shutdownTracer := tracing.InitTracerProvider(serviceName)
	app.closers = append(app.closers, func() error { return shutdownTracer(context.Background()) })

	rm := newRepoManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	ml, closeMailer, err := newMailer(c, logger)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("mailer init error: %w", err)
	}
	if closeMailer != nil {
		app.closers = append(app.closers, closeMailer)
	}

	hasher := credentials.NewBcryptHasher(c.BcryptCost)
	app.userService = services.NewUserService(db, rm, tokens, hasher, ml, logger)

	return app, nil
}

func newMailer(c *config.Config, logger logging.Logger) (mailer.Mailer, func() error, error) {
	switch c.MailerDriver {
	case config.MailerSendGrid:
		return mailer.NewSendGridMailer(c.SendGridAPIKey, c.MailFromName, c.MailFromAddress, c.VerifyURLBase), nil, nil
	case config.MailerNats:
		return newNatsMailer(c)
	case config.MailerLog, "":
		return mailer.NewLogMailer(logger, c.VerifyURLBase), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown mailer %q", c.MailerDriver)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) func() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigs:
			cancelFunc()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

// Run executes one CLI command; SIGINT/SIGTERM cancel it.
func (app *App) Run(ctx context.Context, args []string) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	stop := app.initSignalHandler(cancelFunc)
	defer stop()

	app.logger.Debug(ctx, "running command", "args_count", len(args))

	runner := cli.NewRunner(app.userService, app.tokens, app.stdout, app.stderr)
	return runner.Run(ctx, args)
}

// Close releases the mailer connection, flushes the tracer provider and
// closes the database pool, newest first.
func (app *App) Close() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	app.closers = nil
	return errors.Join(errs...)
}
