package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aliuyar1234/seatdesk/internal/activity"
	"github.com/aliuyar1234/seatdesk/internal/admins"
	"github.com/aliuyar1234/seatdesk/internal/config"
	"github.com/aliuyar1234/seatdesk/internal/db"
	"github.com/aliuyar1234/seatdesk/internal/licenses"
	"github.com/aliuyar1234/seatdesk/internal/mailer"
	"github.com/aliuyar1234/seatdesk/internal/partners"
	"github.com/aliuyar1234/seatdesk/internal/seats"
	"github.com/aliuyar1234/seatdesk/internal/teams"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const readyTimeout = 2 * time.Second

// App holds the application state
type App struct {
	Config   *config.Config
	DB       *pgxpool.Pool
	Router   http.Handler
	Teams    *teams.Service
	Licenses *licenses.Service

	mailQueue *mailer.Queue
	server    *http.Server
}

// New creates and initializes a new application instance
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	SetupLogger(cfg.LogLevel, cfg.IsDev())

	log.Info().Msg("Initializing seatdesk")
	log.Info().Interface("config", cfg.RedactedValues()).Msg("Configuration loaded")

	programs, err := partners.Load(cfg.PartnersFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load partner registry: %w", err)
	}
	log.Info().
		Int("programs", len(programs.Programs())).
		Strs("team_domains", programs.TeamDomains()).
		Msg("Partner registry loaded")

	templates, err := mailer.LoadTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to load email templates: %w", err)
	}

	sender, err := newSender(cfg)
	if err != nil {
		return nil, err
	}

	log.Info().Msg("Connecting to database...")
	pool, err := db.Connect(ctx, cfg.DBDSN, db.PoolOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info().Msg("Database connection established")

	if cfg.IsDev() {
		log.Info().Msg("Development mode: running migrations automatically")
		if err := db.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	} else {
		log.Info().Msg("Production mode: migrations must be run manually")
	}

	queue := mailer.NewQueue(cfg.EmailStatusPerSecond)
	dispatcher := mailer.NewDispatcher(sender, templates, programs, queue, mailer.DispatcherConfig{
		ConsumerAppURL: cfg.ConsumerAppURL,
		InviteURL:      cfg.InviteURL,
	})

	services := NewServices(cfg, pool, programs, dispatcher)
	router := NewRouter(cfg, services)

	app := &App{
		Config:    cfg,
		DB:        pool,
		Router:    router,
		Teams:     services.Teams,
		Licenses:  services.Licenses,
		mailQueue: queue,
	}

	log.Info().Msg("Application initialized successfully")
	return app, nil
}

// NewServices wires the domain services on top of pool.
func NewServices(cfg *config.Config, pool *pgxpool.Pool, programs *partners.Registry, dispatcher *mailer.Dispatcher) Services {
	journal := activity.NewWriter(pool)
	accounts := admins.NewStore(pool)
	seatService := seats.NewService(seats.NewPGStore(pool), journal)

	return Services{
		Accounts: accounts,
		Actors:   accounts,
		Seats:    seatService,
		Licenses: licenses.NewService(licenses.NewPGStore(pool), seatService, dispatcher, journal),
		Teams: teams.NewService(
			teams.NewPGStore(pool),
			programs,
			dispatcher,
			journal,
			time.Duration(cfg.InviteTTLHours)*time.Hour,
		),
		Activity: activity.NewReader(pool),
		Ready: func(ctx context.Context) error {
			return db.Ready(ctx, pool, readyTimeout)
		},
	}
}

func newSender(cfg *config.Config) (mailer.Sender, error) {
	if cfg.SendGridAPIKey == "" {
		log.Warn().Msg("SD_SENDGRID_API_KEY not set: emails are logged, not delivered")
		return mailer.LogSender{}, nil
	}
	sender, err := mailer.NewSendGridSender(cfg.SendGridAPIKey, cfg.SendGridHost, cfg.MailFrom, cfg.MailTimeoutMS)
	if err != nil {
		return nil, fmt.Errorf("failed to configure email sender: %w", err)
	}
	return sender, nil
}

// Start starts the HTTP server and blocks until it stops.
func (a *App) Start() error {
	addr := a.Config.HTTPAddr
	log.Info().Str("addr", addr).Msg("Starting HTTP server")

	a.server = &http.Server{
		Addr:         addr,
		Handler:      a.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a.server.ListenAndServe()
}

// Shutdown drains in-flight requests, then releases the mail queue and the
// database pool.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	if a.server != nil {
		log.Info().Msg("Stopping HTTP server")
		err = a.server.Shutdown(ctx)
	}
	a.Close()
	return err
}

// Close releases resources without waiting for requests.
func (a *App) Close() {
	log.Info().Msg("Shutting down application")
	if a.mailQueue != nil {
		a.mailQueue.Close()
	}
	if a.DB != nil {
		log.Info().Msg("Closing database connection")
		db.Close(a.DB)
	}
}

// SetupLogger configures the global logger. Dev gets the console writer,
// prod emits JSON lines.
func SetupLogger(level string, dev bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	if dev {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Debug().Str("level", level).Msg("Logger configured")
}
