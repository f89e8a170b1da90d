// NHC Bridge keeps Niko Home Control controllers in sync over the Hobby API
// and exposes their devices over HTTP, WebSocket and Prometheus.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nerrad567/nhc-bridge/internal/api"
	"github.com/nerrad567/nhc-bridge/internal/availability"
	"github.com/nerrad567/nhc-bridge/internal/controller"
	"github.com/nerrad567/nhc-bridge/internal/device"
	"github.com/nerrad567/nhc-bridge/internal/history"
	"github.com/nerrad567/nhc-bridge/internal/infrastructure/config"
	"github.com/nerrad567/nhc-bridge/internal/infrastructure/database"
	"github.com/nerrad567/nhc-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/nhc-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/nhc-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/nhc-bridge/internal/metrics"
	"github.com/nerrad567/nhc-bridge/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	defaultEnvFile    = ".env"

	// tokenExpiryWarning is how far ahead an expiring token is reported.
	tokenExpiryWarning = 14 * 24 * time.Hour
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled.
// Deferred cleanups run in reverse start order.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting NHC bridge", "version", version, "commit", commit, "build_date", date)

	if err := loadEnvFile(getEnvFilePath()); err != nil {
		return fmt.Errorf("loading env file: %w", err)
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "controllers", len(cfg.Controllers))
	warnTokenExpiry(log, cfg.Controllers, time.Now())

	collector := metrics.NewCollector()

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Controllers
	controllers, err := buildControllers(cfg.Controllers, log, collector)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing controllers")
		for _, c := range controllers.List() {
			if closeErr := c.Close(); closeErr != nil {
				log.Error("error closing controller", "controller", c.ID(), "error", closeErr)
			}
		}
	}()

	controllers.OnStateChange(func(id string, st controller.State, msg string) {
		collector.ObserveState(id, st)
		if influxClient != nil {
			influxClient.WriteControllerState(id, st.String(), time.Now())
		}
		if st == controller.StateError {
			log.Warn("controller error", "controller", id, "message", msg)
		}
	})

	// Property history (optional)
	var historyReader api.HistoryReader
	recorderOpts := history.Options{Logger: log.Component("history")}
	if influxClient != nil {
		recorderOpts.Telemetry = influxClient
	}
	if cfg.Database.Enabled {
		db, openErr := openHistoryDB(ctx, cfg.Database)
		if openErr != nil {
			return openErr
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("history database ready", "path", cfg.Database.Path)

		repo := history.NewSQLiteRepository(db)
		historyReader = repo
		recorderOpts.Repository = repo
		recorderOpts.Retention = cfg.Database.Retention
	}
	if recorderOpts.Repository != nil || recorderOpts.Telemetry != nil {
		recorder := history.NewRecorder(recorderOpts)
		recorder.Start(ctx)
		defer recorder.Stop()
		controllers.OnDeviceChange(recorder.Observe)
	}

	// Availability (optional)
	var monitor *availability.Monitor
	if cfg.Availability.Enabled {
		monitor = availability.NewMonitor(controllerSource(controllers), cfg.Availability.Interval)
		monitor.SetLogger(log.Component("availability"))
		monitor.OnChange(collector.ObserveAvailability)
		if influxClient != nil {
			monitor.OnChange(func(st availability.Status) {
				influxClient.WriteAvailability(st.ControllerID, st.UUID, st.Available, string(st.Reason), st.CheckedAt)
			})
		}
		controllers.OnDeviceChange(func(id string, d device.Device) {
			monitor.Track(availability.Target{ControllerID: id, UUID: d.UUID, Type: d.Type, Model: d.Model})
		})
	}

	// HTTP API
	deps := api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log.Component("api"),
		Controllers: api.SetSource{Set: controllers},
		Events:      controllers,
		History:     historyReader,
		Version:     version,
	}
	if monitor != nil {
		deps.Availability = monitor
	}
	if cfg.Metrics.Enabled {
		deps.Metrics = metrics.Handler(metrics.NewRegistry(collector))
		deps.MetricsPath = cfg.Metrics.Path
	}
	srv, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if monitor != nil {
		monitor.OnChange(srv.PublishAvailability)
		monitor.Start(ctx)
		defer monitor.Stop()
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server listening", "addr", srv.Addr())

	// A controller that cannot start stays reachable through the API so its
	// credentials can be corrected.
	if err := controllers.ConnectAll(); err != nil {
		log.Error("some controllers failed to start", "error", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	controllers.DisconnectAll()
	log.Info("NHC bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses NHCBRIDGE_CONFIG if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("NHCBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// getEnvFilePath returns the .env file path.
// Uses NHCBRIDGE_ENV_FILE if set, otherwise the default.
func getEnvFilePath() string {
	if path := os.Getenv("NHCBRIDGE_ENV_FILE"); path != "" {
		return path
	}
	return defaultEnvFile
}

// loadEnvFile loads variables from path without overriding the ones
// already set. A missing file is not an error.
func loadEnvFile(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// warnTokenExpiry logs controllers whose token has expired or expires soon.
// The controller is the one that rejects the token; this is only a hint.
func warnTokenExpiry(log *logging.Logger, controllers []config.ControllerConfig, now time.Time) int {
	warned := 0
	for _, cc := range controllers {
		exp, ok := controller.Credentials{Username: cc.Username, Token: cc.Token}.ExpiresAt()
		if !ok {
			continue
		}
		switch {
		case !exp.After(now):
			log.Warn("controller token has expired", "controller", cc.ID, "expired_at", exp)
			warned++
		case exp.Sub(now) < tokenExpiryWarning:
			log.Warn("controller token expires soon", "controller", cc.ID, "expires_at", exp)
			warned++
		}
	}
	return warned
}

// buildControllers creates one Client per configured controller.
func buildControllers(cfgs []config.ControllerConfig, log *logging.Logger, observer controller.Observer) (*controller.Set, error) {
	set := controller.NewSet()
	for _, cc := range cfgs {
		clog := log.Component("controller").With("controller", cc.ID)

		opts, err := mqtt.OptionsFromConfig(cc)
		if err != nil {
			return nil, fmt.Errorf("controller %s: %w", cc.ID, err)
		}
		opts.Logger = clog
		dialer, err := mqtt.NewDialer(opts)
		if err != nil {
			return nil, fmt.Errorf("controller %s: %w", cc.ID, err)
		}

		client, err := controller.New(controller.Options{
			ID:              cc.ID,
			Credentials:     controller.Credentials{Username: cc.Username, Token: cc.Token},
			Dialer:          dialer,
			RefreshInterval: cc.RefreshInterval,
			BatchDelay:      cc.BatchDelay,
			Logger:          clog,
			Observer:        observer,
		})
		if err != nil {
			return nil, fmt.Errorf("controller %s: %w", cc.ID, err)
		}
		if err := set.Add(client); err != nil {
			return nil, err
		}
		log.Info("controller configured", "controller", cc.ID, "broker", opts.BrokerURL())
	}
	return set, nil
}

// controllerSource exposes the set to the availability monitor.
func controllerSource(set *controller.Set) availability.Source {
	return availability.SourceFunc(func(id string) (availability.Controller, bool) {
		c, ok := set.Get(id)
		if !ok {
			return nil, false
		}
		return c, true
	})
}

// openHistoryDB opens the SQLite store and applies pending migrations.
func openHistoryDB(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}
