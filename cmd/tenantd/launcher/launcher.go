package launcher

import (
	"context"
	"fmt"
	"net"
	nethttp "net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/tenantdb/tenantdb"
	"github.com/tenantdb/tenantdb/bolt"
	"github.com/tenantdb/tenantdb/docstore"
	"github.com/tenantdb/tenantdb/document"
	"github.com/tenantdb/tenantdb/http"
	"github.com/tenantdb/tenantdb/inmem"
	"github.com/tenantdb/tenantdb/kit/cli"
	"github.com/tenantdb/tenantdb/kit/platform/errors"
	"github.com/tenantdb/tenantdb/kv"
	tenantlogger "github.com/tenantdb/tenantdb/logger"
	"github.com/tenantdb/tenantdb/requestlog"
	"github.com/tenantdb/tenantdb/schema"
	"github.com/tenantdb/tenantdb/settings"
	"github.com/tenantdb/tenantdb/sqlite"
	"github.com/tenantdb/tenantdb/sqlite/migrations"
	"github.com/tenantdb/tenantdb/tenant"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

const (
	// BoltStore stores tenants, credentials, schemas and objects in boltdb.
	BoltStore = "bolt"
	// MemoryStore stores everything in memory (useful for testing).
	MemoryStore = "memory"
)

// Launcher represents the main program execution.
type Launcher struct {
	running bool

	logLevel        zapcore.Level
	logFormat       string
	httpBindAddress string
	storeType       string
	boltPath        string
	sqlitePath      string
	passwordSalt    string
	tokenLifetime   time.Duration
	superdogs       []string
	defaultShards   int
	defaultReplicas int
	enableGzip      bool
	shutdownTimeout time.Duration

	log *zap.Logger
	reg *prometheus.Registry

	kvStore    kv.Store
	boltStore  *bolt.KVStore
	sqlStore   *sqlite.SqlStore
	tenantSvc  *tenant.Service
	apiHandler *http.APIHandler

	listener   net.Listener
	httpServer *nethttp.Server
}

// NewLauncher returns a new instance of Launcher with its option defaults.
func NewLauncher() *Launcher {
	dir := tenantdbDir()
	return &Launcher{
		logLevel:        zapcore.InfoLevel,
		logFormat:       "auto",
		httpBindAddress: ":8443",
		storeType:       BoltStore,
		boltPath:        filepath.Join(dir, "tenantd.bolt"),
		sqlitePath:      filepath.Join(dir, "requestlog.sqlite"),
		tokenLifetime:   tenant.DefaultTokenLifetime,
		defaultShards:   tenantdb.DefaultTypeOptions().Shards,
		defaultReplicas: tenantdb.DefaultTypeOptions().Replicas,
		shutdownTimeout: 10 * time.Second,
	}
}

// tenantdbDir stores data files in the home directory of the current user by default.
func tenantdbDir() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		if dir, err = os.Getwd(); err != nil {
			dir = "."
		}
	}
	return filepath.Join(dir, ".tenantdb")
}

// Options returns the command line options of the launcher. Their defaults
// are the current values of the launcher.
func (m *Launcher) Options() []cli.Opt {
	return []cli.Opt{
		cli.NewOpt(&m.logLevel, "log-level", m.logLevel, "supported log levels are debug, info, warn and error"),
		cli.NewOpt(&m.logFormat, "log-format", m.logFormat, "log output format: auto, logfmt, json or console"),
		cli.NewOpt(&m.httpBindAddress, "http-bind-address", m.httpBindAddress, "bind address for the REST HTTP API"),
		cli.NewOpt(&m.storeType, "store", m.storeType, "backing store for tenants and objects (bolt or memory)"),
		cli.NewOpt(&m.boltPath, "bolt-path", m.boltPath, "path to boltdb database"),
		cli.NewOpt(&m.sqlitePath, "sqlite-path", m.sqlitePath, "path to the request log database, or :memory:"),
		cli.NewOpt(&m.passwordSalt, "password-salt", m.passwordSalt, "server salt mixed into every password hash"),
		cli.NewOpt(&m.tokenLifetime, "access-token-lifetime", m.tokenLifetime, "lifetime of the access tokens issued by login"),
		cli.NewOpt(&m.superdogs, "superdog", m.superdogs, "platform operator to create or refresh at startup, as username:password[:email]"),
		cli.NewOpt(&m.defaultShards, "default-shards", m.defaultShards, "shard count of types declared without one"),
		cli.NewOpt(&m.defaultReplicas, "default-replicas", m.defaultReplicas, "replica count of types declared without one"),
		cli.NewOpt(&m.enableGzip, "gzip", m.enableGzip, "compress responses for clients accepting gzip"),
		cli.NewOpt(&m.shutdownTimeout, "shutdown-timeout", m.shutdownTimeout, "how long in-flight requests may run on shutdown"),
	}
}

// Running returns true when the launcher is serving.
func (m *Launcher) Running() bool {
	return m.running
}

// Logger returns the launchers logger.
func (m *Launcher) Logger() *zap.Logger {
	return m.log
}

// Registry returns the prometheus metrics registry.
func (m *Launcher) Registry() *prometheus.Registry {
	return m.reg
}

// Handler returns the API handler once the launcher is open.
func (m *Launcher) Handler() nethttp.Handler {
	return m.apiHandler
}

// Addr returns the address the HTTP API listens on once the launcher is open.
func (m *Launcher) Addr() string {
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// Run opens the launcher and serves the API until ctx is done.
func (m *Launcher) Run(ctx context.Context) error {
	if err := m.Open(ctx); err != nil {
		return err
	}
	return m.Serve(ctx)
}

// Open opens the stores, builds the services and binds the HTTP listener.
func (m *Launcher) Open(ctx context.Context) (err error) {
	if m.log == nil {
		conf := tenantlogger.Config{Format: m.logFormat, Level: m.logLevel}
		if m.log, err = conf.New(os.Stdout); err != nil {
			return err
		}
	}
	m.log.Info("Welcome to tenantd", zap.String("store", m.storeType))

	m.reg = prometheus.NewRegistry()
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	switch m.storeType {
	case BoltStore:
		if err := os.MkdirAll(filepath.Dir(m.boltPath), 0700); err != nil {
			return fmt.Errorf("creating bolt directory: %w", err)
		}
		m.boltStore = bolt.NewKVStore(m.log.With(zap.String("service", "bolt")), m.boltPath)
		if err := m.boltStore.Open(ctx); err != nil {
			m.log.Error("Failed opening bolt", zap.Error(err))
			return err
		}
		m.kvStore = m.boltStore
	case MemoryStore:
		m.kvStore = inmem.NewKVStore()
	default:
		return fmt.Errorf("unknown store type %s; expected bolt or memory", m.storeType)
	}

	if m.sqlitePath != sqlite.InmemPath {
		if err := os.MkdirAll(filepath.Dir(m.sqlitePath), 0700); err != nil {
			return fmt.Errorf("creating sqlite directory: %w", err)
		}
	}
	if m.sqlStore, err = sqlite.NewSqlStore(m.sqlitePath, m.log.With(zap.String("service", "sqlite"))); err != nil {
		m.log.Error("Failed opening sqlite store", zap.Error(err))
		return err
	}
	if err := sqlite.NewMigrator(m.sqlStore, m.log.With(zap.String("service", "migrations"))).Up(ctx, migrations.AllUp); err != nil {
		m.log.Error("Failed applying migrations", zap.Error(err))
		return err
	}

	engine := docstore.NewEngine(m.log.With(zap.String("service", "docstore")), m.kvStore)
	schemaSvc := schema.NewService(m.log.With(zap.String("service", "schema")), engine,
		schema.WithDefaultTypeOptions(tenantdb.TypeOptions{Shards: m.defaultShards, Replicas: m.defaultReplicas}))
	settingsSvc := settings.NewService(m.log.With(zap.String("service", "settings")), m.kvStore)
	documentSvc := document.NewService(m.log.With(zap.String("service", "document")), engine)
	logSvc := requestlog.NewService(m.log.With(zap.String("service", "requestlog")), m.sqlStore)

	tenantStore, err := tenant.NewStore(m.kvStore)
	if err != nil {
		m.log.Error("Failed creating tenant store", zap.Error(err))
		return err
	}
	m.tenantSvc = tenant.NewService(tenantStore,
		tenant.WithPasswordSalt(m.passwordSalt),
		tenant.WithTokenLifetime(m.tokenLifetime),
		tenant.WithTenantCleanup(schemaSvc.DeleteTenantSchemas, settingsSvc.DeleteTenantSettings, logSvc.DeleteTenantLogs),
	)
	tenantSvc := m.tenantSvc
	if err := m.bootstrap(ctx, tenantSvc); err != nil {
		m.log.Error("Failed bootstrapping the root backend", zap.Error(err))
		return err
	}

	credentialSvc := tenant.NewCredentialLogger(m.log.With(zap.String("service", "credential")),
		tenant.NewCredentialMetrics(m.reg, tenantSvc))
	passwordSvc := tenant.NewPasswordMetrics(m.reg, tenantSvc)

	m.apiHandler = http.NewAPIHandler(&http.APIBackend{
		Logger:            m.log.With(zap.String("service", "http")),
		Registry:          m.reg,
		EnableGzip:        m.enableGzip,
		CredentialService: credentialSvc,
		PasswordService:   passwordSvc,
		SessionService:    tenantSvc,
		TenantService:     tenant.NewTenantLogger(m.log.With(zap.String("service", "tenant")), tenantSvc),
		SchemaService:     schemaSvc,
		ACLService:        schemaSvc,
		DocumentService:   documentSvc,
		SettingsService:   settingsSvc,
		RequestLogService: logSvc,
	})

	m.httpServer = &nethttp.Server{
		Handler:           m.apiHandler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
		ErrorLog:          zap.NewStdLog(m.log),
	}
	if m.listener, err = net.Listen("tcp", m.httpBindAddress); err != nil {
		m.log.Error("Failed to set up TCP listener", zap.String("addr", m.httpBindAddress), zap.Error(err))
		return err
	}
	return nil
}

// Serve answers HTTP requests until ctx is done, then shuts the launcher down.
func (m *Launcher) Serve(ctx context.Context) error {
	m.running = true
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m.log.Info("Listening", zap.String("transport", "http"), zap.String("addr", m.Addr()))
		if err := m.httpServer.Serve(m.listener); err != nil && err != nethttp.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.shutdownTimeout)
		defer cancel()
		return m.Shutdown(ctx)
	})
	return g.Wait()
}

// Shutdown stops the HTTP server and closes the stores.
func (m *Launcher) Shutdown(ctx context.Context) error {
	serving := m.running
	m.running = false

	var errs error
	if serving {
		m.log.Info("Stopping", zap.String("service", "http"))
		if err := m.httpServer.Shutdown(ctx); err != nil {
			m.log.Info("Failed to close HTTP server", zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	} else if m.listener != nil {
		// the server never took ownership of the listener
		errs = multierr.Append(errs, m.listener.Close())
	}
	if m.sqlStore != nil {
		m.log.Info("Stopping", zap.String("service", "sqlite"))
		errs = multierr.Append(errs, m.sqlStore.Close())
	}
	if m.boltStore != nil {
		m.log.Info("Stopping", zap.String("service", "bolt"))
		errs = multierr.Append(errs, m.boltStore.Close())
	}
	if m.log != nil {
		_ = m.log.Sync()
	}
	return errs
}

// bootstrap ensures the root backend exists and holds every configured superdog.
// Known superdogs get their password refreshed.
func (m *Launcher) bootstrap(ctx context.Context, svc *tenant.Service) error {
	if _, err := svc.EnsureTenant(ctx, tenantdb.RootTenantID); err != nil {
		return err
	}

	for _, s := range m.superdogs {
		sd, err := parseSuperdog(s)
		if err != nil {
			return err
		}

		c, err := svc.FindCredentialByUsername(ctx, tenantdb.RootTenantID, sd.username)
		switch {
		case err == nil:
			if err := svc.SetPassword(ctx, tenantdb.RootTenantID, c.ID, sd.password); err != nil {
				return err
			}
		case errors.ErrorCode(err) == errors.ENotFound:
			c = &tenantdb.Credential{
				TenantID: tenantdb.RootTenantID,
				Username: sd.username,
				Email:    sd.email,
				Level:    tenantdb.LevelSuperdog,
			}
			if err := svc.CreateCredential(ctx, c, sd.password); err != nil {
				return err
			}
		default:
			return err
		}
		m.log.Info("Superdog ready", zap.String("username", sd.username))
	}
	return nil
}

type superdog struct {
	username string
	password string
	email    string
}

func parseSuperdog(s string) (superdog, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return superdog{}, fmt.Errorf("superdog must be formatted as username:password[:email]")
	}
	if !tenantdb.IsSuperdogName(parts[0]) {
		return superdog{}, fmt.Errorf("superdog username %q must start with %s", parts[0], tenantdb.SuperdogPrefix)
	}

	sd := superdog{username: parts[0], password: parts[1]}
	if len(parts) == 3 {
		sd.email = parts[2]
	}
	return sd, nil
}
