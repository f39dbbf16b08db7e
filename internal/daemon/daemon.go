// Package daemon implements the daemon lifecycle manager.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"firestige.xyz/scanguard/internal/classifier"
	"firestige.xyz/scanguard/internal/command"
	"firestige.xyz/scanguard/internal/config"
	"firestige.xyz/scanguard/internal/engine"
	"firestige.xyz/scanguard/internal/intercept"
	"firestige.xyz/scanguard/internal/log"
	"firestige.xyz/scanguard/internal/metrics"
)

// HookFactory creates the interception hook for a mode.
type HookFactory func(mode string, ops intercept.HookOps, logger log.Logger) (intercept.Hook, error)

// Option customizes a Daemon.
type Option func(*Daemon)

// WithHookFactory replaces the hook factory, intercept.New by default.
func WithHookFactory(f HookFactory) Option {
	return func(d *Daemon) { d.newHook = f }
}

// Daemon manages the scanguard daemon process lifecycle.
type Daemon struct {
	config      *config.GlobalConfig
	configPath  string
	socketPath  string
	pidFile     string
	ownsPIDFile bool // set once this process wrote pidFile
	newHook     HookFactory

	engine        *engine.Engine
	hook          intercept.Hook
	cmdHandler    *command.CommandHandler
	udsServer     *command.UDSServer
	udsDone       chan struct{}
	metricsServer *metrics.Server // nil if metrics disabled

	mu           sync.Mutex // guards config on reload
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	stopOnce     sync.Once
	sigChan      chan os.Signal
}

// New creates a new Daemon. Empty socketPath or pidFile fall back to the
// control section of the configuration.
func New(configPath, socketPath, pidFile string, opts ...Option) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if socketPath == "" {
		socketPath = cfg.Control.Socket
	}
	if pidFile == "" {
		pidFile = cfg.Control.PIDFile
	}

	d := &Daemon{
		config:       cfg,
		configPath:   configPath,
		socketPath:   socketPath,
		pidFile:      pidFile,
		newHook:      intercept.New,
		shutdownChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// Start initializes and starts all daemon components. On failure everything
// started so far is torn down again.
func (d *Daemon) Start() error {
	if err := d.start(); err != nil {
		d.Stop()
		return err
	}
	return nil
}

func (d *Daemon) start() error {
	if err := log.Init(d.config.Log); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger := log.GetLogger()
	logger.WithFields(map[string]interface{}{
		"hostname": d.config.Node.Hostname,
		"config":   d.configPath,
		"socket":   d.socketPath,
		"mode":     d.config.Intercept.Mode,
	}).Info("starting scanguard daemon")

	if err := writePIDFile(d.pidFile); err != nil {
		return err
	}
	d.ownsPIDFile = true

	if d.config.Metrics.Enabled {
		d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
		if err := d.metricsServer.Start(d.ctx); err != nil {
			d.metricsServer = nil
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	table, err := classifier.NewTable(d.config.Classifier.Windows())
	if err != nil {
		return err
	}
	d.engine = engine.New(classifier.New(table), d.reporters()...)

	hook, err := d.newHook(d.config.Intercept.Mode, intercept.OpsFromConfig(d.config), logger)
	if err != nil {
		return fmt.Errorf("failed to create %s hook: %w", d.config.Intercept.Mode, err)
	}
	if err := hook.Register(d.ctx, d.engine.Verdict); err != nil {
		return fmt.Errorf("failed to register %s hook: %w", hook.Mode(), err)
	}
	d.hook = hook

	d.cmdHandler = command.NewCommandHandler(d.engine, d.hook, d)
	d.cmdHandler.SetShutdownFunc(func() {
		log.GetLogger().Info("shutdown triggered via daemon.shutdown command")
		d.TriggerShutdown()
	})

	d.udsServer = command.NewUDSServer(d.socketPath, d.cmdHandler)
	d.udsDone = make(chan struct{})
	go func() {
		defer close(d.udsDone)
		if err := d.udsServer.Start(d.ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.GetLogger().WithError(err).Error("uds server failed")
		}
	}()

	logger.Info("daemon started successfully")
	return nil
}

func (d *Daemon) reporters() []engine.Reporter {
	ev := d.config.Events
	reporters := []engine.Reporter{
		engine.NewLogReporter(log.GetLogger().WithField("component", "classifier"), ev.LogDrops, ev.LogRatePerSec, ev.LogBurst),
	}
	if d.config.Metrics.Enabled {
		reporters = append(reporters, engine.NewMetricsReporter())
	}
	return reporters
}

// Stop performs graceful shutdown of all daemon components. It is safe to
// call more than once.
func (d *Daemon) Stop() {
	d.stopOnce.Do(d.stop)
}

func (d *Daemon) stop() {
	logger := log.GetLogger()
	logger.Info("initiating graceful shutdown")

	// Hand traffic back to the kernel before anything else.
	if d.hook != nil && d.hook.Registered() {
		if err := d.hook.Unregister(); err != nil {
			logger.WithError(err).Error("error unregistering hook")
		}
	}

	// The UDS server stops itself and removes the socket once ctx is done.
	d.cancel()
	if d.udsDone != nil {
		<-d.udsDone
	}

	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.metricsServer.Stop(shutdownCtx); err != nil {
			logger.WithError(err).Error("error stopping metrics server")
		}
		cancel()
	}

	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	if d.ownsPIDFile {
		if err := removePIDFile(d.pidFile); err != nil {
			logger.WithError(err).Error("error removing PID file")
		}
	}

	if d.engine != nil {
		s := d.engine.Stats()
		logger.WithFields(map[string]interface{}{
			"received": s.Received,
			"dropped":  s.Dropped,
		}).Info("daemon stopped gracefully")
	}
	log.Close()
}

// Run blocks until shutdown is triggered by SIGTERM/SIGINT, the
// daemon.shutdown command or TriggerShutdown. SIGHUP reloads configuration.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	log.GetLogger().Info("daemon running, waiting for signals or commands")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				log.GetLogger().WithField("signal", sig).Info("received shutdown signal")
				d.Stop()
				return nil

			case syscall.SIGHUP:
				if err := d.Reload(); err != nil {
					log.GetLogger().WithError(err).Error("failed to reload config")
				}
			}

		case <-d.shutdownChan:
			d.Stop()
			return nil

		case <-d.ctx.Done():
			d.Stop()
			return d.ctx.Err()
		}
	}
}

// Reload re-reads the configuration file and applies the log section.
// Everything else requires a restart and is only reported.
func (d *Daemon) Reload() error {
	logger := log.GetLogger().WithField("path", d.configPath)
	logger.Info("reloading configuration")

	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	old := d.config

	// A level change alone keeps the current outputs open.
	levelOnly := newConfig.Log
	levelOnly.Level = old.Log.Level
	if levelOnly == old.Log {
		if err := log.SetLevel(newConfig.Log.Level); err != nil {
			return fmt.Errorf("failed to set log level: %w", err)
		}
	} else if err := log.Init(newConfig.Log); err != nil {
		return fmt.Errorf("failed to reinitialize logging: %w", err)
	}
	old.Log = newConfig.Log

	var requiresRestart []string
	if newConfig.Intercept != old.Intercept {
		requiresRestart = append(requiresRestart, "intercept")
	}
	if !slices.Equal(newConfig.Classifier.WindowGate, old.Classifier.WindowGate) {
		requiresRestart = append(requiresRestart, "classifier.window_gate")
	}
	if newConfig.Metrics != old.Metrics {
		requiresRestart = append(requiresRestart, "metrics")
	}
	if newConfig.Events != old.Events {
		requiresRestart = append(requiresRestart, "events")
	}

	log.GetLogger().WithField("requires_restart", requiresRestart).Info("configuration reloaded")
	return nil
}

// TriggerShutdown requests a graceful shutdown from Run.
func (d *Daemon) TriggerShutdown() {
	d.shutdownOnce.Do(func() { close(d.shutdownChan) })
}
