package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/api"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/backend"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/config"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/database"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/errors"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/hardware"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/logger"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/point"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/recognizer"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/repository"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/syncer"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/websocket"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server owns every component of the gate node and shuts them down in
// reverse start order.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	hw       *hardware.Manager
	hub      *websocket.Hub
	uplink   *websocket.Uplink
	syncer   *syncer.Syncer
	entry    *point.EntryPoint
	exit     *point.ExitPoint
	httpSrv  *http.Server
	notifier *websocket.StatusNotifier

	events  repository.DeviceEventRepository
	gateOps repository.GateOperationRepository
	jobs    repository.SyncJobRepository

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("load config: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("init logger: %v\n", err)
		os.Exit(1)
	}

	server := NewServer(cfg)
	if err := server.Start(); err != nil {
		logger.Fatal("server start failed", zap.Error(err))
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("server stopped")
	logger.Cleanup()
}

func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		logger: logger.GetLogger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting parking gate node",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
		zap.String("source", s.cfg.Backend.Uplink.Source))

	if err := s.initDatabase(); err != nil {
		return err
	}
	if err := s.initComponents(); err != nil {
		return err
	}
	s.startServices()

	// hot reload applies only the safe subset: log level and rate table
	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("config file changed, applying reloadable settings",
			zap.String("log_level", newCfg.Log.Level))
		logger.SetLevel(newCfg.Log.Level)
		s.exit.SetRates(newCfg.Rates)
	})

	s.logger.Info("node started",
		zap.String("http", fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)))
	return nil
}

func (s *Server) initDatabase() error {
	if err := database.Init(&s.cfg.Database); err != nil {
		return errors.Wrap(err, errors.ErrDatabaseConnect, "init database")
	}
	if s.cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "migrate database")
		}
	}

	db := database.GetDB()
	s.jobs = repository.NewSyncJobRepository(db)
	s.events = repository.NewDeviceEventRepository(db)
	s.gateOps = repository.NewGateOperationRepository(db)
	return nil
}

func (s *Server) initComponents() error {
	s.hw = hardware.NewManagerFromConfig(s.cfg)
	s.hw.SetRepositories(s.events, s.gateOps)
	s.hw.InitDevices()

	rec, err := recognizer.New(s.cfg.OCR, s.cfg.Backend.ServerURL)
	if err != nil {
		return err
	}

	client := backend.NewClient(s.cfg.Backend)
	s.syncer = syncer.New(s.cfg.Sync, s.jobs, client)

	s.hub = websocket.NewHub(logger.WithModule("websocket"))
	s.uplink = websocket.NewUplink(s.cfg.Backend.Uplink)
	s.notifier = websocket.NewStatusNotifier(s.hub, s.uplink)

	s.entry = point.NewEntryPoint(s.cfg, s.hw, rec, client, s.syncer, s.notifier)
	s.exit = point.NewExitPoint(s.cfg, s.hw, client, s.syncer, s.notifier)

	router := api.NewRouter(api.Deps{
		Hardware: s.hw,
		Entry:    s.entry,
		Exit:     s.exit,
		Hub:      s.hub,
		SyncJobs: s.jobs,
		Events:   s.events,
		GateOps:  s.gateOps,
	})
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      router.Engine(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
	return nil
}

func (s *Server) startServices() {
	go s.hub.Run()
	s.uplink.Start(s.ctx)
	s.syncer.Start(s.ctx)
	s.hw.StartHealthMonitor(s.ctx, 30*time.Second, 2*time.Minute)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.notifier.PumpHardwareEvents(s.hw.Events(), s.ctx.Done())
	}()

	s.entry.StartTriggerLoop(s.ctx)
	s.exit.StartScannerLoop(s.ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server stopped", zap.Error(err))
		}
	}()
}

func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	sig := <-sigCh
	s.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
}

func (s *Server) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// stop accepting requests first so no new workflows start
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}

	s.cancel()
	s.syncer.Stop()
	s.uplink.Stop()
	s.hub.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		s.logger.Warn("shutdown timed out, forcing exit")
	}

	s.hw.Dispose()

	if err := database.Close(); err != nil {
		s.logger.Error("close database", zap.Error(err))
	}
	if err := logger.Sync(); err != nil {
		fmt.Printf("sync logs: %v\n", err)
	}
	return nil
}

func printVersion() {
	fmt.Printf("parking gate node\n")
	fmt.Printf("version: %s\n", Version)
	fmt.Printf("build time: %s\n", BuildTime)
	fmt.Printf("git commit: %s\n", GitCommit)
	fmt.Printf("go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
