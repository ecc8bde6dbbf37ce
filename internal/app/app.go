package app

import (
	"fmt"
	"net/http"

	"frserver/internal/bus"
	"frserver/internal/coins"
	"frserver/internal/config"
	"frserver/internal/detect"
	"frserver/internal/identity/sqlite"
	"frserver/internal/logger"
	"frserver/internal/routes"
	"frserver/internal/storage"
	"frserver/internal/worker"
)

type App struct {
	config      *config.Config
	logger      *logger.Logger
	db          *sqlite.DB
	store       *sqlite.IdentityStore
	bus         *bus.Bus
	catalog     *coins.Catalog
	photos      *storage.PhotoStore
	faceWorkers []*worker.FaceWorker
	coinWorkers []*worker.CoinWorker
}

// NewApp wires the whole pipeline: config, logger, identity store, bus,
// catalog, and one detector instance per worker.
func NewApp() (*App, error) {
	cfg := config.Load()
	log := logger.NewLogger(cfg)

	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open identity database: %w", err)
	}

	store, err := sqlite.NewIdentityStore(db, cfg.MatchThreshold, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity store: %w", err)
	}

	catalog, err := coins.LoadCatalog(cfg.CoinCatalogPath)
	if err != nil {
		log.Warning("Could not load coin catalog: %v - coin recognition will match nothing", err)
		catalog = coins.NewCatalog(nil)
	}

	b := bus.New(cfg.BusCapacity)
	photos := storage.NewPhotoStore(cfg.PhotoDirectory, log)

	app := &App{
		config:  cfg,
		logger:  log,
		db:      db,
		store:   store,
		bus:     b,
		catalog: catalog,
		photos:  photos,
	}

	for i := 0; i < cfg.FaceWorkers; i++ {
		detector, err := detect.NewFaceDetector(cfg.FaceModelPath, cfg.FaceConfigPath, cfg.EmbedderModelPath, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create face detector %d: %w", i, err)
		}
		app.faceWorkers = append(app.faceWorkers, worker.NewFaceWorker(i, b, detector, detector, store, photos, cfg, log))
	}

	for i := 0; i < cfg.CoinWorkers; i++ {
		detector, err := detect.NewCoinDetector(cfg.CoinModelPath, cfg.CoinConfigPath, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create coin detector %d: %w", i, err)
		}
		app.coinWorkers = append(app.coinWorkers, worker.NewCoinWorker(i, b, detector, catalog, cfg, log))
	}

	return app, nil
}

// Run starts the worker pools and serves HTTP until the listener fails.
func (a *App) Run() error {
	for _, w := range a.faceWorkers {
		go w.Run()
	}
	for _, w := range a.coinWorkers {
		go w.Run()
	}

	router := routes.SetupRoutes(a.bus, a.store, a.config, a.logger)

	a.logger.Info("🚀 Recognition stream server")
	a.logger.Info("📍 URL: http://localhost:%d", a.config.Port)
	a.logger.Info("🗄  Identities: %s", a.config.DBPath)
	a.logger.Info("🪙  Coin catalog: %d entries", a.catalog.Size())
	a.logger.Info("🤖 Workers: %d face, %d coin", a.config.FaceWorkers, a.config.CoinWorkers)

	return http.ListenAndServe(fmt.Sprintf(":%d", a.config.Port), router)
}

// Close shuts the bus (worker loops exit) and closes the database.
func (a *App) Close() error {
	a.bus.Close()
	return a.db.Close()
}
