package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roman-kulish/antenna-station/internal/antenna"
	"github.com/roman-kulish/antenna-station/internal/bus"
	"github.com/roman-kulish/antenna-station/internal/metrics"
	"github.com/roman-kulish/antenna-station/internal/station"
	"github.com/roman-kulish/antenna-station/internal/storage"
)

const (
	storageDir = "data"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	collector, err := metrics.NewCollector(nil)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	var store *storage.SqliteStore
	if config.Storage.Enabled {
		if store, err = createStorage(&config.Storage); err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error(fmt.Sprintf("failed to close storage: %s", err.Error()))
			}
		}()
	}

	var b bus.Bus
	if config.Bus.URL != "" {
		if b, err = bus.Connect(config.BusConfig(), bus.WithLogger(logger), bus.WithMetrics(collector)); err != nil {
			return fmt.Errorf("failed to connect to the bus: %w", err)
		}
		defer func() {
			if err := b.Close(); err != nil {
				logger.Error(fmt.Sprintf("failed to close bus: %s", err.Error()))
			}
		}()
	} else {
		logger.Warn("no bus configured, stations run in isolation")
	}

	group, err := createStations(config, b, store, collector, logger)
	if err != nil {
		return fmt.Errorf("failed to create stations: %w", err)
	}
	defer func() {
		if err := group.Close(); err != nil {
			logger.Error(fmt.Sprintf("failed to close stations: %s", err.Error()))
		}
	}()

	var console *Console
	if config.Settings.Console {
		console = NewConsole(group, os.Stdout, logger)
		console.Watch()
	}

	if err = startStations(ctx, group, logger); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)

	if config.Settings.MetricsAddress != "" {
		go func() {
			if err := collector.Serve(ctx, config.Settings.MetricsAddress, logger); err != nil {
				errCh <- err
			}
		}()
	}

	if console != nil {
		go func() {
			// stdin cannot be interrupted, the goroutine is left behind on shutdown
			if err := console.Run(ctx, os.Stdin); err != nil {
				errCh <- err
				return
			}
			cancel()
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil

	case err = <-errCh:
		return err
	}
}

func createStations(config *Config, b bus.Bus, store *storage.SqliteStore, collector *metrics.Collector, logger *slog.Logger) (*station.Group, error) {
	var stations []*station.Station
	for _, sc := range config.EnabledStations() {
		stationConfig, err := config.StationConfig(sc)
		if err != nil {
			return nil, err
		}

		stationMetrics := collector.Station(sc.Name)

		options := []func(*station.Station){
			station.WithLogger(logger),
			station.WithScanMetrics(stationMetrics),
		}
		if b != nil {
			options = append(options, station.WithBus(b))
		}
		if store != nil {
			options = append(options, station.WithRecorder(store))
		}
		if stationConfig.Role == station.RoleStation {
			link := antenna.NewLink(sc.AntennaConfig(),
				antenna.WithLogger(logger.With(slog.String("station", sc.Name))),
				antenna.WithMetrics(stationMetrics))
			options = append(options, station.WithLink(link))
		}

		s, err := station.New(stationConfig, options...)
		if err != nil {
			return nil, fmt.Errorf("creating station '%s': %w", sc.Name, err)
		}

		stations = append(stations, s)
	}

	return station.NewGroup(stations...), nil
}

// startStations starts every station. A station whose antenna cannot be
// opened keeps running without tuning.
func startStations(ctx context.Context, group *station.Group, logger *slog.Logger) error {
	for _, s := range group.Stations() {
		err := s.Start(ctx)

		var openErr *antenna.LinkOpenError
		switch {
		case err == nil:
		case errors.As(err, &openErr):
			logger.Warn("station is not ready", slog.String("station", s.Name()), slog.String("port", openErr.Port))
		default:
			return fmt.Errorf("starting station '%s': %w", s.Name(), err)
		}
	}

	return nil
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current working directory: %w", err)
	}

	var dbPath string
	if filepath.IsAbs(config.DataDirectory) {
		dbPath = config.DataDirectory
	} else if config.DataDirectory != "" {
		dbPath = filepath.Join(wd, config.DataDirectory)
	} else {
		dbPath = filepath.Join(wd, storageDir)
	}

	stat, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dbPath, err)
		}
		return nil, fmt.Errorf("storage directory '%s': %w", dbPath, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dbPath)
	}

	dbPath = filepath.Join(dbPath, fmt.Sprintf("rssi_session_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	return storage.NewSqliteStore(dbPath), nil
}
