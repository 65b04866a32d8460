package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/theviolentghost/StudySync-sub000/internal/config"
	"github.com/theviolentghost/StudySync-sub000/internal/logger"
	"github.com/theviolentghost/StudySync-sub000/internal/store"
	"github.com/theviolentghost/StudySync-sub000/internal/systems"
)

const version = "0.1.0"

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help message")
		showFiles   = flag.Bool("files", false, "Show file locations")
		clearCache  = flag.Bool("clear-cache", false, "Clear cached audio and the library database")
		showVersion = flag.Bool("version", false, "Show version")
		debugMode   = flag.Bool("debug", false, "Enable debug logging")
	)

	flag.Parse()

	if *showHelp {
		fmt.Println("Usage: studysync-music [OPTIONS]")
		fmt.Println("\nHeadless music playback engine: manages playlists, downloads")
		fmt.Println("and gapless queue playback against a streaming resolver.")
		fmt.Println("\nOptions:")
		flag.PrintDefaults()
		return
	}

	if *showVersion {
		fmt.Printf("studysync-music v%s\n", version)
		return
	}

	configDir, cacheDir, dataDir := getDirectories()

	if *showFiles {
		fmt.Println("# studysync-music file locations:")
		fmt.Printf("  Config: %s\n", configDir)
		fmt.Printf("  Cache:  %s\n", cacheDir)
		fmt.Printf("  Data:   %s\n", dataDir)
		fmt.Printf("  Logs:   %s\n", filepath.Join(dataDir, "studysync-music.log"))
		return
	}

	if *clearCache {
		fmt.Println("Clearing cache...")
		if err := os.RemoveAll(cacheDir); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to clear cache: %v\n", err)
			os.Exit(1)
		}
		dbPath := filepath.Join(dataDir, "library.db")
		if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Failed to remove database: %v\n", err)
		}
		fmt.Println("Cache cleared successfully")
		return
	}

	logFile := filepath.Join(dataDir, "studysync-music.log")
	if err := initLogging(logFile, *debugMode); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.CloseLogger()

	configPath := filepath.Join(configDir, "config.toml")
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Warn("Failed to load config, using defaults: %v", err)
		cfg = config.Default()

		if err := config.Save(cfg, configPath); err != nil {
			logger.Warn("Failed to save default config: %v", err)
		} else {
			logger.Info("Created default config at: %s", configPath)
		}
	} else {
		logger.Debug("Configuration loaded from: %s", configPath)
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = filepath.Join(cacheDir, "downloads")
	}
	os.MkdirAll(cfg.DownloadDir, 0755)

	db, err := store.OpenSQLite(filepath.Join(dataDir, "library.db"))
	if err != nil {
		logger.Fatal("Failed to open library database: %v", err)
	}

	engine, err := systems.New(cfg, db, cacheDir)
	if err != nil {
		db.Close()
		logger.Fatal("Failed to initialize systems: %v", err)
	}

	if err := engine.Start(); err != nil {
		logger.Fatal("Failed to start systems: %v", err)
	}

	fmt.Println("studysync-music running. Press Ctrl+C to stop.")
	logger.Info("studysync-music v%s started", version)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("Shutting down...")
	engine.Stop()
	logger.Info("Shutdown complete")
}

func getDirectories() (config, cache, data string) {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		config = filepath.Join(xdgConfig, "studysync-music")
	} else if home, err := os.UserHomeDir(); err == nil {
		config = filepath.Join(home, ".config", "studysync-music")
	}

	if xdgCache := os.Getenv("XDG_CACHE_HOME"); xdgCache != "" {
		cache = filepath.Join(xdgCache, "studysync-music")
	} else if home, err := os.UserHomeDir(); err == nil {
		cache = filepath.Join(home, ".cache", "studysync-music")
	}

	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		data = filepath.Join(xdgData, "studysync-music")
	} else if home, err := os.UserHomeDir(); err == nil {
		data = filepath.Join(home, ".local", "share", "studysync-music")
	}

	os.MkdirAll(config, 0755)
	os.MkdirAll(cache, 0755)
	os.MkdirAll(data, 0755)

	return
}

func initLogging(logFile string, debugMode bool) error {
	logLevel := logger.INFO
	if debugMode {
		logLevel = logger.DEBUG
	}

	if err := logger.Init(logFile, logLevel, debugMode); err != nil {
		return err
	}

	logger.Info("Logger initialized with debug mode: %v", debugMode)
	return nil
}
