// Package systems hosts the engine's long-running subsystems: the
// download worker pool and the playback engine, wired together over a
// shared playlist repository.
package systems

import (
	"fmt"

	"github.com/theviolentghost/StudySync-sub000/internal/library"
	"github.com/theviolentghost/StudySync-sub000/internal/logger"
	"github.com/theviolentghost/StudySync-sub000/internal/media"
	"github.com/theviolentghost/StudySync-sub000/internal/player"
	"github.com/theviolentghost/StudySync-sub000/internal/store"
	"github.com/theviolentghost/StudySync-sub000/internal/structures"
)

// Systems bundles the subsystems and their shared collaborators.
type Systems struct {
	Config   *structures.Config
	Store    store.Store
	Repo     *library.Repository
	Download *DownloadSystem
	Player   *PlayerSystem
}

// New builds the full engine on top of an open store. Default playlists
// are ensured and the membership cache is built before anything starts.
func New(cfg *structures.Config, st store.Store, cacheDir string) (*Systems, error) {
	repo := library.NewRepository(st)
	if err := repo.EnsureDefaults(); err != nil {
		return nil, fmt.Errorf("failed to initialize playlists: %w", err)
	}

	resolver := media.NewClient(cfg.ResolverBaseURL)

	output, err := player.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio output: %w", err)
	}

	playerSys := NewPlayerSystem(cfg, repo, resolver, output, cacheDir)
	download := NewDownloadSystem(repo, resolver, cfg.MaxConcurrentDownloads)
	download.SetSongDownloadedCallback(func(song *structures.Song) {
		playerSys.SendAction(structures.SongDownloadedAction{Song: song})
	})
	playerSys.SetDownloadRequestCallback(func(id structures.SongID, opts *structures.DownloadOptions) {
		download.RequestDownload(id, opts)
	})

	return &Systems{
		Config:   cfg,
		Store:    st,
		Repo:     repo,
		Download: download,
		Player:   playerSys,
	}, nil
}

// Start launches every subsystem.
func (s *Systems) Start() error {
	if err := s.Download.Start(); err != nil {
		return err
	}
	if err := s.Player.Start(); err != nil {
		return err
	}
	logger.Info("All systems started")
	return nil
}

// Stop shuts the subsystems down in reverse start order and closes the
// store.
func (s *Systems) Stop() {
	s.Player.Stop()
	s.Download.Stop()
	if err := s.Store.Close(); err != nil {
		logger.Warn("Failed to close store: %v", err)
	}
	logger.Info("All systems stopped")
}
