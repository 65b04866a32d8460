package constants

import "time"

// Download queue constants
const (
	DefaultDownloadConcurrency = 2
	DownloadQueueSize          = 1000

	// How long a finished download keeps its 100% progress entry around so
	// observers can render the completed state before it disappears.
	ProgressCompleteLinger = 850 * time.Millisecond

	// Synthetic progress ramp shown before the first real sample arrives.
	FakeProgressMinTarget   = 15.0
	FakeProgressMaxTarget   = 65.0
	FakeProgressMinInterval = 140 * time.Millisecond
	FakeProgressMaxInterval = 480 * time.Millisecond

	// Weight of the real transfer fraction in the blended progress value.
	RealProgressWeight = 0.75
)

// Player constants
const (
	HistoryLimit = 100

	// Skipping back within this many seconds of the track start goes to the
	// previous track; past it, the current track restarts.
	PreviousRestartThreshold = 5 * time.Second

	PlayerUpdateInterval = 100 * time.Millisecond
	DefaultSeekSeconds   = 5
	VolumeStep           = 0.05
)

// Playlist constants
const (
	PlaylistImageLimit = 4
	RecentPlaylistCap  = 50
)

// Network constants
const (
	HTTPRequestTimeout = 30 * time.Second
	DownloadTimeout    = 10 * time.Minute
)
