// Package identity derives the two canonical keys used everywhere a song is
// referenced. The bare key names the logical song (source plus catalog id,
// or video id when no catalog id exists) and is what membership and
// duplicate checks operate on. The full key additionally pins the exact
// resolved stream variant and is what persisted payloads are keyed by.
package identity

import (
	"strings"

	"github.com/theviolentghost/StudySync-sub000/internal/structures"
)

// BareKey returns the logical-song key: "source:source_id" when a source id
// exists, otherwise "source:video_id".
func BareKey(id structures.SongID) string {
	if id.SourceID != "" {
		return string(id.Source) + ":" + id.SourceID
	}
	return string(id.Source) + ":" + id.VideoID
}

// FullKey returns the payload-variant key: "source:source_id:video_id" when
// a source id exists, otherwise "source:video_id". BareKey is always a
// prefix of FullKey.
func FullKey(id structures.SongID) string {
	if id.SourceID != "" {
		return string(id.Source) + ":" + id.SourceID + ":" + id.VideoID
	}
	return string(id.Source) + ":" + id.VideoID
}

// ValidateKey reports whether key is a well-formed full key: three non-empty
// colon-delimited segments, except for youtube and musi sources which may
// carry only two (video id only).
func ValidateKey(key string) bool {
	parts := strings.Split(key, ":")
	for _, p := range parts {
		if p == "" {
			return false
		}
	}

	switch len(parts) {
	case 3:
		return true
	case 2:
		src := structures.Source(parts[0])
		return src == structures.SourceYouTube || src == structures.SourceMusi
	default:
		return false
	}
}

// ParseKey splits a bare or full key back into a SongID. The second segment
// is the source id for three-segment keys and the video id for two-segment
// keys. Returns false for malformed keys.
func ParseKey(key string) (structures.SongID, bool) {
	if !ValidateKey(key) {
		return structures.SongID{}, false
	}

	parts := strings.Split(key, ":")
	id := structures.SongID{Source: structures.Source(parts[0])}
	if len(parts) == 3 {
		id.SourceID = parts[1]
		id.VideoID = parts[2]
	} else {
		id.VideoID = parts[1]
	}
	return id, true
}
