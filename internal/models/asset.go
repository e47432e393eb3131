package models

import "time"

// AssetRecord is the snapshot of an upstream asset row as seen by the
// change-feed watcher. Several locator fields may carry the input; the
// eligibility check resolves them in order.
type AssetRecord struct {
	ID           string
	OwnerID      string
	HLSKey       string // direct object key of the source playlist
	HLSInputKey  string // legacy alias for HLSKey
	PlaylistURL  string // s3:// URL form of the playlist
	HasSubtitles bool

	Artifacts AssetArtifacts

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AssetArtifacts is the partial downstream update applied to an asset after
// a job completes. Empty fields are left untouched.
type AssetArtifacts struct {
	VTT            string
	SRT            string
	HLSMaster      string
	HLSPlaylist    string
	SubtitledVideo string
}
