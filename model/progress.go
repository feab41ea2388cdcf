package model

// FinishThresholdMs is how close to the end a position must be for the track
// to count as finished.
const FinishThresholdMs int64 = 15_000

// TrackProgress records playback progress for one track. One row per track
// id, upserted by the playback coordinator.
type TrackProgress struct {
	TrackID     string `gorm:"primaryKey" json:"trackId"`
	CurrentTime int64  `json:"currentTime"` // ms
	Duration    int64  `json:"duration"`    // ms
	Finished    bool   `json:"finished"`
	LastPlayed  int64  `json:"lastPlayed"` // epoch ms
}

// TableName sets the table name for GORM.
func (TrackProgress) TableName() string {
	return "track_progress"
}

// IsFinished reports whether a position is within the finish threshold of
// the track's end. A non-positive duration never counts as finished.
func IsFinished(currentMs, durationMs int64) bool {
	return durationMs > 0 && durationMs-currentMs <= FinishThresholdMs
}
