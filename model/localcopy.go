package model

// CopyState tags the two mutually exclusive states of a LocalCopy.
type CopyState int

const (
	// CopyManual is a user-initiated download. Never evicted automatically.
	CopyManual CopyState = iota
	// CopyAutoCached is a system-managed cache entry, bounded in count and
	// evicted oldest-first.
	CopyAutoCached
)

// LocalCopy records an on-disk audio file for a track. At most one row per
// track id: manual and auto-cached are states of the same record, not
// separate rows. A manual download replaces an auto-cache entry for the
// same track.
type LocalCopy struct {
	TrackID      string `gorm:"primaryKey" json:"trackId"`
	FilePath     string `gorm:"index" json:"filePath"`
	DownloadedAt int64  `gorm:"index" json:"downloadedAt"` // epoch ms
	Manual       bool   `json:"manual"`
}

// TableName sets the table name for GORM.
func (LocalCopy) TableName() string {
	return "local_copies"
}

// State returns the tagged state of the record.
func (c LocalCopy) State() CopyState {
	if c.Manual {
		return CopyManual
	}
	return CopyAutoCached
}

func (s CopyState) String() string {
	if s == CopyManual {
		return "MANUAL"
	}
	return "AUTO_CACHED"
}
