package model

// TalkSource identifies one of the two upstream talk collections.
type TalkSource string

const (
	SourceEvening TalkSource = "EVENING"
	SourceMorning TalkSource = "MORNING"
)

// AllSources lists every talk source in canonical order.
func AllSources() []TalkSource {
	return []TalkSource{SourceEvening, SourceMorning}
}

// ParseTalkSource maps a stored selector value to a TalkSource. Unrecognized
// values fall back to the evening collection.
func ParseTalkSource(v string) TalkSource {
	switch TalkSource(v) {
	case SourceEvening, SourceMorning:
		return TalkSource(v)
	default:
		return SourceEvening
	}
}

// DisplayName returns the human-readable name of the collection.
func (s TalkSource) DisplayName() string {
	switch s {
	case SourceMorning:
		return "Morning Talks"
	default:
		return "Evening Talks"
	}
}

// Track is one catalog entry from a talk feed. Rows are replaced wholesale
// on each refresh, never partially mutated.
type Track struct {
	ID               string `gorm:"primaryKey" json:"id"`
	Title            string `json:"title"`
	Link             string `json:"link"`
	PubDate          string `json:"pubDate"`
	PubDateTimestamp int64  `gorm:"index" json:"pubDateTimestamp"`
	AudioURL         string `json:"audioUrl"`
	Description      string `json:"description"`
	DurationMs       *int64 `json:"durationMs,omitempty"`
	Source           string `gorm:"index" json:"source"`
}

// TableName sets the table name for GORM.
func (Track) TableName() string {
	return "tracks"
}
