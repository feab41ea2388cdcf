package player

// EventKind discriminates engine event variants.
type EventKind int

const (
	// EventPlayingChanged fires when the engine starts or stops playing.
	EventPlayingChanged EventKind = iota
	// EventItemTransition fires when the engine switches loaded items.
	EventItemTransition
	// EventEnded fires at end-of-media.
	EventEnded
)

// Event is one discrete engine notification. All engine callbacks funnel
// through a single ordered channel consumed by the coordinator.
type Event struct {
	Kind    EventKind
	Playing bool   // EventPlayingChanged
	ItemID  string // EventItemTransition
}

// Item is what gets loaded into the audio engine.
type Item struct {
	ID    string
	URI   string
	Title string
}

// Engine abstracts the audio engine. Implementations must be safe for
// concurrent use; position and duration are reported in milliseconds.
type Engine interface {
	// Load replaces the loaded item and positions at startMs without playing.
	Load(item Item, startMs int64) error
	Play() error
	Pause() error
	// Stop halts playback but keeps the item loaded.
	Stop() error
	// Clear unloads the current item.
	Clear() error
	SeekTo(ms int64) error

	PositionMs() int64
	DurationMs() int64
	IsPlaying() bool
	// CurrentItemID returns the loaded item's id, or "" when nothing is loaded.
	CurrentItemID() string

	Events() <-chan Event
}
