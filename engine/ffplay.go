package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"DhammaFM/logger"
	"DhammaFM/player"
)

// FFplayEngine plays audio by shelling out to ffplay. ffplay offers no
// transport control over its CLI, so pause and seek restart the process at
// an offset, and position is tracked from the start offset plus wall clock.
// The player.Engine interface keeps it swappable for a richer backend.
type FFplayEngine struct {
	mu         sync.Mutex
	ffplayPath string

	item       player.Item
	loaded     bool
	durationMs int64

	cmd       *exec.Cmd
	gen       int // invalidates the waiter of a killed process
	playing   bool
	baseMs    int64 // position when the current segment started
	segStart  time.Time
	events    chan player.Event
}

// NewFFplayEngine creates an engine using the given ffplay binary.
func NewFFplayEngine(ffplayPath string) *FFplayEngine {
	return &FFplayEngine{
		ffplayPath: ffplayPath,
		events:     make(chan player.Event, 16),
	}
}

// Load replaces the loaded item and probes its duration. Playback does not
// start until Play.
func (e *FFplayEngine) Load(item player.Item, startMs int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.killLocked()
	e.item = item
	e.loaded = true
	e.baseMs = startMs
	e.durationMs = e.probeDuration(item.URI)

	e.emitLocked(player.Event{Kind: player.EventItemTransition, ItemID: item.ID})
	return nil
}

func (e *FFplayEngine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return fmt.Errorf("no item loaded")
	}
	if e.playing {
		return nil
	}
	return e.startLocked()
}

func (e *FFplayEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.playing {
		return nil
	}
	e.baseMs = e.positionLocked()
	e.killLocked()
	e.emitLocked(player.Event{Kind: player.EventPlayingChanged, Playing: false})
	return nil
}

func (e *FFplayEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.playing {
		e.baseMs = e.positionLocked()
		e.killLocked()
		e.emitLocked(player.Event{Kind: player.EventPlayingChanged, Playing: false})
	}
	return nil
}

func (e *FFplayEngine) Clear() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.killLocked()
	e.item = player.Item{}
	e.loaded = false
	e.baseMs = 0
	e.durationMs = 0
	return nil
}

func (e *FFplayEngine) SeekTo(ms int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ms < 0 {
		ms = 0
	}
	wasPlaying := e.playing
	if wasPlaying {
		e.killLocked()
	}
	e.baseMs = ms
	if wasPlaying {
		return e.startLocked()
	}
	return nil
}

func (e *FFplayEngine) PositionMs() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionLocked()
}

func (e *FFplayEngine) DurationMs() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.durationMs
}

func (e *FFplayEngine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

func (e *FFplayEngine) CurrentItemID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return ""
	}
	return e.item.ID
}

func (e *FFplayEngine) Events() <-chan player.Event {
	return e.events
}

// startLocked spawns ffplay at the current offset. Caller holds the lock.
func (e *FFplayEngine) startLocked() error {
	args := []string{
		"-nodisp",
		"-autoexit",
		"-loglevel", "quiet",
	}
	if e.baseMs > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.3f", float64(e.baseMs)/1000.0))
	}
	args = append(args, e.item.URI)

	cmd := exec.Command(e.ffplayPath, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffplay: %w", err)
	}

	e.cmd = cmd
	e.gen++
	gen := e.gen
	e.playing = true
	e.segStart = time.Now()
	e.emitLocked(player.Event{Kind: player.EventPlayingChanged, Playing: true})

	go func() {
		err := cmd.Wait()

		e.mu.Lock()
		defer e.mu.Unlock()
		if e.gen != gen {
			// A newer segment replaced this process; its exit is stale.
			return
		}
		e.cmd = nil
		e.playing = false
		if err != nil {
			logger.Warn("ffplay exited with error", logger.ErrorField(err))
			e.emitLocked(player.Event{Kind: player.EventPlayingChanged, Playing: false})
			return
		}
		// Natural exit via -autoexit means end of media.
		e.baseMs = e.durationMs
		e.emitLocked(player.Event{Kind: player.EventPlayingChanged, Playing: false})
		e.emitLocked(player.Event{Kind: player.EventEnded})
	}()
	return nil
}

// killLocked terminates the current process, if any. Caller holds the lock.
func (e *FFplayEngine) killLocked() {
	if e.cmd != nil && e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
	}
	e.cmd = nil
	e.gen++
	e.playing = false
}

func (e *FFplayEngine) positionLocked() int64 {
	pos := e.baseMs
	if e.playing {
		pos += time.Since(e.segStart).Milliseconds()
	}
	if e.durationMs > 0 && pos > e.durationMs {
		pos = e.durationMs
	}
	return pos
}

// emitLocked publishes an event without ever blocking the engine.
func (e *FFplayEngine) emitLocked(ev player.Event) {
	select {
	case e.events <- ev:
	default:
		logger.Warn("engine event dropped", logger.Int("kind", int(ev.Kind)))
	}
}

// probeDuration asks ffprobe for the media duration in milliseconds.
// Returns 0 when probing fails; progress saves skip unknown durations.
func (e *FFplayEngine) probeDuration(uri string) int64 {
	ffprobePath := strings.Replace(e.ffplayPath, "ffplay", "ffprobe", 1)

	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		uri,
	}

	cmd := exec.Command(ffprobePath, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		logger.Warn("ffprobe failed", logger.String("uri", uri), logger.ErrorField(err))
		return 0
	}

	var probeData struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out.Bytes(), &probeData); err != nil {
		return 0
	}
	seconds, err := strconv.ParseFloat(probeData.Format.Duration, 64)
	if err != nil {
		return 0
	}
	return int64(seconds * 1000)
}
