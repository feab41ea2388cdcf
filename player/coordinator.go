package player

import (
	"context"
	"sync"
	"time"

	"DhammaFM/logger"
	"DhammaFM/model"
	"DhammaFM/repository"
	"DhammaFM/store"
)

const saveInterval = 5 * time.Second

// State is a snapshot of the playback session for the control surface.
// ViewedTrackID and PlayingTrackID may differ: a user can inspect one
// track's metadata while another keeps playing.
type State struct {
	ViewedTrackID  string `json:"viewedTrackId"`
	ViewedTitle    string `json:"viewedTitle"`
	PlayingTrackID string `json:"playingTrackId"`
	Playing        bool   `json:"playing"`
	PositionMs     int64  `json:"positionMs"`
	DurationMs     int64  `json:"durationMs"`
}

// Coordinator is the active-session controller. It owns no persisted entity
// of its own; it reads and writes the track catalog and triggers the content
// store's auto-cache.
type Coordinator struct {
	engine  Engine
	tracks  repository.TrackRepository
	content *store.ContentStore

	mu         sync.Mutex
	viewed     *model.Track
	playing    *model.Track
	positionMs int64
	durationMs int64
	isPlaying  bool
	saveCancel context.CancelFunc

	subsMu sync.Mutex
	subs   map[chan State]struct{}

	now func() time.Time
}

// NewCoordinator creates a coordinator over the given engine and stores.
func NewCoordinator(engine Engine, tracks repository.TrackRepository, content *store.ContentStore) *Coordinator {
	return &Coordinator{
		engine:  engine,
		tracks:  tracks,
		content: content,
		subs:    make(map[chan State]struct{}),
		now:     time.Now,
	}
}

// Run consumes engine events until ctx is done. Exactly one Run loop may be
// active; it is the only consumer of the engine's event channel.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.stopSaveLoop()
			c.saveProgressNow()
			return
		case ev, ok := <-c.engine.Events():
			if !ok {
				c.stopSaveLoop()
				return
			}
			c.handleEvent(ev)
		}
	}
}

func (c *Coordinator) handleEvent(ev Event) {
	switch ev.Kind {
	case EventPlayingChanged:
		c.mu.Lock()
		c.isPlaying = ev.Playing
		c.mu.Unlock()
		if ev.Playing {
			c.startSaveLoop()
		} else {
			c.stopSaveLoop()
			c.saveProgressNow()
		}
		c.syncFromEngine()
	case EventItemTransition:
		if ev.ItemID != "" {
			track, err := c.tracks.GetTrack(ev.ItemID)
			if err != nil {
				logger.Warn("track lookup failed on item transition",
					logger.String("trackId", ev.ItemID), logger.ErrorField(err))
			} else if track != nil {
				c.mu.Lock()
				c.viewed = track
				c.playing = track
				c.mu.Unlock()
			}
		}
		c.syncFromEngine()
	case EventEnded:
		c.markCurrentFinished()
		c.stopSaveLoop()
		c.mu.Lock()
		c.isPlaying = false
		c.mu.Unlock()
	}
	c.broadcast()
}

// Select sets the viewed track without touching the engine. When the viewed
// track is the one loaded in the engine, the displayed position syncs live;
// otherwise it comes from saved progress.
func (c *Coordinator) Select(track *model.Track) error {
	var positionMs, durationMs int64

	if c.engine.CurrentItemID() == track.ID {
		positionMs = c.engine.PositionMs()
		if d := c.engine.DurationMs(); d > 0 {
			durationMs = d
		}
	} else {
		progress, err := c.tracks.GetProgress(track.ID)
		if err != nil {
			return err
		}
		if progress != nil && !progress.Finished {
			positionMs = progress.CurrentTime
		}
		if progress != nil {
			durationMs = progress.Duration
		}
	}

	c.mu.Lock()
	c.viewed = track
	c.positionMs = positionMs
	c.durationMs = durationMs
	c.mu.Unlock()
	c.broadcast()
	return nil
}

// Play starts or resumes a track. An already-loaded track resumes without a
// reload or seek. Streaming from the remote URL kicks off a fire-and-forget
// auto-cache whose failure never affects playback.
func (c *Coordinator) Play(track *model.Track) error {
	localPath, hasLocal := c.content.ResolveLocalPath(track.ID)
	uri := track.AudioURL
	if hasLocal {
		uri = localPath
	}

	if c.engine.CurrentItemID() == track.ID {
		if !c.engine.IsPlaying() {
			if err := c.engine.Play(); err != nil {
				return err
			}
		}
	} else {
		var startMs int64
		progress, err := c.tracks.GetProgress(track.ID)
		if err != nil {
			logger.Warn("progress lookup failed, starting from zero",
				logger.String("trackId", track.ID), logger.ErrorField(err))
		} else if progress != nil && !progress.Finished {
			startMs = progress.CurrentTime
		}

		if err := c.engine.Load(Item{ID: track.ID, URI: uri, Title: track.Title}, startMs); err != nil {
			return err
		}
		if err := c.engine.Play(); err != nil {
			return err
		}

		if !hasLocal {
			trackCopy := *track
			go func() {
				if _, err := c.content.AutoCache(context.Background(), &trackCopy); err != nil {
					logger.Warn("auto-cache failed",
						logger.String("trackId", trackCopy.ID), logger.ErrorField(err))
				}
			}()
		}
	}

	c.mu.Lock()
	c.viewed = track
	c.playing = track
	c.mu.Unlock()
	c.broadcast()
	return nil
}

// TogglePlayPause toggles the engine, except that a viewed track differing
// from the loaded one reinterprets the toggle as "start playing the viewed
// track".
func (c *Coordinator) TogglePlayPause() error {
	c.mu.Lock()
	viewed := c.viewed
	c.mu.Unlock()

	if viewed != nil && c.engine.CurrentItemID() != viewed.ID {
		return c.Play(viewed)
	}
	if c.engine.IsPlaying() {
		return c.engine.Pause()
	}
	return c.engine.Play()
}

// SeekTo seeks the engine only when the viewed track is the loaded one;
// otherwise it just moves the displayed position.
func (c *Coordinator) SeekTo(ms int64) error {
	c.mu.Lock()
	viewed := c.viewed
	c.mu.Unlock()

	if viewed != nil && c.engine.CurrentItemID() == viewed.ID {
		if err := c.engine.SeekTo(ms); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.positionMs = ms
	c.mu.Unlock()
	c.broadcast()
	return nil
}

// SkipForward jumps 30 seconds ahead, clamped to the duration.
func (c *Coordinator) SkipForward() error {
	pos := c.engine.PositionMs() + 30_000
	if d := c.engine.DurationMs(); d > 0 && pos > d {
		pos = d
	}
	return c.SeekTo(pos)
}

// SkipBackward jumps 10 seconds back, clamped to zero.
func (c *Coordinator) SkipBackward() error {
	pos := c.engine.PositionMs() - 10_000
	if pos < 0 {
		pos = 0
	}
	return c.SeekTo(pos)
}

// ResetProgress writes a zeroed progress row. A loaded track is stopped and
// rewound; a merely viewed track has its displayed position reset.
func (c *Coordinator) ResetProgress(trackID string) error {
	if err := c.tracks.ResetProgress(trackID); err != nil {
		return err
	}

	if c.engine.CurrentItemID() == trackID {
		if err := c.engine.Stop(); err != nil {
			logger.Warn("engine stop failed during progress reset", logger.ErrorField(err))
		}
		if err := c.engine.SeekTo(0); err != nil {
			logger.Warn("engine seek failed during progress reset", logger.ErrorField(err))
		}
	}

	c.mu.Lock()
	if c.viewed != nil && c.viewed.ID == trackID {
		c.positionMs = 0
		c.isPlaying = false
	}
	c.mu.Unlock()
	c.broadcast()
	return nil
}

// Stop clears the engine and resets the session to a neutral baseline.
func (c *Coordinator) Stop() error {
	c.stopSaveLoop()
	c.saveProgressNow()
	if err := c.engine.Stop(); err != nil {
		return err
	}
	if err := c.engine.Clear(); err != nil {
		return err
	}

	c.mu.Lock()
	c.viewed = nil
	c.playing = nil
	c.positionMs = 0
	c.durationMs = 0
	c.isPlaying = false
	c.mu.Unlock()
	c.broadcast()
	return nil
}

// HandleStart services a scheduled start request. The audio URI was already
// resolved by the trigger; the track starts at its saved offset.
func (c *Coordinator) HandleStart(trackID, audioURI, title string) {
	var startMs int64
	progress, err := c.tracks.GetProgress(trackID)
	if err != nil {
		logger.Warn("progress lookup failed for scheduled start",
			logger.String("trackId", trackID), logger.ErrorField(err))
	} else if progress != nil && !progress.Finished {
		startMs = progress.CurrentTime
	}

	if err := c.engine.Load(Item{ID: trackID, URI: audioURI, Title: title}, startMs); err != nil {
		logger.Error("scheduled playback load failed",
			logger.String("trackId", trackID), logger.ErrorField(err))
		return
	}
	if err := c.engine.Play(); err != nil {
		logger.Error("scheduled playback start failed",
			logger.String("trackId", trackID), logger.ErrorField(err))
		return
	}

	if track, err := c.tracks.GetTrack(trackID); err == nil && track != nil {
		c.mu.Lock()
		c.viewed = track
		c.playing = track
		c.mu.Unlock()
	}
	c.broadcast()

	logger.Info("scheduled playback started",
		logger.String("trackId", trackID), logger.String("title", title))
}

// State returns a snapshot of the session.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := State{
		Playing:    c.isPlaying,
		PositionMs: c.positionMs,
		DurationMs: c.durationMs,
	}
	if c.viewed != nil {
		s.ViewedTrackID = c.viewed.ID
		s.ViewedTitle = c.viewed.Title
	}
	if c.playing != nil {
		s.PlayingTrackID = c.playing.ID
	}
	return s
}

// Subscribe returns a channel receiving state snapshots and a cancel
// function. Slow subscribers drop snapshots rather than block the session.
func (c *Coordinator) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 8)
	c.subsMu.Lock()
	c.subs[ch] = struct{}{}
	c.subsMu.Unlock()

	cancel := func() {
		c.subsMu.Lock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
		c.subsMu.Unlock()
	}
	return ch, cancel
}

func (c *Coordinator) broadcast() {
	s := c.State()
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

// syncFromEngine refreshes the displayed position from the engine when the
// loaded item is the one being viewed.
func (c *Coordinator) syncFromEngine() {
	id := c.engine.CurrentItemID()
	if id == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.viewed != nil && c.viewed.ID != id {
		return
	}
	c.positionMs = c.engine.PositionMs()
	if d := c.engine.DurationMs(); d > 0 {
		c.durationMs = d
	}
}

// startSaveLoop begins the periodic progress writer. Restarting replaces the
// previous loop. Cancellation is cooperative, checked between ticks.
func (c *Coordinator) startSaveLoop() {
	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.saveCancel != nil {
		c.saveCancel()
	}
	c.saveCancel = cancel
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(saveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.saveProgressNow()
			}
		}
	}()
}

func (c *Coordinator) stopSaveLoop() {
	c.mu.Lock()
	if c.saveCancel != nil {
		c.saveCancel()
		c.saveCancel = nil
	}
	c.mu.Unlock()
}

// saveProgressNow persists a progress row for the track loaded in the
// engine. LastPlayed is wall clock; concurrent writers race last-write-wins,
// acceptable at this cadence.
func (c *Coordinator) saveProgressNow() {
	id := c.engine.CurrentItemID()
	duration := c.engine.DurationMs()
	if id == "" || duration <= 0 {
		return
	}
	current := c.engine.PositionMs()

	err := c.tracks.SaveProgress(&model.TrackProgress{
		TrackID:     id,
		CurrentTime: current,
		Duration:    duration,
		Finished:    model.IsFinished(current, duration),
		LastPlayed:  c.now().UnixMilli(),
	})
	if err != nil {
		logger.Warn("progress save failed",
			logger.String("trackId", id), logger.ErrorField(err))
	}
}

// markCurrentFinished writes the unconditional end-of-media row.
func (c *Coordinator) markCurrentFinished() {
	id := c.engine.CurrentItemID()
	duration := c.engine.DurationMs()
	if id == "" || duration <= 0 {
		return
	}
	if err := c.tracks.MarkFinished(id, duration); err != nil {
		logger.Warn("mark finished failed",
			logger.String("trackId", id), logger.ErrorField(err))
	}
}
