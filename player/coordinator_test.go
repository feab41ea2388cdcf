package player

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"DhammaFM/config"
	"DhammaFM/model"
	"DhammaFM/repository"
	"DhammaFM/store"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// fakeEngine records calls and lets tests drive state directly.
type fakeEngine struct {
	mu         sync.Mutex
	itemID     string
	itemURI    string
	playing    bool
	positionMs int64
	durationMs int64

	loads, plays, pauses, stops, clears int
	seeks                               []int64

	events chan Event
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{events: make(chan Event, 16)}
}

func (e *fakeEngine) Load(item Item, startMs int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.itemID = item.ID
	e.itemURI = item.URI
	e.positionMs = startMs
	e.loads++
	return nil
}

func (e *fakeEngine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = true
	e.plays++
	return nil
}

func (e *fakeEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = false
	e.pauses++
	return nil
}

func (e *fakeEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = false
	e.stops++
	return nil
}

func (e *fakeEngine) Clear() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.itemID = ""
	e.itemURI = ""
	e.clears++
	return nil
}

func (e *fakeEngine) SeekTo(ms int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.positionMs = ms
	e.seeks = append(e.seeks, ms)
	return nil
}

func (e *fakeEngine) PositionMs() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionMs
}

func (e *fakeEngine) DurationMs() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.durationMs
}

func (e *fakeEngine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

func (e *fakeEngine) CurrentItemID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.itemID
}

func (e *fakeEngine) Events() <-chan Event {
	return e.events
}

func (e *fakeEngine) set(fn func(*fakeEngine)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e)
}

func (e *fakeEngine) counts() (loads, plays, pauses int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loads, e.plays, e.pauses
}

type coordFixture struct {
	coord   *Coordinator
	engine  *fakeEngine
	tracks  repository.TrackRepository
	content *store.ContentStore
	audio   *httptest.Server
}

func newCoordFixture(t *testing.T) *coordFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Track{}, &model.TrackProgress{}, &model.LocalCopy{}))

	tracks := repository.NewGormTrackRepository(db)
	copies := repository.NewGormLocalCopyRepository(db)

	audio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("audio-bytes"))
	}))
	t.Cleanup(audio.Close)

	base := t.TempDir()
	content, err := store.NewContentStore(&config.Config{
		DownloadDir:  filepath.Join(base, "downloads"),
		CacheDir:     filepath.Join(base, "cache"),
		MaxAutoCache: 15,
	}, copies)
	require.NoError(t, err)

	engine := newFakeEngine()
	return &coordFixture{
		coord:   NewCoordinator(engine, tracks, content),
		engine:  engine,
		tracks:  tracks,
		content: content,
		audio:   audio,
	}
}

func (f *coordFixture) track(id string) *model.Track {
	return &model.Track{ID: id, Title: "Talk " + id, AudioURL: f.audio.URL + "/" + id + ".mp3", Source: string(model.SourceEvening)}
}

func TestSelectDoesNotTouchEngine(t *testing.T) {
	f := newCoordFixture(t)
	require.NoError(t, f.tracks.SaveProgress(&model.TrackProgress{
		TrackID: "a", CurrentTime: 42_000, Duration: 600_000, LastPlayed: 1,
	}))

	require.NoError(t, f.coord.Select(f.track("a")))

	loads, plays, _ := f.engine.counts()
	require.Zero(t, loads)
	require.Zero(t, plays)

	s := f.coord.State()
	require.Equal(t, "a", s.ViewedTrackID)
	require.Equal(t, int64(42_000), s.PositionMs)
	require.Equal(t, int64(600_000), s.DurationMs)
}

func TestSelectFinishedTrackShowsZero(t *testing.T) {
	f := newCoordFixture(t)
	require.NoError(t, f.tracks.MarkFinished("a", 600_000))

	require.NoError(t, f.coord.Select(f.track("a")))
	s := f.coord.State()
	require.Zero(t, s.PositionMs)
	require.Equal(t, int64(600_000), s.DurationMs)
}

func TestSelectPlayingTrackSyncsFromEngine(t *testing.T) {
	f := newCoordFixture(t)
	require.NoError(t, f.coord.Play(f.track("a")))
	f.engine.set(func(e *fakeEngine) { e.positionMs = 123_000; e.durationMs = 600_000 })

	require.NoError(t, f.coord.Select(f.track("a")))
	s := f.coord.State()
	require.Equal(t, int64(123_000), s.PositionMs)
	require.Equal(t, int64(600_000), s.DurationMs)
}

func TestPlayStartsAtSavedOffset(t *testing.T) {
	f := newCoordFixture(t)
	require.NoError(t, f.tracks.SaveProgress(&model.TrackProgress{
		TrackID: "a", CurrentTime: 42_000, Duration: 600_000, LastPlayed: 1,
	}))

	require.NoError(t, f.coord.Play(f.track("a")))
	require.Equal(t, int64(42_000), f.engine.PositionMs())
	require.True(t, f.engine.IsPlaying())
}

func TestPlayFinishedTrackStartsAtZero(t *testing.T) {
	f := newCoordFixture(t)
	require.NoError(t, f.tracks.MarkFinished("a", 600_000))

	require.NoError(t, f.coord.Play(f.track("a")))
	require.Zero(t, f.engine.PositionMs())
}

func TestPlayLoadedTrackResumesWithoutReload(t *testing.T) {
	f := newCoordFixture(t)
	track := f.track("a")
	require.NoError(t, f.coord.Play(track))
	f.engine.set(func(e *fakeEngine) { e.playing = false; e.positionMs = 90_000 })

	require.NoError(t, f.coord.Play(track))

	loads, plays, _ := f.engine.counts()
	require.Equal(t, 1, loads)
	require.Equal(t, 2, plays)
	// No seek back: position is wherever the engine left it.
	require.Equal(t, int64(90_000), f.engine.PositionMs())
}

func TestViewedPlayingSplit(t *testing.T) {
	f := newCoordFixture(t)
	trackA, trackB := f.track("a"), f.track("b")

	require.NoError(t, f.coord.Play(trackA))
	require.NoError(t, f.coord.Select(trackB))

	s := f.coord.State()
	require.Equal(t, "a", s.PlayingTrackID)
	require.Equal(t, "b", s.ViewedTrackID)

	// Toggling while viewing B starts B instead of silently pausing A.
	require.NoError(t, f.coord.TogglePlayPause())
	require.Equal(t, "b", f.engine.CurrentItemID())
	require.True(t, f.engine.IsPlaying())

	s = f.coord.State()
	require.Equal(t, "b", s.PlayingTrackID)
	require.Equal(t, "b", s.ViewedTrackID)
}

func TestToggleSameTrackPausesAndResumes(t *testing.T) {
	f := newCoordFixture(t)
	require.NoError(t, f.coord.Play(f.track("a")))

	require.NoError(t, f.coord.TogglePlayPause())
	require.False(t, f.engine.IsPlaying())
	require.NoError(t, f.coord.TogglePlayPause())
	require.True(t, f.engine.IsPlaying())

	loads, _, pauses := f.engine.counts()
	require.Equal(t, 1, loads)
	require.Equal(t, 1, pauses)
}

func TestSeekOnViewedOnlyTrackDoesNotMoveEngine(t *testing.T) {
	f := newCoordFixture(t)
	require.NoError(t, f.coord.Play(f.track("a")))
	require.NoError(t, f.coord.Select(f.track("b")))

	require.NoError(t, f.coord.SeekTo(200_000))

	f.engine.mu.Lock()
	seeks := len(f.engine.seeks)
	f.engine.mu.Unlock()
	require.Zero(t, seeks)
	require.Equal(t, int64(200_000), f.coord.State().PositionMs)
	require.Equal(t, "a", f.engine.CurrentItemID())
}

func TestSeekOnPlayingTrackMovesEngine(t *testing.T) {
	f := newCoordFixture(t)
	require.NoError(t, f.coord.Play(f.track("a")))

	require.NoError(t, f.coord.SeekTo(200_000))
	require.Equal(t, int64(200_000), f.engine.PositionMs())
}

func TestSkipForwardClampsToDuration(t *testing.T) {
	f := newCoordFixture(t)
	require.NoError(t, f.coord.Play(f.track("a")))
	f.engine.set(func(e *fakeEngine) { e.positionMs = 590_000; e.durationMs = 600_000 })

	require.NoError(t, f.coord.SkipForward())
	require.Equal(t, int64(600_000), f.engine.PositionMs())

	f.engine.set(func(e *fakeEngine) { e.positionMs = 5_000 })
	require.NoError(t, f.coord.SkipBackward())
	require.Zero(t, f.engine.PositionMs())
}

func TestPlayRemoteTriggersAutoCache(t *testing.T) {
	f := newCoordFixture(t)
	track := f.track("a")

	require.NoError(t, f.coord.Play(track))

	// The auto-cache side effect is fire-and-forget.
	require.Eventually(t, func() bool {
		_, ok := f.content.ResolveLocalPath("a")
		return ok
	}, 2*time.Second, 20*time.Millisecond)
}

func TestPlayLocalCopySkipsAutoCache(t *testing.T) {
	f := newCoordFixture(t)
	track := f.track("a")
	path, err := f.content.Download(context.Background(), track, nil, true)
	require.NoError(t, err)

	require.NoError(t, f.coord.Play(track))
	require.Equal(t, path, f.engine.itemURI)
}

func TestPauseEventPersistsProgress(t *testing.T) {
	f := newCoordFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.coord.Run(ctx)

	require.NoError(t, f.coord.Play(f.track("a")))
	f.engine.set(func(e *fakeEngine) { e.positionMs = 80_000; e.durationMs = 100_000 })

	f.engine.events <- Event{Kind: EventPlayingChanged, Playing: false}

	require.Eventually(t, func() bool {
		p, err := f.tracks.GetProgress("a")
		return err == nil && p != nil && p.CurrentTime == 80_000
	}, 2*time.Second, 20*time.Millisecond)

	p, err := f.tracks.GetProgress("a")
	require.NoError(t, err)
	// 20s remaining is beyond the finish threshold.
	require.False(t, p.Finished)
}

func TestNearEndSaveMarksFinished(t *testing.T) {
	f := newCoordFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.coord.Run(ctx)

	require.NoError(t, f.coord.Play(f.track("a")))
	f.engine.set(func(e *fakeEngine) { e.positionMs = 90_000; e.durationMs = 100_000 })

	f.engine.events <- Event{Kind: EventPlayingChanged, Playing: false}

	require.Eventually(t, func() bool {
		p, err := f.tracks.GetProgress("a")
		return err == nil && p != nil && p.Finished
	}, 2*time.Second, 20*time.Millisecond)
}

func TestEndedEventWritesFinishedRow(t *testing.T) {
	f := newCoordFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.coord.Run(ctx)

	require.NoError(t, f.coord.Play(f.track("a")))
	f.engine.set(func(e *fakeEngine) { e.positionMs = 100_000; e.durationMs = 100_000 })

	f.engine.events <- Event{Kind: EventEnded}

	require.Eventually(t, func() bool {
		p, err := f.tracks.GetProgress("a")
		return err == nil && p != nil && p.Finished && p.CurrentTime == p.Duration
	}, 2*time.Second, 20*time.Millisecond)
}

func TestResetProgressStopsLoadedTrack(t *testing.T) {
	f := newCoordFixture(t)
	require.NoError(t, f.coord.Play(f.track("a")))
	f.engine.set(func(e *fakeEngine) { e.positionMs = 50_000; e.durationMs = 100_000 })

	require.NoError(t, f.coord.ResetProgress("a"))

	require.False(t, f.engine.IsPlaying())
	require.Zero(t, f.engine.PositionMs())

	p, err := f.tracks.GetProgress("a")
	require.NoError(t, err)
	require.False(t, p.Finished)
	require.Zero(t, p.CurrentTime)

	s := f.coord.State()
	require.Zero(t, s.PositionMs)
	require.False(t, s.Playing)
}

func TestResetProgressOfOtherTrackLeavesEngineAlone(t *testing.T) {
	f := newCoordFixture(t)
	require.NoError(t, f.coord.Play(f.track("a")))

	require.NoError(t, f.coord.ResetProgress("b"))
	require.True(t, f.engine.IsPlaying())
}

func TestStopResetsSession(t *testing.T) {
	f := newCoordFixture(t)
	require.NoError(t, f.coord.Play(f.track("a")))

	require.NoError(t, f.coord.Stop())

	require.Empty(t, f.engine.CurrentItemID())
	s := f.coord.State()
	require.Empty(t, s.ViewedTrackID)
	require.Empty(t, s.PlayingTrackID)
	require.False(t, s.Playing)
}

func TestHandleStartUsesResolvedURI(t *testing.T) {
	f := newCoordFixture(t)
	require.NoError(t, f.tracks.SaveProgress(&model.TrackProgress{
		TrackID: "a", CurrentTime: 30_000, Duration: 600_000, LastPlayed: 1,
	}))

	f.coord.HandleStart("a", "/local/path.mp3", "Talk a")

	require.Equal(t, "a", f.engine.CurrentItemID())
	require.Equal(t, "/local/path.mp3", f.engine.itemURI)
	require.Equal(t, int64(30_000), f.engine.PositionMs())
	require.True(t, f.engine.IsPlaying())
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	f := newCoordFixture(t)
	ch, cancel := f.coord.Subscribe()
	defer cancel()

	require.NoError(t, f.coord.Play(f.track("a")))

	select {
	case s := <-ch:
		require.Equal(t, "a", s.PlayingTrackID)
	case <-time.After(time.Second):
		t.Fatal("no state snapshot received")
	}
}
