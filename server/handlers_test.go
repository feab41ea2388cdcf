package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"DhammaFM/config"
	"DhammaFM/feed"
	"DhammaFM/model"
	"DhammaFM/player"
	"DhammaFM/repository"
	"DhammaFM/scheduler"
	"DhammaFM/store"
)

// stubEngine satisfies player.Engine without touching any audio backend.
type stubEngine struct {
	item    player.Item
	loaded  bool
	playing bool
	posMs   int64
	events  chan player.Event
}

func newStubEngine() *stubEngine {
	return &stubEngine{events: make(chan player.Event, 8)}
}

func (e *stubEngine) Load(item player.Item, startMs int64) error {
	e.item, e.loaded, e.posMs = item, true, startMs
	return nil
}
func (e *stubEngine) Play() error {
	e.playing = true
	e.events <- player.Event{Kind: player.EventPlayingChanged, Playing: true}
	return nil
}
func (e *stubEngine) Pause() error {
	e.playing = false
	e.events <- player.Event{Kind: player.EventPlayingChanged, Playing: false}
	return nil
}
func (e *stubEngine) Stop() error {
	e.playing = false
	e.events <- player.Event{Kind: player.EventPlayingChanged, Playing: false}
	return nil
}
func (e *stubEngine) Clear() error {
	e.item, e.loaded, e.playing = player.Item{}, false, false
	return nil
}
func (e *stubEngine) SeekTo(ms int64) error { e.posMs = ms; return nil }
func (e *stubEngine) PositionMs() int64     { return e.posMs }
func (e *stubEngine) DurationMs() int64     { return 0 }
func (e *stubEngine) IsPlaying() bool       { return e.playing }
func (e *stubEngine) CurrentItemID() string {
	if !e.loaded {
		return ""
	}
	return e.item.ID
}
func (e *stubEngine) Events() <-chan player.Event { return e.events }

type apiFixture struct {
	srv    *httptest.Server
	tracks repository.TrackRepository
	copies repository.LocalCopyRepository
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	dir := t.TempDir()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(dir, "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&model.Track{}, &model.TrackProgress{}, &model.LocalCopy{}, &model.Schedule{}))

	audio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("audio-bytes"))
	}))
	t.Cleanup(audio.Close)

	cfg := &config.Config{
		DownloadDir:    filepath.Join(dir, "downloads"),
		CacheDir:       filepath.Join(dir, "cache"),
		MaxAutoCache:   15,
		EveningFeedURL: audio.URL + "/evening.rss",
		MorningFeedURL: audio.URL + "/morning.rss",
	}

	tracks := repository.NewGormTrackRepository(gdb)
	copies := repository.NewGormLocalCopyRepository(gdb)
	schedules := repository.NewGormScheduleRepository(gdb)

	content, err := store.NewContentStore(cfg, copies)
	require.NoError(t, err)

	coordinator := player.NewCoordinator(newStubEngine(), tracks, content)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go coordinator.Run(ctx)
	schedSvc := scheduler.NewService(schedules, scheduler.NewTimerAlarmer(true),
		func(string, time.Weekday) {})

	api := NewAPIHandler(tracks, copies, feed.NewService(cfg, tracks), content,
		coordinator, schedSvc)
	srv := httptest.NewServer(NewRouter(api))
	t.Cleanup(srv.Close)

	f := &apiFixture{srv: srv, tracks: tracks, copies: copies}
	require.NoError(t, tracks.ReplaceTracks(model.SourceEvening, []model.Track{
		{ID: "e1", Title: "Evening One", AudioURL: audio.URL + "/e1.mp3",
			PubDateTimestamp: 200, Source: string(model.SourceEvening)},
		{ID: "e2", Title: "Evening Two", AudioURL: audio.URL + "/e2.mp3",
			PubDateTimestamp: 100, Source: string(model.SourceEvening)},
	}))
	require.NoError(t, tracks.ReplaceTracks(model.SourceMorning, []model.Track{
		{ID: "m1", Title: "Morning One", AudioURL: audio.URL + "/m1.mp3",
			PubDateTimestamp: 150, Source: string(model.SourceMorning)},
	}))
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestGetTracks(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/api/tracks", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tracks []model.Track
	decodeJSON(t, resp, &tracks)
	assert.Len(t, tracks, 3)
	assert.Equal(t, "e1", tracks[0].ID) // newest first
}

func TestGetTracksFilteredBySource(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/api/tracks?source=MORNING", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tracks []model.Track
	decodeJSON(t, resp, &tracks)
	require.Len(t, tracks, 1)
	assert.Equal(t, "m1", tracks[0].ID)
}

func TestRefreshFailureReturns502(t *testing.T) {
	f := newAPIFixture(t)

	// The fixture's feed URLs serve raw bytes, not RSS, so parsing fails.
	resp := f.do(t, http.MethodPost, "/api/refresh", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestProgressRoundTrip(t *testing.T) {
	f := newAPIFixture(t)
	require.NoError(t, f.tracks.SaveProgress(&model.TrackProgress{
		TrackID: "e1", CurrentTime: 42_000, Duration: 100_000,
	}))

	resp := f.do(t, http.MethodGet, "/api/tracks/e1/progress", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var progress model.TrackProgress
	decodeJSON(t, resp, &progress)
	assert.Equal(t, int64(42_000), progress.CurrentTime)

	resp = f.do(t, http.MethodDelete, "/api/tracks/e1/progress", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/tracks/e1/progress", nil)
	decodeJSON(t, resp, &progress)
	assert.Equal(t, int64(0), progress.CurrentTime)
	assert.False(t, progress.Finished)
}

func TestProgressUnknownTrackIsZero(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/api/tracks/ghost/progress", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var progress model.TrackProgress
	decodeJSON(t, resp, &progress)
	assert.Equal(t, int64(0), progress.CurrentTime)
}

func TestDownloadLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/tracks/e1/download", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/downloads", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []downloadEntry
	decodeJSON(t, resp, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "e1", entries[0].TrackID)
	assert.Equal(t, "MANUAL", entries[0].State)
	assert.Equal(t, "Evening One", entries[0].Title)

	resp = f.do(t, http.MethodDelete, "/api/downloads/e1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/downloads", nil)
	decodeJSON(t, resp, &entries)
	assert.Empty(t, entries)
}

func TestDownloadUnknownTrack404(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/tracks/ghost/download", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestScheduleLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/schedules", scheduleRequest{
		Time: "06:30", Days: []int{1, 3}, Enabled: true, TalkSource: "MORNING",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sched model.Schedule
	decodeJSON(t, resp, &sched)
	require.NotEmpty(t, sched.ID)

	resp = f.do(t, http.MethodPut, fmt.Sprintf("/api/schedules/%s", sched.ID), scheduleRequest{
		Time: "07:00", Days: []int{2}, Enabled: true, TalkSource: "MORNING",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodPost, fmt.Sprintf("/api/schedules/%s/enabled", sched.ID),
		map[string]bool{"enabled": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/schedules", nil)
	var all []model.Schedule
	decodeJSON(t, resp, &all)
	require.Len(t, all, 1)
	assert.Equal(t, "07:00", all[0].Time)
	assert.False(t, all[0].Enabled)

	resp = f.do(t, http.MethodDelete, fmt.Sprintf("/api/schedules/%s", sched.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/schedules", nil)
	decodeJSON(t, resp, &all)
	assert.Empty(t, all)
}

func TestCreateScheduleDefaultsToEveryDay(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/schedules", scheduleRequest{
		Time: "06:30", Enabled: false,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sched model.Schedule
	decodeJSON(t, resp, &sched)
	assert.Len(t, sched.Days, 7)
}

func TestCreateScheduleRejectsBadTime(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/schedules", scheduleRequest{
		Time: "25:99", Days: []int{1}, Enabled: true,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPlayerSelectAndState(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/player/select", playerRequest{TrackID: "e2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state player.State
	decodeJSON(t, resp, &state)
	assert.Equal(t, "e2", state.ViewedTrackID)
	assert.False(t, state.Playing)

	resp = f.do(t, http.MethodGet, "/api/player/state", nil)
	decodeJSON(t, resp, &state)
	assert.Equal(t, "e2", state.ViewedTrackID)
}

func TestPlayerSelectUnknownTrack404(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/player/select", playerRequest{TrackID: "ghost"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPlayerPlayAndStop(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/player/play", playerRequest{TrackID: "e1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state player.State
	decodeJSON(t, resp, &state)
	assert.Equal(t, "e1", state.PlayingTrackID)

	// The playing flag follows the engine's event, not the request.
	require.Eventually(t, func() bool {
		resp := f.do(t, http.MethodGet, "/api/player/state", nil)
		var s player.State
		decodeJSON(t, resp, &s)
		return s.Playing
	}, 2*time.Second, 20*time.Millisecond)

	resp = f.do(t, http.MethodPost, "/api/player/stop", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &state)
	assert.Empty(t, state.PlayingTrackID)
}

func TestCORSPreflight(t *testing.T) {
	f := newAPIFixture(t)

	req, err := http.NewRequest(http.MethodOptions, f.srv.URL+"/api/tracks", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
