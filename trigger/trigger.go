package trigger

import (
	"context"
	"sync"
	"time"

	"DhammaFM/logger"
	"DhammaFM/model"
	"DhammaFM/repository"
	"DhammaFM/store"
)

// PlaybackHost receives the track a fired schedule selected. The playback
// coordinator implements it.
type PlaybackHost interface {
	HandleStart(trackID, audioURI, title string)
}

// Trigger reacts to schedule alarms: it picks the talk to play, hands it to
// the playback host and re-arms the alarm for next week. Errors stay inside
// the trigger; the alarm layer has nowhere to surface them.
type Trigger struct {
	tracks       repository.TrackRepository
	copies       repository.LocalCopyRepository
	schedules    repository.ScheduleRepository
	content      *store.ContentStore
	host         PlaybackHost
	connectivity Connectivity
	rearm        func(scheduleID string, weekday time.Weekday)
	timeout      time.Duration
}

func New(
	tracks repository.TrackRepository,
	copies repository.LocalCopyRepository,
	schedules repository.ScheduleRepository,
	content *store.ContentStore,
	host PlaybackHost,
	connectivity Connectivity,
	rearm func(scheduleID string, weekday time.Weekday),
) *Trigger {
	return &Trigger{
		tracks:       tracks,
		copies:       copies,
		schedules:    schedules,
		content:      content,
		host:         host,
		connectivity: connectivity,
		rearm:        rearm,
		timeout:      60 * time.Second,
	}
}

// Handle runs one fired alarm to completion. It always re-arms the alarm for
// the following week before releasing its completion window, whatever happens
// during track selection.
func (t *Trigger) Handle(scheduleID string, weekday time.Weekday) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	var once sync.Once
	release := func() { once.Do(cancel) }
	defer release()
	defer t.rearm(scheduleID, weekday)

	source := t.resolveSource(scheduleID)
	tracks, err := t.tracks.GetTracksBySource(source)
	if err != nil {
		logger.Error("failed to load tracks for schedule",
			logger.String("scheduleId", scheduleID), logger.ErrorField(err))
		return
	}
	if len(tracks) == 0 {
		logger.Warn("no tracks for scheduled playback",
			logger.String("source", string(source)))
		return
	}

	var track *model.Track
	var uri string
	if t.connectivity.Online(ctx) {
		track, uri = t.selectOnline(tracks)
	} else {
		track, uri = t.selectOffline(tracks)
	}
	if track == nil || uri == "" {
		logger.Warn("no playable track for schedule",
			logger.String("scheduleId", scheduleID),
			logger.String("source", string(source)))
		return
	}

	logger.Info("scheduled playback starting",
		logger.String("scheduleId", scheduleID),
		logger.String("trackId", track.ID))
	go t.host.HandleStart(track.ID, uri, track.Title)
}

// resolveSource looks the schedule up among the enabled ones. A missing
// schedule or unrecognized selector falls back to the evening feed.
func (t *Trigger) resolveSource(scheduleID string) model.TalkSource {
	sched, err := t.schedules.Get(scheduleID)
	if err != nil {
		logger.Error("failed to load schedule",
			logger.String("scheduleId", scheduleID), logger.ErrorField(err))
		return model.SourceEvening
	}
	if sched == nil || !sched.Enabled {
		return model.SourceEvening
	}
	return model.ParseTalkSource(sched.TalkSource)
}

// selectOnline picks the first unfinished track, playing the local copy when
// one exists and streaming otherwise.
func (t *Trigger) selectOnline(tracks []model.Track) (*model.Track, string) {
	track, err := t.tracks.FirstUnfinished(tracks)
	if err != nil {
		logger.Error("failed to pick unfinished track", logger.ErrorField(err))
		return nil, ""
	}
	if track == nil {
		return nil, ""
	}
	if path, ok := t.content.ResolveLocalPath(track.ID); ok {
		return track, path
	}
	return track, track.AudioURL
}

// selectOffline restricts the candidates to tracks with a local copy and never
// falls back to a remote URL.
func (t *Trigger) selectOffline(tracks []model.Track) (*model.Track, string) {
	ids, err := t.copies.AllTrackIDs()
	if err != nil {
		logger.Error("failed to list local copies", logger.ErrorField(err))
		return nil, ""
	}
	downloaded := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		downloaded[id] = struct{}{}
	}

	candidates := make([]model.Track, 0, len(ids))
	for _, tr := range tracks {
		if _, ok := downloaded[tr.ID]; ok {
			candidates = append(candidates, tr)
		}
	}
	if len(candidates) == 0 {
		return nil, ""
	}

	track, err := t.tracks.FirstUnfinished(candidates)
	if err != nil {
		logger.Error("failed to pick unfinished track", logger.ErrorField(err))
		return nil, ""
	}
	if track == nil {
		return nil, ""
	}
	path, ok := t.content.ResolveLocalPath(track.ID)
	if !ok {
		logger.Warn("local copy missing for offline playback",
			logger.String("trackId", track.ID))
		return nil, ""
	}
	return track, path
}
