package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"DhammaFM/feed"
	"DhammaFM/logger"
	"DhammaFM/model"
	"DhammaFM/player"
	"DhammaFM/repository"
	"DhammaFM/scheduler"
	"DhammaFM/store"
)

// APIHandler handles all API requests.
type APIHandler struct {
	tracks      repository.TrackRepository
	copies      repository.LocalCopyRepository
	feed        *feed.Service
	content     *store.ContentStore
	coordinator *player.Coordinator
	scheduler   *scheduler.Service
}

// NewAPIHandler creates the handler over the application services.
func NewAPIHandler(
	tracks repository.TrackRepository,
	copies repository.LocalCopyRepository,
	feedSvc *feed.Service,
	content *store.ContentStore,
	coordinator *player.Coordinator,
	schedSvc *scheduler.Service,
) *APIHandler {
	return &APIHandler{
		tracks:      tracks,
		copies:      copies,
		feed:        feedSvc,
		content:     content,
		coordinator: coordinator,
		scheduler:   schedSvc,
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			logger.Error("failed to write response", logger.ErrorField(err))
		}
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// GetTracksHandler lists the catalog, optionally filtered by source.
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	var (
		tracks []model.Track
		err    error
	)
	if raw := r.URL.Query().Get("source"); raw != "" {
		tracks, err = h.tracks.GetTracksBySource(model.ParseTalkSource(raw))
	} else {
		tracks, err = h.tracks.GetAllTracks()
	}
	if err != nil {
		logger.Error("failed to list tracks", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "failed to list tracks")
		return
	}
	respondJSON(w, http.StatusOK, tracks)
}

// RefreshHandler re-fetches every feed. A failed refresh returns 502 so the
// client can offer a retry; tracks from sources that did succeed are already
// persisted.
func (h *APIHandler) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.feed.RefreshAll(r.Context()); err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

func (h *APIHandler) GetProgressHandler(w http.ResponseWriter, r *http.Request) {
	trackID := mux.Vars(r)["id"]
	progress, err := h.tracks.GetProgress(trackID)
	if err != nil {
		logger.Error("failed to load progress", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "failed to load progress")
		return
	}
	if progress == nil {
		progress = &model.TrackProgress{TrackID: trackID}
	}
	respondJSON(w, http.StatusOK, progress)
}

// ResetProgressHandler clears a track's position and finished mark.
func (h *APIHandler) ResetProgressHandler(w http.ResponseWriter, r *http.Request) {
	trackID := mux.Vars(r)["id"]
	if err := h.coordinator.ResetProgress(trackID); err != nil {
		logger.Error("failed to reset progress", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "failed to reset progress")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

type downloadEntry struct {
	TrackID      string `json:"trackId"`
	Title        string `json:"title"`
	State        string `json:"state"`
	DownloadedAt int64  `json:"downloadedAt"`
}

// GetDownloadsHandler lists every local copy, manual downloads first.
func (h *APIHandler) GetDownloadsHandler(w http.ResponseWriter, r *http.Request) {
	manual, err := h.copies.ManualDownloads()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list downloads")
		return
	}
	cached, err := h.copies.AutoCached()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list downloads")
		return
	}

	entries := make([]downloadEntry, 0, len(manual)+len(cached))
	for _, c := range append(manual, cached...) {
		entry := downloadEntry{
			TrackID:      c.TrackID,
			State:        c.State().String(),
			DownloadedAt: c.DownloadedAt,
		}
		if track, err := h.tracks.GetTrack(c.TrackID); err == nil && track != nil {
			entry.Title = track.Title
		}
		entries = append(entries, entry)
	}
	respondJSON(w, http.StatusOK, entries)
}

// DownloadTrackHandler performs a manual download, converting an existing
// auto-cached copy in place.
func (h *APIHandler) DownloadTrackHandler(w http.ResponseWriter, r *http.Request) {
	trackID := mux.Vars(r)["id"]
	track, err := h.tracks.GetTrack(trackID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load track")
		return
	}
	if track == nil {
		respondError(w, http.StatusNotFound, "track not found")
		return
	}

	path, err := h.content.Download(r.Context(), track, nil, true)
	if err != nil {
		logger.Error("manual download failed",
			logger.String("trackId", trackID), logger.ErrorField(err))
		respondError(w, http.StatusBadGateway, "download failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"trackId": trackID, "path": path})
}

func (h *APIHandler) RemoveDownloadHandler(w http.ResponseWriter, r *http.Request) {
	trackID := mux.Vars(r)["id"]
	if err := h.content.RemoveDownload(trackID); err != nil {
		logger.Error("failed to remove download",
			logger.String("trackId", trackID), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "failed to remove download")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

type scheduleRequest struct {
	Time       string `json:"time"`
	Days       []int  `json:"days"`
	Enabled    bool   `json:"enabled"`
	TalkSource string `json:"talkSource"`
}

func (h *APIHandler) GetSchedulesHandler(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.scheduler.GetAll()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list schedules")
		return
	}
	respondJSON(w, http.StatusOK, schedules)
}

func (h *APIHandler) CreateScheduleHandler(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Days) == 0 {
		// No day selection means every day.
		req.Days = []int{0, 1, 2, 3, 4, 5, 6}
	}

	sched, err := h.scheduler.Create(req.Time, req.Days, req.Enabled,
		model.ParseTalkSource(req.TalkSource))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, sched)
}

func (h *APIHandler) UpdateScheduleHandler(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sched := &model.Schedule{
		ID:         mux.Vars(r)["id"],
		Time:       req.Time,
		Days:       model.DayList(req.Days),
		Enabled:    req.Enabled,
		TalkSource: string(model.ParseTalkSource(req.TalkSource)),
	}
	if err := h.scheduler.Update(sched); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sched)
}

func (h *APIHandler) DeleteScheduleHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.Delete(mux.Vars(r)["id"]); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete schedule")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *APIHandler) SetScheduleEnabledHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.scheduler.SetEnabled(mux.Vars(r)["id"], req.Enabled); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

type playerRequest struct {
	TrackID    string `json:"trackId"`
	PositionMs int64  `json:"positionMs"`
}

func (h *APIHandler) trackFromRequest(w http.ResponseWriter, r *http.Request) *model.Track {
	var req playerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TrackID == "" {
		respondError(w, http.StatusBadRequest, "trackId required")
		return nil
	}
	track, err := h.tracks.GetTrack(req.TrackID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load track")
		return nil
	}
	if track == nil {
		respondError(w, http.StatusNotFound, "track not found")
		return nil
	}
	return track
}

func (h *APIHandler) SelectTrackHandler(w http.ResponseWriter, r *http.Request) {
	track := h.trackFromRequest(w, r)
	if track == nil {
		return
	}
	if err := h.coordinator.Select(track); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.coordinator.State())
}

func (h *APIHandler) PlayTrackHandler(w http.ResponseWriter, r *http.Request) {
	track := h.trackFromRequest(w, r)
	if track == nil {
		return
	}
	if err := h.coordinator.Play(track); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.coordinator.State())
}

func (h *APIHandler) TogglePlayPauseHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.coordinator.TogglePlayPause(); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.coordinator.State())
}

func (h *APIHandler) SeekHandler(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.coordinator.SeekTo(req.PositionMs); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.coordinator.State())
}

func (h *APIHandler) SkipForwardHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.coordinator.SkipForward(); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.coordinator.State())
}

func (h *APIHandler) SkipBackwardHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.coordinator.SkipBackward(); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.coordinator.State())
}

func (h *APIHandler) StopHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.coordinator.Stop(); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.coordinator.State())
}

func (h *APIHandler) PlayerStateHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.coordinator.State())
}
