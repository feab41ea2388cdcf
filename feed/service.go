package feed

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"DhammaFM/config"
	"DhammaFM/logger"
	"DhammaFM/model"
	"DhammaFM/repository"

	"github.com/mmcdole/gofeed"
)

var htmlTags = regexp.MustCompile(`<[^>]*>`)

// Service fetches the talk feeds and refreshes the track catalog.
type Service struct {
	client *http.Client
	parser *gofeed.Parser
	tracks repository.TrackRepository
	urls   map[model.TalkSource]string
}

// NewService creates a feed service using the feed URLs from cfg.
func NewService(cfg *config.Config, tracks repository.TrackRepository) *Service {
	return &Service{
		client: &http.Client{Timeout: 30 * time.Second},
		parser: gofeed.NewParser(),
		tracks: tracks,
		urls: map[model.TalkSource]string{
			model.SourceEvening: cfg.EveningFeedURL,
			model.SourceMorning: cfg.MorningFeedURL,
		},
	}
}

// Fetch downloads and parses one source's feed. Items without an audio
// enclosure are dropped; the result is sorted newest first.
func (s *Service) Fetch(ctx context.Context, source model.TalkSource) ([]model.Track, error) {
	url, ok := s.urls[source]
	if !ok || url == "" {
		return nil, fmt.Errorf("no feed URL configured for source %s", source)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed for %s: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch feed for %s: status %d", source, resp.StatusCode)
	}

	parsed, err := s.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed for %s: %w", source, err)
	}

	tracks := make([]model.Track, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if track, ok := trackFromItem(item, source); ok {
			tracks = append(tracks, track)
		}
	}

	sort.SliceStable(tracks, func(i, j int) bool {
		return tracks[i].PubDateTimestamp > tracks[j].PubDateTimestamp
	})
	return tracks, nil
}

// Refresh fetches one source and replaces its catalog entries.
func (s *Service) Refresh(ctx context.Context, source model.TalkSource) (int, error) {
	tracks, err := s.Fetch(ctx, source)
	if err != nil {
		return 0, err
	}
	if err := s.tracks.ReplaceTracks(source, tracks); err != nil {
		return 0, err
	}
	logger.Info("catalog refreshed",
		logger.String("source", string(source)),
		logger.Int("tracks", len(tracks)))
	return len(tracks), nil
}

// RefreshAll refreshes every source. Sources that succeed are persisted even
// when another source fails.
func (s *Service) RefreshAll(ctx context.Context) error {
	var failed bool
	for _, source := range model.AllSources() {
		if _, err := s.Refresh(ctx, source); err != nil {
			logger.Warn("catalog refresh failed",
				logger.String("source", string(source)),
				logger.ErrorField(err))
			failed = true
		}
	}
	if failed {
		return fmt.Errorf("failed to refresh some sources")
	}
	return nil
}

// trackFromItem converts a feed item to a catalog track. Returns false when
// the item has no audio enclosure.
func trackFromItem(item *gofeed.Item, source model.TalkSource) (model.Track, bool) {
	var audioURL string
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" {
			audioURL = enc.URL
			break
		}
	}
	if audioURL == "" {
		return model.Track{}, false
	}

	// Identity: trimmed GUID when present, else the audio URL verbatim.
	id := strings.TrimSpace(item.GUID)
	if id == "" {
		id = audioURL
	}

	// Unparseable publish dates default to timestamp 0; the raw string is
	// preserved for display.
	var pubTimestamp int64
	if item.PublishedParsed != nil {
		pubTimestamp = item.PublishedParsed.UnixMilli()
	}

	title := item.Title
	if title == "" {
		title = "Untitled Talk"
	}

	return model.Track{
		ID:               id,
		Title:            title,
		Link:             item.Link,
		PubDate:          item.Published,
		PubDateTimestamp: pubTimestamp,
		AudioURL:         audioURL,
		Description:      stripHTML(item.Description),
		DurationMs:       durationMs(item),
		Source:           string(source),
	}, true
}

func stripHTML(text string) string {
	return strings.TrimSpace(htmlTags.ReplaceAllString(text, ""))
}

// durationMs converts the itunes:duration field (whole seconds) to
// milliseconds. Nil when absent or unparseable.
func durationMs(item *gofeed.Item) *int64 {
	if item.ITunesExt == nil || item.ITunesExt.Duration == "" {
		return nil
	}
	seconds, err := strconv.ParseInt(strings.TrimSpace(item.ITunesExt.Duration), 10, 64)
	if err != nil {
		return nil
	}
	ms := seconds * 1000
	return &ms
}
