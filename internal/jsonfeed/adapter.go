// Package jsonfeed collects events from third-party JSON event feeds.
package jsonfeed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/user/signalhub/internal/collector"
	"github.com/user/signalhub/internal/storage"
	"github.com/user/signalhub/pkg/logger"
)

// AdapterName is the scheduler_type written on every record this adapter
// produces.
const AdapterName = "json_events"

// Adapter polls the events_url configured on each JSON-platform community.
type Adapter struct {
	client *http.Client
	engine *collector.Engine
	log    zerolog.Logger
}

// New creates the adapter with a bounded per-request timeout.
func New(engine *collector.Engine, timeout time.Duration) *Adapter {
	return &Adapter{
		client: &http.Client{Timeout: timeout},
		engine: engine,
		log:    logger.With("jsonfeed"),
	}
}

func (a *Adapter) Name() string {
	return AdapterName
}

func (a *Adapter) Platform() storage.Platform {
	return storage.PlatformJSON
}

// UpdateCommunities marks every feed community as monitored. Feed communities
// only ever come from operator configuration, so there is nothing external to
// discover.
func (a *Adapter) UpdateCommunities(ctx context.Context, st *storage.Store) error {
	_, err := st.Communities().Update(ctx,
		[]storage.Filter{storage.Where("platform", storage.PlatformJSON)},
		storage.Fields{"monitored": true})
	return err
}

// feedEvent is one record of the external feed format.
type feedEvent struct {
	EventID     string `json:"event_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Location    string `json:"location"`
	SessionURL  string `json:"session_url"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

// Collect fetches and reconciles every configured feed. Fetch failures skip
// the community; a record with an unparsable timestamp skips only that
// record.
func (a *Adapter) Collect(ctx context.Context, st *storage.Store) error {
	communities, err := collector.ConfiguredCommunities(ctx, st, storage.PlatformJSON)
	if err != nil {
		return err
	}

	for i := range communities {
		community := &communities[i]
		if community.EventsURL == "" {
			a.log.Warn().Str("community", community.Name).Msg("No events URL configured, skipping community")
			continue
		}

		feed, err := a.fetch(ctx, community.EventsURL)
		if err != nil {
			a.log.Error().Err(err).Str("community", community.Name).Msg("Failed to fetch feed, skipping community")
			continue
		}

		raws := make([]collector.RawSignal, 0, len(feed))
		for _, ev := range feed {
			raw, err := a.rawFromFeedEvent(ev)
			if err != nil {
				a.log.Warn().Err(err).Str("community", community.Name).Str("event_id", ev.EventID).Msg("Malformed feed record, skipping record")
				continue
			}
			raws = append(raws, raw)
		}
		if err := a.engine.ProcessEvents(ctx, st, AdapterName, community, raws); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) fetch(ctx context.Context, url string) ([]feedEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	var feed []feedEvent
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to decode feed: %w", err)
	}
	return feed, nil
}

func (a *Adapter) rawFromFeedEvent(ev feedEvent) (collector.RawSignal, error) {
	start, err := parseFeedTime(ev.StartTime)
	if err != nil {
		return collector.RawSignal{}, fmt.Errorf("bad start_time %q: %w", ev.StartTime, err)
	}
	end, err := parseFeedTime(ev.EndTime)
	if err != nil {
		return collector.RawSignal{}, fmt.Errorf("bad end_time %q: %w", ev.EndTime, err)
	}

	return collector.RawSignal{
		ExternalID:            ev.EventID,
		Name:                  ev.Name,
		Description:           ev.Description,
		Location:              ev.Location,
		LocationWebSessionURL: collector.ExtractWebSessionURL(ev.Description),
		LocationSessionURL:    ev.SessionURL,
		StartTime:             start,
		EndTime:               &end,
	}, nil
}

// feedTimeLayouts are the timestamp shapes seen across feed providers.
var feedTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseFeedTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range feedTimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
