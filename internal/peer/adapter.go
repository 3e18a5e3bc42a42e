// Package peer collects events exported by other instances of this system,
// turning their public read endpoint into a local source.
package peer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/user/signalhub/internal/collector"
	"github.com/user/signalhub/internal/federation"
	"github.com/user/signalhub/internal/storage"
	"github.com/user/signalhub/pkg/logger"
)

// AdapterName is the scheduler_type written on every record this adapter
// produces.
const AdapterName = "peer_events"

// Adapter follows remote instances. Each peer community carries the remote
// instance's base URL in events_url and must be named exactly like the
// community on the remote side; only that community's records are imported.
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
		log:    logger.With("peer"),
	}
}

func (a *Adapter) Name() string {
	return AdapterName
}

func (a *Adapter) Platform() storage.Platform {
	return storage.PlatformPeer
}

// UpdateCommunities marks every peer community as monitored. Peers only come
// from operator configuration.
func (a *Adapter) UpdateCommunities(ctx context.Context, st *storage.Store) error {
	_, err := st.Communities().Update(ctx,
		[]storage.Filter{storage.Where("platform", storage.PlatformPeer)},
		storage.Fields{"monitored": true})
	return err
}

// Collect fetches each followed instance's exported event list and imports
// the records of the matching community. Remote tags are discarded; records
// are reclassified locally against the peer community's own configuration.
// The remote lifecycle status is carried over as-is.
func (a *Adapter) Collect(ctx context.Context, st *storage.Store) error {
	communities, err := collector.ConfiguredCommunities(ctx, st, storage.PlatformPeer)
	if err != nil {
		return err
	}

	for i := range communities {
		community := &communities[i]
		if community.EventsURL == "" {
			a.log.Warn().Str("community", community.Name).Msg("No events URL configured, skipping community")
			continue
		}

		records, err := a.fetch(ctx, community.EventsURL)
		if err != nil {
			a.log.Error().Err(err).Str("community", community.Name).Msg("Failed to fetch peer events, skipping community")
			continue
		}

		var raws []collector.RawSignal
		for _, rec := range records {
			if rec.CommunityName != community.Name {
				continue
			}
			raw, err := rawFromRecord(rec)
			if err != nil {
				a.log.Warn().Err(err).Str("community", community.Name).Str("id", rec.ID).Msg("Malformed peer record, skipping record")
				continue
			}
			raws = append(raws, raw)
		}

		// Remote records already passed the remote platform filter.
		tagged := *community
		if !tagged.HasTag("resonite") {
			tagged.Tags = strings.Join(append(storage.SplitTags(tagged.Tags), "resonite"), ",")
		}
		if err := a.engine.ProcessEvents(ctx, st, AdapterName, &tagged, raws); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) fetch(ctx context.Context, baseURL string) ([]federation.Record, error) {
	url := strings.TrimSuffix(baseURL, "/") + "/v2/events"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("peer returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return federation.DecodeJSON(body)
}

func rawFromRecord(rec federation.Record) (collector.RawSignal, error) {
	if rec.ID == "" {
		return collector.RawSignal{}, fmt.Errorf("record without id")
	}
	start, err := federation.ParseTime(federation.V2, rec.StartTime)
	if err != nil {
		return collector.RawSignal{}, fmt.Errorf("bad start_time %q: %w", rec.StartTime, err)
	}
	var end *time.Time
	if rec.EndTime != "" {
		t, err := federation.ParseTime(federation.V2, rec.EndTime)
		if err != nil {
			return collector.RawSignal{}, fmt.Errorf("bad end_time %q: %w", rec.EndTime, err)
		}
		end = &t
	}

	return collector.RawSignal{
		ExternalID:            rec.ID,
		Name:                  rec.Title,
		Description:           rec.Description,
		SessionImage:          rec.SessionImage,
		Location:              rec.Location,
		LocationWebSessionURL: rec.LocationWebSessionURL,
		LocationSessionURL:    rec.LocationSessionURL,
		StartTime:             start,
		EndTime:               end,
		Status:                storage.EventStatus(rec.Status),
	}, nil
}
