package collector

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/user/signalhub/internal/storage"
	"github.com/user/signalhub/pkg/logger"
)

// Engine reconciles the raw records fetched for one community against the
// store: classify, upsert, retire missing records, collapse duplicates.
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates the reconciliation engine.
func NewEngine() *Engine {
	return &Engine{log: logger.With("engine")}
}

// ProcessEvents runs one community's raw event records through the full
// reconciliation pipeline. A community without a derivable visibility fails
// closed: nothing is written and the error is logged, not returned, so the
// adapter's run continues with its other communities.
func (e *Engine) ProcessEvents(ctx context.Context, st *storage.Store, schedulerType string, community *storage.Community, raws []RawSignal) error {
	now := time.Now().UTC()
	seen := make(map[string]bool, len(raws))

	for _, raw := range raws {
		tags, description, err := Classify(raw, community)
		if err != nil {
			if errors.Is(err, ErrUnclassifiable) {
				e.log.Error().
					Str("community", community.Name).
					Str("adapter", schedulerType).
					Msg("Cannot determine event visibility, skipping community")
				return nil
			}
			return err
		}

		fields := storage.Fields{
			"external_id":              raw.ExternalID,
			"name":                     raw.Name,
			"description":              description,
			"session_image":            raw.SessionImage,
			"location":                 raw.Location,
			"location_web_session_url": raw.LocationWebSessionURL,
			"location_session_url":     raw.LocationSessionURL,
			"start_time":               raw.StartTime,
			"end_time":                 raw.EndTime,
			"community_id":             community.ID,
			"tags":                     joinTags(tags),
			"scheduler_type":           schedulerType,
			"created_at_external":      raw.CreatedAtExternal,
		}
		if raw.Status != "" {
			fields["status"] = raw.Status
		}
		if err := st.Events().Upsert(ctx, fields); err != nil {
			return err
		}
		seen[raw.ExternalID] = true
	}

	if err := CompleteMissingEvents(ctx, st, community.ID, schedulerType, seen, now); err != nil {
		return err
	}
	return ResolveDuplicates(ctx, st, community.ID)
}

// ProcessStreams reconciles one community's raw stream records. Streams skip
// duplicate resolution; their upstream source keys segments reliably.
func (e *Engine) ProcessStreams(ctx context.Context, st *storage.Store, schedulerType string, community *storage.Community, raws []RawSignal) error {
	now := time.Now().UTC()
	seen := make(map[string]bool, len(raws))

	for _, raw := range raws {
		tags, _, err := Classify(raw, community)
		if err != nil {
			if errors.Is(err, ErrUnclassifiable) {
				e.log.Error().
					Str("community", community.Name).
					Str("adapter", schedulerType).
					Msg("Cannot determine stream visibility, skipping community")
				return nil
			}
			return err
		}
		if raw.EndTime == nil {
			e.log.Warn().
				Str("community", community.Name).
				Str("external_id", raw.ExternalID).
				Msg("Stream segment without end time, skipping record")
			continue
		}

		fields := storage.Fields{
			"external_id":    raw.ExternalID,
			"name":           raw.Name,
			"start_time":     raw.StartTime,
			"end_time":       *raw.EndTime,
			"community_id":   community.ID,
			"tags":           joinTags(tags),
			"scheduler_type": schedulerType,
		}
		if err := st.Streams().Upsert(ctx, fields); err != nil {
			return err
		}
		seen[raw.ExternalID] = true
	}

	return CompleteMissingStreams(ctx, st, community.ID, schedulerType, seen, now)
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}
