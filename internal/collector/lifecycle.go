package collector

import (
	"context"
	"time"

	"github.com/user/signalhub/internal/storage"
)

// Cancelable reports whether the source would still be expected to report the
// record if it were valid: its end time, falling back to the start time when
// open-ended, has not passed yet.
func Cancelable(startTime time.Time, endTime *time.Time, now time.Time) bool {
	deadline := startTime
	if endTime != nil {
		deadline = *endTime
	}
	return deadline.After(now)
}

// CompleteMissingEvents retires the community's READY and ACTIVE events that
// the adapter no longer sees. A still-upcoming record silently dropped by the
// source is interpreted as finished, not deleted, so it moves to COMPLETED.
// Records already in the past are left untouched.
func CompleteMissingEvents(ctx context.Context, st *storage.Store, communityID, schedulerType string, seen map[string]bool, now time.Time) error {
	events, err := st.Events().ActiveOrReady(ctx, communityID, schedulerType)
	if err != nil {
		return err
	}
	for _, e := range events {
		if seen[e.ExternalID] {
			continue
		}
		if !Cancelable(e.StartTime, e.EndTime, now) {
			continue
		}
		_, err := st.Events().Update(ctx,
			[]storage.Filter{storage.Where("id", e.ID)},
			storage.Fields{"status": storage.StatusCompleted})
		if err != nil {
			return err
		}
	}
	return nil
}

// CompleteMissingStreams is CompleteMissingEvents for the streams table.
func CompleteMissingStreams(ctx context.Context, st *storage.Store, communityID, schedulerType string, seen map[string]bool, now time.Time) error {
	streams, err := st.Streams().ActiveOrReady(ctx, communityID, schedulerType)
	if err != nil {
		return err
	}
	for _, s := range streams {
		if seen[s.ExternalID] {
			continue
		}
		end := s.EndTime
		if !Cancelable(s.StartTime, &end, now) {
			continue
		}
		_, err := st.Streams().Update(ctx,
			[]storage.Filter{storage.Where("id", s.ID)},
			storage.Fields{"status": storage.StatusCompleted})
		if err != nil {
			return err
		}
	}
	return nil
}
