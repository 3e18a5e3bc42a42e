package collector

import (
	"context"
	"testing"
	"time"

	"github.com/user/signalhub/internal/storage"
	"github.com/user/signalhub/pkg/logger"
)

func setupStore(t *testing.T) *storage.Store {
	t.Helper()
	logger.Init("error", "")
	db, err := storage.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("NewDatabase failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db.Store()
}

func seedCommunity(t *testing.T, st *storage.Store, tags string) *storage.Community {
	t.Helper()
	community, err := st.Communities().Upsert(context.Background(), storage.Fields{
		"external_id": "guild-1",
		"platform":    storage.PlatformDiscord,
		"name":        "Test Guild",
		"tags":        tags,
		"monitored":   true,
		"configured":  true,
	})
	if err != nil {
		t.Fatalf("community upsert failed: %v", err)
	}
	return community
}

func seedEvent(t *testing.T, st *storage.Store, communityID, externalID string, start time.Time, end *time.Time, fields storage.Fields) {
	t.Helper()
	all := storage.Fields{
		"external_id":    externalID,
		"name":           "Meetup",
		"start_time":     start,
		"end_time":       end,
		"community_id":   communityID,
		"tags":           "public,resonite",
		"scheduler_type": "discord_events",
	}
	for k, v := range fields {
		all[k] = v
	}
	if err := st.Events().Add(context.Background(), all); err != nil {
		t.Fatalf("event add failed: %v", err)
	}
}

func eventStatus(t *testing.T, st *storage.Store, externalID string) storage.EventStatus {
	t.Helper()
	event, err := st.Events().FindOne(context.Background(), storage.Where("external_id", externalID))
	if err != nil || event == nil {
		t.Fatalf("event %s not found: %v", externalID, err)
	}
	return event.Status
}

func TestCancelable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	if !Cancelable(past, &future, now) {
		t.Error("Expected event with future end time to be cancelable")
	}
	if Cancelable(past.Add(-time.Hour), &past, now) {
		t.Error("Expected event with past end time not to be cancelable")
	}
	if !Cancelable(future, nil, now) {
		t.Error("Expected open-ended event with future start to be cancelable")
	}
	if Cancelable(past, nil, now) {
		t.Error("Expected open-ended event with past start not to be cancelable")
	}
}

func TestCompleteMissingEvents(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	community := seedCommunity(t, st, "public")
	now := time.Now().UTC()

	futureEnd := now.Add(time.Hour)
	pastEnd := now.Add(-time.Hour)
	seedEvent(t, st, community.ID, "upcoming-missing", now.Add(-time.Hour), &futureEnd, nil)
	seedEvent(t, st, community.ID, "past-missing", now.Add(-2*time.Hour), &pastEnd, nil)
	seedEvent(t, st, community.ID, "still-reported", now.Add(-time.Hour), &futureEnd, nil)

	seen := map[string]bool{"still-reported": true}
	if err := CompleteMissingEvents(ctx, st, community.ID, "discord_events", seen, now); err != nil {
		t.Fatalf("CompleteMissingEvents failed: %v", err)
	}

	if got := eventStatus(t, st, "upcoming-missing"); got != storage.StatusCompleted {
		t.Errorf("Expected upcoming missing event COMPLETED, got %s", got)
	}
	if got := eventStatus(t, st, "past-missing"); got != storage.StatusReady {
		t.Errorf("Expected past missing event untouched, got %s", got)
	}
	if got := eventStatus(t, st, "still-reported"); got != storage.StatusReady {
		t.Errorf("Expected reported event untouched, got %s", got)
	}
}

func TestCompleteMissingEventsIgnoresOtherAdapters(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	community := seedCommunity(t, st, "public")
	now := time.Now().UTC()

	futureEnd := now.Add(time.Hour)
	seedEvent(t, st, community.ID, "foreign", now, &futureEnd, storage.Fields{"scheduler_type": "json_events"})

	if err := CompleteMissingEvents(ctx, st, community.ID, "discord_events", nil, now); err != nil {
		t.Fatalf("CompleteMissingEvents failed: %v", err)
	}
	if got := eventStatus(t, st, "foreign"); got != storage.StatusReady {
		t.Errorf("Expected record of another adapter untouched, got %s", got)
	}
}
