package collector

import (
	"context"
	"testing"
	"time"

	"github.com/user/signalhub/internal/storage"
)

func TestProcessEventsPipeline(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	community := seedCommunity(t, st, "public")
	engine := NewEngine()

	start := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	end := start.Add(2 * time.Hour)
	raws := []RawSignal{
		{
			ExternalID:  "ev-1",
			Name:        "Resonite game night",
			Description: "Weekly session\n+language:en",
			StartTime:   start,
			EndTime:     &end,
		},
	}

	if err := engine.ProcessEvents(ctx, st, "discord_events", community, raws); err != nil {
		t.Fatalf("ProcessEvents failed: %v", err)
	}

	event, err := st.Events().FindOne(ctx, storage.Where("external_id", "ev-1"))
	if err != nil || event == nil {
		t.Fatalf("event not found: %v", err)
	}
	if event.Status != storage.StatusReady {
		t.Errorf("Expected new event READY, got %s", event.Status)
	}
	if event.Description != "Weekly session" {
		t.Errorf("Expected directive stripped, got %q", event.Description)
	}
	for _, want := range []string{"public", "resonite", "lang:en"} {
		tagged := false
		for _, tag := range storage.SplitTags(event.Tags) {
			if tag == want {
				tagged = true
			}
		}
		if !tagged {
			t.Errorf("Expected tag %q, got %q", want, event.Tags)
		}
	}

	// The next cycle no longer reports the event: it completes.
	if err := engine.ProcessEvents(ctx, st, "discord_events", community, nil); err != nil {
		t.Fatalf("ProcessEvents failed: %v", err)
	}
	if got := eventStatus(t, st, "ev-1"); got != storage.StatusCompleted {
		t.Errorf("Expected dropped event COMPLETED, got %s", got)
	}
}

func TestProcessEventsFailsClosed(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	community := seedCommunity(t, st, "resonite") // no visibility tag
	engine := NewEngine()

	raws := []RawSignal{{ExternalID: "ev-1", Name: "Meetup", StartTime: time.Now().UTC()}}
	if err := engine.ProcessEvents(ctx, st, "discord_events", community, raws); err != nil {
		t.Fatalf("Expected skip, got error: %v", err)
	}

	events, err := st.Events().Find(ctx, storage.Query{})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Expected no events for unclassifiable community, got %d", len(events))
	}
}

func TestProcessEventsKeepsRemoteStatus(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	community := seedCommunity(t, st, "public,resonite")
	engine := NewEngine()

	start := time.Now().UTC().Add(time.Hour)
	raws := []RawSignal{{
		ExternalID: "remote-1",
		Name:       "Federated meetup",
		StartTime:  start,
		Status:     storage.StatusActive,
	}}
	if err := engine.ProcessEvents(ctx, st, "peer_events", community, raws); err != nil {
		t.Fatalf("ProcessEvents failed: %v", err)
	}
	if got := eventStatus(t, st, "remote-1"); got != storage.StatusActive {
		t.Errorf("Expected remote status carried over, got %s", got)
	}
}
