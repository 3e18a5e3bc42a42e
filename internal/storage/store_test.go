package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	db, err := NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("NewDatabase failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db.Store()
}

func seedCommunity(t *testing.T, st *Store, tags string) *Community {
	t.Helper()
	community, err := st.Communities().Upsert(context.Background(), Fields{
		"external_id": "guild-1",
		"platform":    PlatformDiscord,
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

func TestEventUpsertIdempotent(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	community := seedCommunity(t, st, "public")

	start := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	fields := Fields{
		"external_id":    "ev-1",
		"name":           "Game Night",
		"description":    "Weekly session",
		"start_time":     start,
		"community_id":   community.ID,
		"tags":           "public,resonite",
		"scheduler_type": "discord_events",
	}

	if err := st.Events().Upsert(ctx, fields); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	first, err := st.Events().FindOne(ctx, Where("external_id", "ev-1"))
	if err != nil || first == nil {
		t.Fatalf("event not found after upsert: %v", err)
	}
	if first.Status != StatusReady {
		t.Errorf("Expected default status READY, got %s", first.Status)
	}
	if first.UpdatedAt != nil {
		t.Errorf("Expected no updated_at on insert, got %v", first.UpdatedAt)
	}

	fields["name"] = "Game Night (moved)"
	if err := st.Events().Upsert(ctx, fields); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	all, err := st.Events().Find(ctx, Query{})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("Expected 1 event after repeated upsert, got %d", len(all))
	}
	second := all[0]
	if second.ID != first.ID {
		t.Errorf("Upsert replaced the row: id %s != %s", second.ID, first.ID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("Insert-only created_at changed: %v != %v", second.CreatedAt, first.CreatedAt)
	}
	if second.UpdatedAt == nil {
		t.Error("Expected updated_at to be refreshed on the update path")
	}
	if second.Name != "Game Night (moved)" {
		t.Errorf("Expected updated name, got %q", second.Name)
	}
	if second.Status != StatusReady {
		t.Errorf("Update path touched status: got %s", second.Status)
	}
}

func TestUpsertDoesNotResetStatus(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	community := seedCommunity(t, st, "public")

	fields := Fields{
		"external_id":    "ev-1",
		"name":           "Meetup",
		"start_time":     time.Now().UTC(),
		"community_id":   community.ID,
		"scheduler_type": "discord_events",
	}
	if err := st.Events().Upsert(ctx, fields); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if _, err := st.Events().Update(ctx,
		[]Filter{Where("external_id", "ev-1")},
		Fields{"status": StatusCanceled}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if err := st.Events().Upsert(ctx, fields); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	event, err := st.Events().FindOne(ctx, Where("external_id", "ev-1"))
	if err != nil || event == nil {
		t.Fatalf("event not found: %v", err)
	}
	if event.Status != StatusCanceled {
		t.Errorf("Expected status CANCELED to survive re-sighting, got %s", event.Status)
	}
}

func TestInvalidFieldRejected(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	err := st.Events().Add(ctx, Fields{"no_such_column": 1})
	if !errors.Is(err, ErrInvalidField) {
		t.Fatalf("Expected ErrInvalidField, got %v", err)
	}

	_, err = st.Events().Find(ctx, Query{Filters: []Filter{Where("no_such_column", 1)}})
	if !errors.Is(err, ErrInvalidField) {
		t.Fatalf("Expected ErrInvalidField on find, got %v", err)
	}

	_, err = st.Events().Find(ctx, Query{OrderBy: []string{"no_such_column"}})
	if !errors.Is(err, ErrInvalidField) {
		t.Fatalf("Expected ErrInvalidField on order, got %v", err)
	}
}

func TestFilterOperators(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	community := seedCommunity(t, st, "public")

	base := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	for i, name := range []string{"alpha", "beta", "gamma"} {
		err := st.Events().Add(ctx, Fields{
			"external_id":    name,
			"name":           name,
			"start_time":     base.Add(time.Duration(i) * time.Hour),
			"community_id":   community.ID,
			"tags":           "public",
			"scheduler_type": "json_events",
		})
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	cases := []struct {
		name   string
		query  Query
		expect []string
	}{
		{
			name:   "neq",
			query:  Query{Filters: []Filter{WhereOp("name", OpNeq, "beta")}, OrderBy: []string{"start_time"}},
			expect: []string{"alpha", "gamma"},
		},
		{
			name:   "gtr_eq ordered desc",
			query:  Query{Filters: []Filter{WhereOp("start_time", OpGtrEq, base.Add(time.Hour))}, OrderBy: []string{"-start_time"}},
			expect: []string{"gamma", "beta"},
		},
		{
			name:   "like",
			query:  Query{Filters: []Filter{WhereOp("name", OpLike, "%amm%")}},
			expect: []string{"gamma"},
		},
		{
			name:   "in",
			query:  Query{Filters: []Filter{WhereOp("name", OpIn, []any{"alpha", "gamma"})}, OrderBy: []string{"name"}},
			expect: []string{"alpha", "gamma"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events, err := st.Events().Find(ctx, tc.query)
			if err != nil {
				t.Fatalf("Find failed: %v", err)
			}
			if len(events) != len(tc.expect) {
				t.Fatalf("Expected %d events, got %d", len(tc.expect), len(events))
			}
			for i, want := range tc.expect {
				if events[i].Name != want {
					t.Errorf("Position %d: expected %q, got %q", i, want, events[i].Name)
				}
			}
		})
	}
}

func TestDeleteCascades(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	community := seedCommunity(t, st, "public")

	err := st.Events().Add(ctx, Fields{
		"external_id":    "ev-1",
		"name":           "Meetup",
		"start_time":     time.Now().UTC(),
		"community_id":   community.ID,
		"scheduler_type": "json_events",
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	count, err := st.Communities().Delete(ctx, Where("id", community.ID))
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("Expected 1 deleted community, got %d", count)
	}
	events, err := st.Events().Find(ctx, Query{})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Expected events to cascade on community delete, got %d", len(events))
	}
}
