package federation

import (
	"strings"
	"testing"
	"time"

	"github.com/user/signalhub/internal/storage"
)

func sampleEvent(id string, start time.Time, end *time.Time) storage.EventWithCommunity {
	return storage.EventWithCommunity{
		Event: storage.Event{
			ID:                    id,
			ExternalID:            "ext-" + id,
			Name:                  "Game Night",
			Description:           "Weekly session",
			SessionImage:          "https://cdn.example.com/cover.png",
			Location:              "The Hub",
			LocationWebSessionURL: "https://cloudx.azurewebsites.net/open/session/S-1",
			LocationSessionURL:    "lnl-nat:///U-host:1234",
			StartTime:             start,
			EndTime:               end,
			Tags:                  "public,resonite",
			SchedulerType:         "discord_events",
			Status:                storage.StatusReady,
		},
		CommunityName: "Test Guild",
		CommunityURL:  "https://discord.gg/test",
	}
}

func TestV2TextRoundTrip(t *testing.T) {
	start := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	records := []Record{
		FromEvent(sampleEvent("a", start, &end), V2),
		FromEvent(sampleEvent("b", start.Add(24*time.Hour), nil), V2),
	}

	decoded, err := DecodeText(EncodeText(records, V2), V2)
	if err != nil {
		t.Fatalf("DecodeText failed: %v", err)
	}
	if len(decoded) != len(records) {
		t.Fatalf("Expected %d records, got %d", len(records), len(decoded))
	}
	for i := range records {
		want := records[i]
		// Identity and status ride only on the JSON representation.
		want.ID, want.ExternalID, want.Status = "", "", ""
		if decoded[i] != want {
			t.Errorf("Record %d mismatch:\n got %+v\nwant %+v", i, decoded[i], want)
		}
	}

	if got, err := ParseTime(V2, decoded[0].StartTime); err != nil || !got.Equal(start) {
		t.Errorf("ParseTime(%q) = %v, %v; want %v", decoded[0].StartTime, got, err, start)
	}
	if decoded[1].EndTime != "" {
		t.Errorf("Expected open-ended record to have empty end time, got %q", decoded[1].EndTime)
	}
}

func TestV1TextFormat(t *testing.T) {
	start := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	event := sampleEvent("a", start, &end)
	event.Description = "line one\nwith `backticks`"

	out := EncodeText([]Record{FromEvent(event, V1)}, V1)

	fields := strings.Split(out, "`")
	if len(fields) != 6 {
		t.Fatalf("Expected 6 backtick-separated fields, got %d: %q", len(fields), out)
	}
	if fields[0] != "Game Night" {
		t.Errorf("Expected title first, got %q", fields[0])
	}
	if fields[1] != "line one with  backticks " {
		t.Errorf("Expected cleaned description, got %q", fields[1])
	}
	if fields[3] != "2026/03/01 18:00:00+00:00" {
		t.Errorf("Unexpected start time format: %q", fields[3])
	}
	if fields[5] != "Test Guild" {
		t.Errorf("Expected community name last, got %q", fields[5])
	}
}

func TestJSONRoundTrip(t *testing.T) {
	start := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	records := []Record{FromEvent(sampleEvent("a", start, nil), V2)}

	body, err := EncodeJSON(records, V2)
	if err != nil {
		t.Fatalf("EncodeJSON failed: %v", err)
	}
	decoded, err := DecodeJSON(body)
	if err != nil {
		t.Fatalf("DecodeJSON failed: %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(decoded))
	}
	if decoded[0] != records[0] {
		t.Errorf("Record mismatch:\n got %+v\nwant %+v", decoded[0], records[0])
	}
	if decoded[0].ID != "a" || decoded[0].Status != string(storage.StatusReady) {
		t.Errorf("Expected identity and status in JSON, got %+v", decoded[0])
	}
}

func TestV1JSONShape(t *testing.T) {
	start := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	body, err := EncodeJSON([]Record{FromEvent(sampleEvent("a", start, nil), V1)}, V1)
	if err != nil {
		t.Fatalf("EncodeJSON failed: %v", err)
	}
	if strings.Contains(string(body), "session_image") {
		t.Errorf("Legacy JSON must not expose v2 fields: %s", body)
	}
	if !strings.Contains(string(body), `"location_str":"The Hub"`) {
		t.Errorf("Expected location_str key, got %s", body)
	}
}

func TestDecodeTextRejectsMalformedRecord(t *testing.T) {
	if _, err := DecodeText("only`three`fields", V1); err == nil {
		t.Fatal("Expected error for wrong field count")
	}
}
