// Package federation encodes and decodes canonical event records in the
// versioned wire formats exchanged between peer instances.
package federation

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/user/signalhub/internal/storage"
)

// Version selects a wire format generation.
type Version string

const (
	V1 Version = "v1"
	V2 Version = "v2"
)

// Wire separators per version. v1 is a legacy backtick/newline format; v2
// uses the ASCII unit and group separator control characters so field values
// need no escaping.
const (
	v1FieldSep  = "`"
	v1RecordSep = "\n"
	v2FieldSep  = "\x1e"
	v2RecordSep = "\x1d"

	v1TimeLayout = "2006/01/02 15:04:05+00:00"
	v2TimeLayout = "2006-01-02T15:04:05Z"
)

// Record is one event on the wire. Times are already formatted strings; an
// empty EndTime means open-ended.
type Record struct {
	ID                    string `json:"id,omitempty"`
	ExternalID            string `json:"external_id,omitempty"`
	Title                 string `json:"name"`
	Description           string `json:"description"`
	SessionImage          string `json:"session_image"`
	Location              string `json:"location_str"`
	LocationWebSessionURL string `json:"location_web_session_url"`
	LocationSessionURL    string `json:"location_session_url"`
	StartTime             string `json:"start_time"`
	EndTime               string `json:"end_time"`
	CommunityName         string `json:"community_name"`
	CommunityURL          string `json:"community_url"`
	Tags                  string `json:"tags"`
	SourceAdapterName     string `json:"source_adapter_name"`
	Status                string `json:"status,omitempty"`
}

// v1Record is the reduced shape the legacy version exposes as JSON.
type v1Record struct {
	Title         string `json:"name"`
	Description   string `json:"description"`
	Location      string `json:"location_str"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	CommunityName string `json:"community_name"`
}

// TimeLayout returns the timestamp layout of the version.
func TimeLayout(version Version) string {
	if version == V1 {
		return v1TimeLayout
	}
	return v2TimeLayout
}

// FormatTime renders a timestamp in the version's wire layout.
func FormatTime(version Version, t time.Time) string {
	return t.UTC().Format(TimeLayout(version))
}

// ParseTime reads a wire timestamp, accepting the version layout first and
// RFC 3339 as a fallback.
func ParseTime(version Version, s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout(version), s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// FromEvent converts a stored event joined with its community into a wire
// record for the given version.
func FromEvent(e storage.EventWithCommunity, version Version) Record {
	r := Record{
		ID:                    e.ID,
		ExternalID:            e.ExternalID,
		Title:                 e.Name,
		Description:           e.Description,
		SessionImage:          e.SessionImage,
		Location:              e.Location,
		LocationWebSessionURL: e.LocationWebSessionURL,
		LocationSessionURL:    e.LocationSessionURL,
		StartTime:             FormatTime(version, e.StartTime),
		CommunityName:         e.CommunityName,
		CommunityURL:          e.CommunityURL,
		Tags:                  e.Tags,
		SourceAdapterName:     e.SchedulerType,
		Status:                string(e.Status),
	}
	if e.EndTime != nil {
		r.EndTime = FormatTime(version, *e.EndTime)
	}
	return r
}

// cleanText removes the characters the legacy format uses as separators.
func cleanText(text string) string {
	replacer := strings.NewReplacer("`", " ", "\r\n", " ", "\n", " ", "\r", " ")
	return replacer.Replace(text)
}

func (r Record) textFields(version Version) []string {
	if version == V1 {
		return []string{
			r.Title,
			cleanText(r.Description),
			r.Location,
			r.StartTime,
			r.EndTime,
			r.CommunityName,
		}
	}
	return []string{
		r.Title,
		r.Description,
		r.SessionImage,
		r.Location,
		r.LocationWebSessionURL,
		r.LocationSessionURL,
		r.StartTime,
		r.EndTime,
		r.CommunityName,
		r.CommunityURL,
		r.Tags,
		r.SourceAdapterName,
	}
}

// EncodeText renders the records in the version's delimited text format.
func EncodeText(records []Record, version Version) string {
	fieldSep, recordSep := v2FieldSep, v2RecordSep
	if version == V1 {
		fieldSep, recordSep = v1FieldSep, v1RecordSep
	}
	lines := make([]string, 0, len(records))
	for _, r := range records {
		lines = append(lines, strings.Join(r.textFields(version), fieldSep))
	}
	return strings.Join(lines, recordSep)
}

// DecodeText parses the version's delimited text format back into records.
// Records with an unexpected field count are rejected.
func DecodeText(data string, version Version) ([]Record, error) {
	if data == "" {
		return nil, nil
	}
	fieldSep, recordSep := v2FieldSep, v2RecordSep
	fieldCount := 12
	if version == V1 {
		fieldSep, recordSep = v1FieldSep, v1RecordSep
		fieldCount = 6
	}

	var out []Record
	for i, line := range strings.Split(data, recordSep) {
		fields := strings.Split(line, fieldSep)
		if len(fields) != fieldCount {
			return nil, fmt.Errorf("record %d: got %d fields, want %d", i, len(fields), fieldCount)
		}
		if version == V1 {
			out = append(out, Record{
				Title:         fields[0],
				Description:   fields[1],
				Location:      fields[2],
				StartTime:     fields[3],
				EndTime:       fields[4],
				CommunityName: fields[5],
			})
			continue
		}
		out = append(out, Record{
			Title:                 fields[0],
			Description:           fields[1],
			SessionImage:          fields[2],
			Location:              fields[3],
			LocationWebSessionURL: fields[4],
			LocationSessionURL:    fields[5],
			StartTime:             fields[6],
			EndTime:               fields[7],
			CommunityName:         fields[8],
			CommunityURL:          fields[9],
			Tags:                  fields[10],
			SourceAdapterName:     fields[11],
		})
	}
	return out, nil
}

// EncodeJSON renders the records as a JSON array. The legacy version exposes
// only its six text fields; v2 adds identity and status on top of its text
// fields.
func EncodeJSON(records []Record, version Version) ([]byte, error) {
	if version == V1 {
		reduced := make([]v1Record, 0, len(records))
		for _, r := range records {
			reduced = append(reduced, v1Record{
				Title:         r.Title,
				Description:   r.Description,
				Location:      r.Location,
				StartTime:     r.StartTime,
				EndTime:       r.EndTime,
				CommunityName: r.CommunityName,
			})
		}
		return json.Marshal(reduced)
	}
	return json.Marshal(records)
}

// DecodeJSON parses a JSON array of wire records.
func DecodeJSON(data []byte) ([]Record, error) {
	var out []Record
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
