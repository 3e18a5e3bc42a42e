// Package storage provides database operations and the canonical data models.
package storage

import (
	"strings"
	"time"
)

// Platform identifies the source type a community was discovered on.
type Platform string

const (
	PlatformDiscord Platform = "DISCORD"
	PlatformJSON    Platform = "JSON"
	PlatformTwitch  Platform = "TWITCH"
	PlatformPeer    Platform = "PEER"
)

// EventPlatforms lists the platforms whose communities carry event signals.
func EventPlatforms() []Platform {
	return []Platform{PlatformDiscord, PlatformJSON, PlatformPeer}
}

// EventStatus is the lifecycle status of an event or stream signal.
type EventStatus string

const (
	StatusPending   EventStatus = "PENDING"
	StatusReady     EventStatus = "READY"
	StatusActive    EventStatus = "ACTIVE"
	StatusCompleted EventStatus = "COMPLETED"
	StatusCanceled  EventStatus = "CANCELED"
)

// NonTerminalStatuses are the statuses a signal can still move out of.
func NonTerminalStatuses() []any {
	return []any{StatusReady, StatusPending, StatusActive}
}

// Community represents a monitored external group: a Discord guild, a JSON
// feed source, a Twitch channel or a followed peer instance.
type Community struct {
	ID                 string     `db:"id"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          *time.Time `db:"updated_at"`
	ExternalID         string     `db:"external_id"`
	Platform           Platform   `db:"platform"`
	Name               string     `db:"name"`
	Logo               string     `db:"logo"`
	DefaultDescription string     `db:"default_description"`
	CustomDescription  string     `db:"custom_description"`
	Monitored          bool       `db:"monitored"`
	Configured         bool       `db:"configured"`
	URL                string     `db:"url"`
	MembersCount       int        `db:"members_count"`
	Tags               string     `db:"tags"`
	PrivateChannelID   string     `db:"private_channel_id"`
	PublicChannelID    string     `db:"public_channel_id"`
	EventsURL          string     `db:"events_url"`
}

// Description returns the operator override when present, the source-derived
// description otherwise.
func (c *Community) Description() string {
	if c.CustomDescription != "" {
		return c.CustomDescription
	}
	return c.DefaultDescription
}

// HasTag reports whether tag is a member of the community's tag set.
func (c *Community) HasTag(tag string) bool {
	for _, t := range SplitTags(c.Tags) {
		if t == tag {
			return true
		}
	}
	return false
}

// Event is one scheduled occurrence belonging to exactly one community.
type Event struct {
	ID                    string      `db:"id"`
	CreatedAt             time.Time   `db:"created_at"`
	UpdatedAt             *time.Time  `db:"updated_at"`
	CreatedAtExternal     *time.Time  `db:"created_at_external"`
	ExternalID            string      `db:"external_id"`
	Name                  string      `db:"name"`
	Description           string      `db:"description"`
	SessionImage          string      `db:"session_image"`
	Location              string      `db:"location"`
	LocationWebSessionURL string      `db:"location_web_session_url"`
	LocationSessionURL    string      `db:"location_session_url"`
	StartTime             time.Time   `db:"start_time"`
	EndTime               *time.Time  `db:"end_time"`
	CommunityID           string      `db:"community_id"`
	Tags                  string      `db:"tags"`
	SchedulerType         string      `db:"scheduler_type"`
	Status                EventStatus `db:"status"`
}

// EventWithCommunity is an event row joined with its community's display fields.
type EventWithCommunity struct {
	Event
	CommunityName string `db:"community_name"`
	CommunityURL  string `db:"community_url"`
}

// Stream is a recurring broadcast schedule segment; unlike an Event it always
// has both a start and an end time.
type Stream struct {
	ID            string      `db:"id"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     *time.Time  `db:"updated_at"`
	ExternalID    string      `db:"external_id"`
	Name          string      `db:"name"`
	StartTime     time.Time   `db:"start_time"`
	EndTime       time.Time   `db:"end_time"`
	CommunityID   string      `db:"community_id"`
	Tags          string      `db:"tags"`
	SchedulerType string      `db:"scheduler_type"`
	Status        EventStatus `db:"status"`
}

// SplitTags splits a comma-joined tag set, dropping empty members.
func SplitTags(tags string) []string {
	var out []string
	for _, t := range strings.Split(tags, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
