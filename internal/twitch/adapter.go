// Package twitch collects broadcast schedules through the Twitch Helix API.
package twitch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/user/signalhub/internal/collector"
	"github.com/user/signalhub/internal/storage"
	"github.com/user/signalhub/pkg/logger"
)

// AdapterName is the scheduler_type written on every record this adapter
// produces.
const AdapterName = "twitch_streams"

const (
	tokenURL = "https://id.twitch.tv/oauth2/token"
	helixURL = "https://api.twitch.tv/helix"
)

// Adapter collects the schedule segments of every configured Twitch channel.
// Channel communities use the broadcaster login as external_id.
type Adapter struct {
	client   *http.Client
	clientID string
	engine   *collector.Engine
	log      zerolog.Logger
}

// New creates the adapter. App access tokens are fetched and refreshed
// through the client credentials grant.
func New(ctx context.Context, clientID, clientSecret string, engine *collector.Engine) *Adapter {
	creds := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}
	client := creds.Client(ctx)
	client.Timeout = 30 * time.Second

	return &Adapter{
		client:   client,
		clientID: clientID,
		engine:   engine,
		log:      logger.With("twitch"),
	}
}

func (a *Adapter) Name() string {
	return AdapterName
}

func (a *Adapter) Platform() storage.Platform {
	return storage.PlatformTwitch
}

type broadcaster struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	Description     string `json:"description"`
	ProfileImageURL string `json:"profile_image_url"`
}

type scheduleSegment struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// UpdateCommunities refreshes each configured channel's display fields from
// its Helix user record and follower count. Channels Helix does not know are
// logged and left untouched.
func (a *Adapter) UpdateCommunities(ctx context.Context, st *storage.Store) error {
	communities, err := st.Communities().Find(ctx, storage.Query{
		Filters: []storage.Filter{storage.Where("platform", storage.PlatformTwitch)},
	})
	if err != nil {
		return err
	}

	for i := range communities {
		community := &communities[i]

		b, err := a.lookupBroadcaster(ctx, community.ExternalID)
		if err != nil {
			a.log.Error().Err(err).Str("community", community.Name).Msg("Failed to look up broadcaster")
			continue
		}
		followers, err := a.followerCount(ctx, b.ID)
		if err != nil {
			a.log.Warn().Err(err).Str("community", community.Name).Msg("Failed to fetch follower count")
		}

		_, err = st.Communities().Update(ctx,
			[]storage.Filter{storage.Where("id", community.ID)},
			storage.Fields{
				"name":                b.DisplayName,
				"logo":                b.ProfileImageURL,
				"default_description": b.Description,
				"url":                 "https://www.twitch.tv/" + b.Login,
				"members_count":       followers,
				"monitored":           true,
			})
		if err != nil {
			return err
		}
	}
	return nil
}

// Collect fetches each configured channel's schedule and reconciles its
// segments as streams.
func (a *Adapter) Collect(ctx context.Context, st *storage.Store) error {
	communities, err := collector.ConfiguredCommunities(ctx, st, storage.PlatformTwitch)
	if err != nil {
		return err
	}

	for i := range communities {
		community := &communities[i]

		b, err := a.lookupBroadcaster(ctx, community.ExternalID)
		if err != nil {
			a.log.Error().Err(err).Str("community", community.Name).Msg("Failed to look up broadcaster, skipping community")
			continue
		}
		segments, err := a.schedule(ctx, b.ID)
		if err != nil {
			a.log.Error().Err(err).Str("community", community.Name).Msg("Failed to fetch schedule, skipping community")
			continue
		}

		raws := make([]collector.RawSignal, 0, len(segments))
		for _, seg := range segments {
			start, err := time.Parse(time.RFC3339, seg.StartTime)
			if err != nil {
				a.log.Warn().Err(err).Str("segment", seg.ID).Msg("Malformed segment start time, skipping record")
				continue
			}
			end, err := time.Parse(time.RFC3339, seg.EndTime)
			if err != nil {
				a.log.Warn().Err(err).Str("segment", seg.ID).Msg("Malformed segment end time, skipping record")
				continue
			}
			endUTC := end.UTC()
			raws = append(raws, collector.RawSignal{
				ExternalID: seg.ID,
				Name:       seg.Title,
				StartTime:  start.UTC(),
				EndTime:    &endUTC,
			})
		}
		if err := a.engine.ProcessStreams(ctx, st, AdapterName, community, raws); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) lookupBroadcaster(ctx context.Context, login string) (*broadcaster, error) {
	var payload struct {
		Data []broadcaster `json:"data"`
	}
	if err := a.get(ctx, "/users", url.Values{"login": {login}}, &payload); err != nil {
		return nil, err
	}
	if len(payload.Data) == 0 {
		return nil, fmt.Errorf("unknown broadcaster %q", login)
	}
	return &payload.Data[0], nil
}

func (a *Adapter) followerCount(ctx context.Context, broadcasterID string) (int, error) {
	var payload struct {
		Total int `json:"total"`
	}
	err := a.get(ctx, "/channels/followers", url.Values{"broadcaster_id": {broadcasterID}}, &payload)
	return payload.Total, err
}

func (a *Adapter) schedule(ctx context.Context, broadcasterID string) ([]scheduleSegment, error) {
	var payload struct {
		Data struct {
			Segments []scheduleSegment `json:"segments"`
		} `json:"data"`
	}
	err := a.get(ctx, "/schedule", url.Values{"broadcaster_id": {broadcasterID}}, &payload)
	if err != nil {
		return nil, err
	}
	return payload.Data.Segments, nil
}

func (a *Adapter) get(ctx context.Context, path string, params url.Values, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, helixURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Client-Id", a.clientID)

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// An empty schedule comes back as 404 from Helix.
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("helix %s returned status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}
