// Package discord collects guild scheduled events through the Discord
// gateway and REST API.
package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/user/signalhub/internal/collector"
	"github.com/user/signalhub/internal/storage"
	"github.com/user/signalhub/pkg/logger"
)

// AdapterName is the scheduler_type written on every record this adapter
// produces.
const AdapterName = "discord_events"

// Adapter collects scheduled events from every guild the bot is a member of.
// Besides its interval runs it reacts to gateway push notifications for
// scheduled event changes.
type Adapter struct {
	session *discordgo.Session
	engine  *collector.Engine
	log     zerolog.Logger
	onPush  func()
}

// New creates the adapter with a gateway session for the given bot token. The
// session is not opened yet; call Open once push callbacks are wired.
func New(token string, engine *collector.Engine) (*Adapter, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentGuilds | discordgo.IntentGuildScheduledEvents

	return &Adapter{
		session: session,
		engine:  engine,
		log:     logger.With("discord"),
	}, nil
}

// OnPush registers the callback invoked when the gateway reports a scheduled
// event change. Typically wired to the scheduler's Kick.
func (a *Adapter) OnPush(fn func()) {
	a.onPush = fn
}

// Open connects the gateway session and registers the push handlers.
func (a *Adapter) Open() error {
	a.session.AddHandler(func(_ *discordgo.Session, _ *discordgo.GuildScheduledEventCreate) {
		a.push("create")
	})
	a.session.AddHandler(func(_ *discordgo.Session, _ *discordgo.GuildScheduledEventUpdate) {
		a.push("update")
	})
	a.session.AddHandler(func(_ *discordgo.Session, _ *discordgo.GuildScheduledEventDelete) {
		a.push("delete")
	})

	if err := a.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	a.log.Info().Msg("Discord gateway connected")
	return nil
}

// Close disconnects the gateway session.
func (a *Adapter) Close() error {
	return a.session.Close()
}

func (a *Adapter) push(kind string) {
	a.log.Debug().Str("notification", kind).Msg("Scheduled event push received")
	if a.onPush != nil {
		a.onPush()
	}
}

func (a *Adapter) Name() string {
	return AdapterName
}

func (a *Adapter) Platform() storage.Platform {
	return storage.PlatformDiscord
}

// UpdateCommunities reconciles the guilds the bot is currently connected to.
// Guilds without an operator configuration are recorded but stay unsurfaced.
func (a *Adapter) UpdateCommunities(ctx context.Context, st *storage.Store) error {
	descriptors := make([]collector.Descriptor, 0, len(a.session.State.Guilds))
	for _, g := range a.session.State.Guilds {
		descriptors = append(descriptors, collector.Descriptor{
			ExternalID:         g.ID,
			Name:               g.Name,
			Logo:               g.IconURL("256"),
			DefaultDescription: g.Description,
			MembersCount:       g.MemberCount,
		})
	}
	return collector.SyncCommunities(ctx, st, storage.PlatformDiscord, descriptors)
}

// Collect fetches the scheduled events of every configured guild. A failed
// guild is logged and skipped; the other guilds still get processed.
func (a *Adapter) Collect(ctx context.Context, st *storage.Store) error {
	communities, err := collector.ConfiguredCommunities(ctx, st, storage.PlatformDiscord)
	if err != nil {
		return err
	}

	for i := range communities {
		community := &communities[i]

		events, err := a.session.GuildScheduledEvents(community.ExternalID, false, discordgo.WithContext(ctx))
		if err != nil {
			a.log.Error().Err(err).Str("community", community.Name).Msg("Failed to fetch scheduled events, skipping community")
			continue
		}

		raws := make([]collector.RawSignal, 0, len(events))
		for _, ev := range events {
			raws = append(raws, rawFromScheduledEvent(ev))
		}
		if err := a.engine.ProcessEvents(ctx, st, AdapterName, community, raws); err != nil {
			return err
		}
	}
	return nil
}

func rawFromScheduledEvent(ev *discordgo.GuildScheduledEvent) collector.RawSignal {
	location := ev.EntityMetadata.Location
	haystack := ev.Description + "\n" + location

	// Discord does not report an event creation time; derive it from the
	// snowflake id.
	var createdAt *time.Time
	if t, err := discordgo.SnowflakeTimestamp(ev.ID); err == nil {
		createdAt = &t
	}

	return collector.RawSignal{
		ExternalID:            ev.ID,
		Name:                  ev.Name,
		Description:           ev.Description,
		SessionImage:          coverImageURL(ev),
		Location:              location,
		LocationWebSessionURL: collector.ExtractWebSessionURL(haystack),
		LocationSessionURL:    collector.ExtractSessionURL(haystack),
		ChannelID:             ev.ChannelID,
		StartTime:             ev.ScheduledStartTime,
		EndTime:               ev.ScheduledEndTime,
		CreatedAtExternal:     createdAt,
	}
}

// coverImageURL builds the CDN URL of an event's cover image, empty when the
// event has none.
func coverImageURL(ev *discordgo.GuildScheduledEvent) string {
	if ev.Image == "" {
		return ""
	}
	return fmt.Sprintf("https://cdn.discordapp.com/guild-events/%s/%s.png?size=512", ev.ID, ev.Image)
}
