// Package collector implements the signal collection and reconciliation
// engine: the adapter contract, record classification, duplicate resolution,
// lifecycle handling and the run scheduler.
package collector

import (
	"context"
	"time"

	"github.com/user/signalhub/internal/storage"
)

// Adapter is one source of signals. UpdateCommunities reconciles the set of
// communities the adapter is responsible for; Collect fetches raw records for
// every configured community and reconciles them against the store. Both run
// inside the single transaction owned by the current collection cycle.
type Adapter interface {
	Name() string
	Platform() storage.Platform
	UpdateCommunities(ctx context.Context, st *storage.Store) error
	Collect(ctx context.Context, st *storage.Store) error
}

// Descriptor is a community as reported by an external source.
type Descriptor struct {
	ExternalID         string
	Name               string
	Logo               string
	DefaultDescription string
	URL                string
	MembersCount       int
}

// RawSignal is one normalized record fetched from a source, before
// classification.
type RawSignal struct {
	ExternalID            string
	Name                  string
	Description           string
	SessionImage          string
	Location              string
	LocationWebSessionURL string
	LocationSessionURL    string
	ChannelID             string
	StartTime             time.Time
	EndTime               *time.Time
	CreatedAtExternal     *time.Time
	// Status carries a remote lifecycle state for federated records. Empty
	// for every other source; the store then defaults new rows to READY and
	// leaves existing rows untouched.
	Status storage.EventStatus
}

// SyncCommunities reconciles externally reported community descriptors
// against the store. Known communities get their source-owned display fields
// refreshed and are marked monitored; unknown ones are inserted unmonitored
// and unconfigured, waiting for an operator to onboard them. Operator-owned
// fields (custom description, tags, channel configuration, configured flag)
// are never written here.
func SyncCommunities(ctx context.Context, st *storage.Store, platform storage.Platform, descriptors []Descriptor) error {
	communities := st.Communities()
	for _, d := range descriptors {
		existing, err := communities.FindOne(ctx,
			storage.Where("external_id", d.ExternalID),
			storage.Where("platform", platform))
		if err != nil {
			return err
		}
		if existing != nil {
			_, err = communities.Update(ctx,
				[]storage.Filter{storage.Where("id", existing.ID)},
				storage.Fields{
					"name":                d.Name,
					"logo":                d.Logo,
					"default_description": d.DefaultDescription,
					"url":                 d.URL,
					"members_count":       d.MembersCount,
					"monitored":           true,
				})
			if err != nil {
				return err
			}
			continue
		}
		err = communities.Add(ctx, storage.Fields{
			"external_id":         d.ExternalID,
			"platform":            platform,
			"name":                d.Name,
			"logo":                d.Logo,
			"default_description": d.DefaultDescription,
			"url":                 d.URL,
			"members_count":       d.MembersCount,
			"monitored":           false,
			"configured":          false,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ConfiguredCommunities returns the communities of the given platform that an
// operator has onboarded.
func ConfiguredCommunities(ctx context.Context, st *storage.Store, platform storage.Platform) ([]storage.Community, error) {
	return st.Communities().Find(ctx, storage.Query{
		Filters: []storage.Filter{
			storage.Where("platform", platform),
			storage.Where("configured", true),
		},
	})
}
