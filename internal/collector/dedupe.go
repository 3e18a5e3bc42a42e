package collector

import (
	"context"

	"github.com/user/signalhub/internal/storage"
)

type dupKey struct {
	name        string
	startTime   int64
	endTime     int64
	description string
}

// ResolveDuplicates collapses redundant event records within one community.
// Non-terminal events are grouped by (name, start_time, end_time,
// description); in each group the earliest-inserted member stays canonical
// and every other member is CANCELED. A session image carried only by a
// canceled member is propagated onto the canonical one. The pass is
// idempotent.
func ResolveDuplicates(ctx context.Context, st *storage.Store, communityID string) error {
	events, err := st.Events().NonTerminal(ctx, communityID)
	if err != nil {
		return err
	}

	groups := make(map[dupKey][]storage.Event)
	order := make([]dupKey, 0, len(events))
	for _, e := range events {
		key := dupKey{name: e.Name, startTime: e.StartTime.Unix(), description: e.Description}
		if e.EndTime != nil {
			key.endTime = e.EndTime.Unix()
		} else {
			key.endTime = -1
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], e)
	}

	for _, key := range order {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		// NonTerminal returns rows ordered by insertion time.
		canonical := group[0]

		if canonical.SessionImage == "" {
			for _, dup := range group[1:] {
				if dup.SessionImage != "" {
					_, err := st.Events().Update(ctx,
						[]storage.Filter{storage.Where("id", canonical.ID)},
						storage.Fields{"session_image": dup.SessionImage})
					if err != nil {
						return err
					}
					break
				}
			}
		}

		for _, dup := range group[1:] {
			_, err := st.Events().Update(ctx,
				[]storage.Filter{storage.Where("id", dup.ID)},
				storage.Fields{"status": storage.StatusCanceled})
			if err != nil {
				return err
			}
		}
	}
	return nil
}
