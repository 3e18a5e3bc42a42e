package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Fields holds the column values for an add, update or upsert call. Unknown
// field names fail validation with ErrInvalidField.
type Fields map[string]any

// table describes one persisted entity: its columns and which of them are
// only ever written on the insert or the update path of an upsert.
type table struct {
	name       string
	columns    map[string]struct{}
	insertOnly map[string]struct{}
	updateOnly map[string]struct{}
	defaults   func(Fields)
}

func colSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

func (t *table) hasColumn(name string) bool {
	_, ok := t.columns[name]
	return ok
}

func (t *table) validate(f Fields) error {
	for key := range f {
		if !t.hasColumn(key) {
			return fmt.Errorf("%w: %q on table %s", ErrInvalidField, key, t.name)
		}
	}
	return nil
}

func defaultStatus(f Fields) {
	if _, ok := f["status"]; !ok {
		f["status"] = StatusReady
	}
}

var communitiesTable = &table{
	name: "communities",
	columns: colSet(
		"id", "created_at", "updated_at", "external_id", "platform", "name",
		"logo", "default_description", "custom_description", "monitored",
		"configured", "url", "members_count", "tags", "private_channel_id",
		"public_channel_id", "events_url",
	),
	insertOnly: colSet("id", "created_at"),
	updateOnly: colSet("updated_at"),
}

var eventsTable = &table{
	name: "events",
	columns: colSet(
		"id", "created_at", "updated_at", "created_at_external", "external_id",
		"name", "description", "session_image", "location",
		"location_web_session_url", "location_session_url", "start_time",
		"end_time", "community_id", "tags", "scheduler_type", "status",
	),
	insertOnly: colSet("id", "created_at"),
	updateOnly: colSet("updated_at"),
	defaults:   defaultStatus,
}

var streamsTable = &table{
	name: "streams",
	columns: colSet(
		"id", "created_at", "updated_at", "external_id", "name", "start_time",
		"end_time", "community_id", "tags", "scheduler_type", "status",
	),
	insertOnly: colSet("id", "created_at"),
	updateOnly: colSet("updated_at"),
	defaults:   defaultStatus,
}

// Store executes the gateway operations against either the connection pool or
// a single transaction (see Database.WithTx).
type Store struct {
	ext sqlx.ExtContext
}

// sortedKeys gives deterministic column order for generated statements.
func sortedKeys(f Fields) []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) add(ctx context.Context, t *table, f Fields) error {
	if err := t.validate(f); err != nil {
		return err
	}
	applyInsertDefaults(t, f)

	keys := sortedKeys(f)
	args := make([]any, 0, len(keys))
	placeholders := make([]string, 0, len(keys))
	for _, k := range keys {
		args = append(args, f[k])
		placeholders = append(placeholders, "?")
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.name, strings.Join(keys, ", "), strings.Join(placeholders, ", "))
	_, err := s.ext.ExecContext(ctx, query, args...)
	return err
}

func applyInsertDefaults(t *table, f Fields) {
	if _, ok := f["id"]; !ok {
		f["id"] = uuid.NewString()
	}
	if _, ok := f["created_at"]; !ok {
		f["created_at"] = time.Now().UTC()
	}
	if t.defaults != nil {
		t.defaults(f)
	}
}

func (s *Store) find(ctx context.Context, t *table, dest any, q Query) error {
	where, args, err := whereClause(t, q.Filters)
	if err != nil {
		return err
	}
	order, err := orderClause(t, q.OrderBy)
	if err != nil {
		return err
	}
	query := "SELECT * FROM " + t.name + where + order
	query, args, err = sqlx.In(query, args...)
	if err != nil {
		return err
	}
	return sqlx.SelectContext(ctx, s.ext, dest, s.ext.Rebind(query), args...)
}

func (s *Store) update(ctx context.Context, t *table, filters []Filter, f Fields) (int64, error) {
	if err := t.validate(f); err != nil {
		return 0, err
	}
	if _, ok := f["updated_at"]; !ok {
		f["updated_at"] = time.Now().UTC()
	}

	keys := sortedKeys(f)
	sets := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		sets = append(sets, k+" = ?")
		args = append(args, f[k])
	}
	where, whereArgs, err := whereClause(t, filters)
	if err != nil {
		return 0, err
	}
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s%s", t.name, strings.Join(sets, ", "), where)
	query, args, err = sqlx.In(query, args...)
	if err != nil {
		return 0, err
	}
	res, err := s.ext.ExecContext(ctx, s.ext.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// upsert runs a single conflict-resolving statement keyed on the unique
// constraint over conflictCols. Insert-only fields are never touched on the
// update path; updated_at is always refreshed on the update path only.
func (s *Store) upsert(ctx context.Context, t *table, conflictCols []string, f Fields) error {
	if err := t.validate(f); err != nil {
		return err
	}

	insert := make(Fields, len(f))
	for k, v := range f {
		if _, ok := t.updateOnly[k]; ok {
			continue
		}
		insert[k] = v
	}
	applyInsertDefaults(t, insert)

	insertKeys := sortedKeys(insert)
	args := make([]any, 0, len(insertKeys)+1)
	placeholders := make([]string, 0, len(insertKeys))
	for _, k := range insertKeys {
		args = append(args, insert[k])
		placeholders = append(placeholders, "?")
	}

	sets := make([]string, 0, len(f))
	for _, k := range sortedKeys(f) {
		if _, ok := t.insertOnly[k]; ok {
			continue
		}
		if _, ok := t.updateOnly[k]; ok {
			continue
		}
		sets = append(sets, k+" = excluded."+k)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC())

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s",
		t.name,
		strings.Join(insertKeys, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(conflictCols, ", "),
		strings.Join(sets, ", "))
	_, err := s.ext.ExecContext(ctx, query, args...)
	return err
}

func (s *Store) deleteRows(ctx context.Context, t *table, filters []Filter) (int64, error) {
	where, args, err := whereClause(t, filters)
	if err != nil {
		return 0, err
	}
	query := "DELETE FROM " + t.name + where
	query, args, err = sqlx.In(query, args...)
	if err != nil {
		return 0, err
	}
	res, err := s.ext.ExecContext(ctx, s.ext.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CommunityStore handles community records.
type CommunityStore struct {
	s *Store
}

// Communities returns the community store view.
func (s *Store) Communities() CommunityStore {
	return CommunityStore{s: s}
}

// Add inserts a new community.
func (cs CommunityStore) Add(ctx context.Context, f Fields) error {
	return cs.s.add(ctx, communitiesTable, f)
}

// Find returns communities matching the query.
func (cs CommunityStore) Find(ctx context.Context, q Query) ([]Community, error) {
	var out []Community
	err := cs.s.find(ctx, communitiesTable, &out, q)
	return out, err
}

// FindOne returns the first community matching the filters, or nil when
// nothing matches.
func (cs CommunityStore) FindOne(ctx context.Context, filters ...Filter) (*Community, error) {
	rows, err := cs.Find(ctx, Query{Filters: filters})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Update modifies all communities matching the filters.
func (cs CommunityStore) Update(ctx context.Context, filters []Filter, f Fields) (int64, error) {
	return cs.s.update(ctx, communitiesTable, filters, f)
}

// Upsert inserts or updates a community keyed on (external_id, platform) and
// returns the stored row.
func (cs CommunityStore) Upsert(ctx context.Context, f Fields) (*Community, error) {
	if err := cs.s.upsert(ctx, communitiesTable, []string{"external_id", "platform"}, f); err != nil {
		return nil, err
	}
	return cs.FindOne(ctx, Where("external_id", f["external_id"]), Where("platform", f["platform"]))
}

// Delete removes all communities matching the filters. Events and streams
// cascade.
func (cs CommunityStore) Delete(ctx context.Context, filters ...Filter) (int64, error) {
	return cs.s.deleteRows(ctx, communitiesTable, filters)
}

// EventStore handles event records.
type EventStore struct {
	s *Store
}

// Events returns the event store view.
func (s *Store) Events() EventStore {
	return EventStore{s: s}
}

// Add inserts a new event.
func (es EventStore) Add(ctx context.Context, f Fields) error {
	return es.s.add(ctx, eventsTable, f)
}

// Find returns events matching the query.
func (es EventStore) Find(ctx context.Context, q Query) ([]Event, error) {
	var out []Event
	err := es.s.find(ctx, eventsTable, &out, q)
	return out, err
}

// FindOne returns the first event matching the filters, or nil when nothing
// matches.
func (es EventStore) FindOne(ctx context.Context, filters ...Filter) (*Event, error) {
	rows, err := es.Find(ctx, Query{Filters: filters})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Update modifies all events matching the filters.
func (es EventStore) Update(ctx context.Context, filters []Filter, f Fields) (int64, error) {
	return es.s.update(ctx, eventsTable, filters, f)
}

// Upsert inserts or updates an event keyed on external_id.
func (es EventStore) Upsert(ctx context.Context, f Fields) error {
	return es.s.upsert(ctx, eventsTable, []string{"external_id"}, f)
}

// Delete removes all events matching the filters.
func (es EventStore) Delete(ctx context.Context, filters ...Filter) (int64, error) {
	return es.s.deleteRows(ctx, eventsTable, filters)
}

// NonTerminal returns the community's events whose status can still change,
// earliest inserted first.
func (es EventStore) NonTerminal(ctx context.Context, communityID string) ([]Event, error) {
	return es.Find(ctx, Query{
		Filters: []Filter{
			Where("community_id", communityID),
			WhereOp("status", OpIn, NonTerminalStatuses()),
		},
		OrderBy: []string{"created_at", "id"},
	})
}

// ActiveOrReady returns the community's READY and ACTIVE events produced by
// the given adapter.
func (es EventStore) ActiveOrReady(ctx context.Context, communityID, schedulerType string) ([]Event, error) {
	return es.Find(ctx, Query{
		Filters: []Filter{
			Where("community_id", communityID),
			Where("scheduler_type", schedulerType),
			WhereOp("status", OpIn, []any{StatusReady, StatusActive}),
		},
	})
}

// ForFederation returns the publicly exposable events joined with their
// community, optionally restricted to the given community names, ordered by
// start time ascending. Events still count as upcoming while their end time
// (or start time when open-ended) has not passed.
func (es EventStore) ForFederation(ctx context.Context, communityNames []string, now time.Time) ([]EventWithCommunity, error) {
	query := `
		SELECT e.*, c.name AS community_name, c.url AS community_url
		FROM events e
		JOIN communities c ON c.id = e.community_id
		WHERE e.tags NOT LIKE '%private%'
		  AND e.tags LIKE '%resonite%'
		  AND e.tags NOT LIKE '%vrchat%'
		  AND e.status IN (?)
		  AND COALESCE(e.end_time, e.start_time) >= ?`
	args := []any{[]any{StatusReady, StatusActive}, now}
	if len(communityNames) > 0 {
		query += " AND c.name IN (?)"
		args = append(args, communityNames)
	}
	query += " ORDER BY e.start_time ASC"

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, err
	}
	var out []EventWithCommunity
	err = sqlx.SelectContext(ctx, es.s.ext, &out, es.s.ext.Rebind(query), args...)
	return out, err
}

// StreamStore handles stream records.
type StreamStore struct {
	s *Store
}

// Streams returns the stream store view.
func (s *Store) Streams() StreamStore {
	return StreamStore{s: s}
}

// Add inserts a new stream.
func (ss StreamStore) Add(ctx context.Context, f Fields) error {
	return ss.s.add(ctx, streamsTable, f)
}

// Find returns streams matching the query.
func (ss StreamStore) Find(ctx context.Context, q Query) ([]Stream, error) {
	var out []Stream
	err := ss.s.find(ctx, streamsTable, &out, q)
	return out, err
}

// Update modifies all streams matching the filters.
func (ss StreamStore) Update(ctx context.Context, filters []Filter, f Fields) (int64, error) {
	return ss.s.update(ctx, streamsTable, filters, f)
}

// Upsert inserts or updates a stream keyed on external_id.
func (ss StreamStore) Upsert(ctx context.Context, f Fields) error {
	return ss.s.upsert(ctx, streamsTable, []string{"external_id"}, f)
}

// Delete removes all streams matching the filters.
func (ss StreamStore) Delete(ctx context.Context, filters ...Filter) (int64, error) {
	return ss.s.deleteRows(ctx, streamsTable, filters)
}

// ActiveOrReady returns the community's READY and ACTIVE streams produced by
// the given adapter.
func (ss StreamStore) ActiveOrReady(ctx context.Context, communityID, schedulerType string) ([]Stream, error) {
	return ss.Find(ctx, Query{
		Filters: []Filter{
			Where("community_id", communityID),
			Where("scheduler_type", schedulerType),
			WhereOp("status", OpIn, []any{StatusReady, StatusActive}),
		},
	})
}

// IsNotFound reports whether err is the driver's no-rows sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
