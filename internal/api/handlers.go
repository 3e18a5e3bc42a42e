// Package api exposes the read endpoints consumed by external clients and
// peer instances.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/user/signalhub/internal/federation"
	"github.com/user/signalhub/internal/storage"
	"github.com/user/signalhub/pkg/logger"
)

// Handler serves the versioned read endpoints.
type Handler struct {
	db  *storage.Database
	log zerolog.Logger
}

// NewHandler creates the handler.
func NewHandler(db *storage.Database) *Handler {
	return &Handler{db: db, log: logger.With("api")}
}

// Router builds the route tree.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Get("/v{version:[12]}/events", h.getEvents)
	r.Get("/v{version:[12]}/communities", h.getCommunities)
	r.Get("/v{version:[12]}/communities/{id}", h.getCommunity)

	return r
}

// requestVersion reads the wire format version out of the route.
func requestVersion(r *http.Request) federation.Version {
	if chi.URLParam(r, "version") == "1" {
		return federation.V1
	}
	return federation.V2
}

// requestFormat resolves the format_type query parameter. The legacy version
// defaults to TEXT, newer versions to JSON.
func requestFormat(r *http.Request, version federation.Version) (string, bool) {
	format := r.URL.Query().Get("format_type")
	if format == "" {
		if version == federation.V1 {
			return "TEXT", true
		}
		return "JSON", true
	}
	if format != "TEXT" && format != "JSON" {
		return "", false
	}
	return format, true
}

func (h *Handler) getEvents(w http.ResponseWriter, r *http.Request) {
	version := requestVersion(r)
	format, ok := requestFormat(r, version)
	if !ok {
		http.Error(w, "Unsupported format", http.StatusBadRequest)
		return
	}

	var names []string
	if communities := r.URL.Query().Get("communities"); communities != "" {
		names = strings.Split(communities, ",")
	}

	events, err := h.db.Store().Events().ForFederation(r.Context(), names, time.Now().UTC())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query events")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	records := make([]federation.Record, 0, len(events))
	for _, e := range events {
		records = append(records, federation.FromEvent(e, version))
	}

	if format == "TEXT" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(federation.EncodeText(records, version)))
		return
	}

	body, err := federation.EncodeJSON(records, version)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode events")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// communityView is the community shape exposed over the API.
type communityView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Icon        string `json:"icon"`
	ExternalID  string `json:"external_id"`
	Platform    string `json:"platform"`
	Public      bool   `json:"public"`
	Configured  bool   `json:"configured"`
}

func viewFromCommunity(c *storage.Community) communityView {
	return communityView{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description(),
		URL:         c.URL,
		Icon:        c.Logo,
		ExternalID:  c.ExternalID,
		Platform:    string(c.Platform),
		Public:      c.HasTag("public"),
		Configured:  c.Configured,
	}
}

func (h *Handler) getCommunities(w http.ResponseWriter, r *http.Request) {
	version := requestVersion(r)
	format, ok := requestFormat(r, version)
	if !ok {
		http.Error(w, "Unsupported format", http.StatusBadRequest)
		return
	}

	platforms := make([]any, 0, len(storage.EventPlatforms()))
	for _, p := range storage.EventPlatforms() {
		platforms = append(platforms, p)
	}
	communities, err := h.db.Store().Communities().Find(r.Context(), storage.Query{
		Filters: []storage.Filter{storage.WhereOp("platform", storage.OpIn, platforms)},
		OrderBy: []string{"name"},
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query communities")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	if format == "TEXT" {
		fieldSep, recordSep := "\x1e", "\x1d"
		if version == federation.V1 {
			fieldSep, recordSep = "`", "\n"
		}
		lines := make([]string, 0, len(communities))
		for i := range communities {
			v := viewFromCommunity(&communities[i])
			lines = append(lines, strings.Join([]string{v.Name, v.Description, v.URL, v.Icon}, fieldSep))
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(strings.Join(lines, recordSep)))
		return
	}

	views := make([]communityView, 0, len(communities))
	for i := range communities {
		views = append(views, viewFromCommunity(&communities[i]))
	}
	h.writeJSON(w, views)
}

func (h *Handler) getCommunity(w http.ResponseWriter, r *http.Request) {
	community, err := h.db.Store().Communities().FindOne(r.Context(), storage.Where("id", chi.URLParam(r, "id")))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query community")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if community == nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, viewFromCommunity(community))
}

func (h *Handler) writeJSON(w http.ResponseWriter, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}
