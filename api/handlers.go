package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"tidbyt.dev/ztm"
	"tidbyt.dev/ztm/model"
	"tidbyt.dev/ztm/parse"
	"tidbyt.dev/ztm/storage"
)

const DefaultNearbyLimit = 10

// ErrorResponse is the JSON error response structure
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type FeedResponse struct {
	URL         string    `json:"url"`
	Hash        string    `json:"hash"`
	RetrievedAt time.Time `json:"retrievedAt"`
	StopGroups  int       `json:"stopGroups"`
	Stops       int       `json:"stops"`
	Edges       int       `json:"edges"`
}

type HealthResponse struct {
	Status string        `json:"status"`
	Feed   *FeedResponse `json:"feed,omitempty"`
	Error  string        `json:"error,omitempty"`
}

type GroupResponse struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type StopResponse struct {
	ID        string   `json:"id"`
	GroupID   string   `json:"groupId"`
	GroupName string   `json:"groupName"`
	Street    string   `json:"street"`
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
}

type EdgeResponse struct {
	Route       string `json:"route"`
	From        string `json:"from"`
	To          string `json:"to"`
	StartTime   int    `json:"startTime"`
	EndTime     int    `json:"endTime"`
	TimeBetween int    `json:"timeBetween"`
	Departure   string `json:"departure"`
	Arrival     string `json:"arrival"`
	Type        string `json:"type"`
}

type EdgePairResponse struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func newList[T any](items []T) ListResponse[T] {
	return ListResponse[T]{Items: items, Count: len(items)}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := ErrorResponse{Error: msg}
	if err != nil {
		resp.Details = map[string]interface{}{"internal": err.Error()}
	}
	writeJSON(w, status, resp)
}

// Loads the feed, writing an error response on failure.
func (s *Server) feed(w http.ResponseWriter) (*ztm.Feed, bool) {
	feed, err := s.loader.LoadLatest()
	if errors.Is(err, ztm.ErrNoFeed) {
		writeError(w, http.StatusServiceUnavailable, "No feed has been imported", nil)
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load feed", err)
		return nil, false
	}
	return feed, true
}

func toStopResponse(stop *model.Stop) StopResponse {
	return StopResponse{
		ID:        stop.ID,
		GroupID:   stop.GroupID(),
		GroupName: stop.GroupName,
		Street:    stop.Street,
		Lat:       stop.Lat,
		Lon:       stop.Lon,
	}
}

func toEdgeResponses(edges []*model.Edge) []EdgeResponse {
	resp := make([]EdgeResponse, 0, len(edges))
	for _, e := range edges {
		resp = append(resp, EdgeResponse{
			Route:       e.Route,
			From:        e.From,
			To:          e.To,
			StartTime:   e.StartTime,
			EndTime:     e.EndTime,
			TimeBetween: e.TimeBetween,
			Departure:   model.FormatMinutes(e.StartTime),
			Arrival:     model.FormatMinutes(e.EndTime),
			Type:        e.Type,
		})
	}
	return resp
}

// GetHealth handles GET /health
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	feed, err := s.loader.LoadLatest()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "error",
			Error:  err.Error(),
		})
		return
	}

	m := feed.Metadata
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Feed: &FeedResponse{
			URL:         m.URL,
			Hash:        m.Hash,
			RetrievedAt: m.RetrievedAt,
			StopGroups:  m.StopGroups,
			Stops:       m.Stops,
			Edges:       m.Edges,
		},
	})
}

// GetGroups handles GET /api/groups
func (s *Server) GetGroups(w http.ResponseWriter, r *http.Request) {
	feed, ok := s.feed(w)
	if !ok {
		return
	}

	groups, err := feed.Reader.StopGroups()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve stop groups", err)
		return
	}

	resp := make([]GroupResponse, 0, len(groups))
	for _, g := range groups {
		resp = append(resp, GroupResponse{ID: g.ID, Name: g.Name})
	}
	writeJSON(w, http.StatusOK, newList(resp))
}

// GetStops handles GET /api/stops
func (s *Server) GetStops(w http.ResponseWriter, r *http.Request) {
	feed, ok := s.feed(w)
	if !ok {
		return
	}

	stops, err := feed.Reader.Stops()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve stops", err)
		return
	}

	resp := make([]StopResponse, 0, len(stops))
	for _, stop := range stops {
		resp = append(resp, toStopResponse(stop))
	}
	writeJSON(w, http.StatusOK, newList(resp))
}

// GetStop handles GET /api/stops/{stopID}
func (s *Server) GetStop(w http.ResponseWriter, r *http.Request) {
	stopID := chi.URLParam(r, "stopID")

	feed, ok := s.feed(w)
	if !ok {
		return
	}

	stop, err := feed.Reader.Stop(stopID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve stop", err)
		return
	}
	if stop == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error:   "Stop not found",
			Details: map[string]interface{}{"stopId": stopID},
		})
		return
	}

	writeJSON(w, http.StatusOK, toStopResponse(stop))
}

// GetNearbyStops handles GET /api/stops/nearby?lat=&lon=&limit=
func (s *Server) GetNearbyStops(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	if errLat != nil || errLon != nil {
		writeError(w, http.StatusBadRequest, "lat and lon must be numbers", nil)
		return
	}

	limit := DefaultNearbyLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer", nil)
			return
		}
		limit = n
	}

	feed, ok := s.feed(w)
	if !ok {
		return
	}

	stops, err := feed.NearbyStops(lat, lon, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve nearby stops", err)
		return
	}

	resp := make([]StopResponse, 0, len(stops))
	for _, stop := range stops {
		resp = append(resp, toStopResponse(stop))
	}
	writeJSON(w, http.StatusOK, newList(resp))
}

// GetDepartures handles GET /api/stops/{stopID}/departures?from=HH.MM&to=HH.MM
func (s *Server) GetDepartures(w http.ResponseWriter, r *http.Request) {
	stopID := chi.URLParam(r, "stopID")
	q := r.URL.Query()

	start, end := 0, model.MinutesPerDay-1
	var err error
	if v := q.Get("from"); v != "" {
		start, err = parse.ParseTime(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be HH.MM", nil)
			return
		}
	}
	if v := q.Get("to"); v != "" {
		end, err = parse.ParseTime(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to must be HH.MM", nil)
			return
		}
	}

	feed, ok := s.feed(w)
	if !ok {
		return
	}

	edges, err := feed.Departures(stopID, start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve departures", err)
		return
	}

	writeJSON(w, http.StatusOK, newList(toEdgeResponses(edges)))
}

// GetEdges handles GET /api/edges?route=&from=&to=
func (s *Server) GetEdges(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.EdgeFilter{
		Route:          q.Get("route"),
		From:           q.Get("from"),
		To:             q.Get("to"),
		DepartureStart: -1,
		DepartureEnd:   -1,
	}

	feed, ok := s.feed(w)
	if !ok {
		return
	}

	edges, err := feed.Reader.Edges(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve edges", err)
		return
	}

	writeJSON(w, http.StatusOK, newList(toEdgeResponses(edges)))
}

// GetSimpleEdges handles GET /api/edges/simple
func (s *Server) GetSimpleEdges(w http.ResponseWriter, r *http.Request) {
	feed, ok := s.feed(w)
	if !ok {
		return
	}

	pairs, err := feed.SimpleEdgeList()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve simple edges", err)
		return
	}

	resp := make([]EdgePairResponse, 0, len(pairs))
	for _, p := range pairs {
		resp = append(resp, EdgePairResponse{From: p.From, To: p.To})
	}
	writeJSON(w, http.StatusOK, newList(resp))
}
