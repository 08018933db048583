package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/leandrocl/kafka-correlation-monitor/internal/config"
	"github.com/leandrocl/kafka-correlation-monitor/internal/domain/event"
	"github.com/leandrocl/kafka-correlation-monitor/internal/usecase"

	"github.com/go-chi/chi/v5"
)

type Handlers struct {
	queries *usecase.QueryEvents
	produce *usecase.ProduceMessage
	pairs   []config.TopicPair
}

func NewHandlers(queries *usecase.QueryEvents, produce *usecase.ProduceMessage, pairs []config.TopicPair) *Handlers {
	return &Handlers{
		queries: queries,
		produce: produce,
		pairs:   pairs,
	}
}

func (h *Handlers) GetAllEvents(w http.ResponseWriter, r *http.Request) {
	page, size := pagination(r)

	result, err := h.queries.GetAll(r.Context(), page, size)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) GetEventsWithOffset(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 10)

	result, err := h.queries.GetAllWithOffset(r.Context(), offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) GetEventsByTopic(w http.ResponseWriter, r *http.Request) {
	topicName := r.URL.Query().Get("topic_name")
	if topicName == "" {
		http.Error(w, "missing topic_name", http.StatusBadRequest)
		return
	}
	page, size := pagination(r)

	result, err := h.queries.GetByTopicName(r.Context(), topicName, page, size)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) GetEventsByKey(w http.ResponseWriter, r *http.Request) {
	keyName := r.URL.Query().Get("key_of_interest_name")
	if keyName == "" {
		http.Error(w, "missing key_of_interest_name", http.StatusBadRequest)
		return
	}
	page, size := pagination(r)

	result, err := h.queries.GetByKeyOfInterestName(r.Context(), keyName, page, size)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) GetEventsByTopicAndKey(w http.ResponseWriter, r *http.Request) {
	topicName := r.URL.Query().Get("topic_name")
	keyName := r.URL.Query().Get("key_of_interest_name")
	if topicName == "" || keyName == "" {
		http.Error(w, "missing topic_name or key_of_interest_name", http.StatusBadRequest)
		return
	}
	page, size := pagination(r)

	result, err := h.queries.GetByTopicNameAndKeyOfInterestName(r.Context(), topicName, keyName, page, size)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) GetEventsByDateRange(w http.ResponseWriter, r *http.Request) {
	start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start_time"))
	if err != nil {
		http.Error(w, "invalid start_time, expected RFC3339", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.RFC3339, r.URL.Query().Get("end_time"))
	if err != nil {
		http.Error(w, "invalid end_time, expected RFC3339", http.StatusBadRequest)
		return
	}
	page, size := pagination(r)

	result, err := h.queries.GetByCreatedAtBetween(r.Context(), start, end, page, size)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) GetEventStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queries.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *Handlers) GetEventByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid event id", http.StatusBadRequest)
		return
	}

	e, err := h.queries.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, e)
}

func (h *Handlers) DeleteEventByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid event id", http.StatusBadRequest)
		return
	}

	if err := h.queries.DeleteByID(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deleted": true,
		"id":      id,
	})
}

func (h *Handlers) ProduceMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic   string `json:"topic"`
		Key     string `json:"key"`
		Message string `json:"message"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Topic == "" || req.Message == "" {
		http.Error(w, "topic and message are required", http.StatusBadRequest)
		return
	}

	key, err := h.produce.Execute(r.Context(), req.Topic, req.Key, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "sent",
		"topic":  req.Topic,
		"key":    key,
	})
}

func (h *Handlers) GetConfiguredTopics(w http.ResponseWriter, r *http.Request) {
	type pairInfo struct {
		Name                    string `json:"name"`
		CorrelatedTopic         string `json:"correlated_topic"`
		ConsumerGroup           string `json:"consumer_group"`
		CorrelatedConsumerGroup string `json:"correlated_consumer_group"`
		KeyOfInterest           string `json:"key_of_interest"`
		CorrelatedKeyOfInterest string `json:"correlated_key_of_interest"`
	}

	infos := make([]pairInfo, 0, len(h.pairs))
	for _, p := range h.pairs {
		infos = append(infos, pairInfo{
			Name:                    p.Name,
			CorrelatedTopic:         p.CorrelatedTopic,
			ConsumerGroup:           p.ConsumerGroup,
			CorrelatedConsumerGroup: p.CorrelatedConsumerGroup(),
			KeyOfInterest:           p.KeyOfInterest,
			CorrelatedKeyOfInterest: p.CorrelatedKeyOfInterest,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pairs": infos,
		"count": len(infos),
	})
}

func pagination(r *http.Request) (page, size int) {
	return queryInt(r, "page", 0), queryInt(r, "size", 10)
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, event.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
