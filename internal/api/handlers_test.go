package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/leandrocl/kafka-correlation-monitor/internal/config"
	"github.com/leandrocl/kafka-correlation-monitor/internal/domain/event"
	"github.com/leandrocl/kafka-correlation-monitor/internal/domain/event/mocks"
	"github.com/leandrocl/kafka-correlation-monitor/internal/usecase"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.Run()
}

func newTestServer(t *testing.T, repo *mocks.EventRepository) *httptest.Server {
	t.Helper()
	queries := usecase.NewQueryEvents(nil, repo)
	handlers := NewHandlers(queries, nil, []config.TopicPair{{
		Name:                    "orders",
		CorrelatedTopic:         "orders-correlated",
		ConsumerGroup:           "orders-group",
		KeyOfInterest:           "orderId",
		CorrelatedKeyOfInterest: "correlationId",
	}})
	srv := httptest.NewServer(NewRouter(handlers, nil))
	t.Cleanup(srv.Close)
	return srv
}

func seedRepo(t *testing.T, repo *mocks.EventRepository, n int) []*event.InterestingEvent {
	t.Helper()
	var saved []*event.InterestingEvent
	base := time.Now().UTC().Add(-time.Duration(n) * time.Minute)
	for i := 0; i < n; i++ {
		e := event.New("orders", "orderId", fmt.Sprintf("o%d", i+1))
		e.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := repo.Save(context.Background(), e); err != nil {
			t.Fatalf("save: %v", err)
		}
		saved = append(saved, e)
	}
	return saved
}

func getJSON(t *testing.T, url string, wantStatus int, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s: expected status %d, got %d", url, wantStatus, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
}

func TestGetAllEvents(t *testing.T) {
	repo := &mocks.EventRepository{}
	seedRepo(t, repo, 3)
	srv := newTestServer(t, repo)

	var page usecase.EventsPage
	getJSON(t, srv.URL+"/api/v1/interesting-events/?page=0&size=2", http.StatusOK, &page)

	if len(page.Events) != 2 || page.TotalElements != 3 || !page.HasNext {
		t.Errorf("unexpected page: %+v", page)
	}
	if page.Events[0].KeyOfInterestValue != "o3" {
		t.Errorf("expected newest event first, got %s", page.Events[0].KeyOfInterestValue)
	}
}

func TestGetEventByID(t *testing.T) {
	repo := &mocks.EventRepository{}
	saved := seedRepo(t, repo, 1)
	srv := newTestServer(t, repo)

	t.Run("found", func(t *testing.T) {
		var e event.InterestingEvent
		getJSON(t, fmt.Sprintf("%s/api/v1/interesting-events/%d", srv.URL, saved[0].ID), http.StatusOK, &e)
		if e.ID != saved[0].ID || e.IsCorrelated {
			t.Errorf("unexpected event: %+v", e)
		}
	})

	t.Run("not found", func(t *testing.T) {
		getJSON(t, srv.URL+"/api/v1/interesting-events/9999", http.StatusNotFound, nil)
	})

	t.Run("bad id", func(t *testing.T) {
		getJSON(t, srv.URL+"/api/v1/interesting-events/abc", http.StatusBadRequest, nil)
	})
}

func TestDeleteEventByID(t *testing.T) {
	repo := &mocks.EventRepository{}
	saved := seedRepo(t, repo, 1)
	srv := newTestServer(t, repo)

	url := fmt.Sprintf("%s/api/v1/interesting-events/%d", srv.URL, saved[0].ID)
	req, _ := http.NewRequest(http.MethodDelete, url, nil)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	// Second delete of the same id is a 404.
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestGetEventsByFilters(t *testing.T) {
	repo := &mocks.EventRepository{}
	seedRepo(t, repo, 2)
	srv := newTestServer(t, repo)

	t.Run("by topic", func(t *testing.T) {
		var page usecase.EventsPage
		getJSON(t, srv.URL+"/api/v1/interesting-events/by-topic?topic_name=orders", http.StatusOK, &page)
		if page.TotalElements != 2 {
			t.Errorf("expected 2 events, got %d", page.TotalElements)
		}
	})

	t.Run("by topic missing param", func(t *testing.T) {
		getJSON(t, srv.URL+"/api/v1/interesting-events/by-topic", http.StatusBadRequest, nil)
	})

	t.Run("by key", func(t *testing.T) {
		var page usecase.EventsPage
		getJSON(t, srv.URL+"/api/v1/interesting-events/by-key?key_of_interest_name=orderId", http.StatusOK, &page)
		if page.TotalElements != 2 {
			t.Errorf("expected 2 events, got %d", page.TotalElements)
		}
	})

	t.Run("by date range", func(t *testing.T) {
		start := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
		end := time.Now().UTC().Format(time.RFC3339)
		var page usecase.EventsPage
		getJSON(t, srv.URL+"/api/v1/interesting-events/by-date-range?start_time="+start+"&end_time="+end, http.StatusOK, &page)
		if page.TotalElements != 2 {
			t.Errorf("expected 2 events, got %d", page.TotalElements)
		}
	})

	t.Run("by date range bad timestamp", func(t *testing.T) {
		getJSON(t, srv.URL+"/api/v1/interesting-events/by-date-range?start_time=yesterday", http.StatusBadRequest, nil)
	})
}

func TestGetEventStats(t *testing.T) {
	repo := &mocks.EventRepository{}
	seedRepo(t, repo, 2)
	if _, err := repo.ClaimCorrelation(context.Background(), "orderId", "o1", "msg", time.Now().UTC()); err != nil {
		t.Fatalf("claim: %v", err)
	}
	srv := newTestServer(t, repo)

	var stats usecase.EventStats
	getJSON(t, srv.URL+"/api/v1/interesting-events/stats", http.StatusOK, &stats)
	if stats.TotalEvents != 2 || stats.MatchedEvents != 1 || stats.UnmatchedEvents != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestGetConfiguredTopics(t *testing.T) {
	repo := &mocks.EventRepository{}
	srv := newTestServer(t, repo)

	var body struct {
		Pairs []map[string]string `json:"pairs"`
		Count int                 `json:"count"`
	}
	getJSON(t, srv.URL+"/api/v1/kafka/consumers/topics", http.StatusOK, &body)
	if body.Count != 1 || len(body.Pairs) != 1 {
		t.Fatalf("unexpected body: %+v", body)
	}
	if body.Pairs[0]["correlated_consumer_group"] != "orders-group-correlated" {
		t.Errorf("unexpected pair: %+v", body.Pairs[0])
	}
}

func TestHealth(t *testing.T) {
	repo := &mocks.EventRepository{}
	srv := newTestServer(t, repo)
	getJSON(t, srv.URL+"/health", http.StatusOK, nil)
}
