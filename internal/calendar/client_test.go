package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type staticTokenSource struct {
	token string
	err   error
}

func (s staticTokenSource) Token(ctx context.Context, userID string) (string, error) {
	return s.token, s.err
}

func TestClient_ListEventsFiltersCancelled(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("Authorization = %q", got)
		}
		if r.URL.Query().Get("timeMin") == "" || r.URL.Query().Get("timeMax") == "" {
			t.Error("missing time bounds")
		}

		start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
		end := start.Add(time.Hour)
		json.NewEncoder(w).Encode(listEventsResponse{Items: []Event{
			{ID: "ev-1", Title: "Standup", Start: Timed(start), End: Timed(end)},
			{ID: "ev-2", Title: "Ghost", Status: StatusCancelled, Start: Timed(start), End: Timed(end)},
		}})
	}))
	defer server.Close()

	client := NewClient(server.URL, staticTokenSource{token: "token-1"}, server.Client())

	events, err := client.ListEvents(context.Background(), "user-1",
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].ID != "ev-1" {
		t.Fatalf("expected only the active event, got %+v", events)
	}
}

func TestClient_StatusCodeMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized maps to auth expired", http.StatusUnauthorized, ErrAuthExpired},
		{"forbidden maps to rate limited", http.StatusForbidden, ErrRateLimited},
		{"too many requests maps to rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"server error maps to remote unavailable", http.StatusBadGateway, ErrRemoteUnavailable},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			client := NewClient(server.URL, staticTokenSource{token: "token-1"}, server.Client())
			_, err := client.ListEvents(context.Background(), "user-1", time.Now(), time.Now().Add(time.Hour))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestClient_NoTokenHaltsBeforeRequest(t *testing.T) {
	t.Parallel()

	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := NewClient(server.URL, staticTokenSource{err: ErrNoValidToken}, server.Client())
	_, err := client.ListEvents(context.Background(), "user-1", time.Now(), time.Now().Add(time.Hour))
	if !errors.Is(err, ErrNoValidToken) {
		t.Fatalf("expected ErrNoValidToken, got %v", err)
	}
	if called {
		t.Fatal("request must not reach the provider without a token")
	}
}

func TestClient_CreateEventRoundTrip(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		var event Event
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		if event.Title != "Planning" {
			t.Errorf("Title = %q", event.Title)
		}
		event.ID = "remote-1"
		json.NewEncoder(w).Encode(event)
	}))
	defer server.Close()

	client := NewClient(server.URL, staticTokenSource{token: "token-1"}, server.Client())

	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	created, err := client.CreateEvent(context.Background(), "user-1", Event{
		Title:     "Planning",
		Start:     Timed(start),
		End:       Timed(start.Add(time.Hour)),
		Attendees: []Attendee{{Email: "user-1@example.com"}},
	})
	if err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	if created.ID != "remote-1" {
		t.Fatalf("ID = %q", created.ID)
	}
}

func TestEventTime_Resolve(t *testing.T) {
	t.Parallel()

	t.Run("timed", func(t *testing.T) {
		t.Parallel()
		instant := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
		got, allDay, err := Timed(instant).Resolve(time.UTC)
		if err != nil || allDay || !got.Equal(instant) {
			t.Fatalf("Resolve = %v %v %v", got, allDay, err)
		}
	})

	t.Run("date only", func(t *testing.T) {
		t.Parallel()
		got, allDay, err := (EventTime{Date: "2024-03-04"}).Resolve(time.UTC)
		if err != nil || !allDay {
			t.Fatalf("Resolve err=%v allDay=%v", err, allDay)
		}
		if got.Hour() != 0 || got.Day() != 4 {
			t.Fatalf("Resolve = %v", got)
		}
	})

	t.Run("empty is an error", func(t *testing.T) {
		t.Parallel()
		if _, _, err := (EventTime{}).Resolve(time.UTC); err == nil {
			t.Fatal("expected error for empty event time")
		}
	})
}
