// Package calendar implements the REST client for the external calendar
// provider. Authentication is delegated to a TokenSource collaborator that
// either yields a currently valid bearer credential or reports that none
// exists.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

var (
	// ErrNoValidToken signals that the token collaborator has no usable
	// credential. Sync halts for the run and the user must re-authenticate.
	ErrNoValidToken = errors.New("calendar: no valid token")
	// ErrAuthExpired indicates the provider rejected the credential.
	ErrAuthExpired = errors.New("calendar: authorization expired")
	// ErrRateLimited indicates the provider throttled the request (403/429).
	// Callers retry with exponential backoff.
	ErrRateLimited = errors.New("calendar: rate limited")
	// ErrRemoteUnavailable indicates a provider-side failure (5xx).
	ErrRemoteUnavailable = errors.New("calendar: remote unavailable")
)

// TokenSource supplies bearer credentials per user.
type TokenSource interface {
	Token(ctx context.Context, userID string) (string, error)
}

// EventTime is either a timed instant or a date-only value for all-day
// events, mirroring the provider's wire shape.
type EventTime struct {
	DateTime *time.Time `json:"dateTime,omitempty"`
	Date     string     `json:"date,omitempty"`
}

// Timed builds a timed EventTime.
func Timed(t time.Time) EventTime {
	return EventTime{DateTime: &t}
}

// AllDay builds a date-only EventTime.
func AllDay(t time.Time) EventTime {
	return EventTime{Date: t.Format("2006-01-02")}
}

// Resolve converts the wire value into a concrete instant. Date-only values
// resolve to midnight in the supplied location; the boolean reports whether
// the value was date-only.
func (et EventTime) Resolve(loc *time.Location) (time.Time, bool, error) {
	if et.DateTime != nil {
		return *et.DateTime, false, nil
	}
	if et.Date == "" {
		return time.Time{}, false, errors.New("calendar: event time has neither dateTime nor date")
	}
	if loc == nil {
		loc = time.UTC
	}
	parsed, err := time.ParseInLocation("2006-01-02", et.Date, loc)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("calendar: invalid date %q: %w", et.Date, err)
	}
	return parsed, true, nil
}

// Attendee is a meeting participant on the provider side.
type Attendee struct {
	Email string `json:"email"`
}

// ConferenceRequest asks the provider to attach web conferencing to an event.
type ConferenceRequest struct {
	RequestID string `json:"requestId"`
}

// Event is the provider's event shape.
type Event struct {
	ID                string             `json:"id,omitempty"`
	Status            string             `json:"status,omitempty"`
	Title             string             `json:"summary"`
	Description       string             `json:"description,omitempty"`
	Location          string             `json:"location,omitempty"`
	Start             EventTime          `json:"start"`
	End               EventTime          `json:"end"`
	Attendees         []Attendee         `json:"attendees,omitempty"`
	ConferenceRequest *ConferenceRequest `json:"conferenceData,omitempty"`
}

// StatusCancelled is the provider's status value for cancelled events.
const StatusCancelled = "cancelled"

// Client talks to the external calendar provider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
}

// NewClient constructs a provider client. When httpClient is nil a client
// with a 30 second timeout is used.
func NewClient(baseURL string, tokens TokenSource, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		tokens:     tokens,
	}
}

type listEventsResponse struct {
	Items []Event `json:"items"`
}

// ListEvents fetches events for the user's calendar intersecting
// [timeMin, timeMax), excluding cancelled ones.
func (c *Client) ListEvents(ctx context.Context, userID string, timeMin, timeMax time.Time) ([]Event, error) {
	query := url.Values{}
	query.Set("timeMin", timeMin.UTC().Format(time.RFC3339))
	query.Set("timeMax", timeMax.UTC().Format(time.RFC3339))
	query.Set("singleEvents", "true")

	endpoint := fmt.Sprintf("%s/calendars/%s/events?%s", c.baseURL, url.PathEscape(userID), query.Encode())

	var response listEventsResponse
	if err := c.do(ctx, userID, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(response.Items))
	for _, event := range response.Items {
		if event.Status == StatusCancelled {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// CreateEvent creates a single event and returns the provider's record of it.
func (c *Client) CreateEvent(ctx context.Context, userID string, event Event) (Event, error) {
	endpoint := fmt.Sprintf("%s/calendars/%s/events", c.baseURL, url.PathEscape(userID))

	var created Event
	if err := c.do(ctx, userID, http.MethodPost, endpoint, event, &created); err != nil {
		return Event{}, err
	}
	return created, nil
}

// UpdateEvent replaces an event by provider id.
func (c *Client) UpdateEvent(ctx context.Context, userID, eventID string, event Event) (Event, error) {
	endpoint := fmt.Sprintf("%s/calendars/%s/events/%s", c.baseURL, url.PathEscape(userID), url.PathEscape(eventID))

	var updated Event
	if err := c.do(ctx, userID, http.MethodPut, endpoint, event, &updated); err != nil {
		return Event{}, err
	}
	return updated, nil
}

// DeleteEvent removes an event by provider id.
func (c *Client) DeleteEvent(ctx context.Context, userID, eventID string) error {
	endpoint := fmt.Sprintf("%s/calendars/%s/events/%s", c.baseURL, url.PathEscape(userID), url.PathEscape(eventID))
	return c.do(ctx, userID, http.MethodDelete, endpoint, nil, nil)
}

func (c *Client) do(ctx context.Context, userID, method, endpoint string, body, out any) error {
	token, err := c.tokens.Token(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoValidToken) {
			return err
		}
		return fmt.Errorf("calendar: failed to obtain token: %w", err)
	}
	if token == "" {
		return ErrNoValidToken
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("calendar: failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("calendar: failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calendar: request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		return err
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("calendar: failed to decode response: %w", err)
	}
	return nil
}

// statusError maps provider status codes to the sync error taxonomy.
func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized:
		return fmt.Errorf("%w (status %d)", ErrAuthExpired, code)
	case code == http.StatusForbidden || code == http.StatusTooManyRequests:
		return fmt.Errorf("%w (status %d)", ErrRateLimited, code)
	case code >= 500:
		return fmt.Errorf("%w (status %d)", ErrRemoteUnavailable, code)
	default:
		return fmt.Errorf("calendar: unexpected status %d", code)
	}
}
