// Package gcal implements the calendar fetch interface against the
// Google Calendar API, using sync tokens for incremental reads.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/clinicbook/clinicbook/internal/domain/calendarsync"
)

const maxResultsPerPage = 250

// Client reads clinician calendars from Google. It satisfies
// calendarsync.Fetcher.
type Client struct {
	oauth   *oauth2.Config
	loc     *time.Location
	timeout time.Duration
	logger  zerolog.Logger
	now     func() time.Time
}

func NewClient(clientID, clientSecret string, loc *time.Location, timeout time.Duration, logger zerolog.Logger) *Client {
	if loc == nil {
		loc = time.UTC
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{calendar.CalendarReadonlyScope},
		},
		loc:     loc,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// fullWindow computes the TimeMin/TimeMax pair for a cursor-less fetch.
// Called exactly once per listing; every page of that listing must carry
// the identical pair.
func (c *Client) fullWindow(windowDays int) (timeMin, timeMax string) {
	now := c.now().In(c.loc)
	return now.Format(time.RFC3339), now.AddDate(0, 0, windowDays).Format(time.RFC3339)
}

// Fetch pulls events from the clinician's calendar. With a cursor it asks
// Google for changes since that cursor; without one it reads the full
// forward-looking window. A 410 from the API means the cursor is too old
// and surfaces as calendarsync.ErrCursorExpired.
func (c *Client) Fetch(ctx context.Context, cred calendarsync.Credential, windowDays int, cursor string) (*calendarsync.FetchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// Token expiry is not persisted, so the stored access token is treated
	// as expired and refreshed up front on every cycle.
	ts := c.oauth.TokenSource(ctx, &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	})

	svc, err := calendar.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("build calendar service: %w", err)
	}

	calendarID := cred.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}

	var timeMin, timeMax string
	if cursor == "" {
		timeMin, timeMax = c.fullWindow(windowDays)
	}

	result := &calendarsync.FetchResult{Incremental: cursor != ""}
	pageToken := ""
	for {
		call := svc.Events.List(calendarID).
			SingleEvents(true).
			MaxResults(maxResultsPerPage).
			Context(ctx)
		if cursor != "" {
			call = call.SyncToken(cursor).ShowDeleted(true)
		} else {
			call = call.TimeMin(timeMin).TimeMax(timeMax)
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		page, err := call.Do()
		if err != nil {
			var gerr *googleapi.Error
			if errors.As(err, &gerr) && gerr.Code == http.StatusGone {
				return nil, calendarsync.ErrCursorExpired
			}
			return nil, fmt.Errorf("list calendar events: %w", err)
		}

		for _, item := range page.Items {
			if item.Status == "cancelled" || item.Transparency == "transparent" {
				continue
			}
			result.Events = append(result.Events, calendarsync.ExternalEvent{
				ID:         item.Id,
				Summary:    item.Summary,
				Start:      c.eventTime(item.Start),
				End:        c.eventTime(item.End),
				CalendarID: calendarID,
			})
		}

		if page.NextPageToken == "" {
			result.NextCursor = page.NextSyncToken
			break
		}
		pageToken = page.NextPageToken
	}

	// Surface refreshed token material so the caller can persist it.
	tok, err := ts.Token()
	if err == nil && tok.AccessToken != cred.AccessToken {
		refreshed := cred
		refreshed.AccessToken = tok.AccessToken
		if tok.RefreshToken != "" {
			refreshed.RefreshToken = tok.RefreshToken
		}
		result.Credential = refreshed
		result.TokenRefreshed = true
	}

	c.logger.Debug().
		Str("clinician_id", cred.ClinicianID.String()).
		Bool("incremental", result.Incremental).
		Int("events", len(result.Events)).
		Msg("calendar fetch completed")
	return result, nil
}

// eventTime converts a Google event boundary to an instant. Timed events
// carry RFC3339 datetimes; all-day events carry a bare date, which is
// anchored at local midnight so the whole day reads as busy. A zero
// return marks the boundary as malformed.
func (c *Client) eventTime(dt *calendar.EventDateTime) time.Time {
	if dt == nil {
		return time.Time{}
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return time.Time{}
		}
		return t
	}
	if dt.Date != "" {
		t, err := time.ParseInLocation("2006-01-02", dt.Date, c.loc)
		if err != nil {
			return time.Time{}
		}
		return t
	}
	return time.Time{}
}
