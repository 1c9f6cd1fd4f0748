package events

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/mr1hm/go-hazard-tasks/internal/logging"
	"github.com/mr1hm/go-hazard-tasks/internal/models"
)

var gdacsTimeLayouts = []string{
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC1123,
}

type gdacsEvent struct {
	Geometry   gdacsGeometry   `json:"geometry"`
	Properties gdacsProperties `json:"properties"`
}

type gdacsGeometry struct {
	Coordinates []float64 `json:"coordinates"` // [lon, lat]
}

type gdacsProperties struct {
	EventType   string `json:"eventtype"`
	EventID     any    `json:"eventid"` // number or string depending on endpoint
	Name        string `json:"name"`
	Description string `json:"description"`
	FromDate    string `json:"fromdate"`
	Country     string `json:"country"`
	AlertLevel  string `json:"alertlevel"`
}

// GDACSClient looks up flood events in the GDACS event data API.
type GDACSClient struct {
	eventURL string
	client   *http.Client
	log      *slog.Logger
}

func NewGDACSClient(eventURL string, timeout time.Duration) *GDACSClient {
	return &GDACSClient{
		eventURL: eventURL,
		client: &http.Client{
			Timeout: timeout,
		},
		log: logging.Component("gdacs"),
	}
}

func (c *GDACSClient) Lookup(ctx context.Context, eventID string) (*models.Event, error) {
	q := url.Values{}
	q.Set("eventtype", "FL")
	q.Set("eventid", eventID)

	var e gdacsEvent
	if err := getJSON(ctx, c.client, "gdacs_event", c.eventURL+"?"+q.Encode(), &e); err != nil {
		return nil, fmt.Errorf("gdacs event %s: %w", eventID, err)
	}
	if len(e.Geometry.Coordinates) < 2 {
		return nil, fmt.Errorf("%w: gdacs event %s has no coordinates", models.ErrEventNotFound, eventID)
	}

	var when time.Time
	for _, layout := range gdacsTimeLayouts {
		if t, err := time.Parse(layout, e.Properties.FromDate); err == nil {
			when = t.UTC()
			break
		}
	}
	if when.IsZero() {
		c.log.Warn("GDACS timestamp parsing failed", "id", eventID, "fromdate", e.Properties.FromDate)
	}

	location := e.Properties.Name
	if location == "" {
		location = e.Properties.Description
	}

	return &models.Event{
		ID:        eventID,
		Type:      models.EventTypeFlood,
		Longitude: e.Geometry.Coordinates[0],
		Latitude:  e.Geometry.Coordinates[1],
		Time:      when,
		Location:  location,
		Country:   e.Properties.Country,
	}, nil
}
