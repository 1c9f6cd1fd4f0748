package events

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mr1hm/go-hazard-tasks/internal/logging"
	"github.com/mr1hm/go-hazard-tasks/internal/models"
)

const contMMIKey = "download/cont_mmi.json"

type usgsDetail struct {
	ID         string         `json:"id"`
	Properties usgsProperties `json:"properties"`
	Geometry   usgsGeometry   `json:"geometry"`
}

type usgsProperties struct {
	Mag      *float64                 `json:"mag"`
	Place    string                   `json:"place"`
	Time     int64                    `json:"time"` // unix millis
	Title    string                   `json:"title"`
	Products map[string][]usgsProduct `json:"products"`
}

type usgsProduct struct {
	Contents map[string]usgsContent `json:"contents"`
}

type usgsContent struct {
	URL string `json:"url"`
}

type usgsGeometry struct {
	Coordinates []float64 `json:"coordinates"` // [lon, lat, depth]
}

// USGSClient looks up earthquakes in the FDSN event service and reads their
// ShakeMap intensity contours.
type USGSClient struct {
	eventURL string
	client   *http.Client
	log      *slog.Logger
}

func NewUSGSClient(eventURL string, timeout time.Duration) *USGSClient {
	return &USGSClient{
		eventURL: eventURL,
		client: &http.Client{
			Timeout: timeout,
		},
		log: logging.Component("usgs"),
	}
}

func (c *USGSClient) detail(ctx context.Context, eventID string) (*usgsDetail, error) {
	q := url.Values{}
	q.Set("format", "geojson")
	q.Set("eventid", eventID)

	var d usgsDetail
	if err := getJSON(ctx, c.client, "usgs_event", c.eventURL+"?"+q.Encode(), &d); err != nil {
		return nil, fmt.Errorf("usgs event %s: %w", eventID, err)
	}
	if len(d.Geometry.Coordinates) < 2 {
		return nil, fmt.Errorf("%w: usgs event %s has no coordinates", models.ErrEventNotFound, eventID)
	}
	return &d, nil
}

func (c *USGSClient) Lookup(ctx context.Context, eventID string) (*models.Event, error) {
	d, err := c.detail(ctx, eventID)
	if err != nil {
		return nil, err
	}

	id := d.ID
	if id == "" {
		id = eventID
	}
	return &models.Event{
		ID:        id,
		Type:      models.EventTypeEarthquake,
		Magnitude: d.Properties.Mag,
		Longitude: d.Geometry.Coordinates[0],
		Latitude:  d.Geometry.Coordinates[1],
		Time:      time.UnixMilli(d.Properties.Time).UTC(),
		Location:  d.Properties.Place,
		Country:   countryFromPlace(d.Properties.Place),
	}, nil
}

// IntensityContours returns the MMI contours of the latest ShakeMap. Events
// without a ShakeMap yield no contours and no error.
func (c *USGSClient) IntensityContours(ctx context.Context, eventID string) ([]models.IntensityContour, error) {
	d, err := c.detail(ctx, eventID)
	if err != nil {
		return nil, err
	}

	shakemaps := d.Properties.Products["shakemap"]
	if len(shakemaps) == 0 {
		return nil, nil
	}
	contURL := shakemaps[0].Contents[contMMIKey].URL
	if contURL == "" {
		return nil, nil
	}

	var fc geojson.FeatureCollection
	if err := getJSON(ctx, c.client, "usgs_contours", contURL, &fc); err != nil {
		return nil, fmt.Errorf("shakemap contours for %s: %w", eventID, err)
	}

	contours := make([]models.IntensityContour, 0, len(fc.Features))
	for _, f := range fc.Features {
		value, ok := f.Properties["value"].(float64)
		if !ok {
			continue
		}
		lines := linesOf(f.Geometry)
		if len(lines) == 0 {
			continue
		}
		contours = append(contours, models.IntensityContour{Value: value, Lines: lines})
	}

	c.log.Debug("intensity contours fetched", "event_id", eventID, "contours", len(contours))
	return contours, nil
}

func linesOf(g orb.Geometry) []orb.LineString {
	switch v := g.(type) {
	case orb.LineString:
		return []orb.LineString{v}
	case orb.MultiLineString:
		return v
	case orb.Polygon:
		lines := make([]orb.LineString, 0, len(v))
		for _, r := range v {
			lines = append(lines, orb.LineString(r))
		}
		return lines
	case orb.MultiPolygon:
		var lines []orb.LineString
		for _, p := range v {
			for _, r := range p {
				lines = append(lines, orb.LineString(r))
			}
		}
		return lines
	default:
		return nil
	}
}

// countryFromPlace takes the last comma separated part of a USGS place
// string, e.g. "26 km E of Nurdağı, Turkey" -> "Turkey".
func countryFromPlace(place string) string {
	i := strings.LastIndex(place, ",")
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(place[i+1:])
}
