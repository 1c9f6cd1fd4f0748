package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"

	"github.com/mr1hm/go-hazard-tasks/internal/models"
)

type resolveOptions struct {
	eventID   string
	eventType string
	analysis  string
	lat       float64
	lon       float64
	magnitude float64
	time      string
	level     string
}

// resolveOutput is what the resolve command prints.
type resolveOutput struct {
	Event      models.Event       `json:"event"`
	Analysis   string             `json:"analysis"`
	Filename   string             `json:"filename"`
	AOI        *geojson.Feature   `json:"aoi"`
	Resolution *models.Resolution `json:"resolution"`
	Error      string             `json:"error,omitempty"`
}

func newResolveCommand() *cobra.Command {
	return resolveCommand(&resolveOptions{})
}

func resolveCommand(opts *resolveOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve AOI, scenes and pairs for an event without creating a task",
		Long: `Resolve runs AOI derivation, scene selection and baseline matching for one
event and prints the result as JSON, with the AOI as a GeoJSON feature.
Nothing is stored or dispatched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.eventID, "event-id", "", "source event id, e.g. us6000jlqa")
	f.StringVar(&opts.eventType, "event-type", "earthquake", "earthquake|flood")
	f.StringVar(&opts.analysis, "analysis", "interferogram", "interferogram|changedetection|damageassessment|inundation")
	f.Float64Var(&opts.lat, "lat", 0, "epicenter latitude; skips the event lookup together with --lon and --time")
	f.Float64Var(&opts.lon, "lon", 0, "epicenter longitude")
	f.Float64Var(&opts.magnitude, "magnitude", 0, "event magnitude")
	f.StringVar(&opts.time, "time", "", "event time, RFC3339")
	f.StringVar(&opts.level, "log-level", "warn", "log level (debug|info|warn|error)")
	cmd.MarkFlagRequired("event-id")

	return cmd
}

func runResolve(cmd *cobra.Command, opts *resolveOptions) error {
	cfg, err := loadConfig(opts.level)
	if err != nil {
		return err
	}

	eventType, ok := models.ParseEventType(opts.eventType)
	if !ok {
		return fmt.Errorf("unknown event type %q", opts.eventType)
	}
	analysis, ok := models.ParseAnalysisType(opts.analysis)
	if !ok {
		return fmt.Errorf("unknown analysis %q", opts.analysis)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	src, pipeline := newSources(cfg)

	event, err := eventFromFlags(cmd, opts, eventType)
	if err != nil {
		return err
	}
	if event == nil {
		event, err = src.Lookup(ctx, eventType, opts.eventID)
		if err != nil {
			return fmt.Errorf("error looking up event: %w", err)
		}
		if cmd.Flags().Changed("magnitude") {
			event.Magnitude = &opts.magnitude
		}
	}

	res, err := pipeline.Resolve(ctx, *event, analysis)
	if err != nil && !(errors.Is(err, models.ErrNoMatchingAcquisitions) && res != nil) {
		return err
	}

	if werr := writeResolution(cmd.OutOrStdout(), *event, analysis, res, err); werr != nil {
		return werr
	}
	return err
}

// eventFromFlags returns nil when the flags do not fully describe the event.
func eventFromFlags(cmd *cobra.Command, opts *resolveOptions, eventType models.EventType) (*models.Event, error) {
	flags := cmd.Flags()
	if !flags.Changed("lat") || !flags.Changed("lon") || opts.time == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, opts.time)
	if err != nil {
		return nil, fmt.Errorf("invalid --time: %w", err)
	}

	event := &models.Event{
		ID:        opts.eventID,
		Type:      eventType,
		Latitude:  opts.lat,
		Longitude: opts.lon,
		Time:      t.UTC(),
	}
	if flags.Changed("magnitude") {
		event.Magnitude = &opts.magnitude
	}
	return event, nil
}

func writeResolution(w io.Writer, event models.Event, analysis models.AnalysisType, res *models.Resolution, resErr error) error {
	f := geojson.NewFeature(res.AOI.Polygon)
	f.Properties = geojson.Properties{
		"event_id":  event.ID,
		"radius_km": res.AOI.RadiusKm,
		"method":    res.AOI.Method,
	}

	out := resolveOutput{
		Event:      event,
		Analysis:   string(analysis),
		Filename:   models.TaskFilename(event.Type, event.ID, analysis),
		AOI:        f,
		Resolution: res,
	}
	if resErr != nil {
		out.Error = resErr.Error()
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding resolution: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
