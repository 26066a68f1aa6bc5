package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/travel-assistant/backend/internal/analysis/directive"
	"github.com/zhouzirui/travel-assistant/backend/internal/metrics"
)

// Target names the surface a directive is rendered on.
type Target string

const (
	TargetChart Target = "chart"
	TargetMap   Target = "map"
)

// Series is one labelled row of chart values.
type Series struct {
	Label string    `json:"label"`
	Value []float64 `json:"value"`
}

// Chart is a validated bar or line chart payload.
type Chart struct {
	Kind  directive.Kind `json:"kind"`
	XAxis []string       `json:"xAxis"`
	YAxis []Series       `json:"yAxis"`
}

// Marker is a validated map marker. Lat is the latitude and Long the longitude.
type Marker struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Long float64 `json:"long"`
}

// Routed groups validated payloads by target, in directive order.
type Routed map[Target][]any

// Delivery is the batch handed to a renderer: every valid payload of one kind from one reply.
type Delivery struct {
	Target   Target
	Kind     directive.Kind
	Payloads []any
}

// Renderer displays deliveries for a target.
type Renderer interface {
	Render(ctx context.Context, d Delivery) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, d Delivery) error

func (f RendererFunc) Render(ctx context.Context, d Delivery) error { return f(ctx, d) }

// ValidationError explains why a directive payload was not dispatched.
type ValidationError struct {
	Kind   directive.Kind
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s directive #%d: %s", e.Kind, e.Index, e.Reason)
}

var errNoPayload = errors.New("no payload")

// Dispatcher routes decoded directives to renderers by kind.
type Dispatcher struct {
	logger zerolog.Logger

	mu        sync.RWMutex
	renderers map[Target][]Renderer
}

func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{logger: logger, renderers: make(map[Target][]Renderer)}
}

// Register adds a renderer for target.
func (d *Dispatcher) Register(target Target, r Renderer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.renderers[target] = append(d.renderers[target], r)
}

// TargetOf returns the target a kind renders on.
func TargetOf(kind directive.Kind) (Target, bool) {
	switch kind {
	case directive.BarChart, directive.LineChart:
		return TargetChart, true
	case directive.MapMarkers:
		return TargetMap, true
	default:
		return "", false
	}
}

type group struct {
	target   Target
	kind     directive.Kind
	payloads []any
}

// Dispatch validates the directives, invokes the registered renderers once per kind and returns
// what was routed. Invalid, empty and unknown directives are dropped. Renderer errors are
// logged and do not stop other renderers.
func (d *Dispatcher) Dispatch(ctx context.Context, directives []directive.Directive) Routed {
	routed := make(Routed)
	var groups []*group
	byKind := make(map[directive.Kind]*group)

	for i, dir := range directives {
		target, ok := TargetOf(dir.Kind)
		if !ok {
			d.drop("unknown_kind", dir.Kind, i, nil)
			continue
		}

		payload, err := validate(dir, i)
		if err != nil {
			if errors.Is(err, errNoPayload) {
				d.drop("no_payload", dir.Kind, i, nil)
			} else {
				d.drop("invalid", dir.Kind, i, err)
			}
			continue
		}

		routed[target] = append(routed[target], payload)
		g, ok := byKind[dir.Kind]
		if !ok {
			g = &group{target: target, kind: dir.Kind}
			byKind[dir.Kind] = g
			groups = append(groups, g)
		}
		g.payloads = append(g.payloads, payload)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, g := range groups {
		delivery := Delivery{Target: g.target, Kind: g.kind, Payloads: g.payloads}
		for _, r := range d.renderers[g.target] {
			if err := r.Render(ctx, delivery); err != nil {
				d.logger.Warn().Err(err).Str("target", string(g.target)).Str("kind", string(g.kind)).Msg("renderer failed")
			}
		}
	}
	return routed
}

func (d *Dispatcher) drop(reason string, kind directive.Kind, index int, err error) {
	metrics.DirectivesDropped.WithLabelValues(reason).Inc()
	ev := d.logger.Debug().Str("reason", reason).Str("kind", string(kind)).Int("index", index)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("directive dropped")
}

func validate(dir directive.Directive, index int) (any, error) {
	raw := dir.Raw
	if len(raw) == 0 {
		if dir.Payload == nil {
			return nil, errNoPayload
		}
		b, err := json.Marshal(dir.Payload)
		if err != nil {
			return nil, &ValidationError{Kind: dir.Kind, Index: index, Reason: err.Error()}
		}
		raw = b
	} else if dir.Payload == nil && string(raw) == "null" {
		return nil, errNoPayload
	}

	switch dir.Kind {
	case directive.BarChart, directive.LineChart:
		return validateChart(dir.Kind, raw, index)
	case directive.MapMarkers:
		return validateMarker(raw, index)
	}
	return nil, &ValidationError{Kind: dir.Kind, Index: index, Reason: "unsupported kind"}
}

type seriesPayload struct {
	Label *string    `json:"label"`
	Value []*float64 `json:"value"`
}

type chartPayload struct {
	XAxis *[]string        `json:"xAxis"`
	YAxis *[]seriesPayload `json:"yAxis"`
}

func validateChart(kind directive.Kind, raw json.RawMessage, index int) (Chart, error) {
	invalid := func(reason string) (Chart, error) {
		return Chart{}, &ValidationError{Kind: kind, Index: index, Reason: reason}
	}

	var p chartPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return invalid(err.Error())
	}
	if p.XAxis == nil {
		return invalid("xAxis is required")
	}
	if p.YAxis == nil {
		return invalid("yAxis is required")
	}

	c := Chart{Kind: kind, XAxis: *p.XAxis, YAxis: make([]Series, 0, len(*p.YAxis))}
	for i, s := range *p.YAxis {
		if s.Label == nil {
			return invalid(fmt.Sprintf("yAxis[%d].label is required", i))
		}
		if s.Value == nil {
			return invalid(fmt.Sprintf("yAxis[%d].value is required", i))
		}
		values := make([]float64, 0, len(s.Value))
		for j, v := range s.Value {
			if v == nil {
				return invalid(fmt.Sprintf("yAxis[%d].value[%d] is not a number", i, j))
			}
			values = append(values, *v)
		}
		c.YAxis = append(c.YAxis, Series{Label: *s.Label, Value: values})
	}
	return c, nil
}

type markerPayload struct {
	Name *string  `json:"name"`
	Lat  *float64 `json:"lat"`
	Long *float64 `json:"long"`
}

func validateMarker(raw json.RawMessage, index int) (Marker, error) {
	invalid := func(reason string) (Marker, error) {
		return Marker{}, &ValidationError{Kind: directive.MapMarkers, Index: index, Reason: reason}
	}

	var p markerPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return invalid(err.Error())
	}
	switch {
	case p.Name == nil || *p.Name == "":
		return invalid("name is required")
	case p.Lat == nil || p.Long == nil:
		return invalid("lat and long are required")
	case *p.Lat < -90 || *p.Lat > 90:
		return invalid(fmt.Sprintf("lat %v out of range", *p.Lat))
	case *p.Long < -180 || *p.Long > 180:
		return invalid(fmt.Sprintf("long %v out of range", *p.Long))
	}
	return Marker{Name: *p.Name, Lat: *p.Lat, Long: *p.Long}, nil
}
