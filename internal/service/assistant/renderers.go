package assistant

import (
	"context"
	"errors"

	"github.com/zhouzirui/travel-assistant/backend/internal/service/events"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/render"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/render/chart"
)

type refKey struct{}

// withRef attaches the message a dispatch belongs to.
func withRef(ctx context.Context, ref events.Update) context.Context {
	return context.WithValue(ctx, refKey{}, ref)
}

func refFrom(ctx context.Context) (events.Update, bool) {
	ref, ok := ctx.Value(refKey{}).(events.Update)
	return ref, ok
}

var errNoMessage = errors.New("render without message reference")

// ChartView is what the browser needs to draw one chart.
type ChartView struct {
	Chart  render.Chart `json:"chart"`
	Option chart.Option `json:"option"`
}

func (s *Service) renderCharts(ctx context.Context, d render.Delivery) error {
	ref, ok := refFrom(ctx)
	if !ok {
		return errNoMessage
	}

	views := make([]ChartView, 0, len(d.Payloads))
	for _, p := range d.Payloads {
		c, ok := p.(render.Chart)
		if !ok {
			continue
		}
		views = append(views, ChartView{Chart: c, Option: render.ChartOption(c)})
	}
	if len(views) == 0 {
		return nil
	}

	u := ref
	u.Type = events.TypeRender
	u.Target = string(d.Target)
	u.Kind = string(d.Kind)
	u.Payload = views
	s.publish(u)
	return nil
}

func (s *Service) renderMap(ctx context.Context, d render.Delivery) error {
	ref, ok := refFrom(ctx)
	if !ok {
		return errNoMessage
	}

	markers := make([]render.Marker, 0, len(d.Payloads))
	for _, p := range d.Payloads {
		if m, ok := p.(render.Marker); ok {
			markers = append(markers, m)
		}
	}

	u := ref
	u.Type = events.TypeRender
	u.Target = string(d.Target)
	u.Kind = string(d.Kind)
	u.Payload = render.BuildMapView(markers)
	s.publish(u)
	return nil
}
