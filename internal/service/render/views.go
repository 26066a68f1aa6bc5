package render

import (
	"github.com/zhouzirui/travel-assistant/backend/internal/analysis/directive"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/render/chart"
)

// performanceThreshold is the number of categories above which charts drop animation and get
// a zoom slider.
const performanceThreshold = 30

// ChartOption turns a validated chart payload into a full chart option.
func ChartOption(c Chart) chart.Option {
	rows := make([]chart.SeriesData, 0, len(c.YAxis))
	for _, s := range c.YAxis {
		rows = append(rows, chart.SeriesData{Name: s.Label, Data: s.Value})
	}
	opts := []chart.OptionFunc{
		chart.WithXAxisData(c.XAxis),
		chart.WithSeries(rows),
	}
	if n := len(c.XAxis); n > performanceThreshold {
		// open the slider on the last performanceThreshold categories
		opts = append(opts,
			chart.WithPerformance(true),
			chart.WithDataZoom(func(dz chart.DataZoom) chart.DataZoom {
				dz.Start = 100 - performanceThreshold*100/n
				dz.End = 100
				return dz
			}),
		)
	}

	if c.Kind == directive.LineChart {
		return chart.Line(opts...)
	}
	return chart.Bar(opts...)
}

// DefaultCenter is the map center used before any marker is shown, as [long, lat].
var DefaultCenter = [2]float64{120.1551, 30.2741}

const defaultZoom = 11

// MapMarker is a marker positioned the way map widgets expect: [long, lat].
type MapMarker struct {
	Name     string     `json:"name"`
	Position [2]float64 `json:"position"`
}

// MapView is the map state derived from one reply's markers.
type MapView struct {
	Center  [2]float64  `json:"center"`
	Zoom    int         `json:"zoom"`
	FitView bool        `json:"fitView"`
	Markers []MapMarker `json:"markers"`
}

// BuildMapView positions markers and asks the map to fit them when there are any.
func BuildMapView(markers []Marker) MapView {
	view := MapView{Center: DefaultCenter, Zoom: defaultZoom, Markers: make([]MapMarker, 0, len(markers))}
	for _, m := range markers {
		view.Markers = append(view.Markers, MapMarker{Name: m.Name, Position: [2]float64{m.Long, m.Lat}})
	}
	view.FitView = len(view.Markers) > 0
	return view
}
