package render

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/travel-assistant/backend/internal/analysis/directive"
)

func raw(kind directive.Kind, body string) directive.Directive {
	var payload any
	_ = json.Unmarshal([]byte(body), &payload)
	return directive.Directive{Kind: kind, Raw: json.RawMessage(body), Payload: payload}
}

type captured struct {
	deliveries []Delivery
}

func (c *captured) Render(_ context.Context, d Delivery) error {
	c.deliveries = append(c.deliveries, d)
	return nil
}

func TestDispatchRoutesChartsAndMarkers(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	charts, maps := &captured{}, &captured{}
	d.Register(TargetChart, charts)
	d.Register(TargetMap, maps)

	routed := d.Dispatch(context.Background(), []directive.Directive{
		raw(directive.BarChart, `{"xAxis":["Mon"],"yAxis":[{"label":"cost","value":[10]}]}`),
		raw(directive.MapMarkers, `{"name":"West Lake","lat":30.25,"long":120.15}`),
		raw(directive.MapMarkers, `{"name":"Lingyin","lat":30.24,"long":120.1}`),
		raw(directive.LineChart, `{"xAxis":["Jan","Feb"],"yAxis":[{"label":"temp","value":[5,8.5]}]}`),
	})

	require.Len(t, routed[TargetChart], 2)
	require.Len(t, routed[TargetMap], 2)
	assert.Equal(t, Chart{
		Kind:  directive.BarChart,
		XAxis: []string{"Mon"},
		YAxis: []Series{{Label: "cost", Value: []float64{10}}},
	}, routed[TargetChart][0])
	assert.Equal(t, Marker{Name: "West Lake", Lat: 30.25, Long: 120.15}, routed[TargetMap][0])

	// one delivery per kind; both markers arrive together
	require.Len(t, maps.deliveries, 1)
	assert.Len(t, maps.deliveries[0].Payloads, 2)
	require.Len(t, charts.deliveries, 2)
	assert.Equal(t, directive.BarChart, charts.deliveries[0].Kind)
	assert.Equal(t, directive.LineChart, charts.deliveries[1].Kind)
}

func TestDispatchDropsInvalidMarkers(t *testing.T) {
	cases := map[string]string{
		"missing name":      `{"lat":30,"long":120}`,
		"empty name":        `{"name":"","lat":30,"long":120}`,
		"string lat":        `{"name":"x","lat":"30","long":120}`,
		"missing long":      `{"name":"x","lat":30}`,
		"lat out of range":  `{"name":"x","lat":120,"long":30}`,
		"long out of range": `{"name":"x","lat":30,"long":-181}`,
		"not an object":     `"West Lake"`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			d := NewDispatcher(zerolog.Nop())
			maps := &captured{}
			d.Register(TargetMap, maps)

			routed := d.Dispatch(context.Background(), []directive.Directive{raw(directive.MapMarkers, body)})

			assert.Empty(t, routed[TargetMap])
			assert.Empty(t, maps.deliveries)
		})
	}
}

func TestDispatchDropsInvalidCharts(t *testing.T) {
	cases := map[string]string{
		"missing xAxis":    `{"yAxis":[{"label":"a","value":[1]}]}`,
		"missing yAxis":    `{"xAxis":["a"]}`,
		"numeric xAxis":    `{"xAxis":[1],"yAxis":[]}`,
		"missing label":    `{"xAxis":["a"],"yAxis":[{"value":[1]}]}`,
		"string value":     `{"xAxis":["a"],"yAxis":[{"label":"a","value":["1"]}]}`,
		"null value entry": `{"xAxis":["a"],"yAxis":[{"label":"a","value":[null]}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			routed := NewDispatcher(zerolog.Nop()).Dispatch(context.Background(), []directive.Directive{raw(directive.BarChart, body)})
			assert.Empty(t, routed[TargetChart])
		})
	}
}

func TestDispatchIgnoresUnknownAndEmpty(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	charts := &captured{}
	d.Register(TargetChart, charts)

	routed := d.Dispatch(context.Background(), []directive.Directive{
		raw("WEATHER", `{"city":"Kyoto"}`),
		{Kind: directive.BarChart},
		raw(directive.BarChart, `null`),
	})

	assert.Empty(t, routed)
	assert.Empty(t, charts.deliveries)
}

func TestDispatchAcceptsPayloadWithoutRaw(t *testing.T) {
	routed := NewDispatcher(zerolog.Nop()).Dispatch(context.Background(), []directive.Directive{{
		Kind:    directive.MapMarkers,
		Payload: map[string]any{"name": "Bund", "lat": 31.24, "long": 121.49},
	}})

	require.Len(t, routed[TargetMap], 1)
	assert.Equal(t, Marker{Name: "Bund", Lat: 31.24, Long: 121.49}, routed[TargetMap][0])
}

func TestDispatchContinuesAfterRendererError(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	calls := 0
	d.Register(TargetMap, RendererFunc(func(context.Context, Delivery) error {
		calls++
		return errors.New("widget unavailable")
	}))
	d.Register(TargetMap, RendererFunc(func(context.Context, Delivery) error {
		calls++
		return nil
	}))

	routed := d.Dispatch(context.Background(), []directive.Directive{raw(directive.MapMarkers, `{"name":"x","lat":1,"long":2}`)})

	assert.Equal(t, 2, calls)
	assert.Len(t, routed[TargetMap], 1)
}

func TestDecodedRepliesDispatchEndToEnd(t *testing.T) {
	text := "Plan:\n<DIRECTIVE kind=\"MAP_MARKERS\">[{\"name\":\"A\",\"lat\":10,\"long\":20},{\"name\":\"B\",\"lat\":\"bad\",\"long\":1}]</DIRECTIVE>"
	res := directive.Decode(text)

	routed := NewDispatcher(zerolog.Nop()).Dispatch(context.Background(), res.Directives)

	assert.Equal(t, "Plan:\n", res.CleanedText)
	require.Len(t, routed[TargetMap], 1)
	assert.Equal(t, Marker{Name: "A", Lat: 10, Long: 20}, routed[TargetMap][0])
}

func TestBuildMapViewKeepsLatLongOrder(t *testing.T) {
	view := BuildMapView([]Marker{{Name: "West Lake", Lat: 30.25, Long: 120.15}})

	require.Len(t, view.Markers, 1)
	assert.Equal(t, [2]float64{120.15, 30.25}, view.Markers[0].Position)
	assert.True(t, view.FitView)
	assert.False(t, BuildMapView(nil).FitView)
	assert.Equal(t, DefaultCenter, BuildMapView(nil).Center)
}

func TestChartOptionPicksBuilder(t *testing.T) {
	bar := ChartOption(Chart{Kind: directive.BarChart, XAxis: []string{"a"}, YAxis: []Series{{Label: "s", Value: []float64{1}}}})
	line := ChartOption(Chart{Kind: directive.LineChart, XAxis: []string{"a"}, YAxis: []Series{{Label: "s", Value: []float64{1}}}})

	assert.Equal(t, "bar", bar.Series[0].Type)
	assert.Equal(t, "s", bar.Series[0].Name)
	assert.Equal(t, "line", line.Series[0].Type)
	assert.Nil(t, bar.DataZoom)

	many := make([]string, 40)
	big := ChartOption(Chart{Kind: directive.BarChart, XAxis: many})
	require.NotNil(t, big.DataZoom)
	assert.Equal(t, 25, big.DataZoom.Start)
	assert.Equal(t, 100, big.DataZoom.End)
}
