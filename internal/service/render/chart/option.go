// Package chart builds chart options for bar and line directives. Options are plain values:
// every OptionFunc receives a copy and returns a new Option, so a template can be shared and
// extended without affecting other charts built from it.
package chart

const gap = 16

// Colors is the default series palette.
var Colors = []string{"#1D78FF", "#11D7B2", "#AC9DFF", "#FBB310", "#2CCCDF", "#FF8FF4"}

type TextStyle struct {
	Color      string `json:"color,omitempty"`
	FontSize   int    `json:"fontSize,omitempty"`
	FontWeight int    `json:"fontWeight,omitempty"`
	LineHeight int    `json:"lineHeight,omitempty"`
	Width      string `json:"width,omitempty"`
	Overflow   string `json:"overflow,omitempty"`
}

type Title struct {
	Top          int       `json:"top"`
	Left         int       `json:"left"`
	Subtext      string    `json:"subtext,omitempty"`
	SubtextStyle TextStyle `json:"subtextStyle"`
	Padding      int       `json:"padding"`
	ItemGap      int       `json:"itemGap"`
}

type Legend struct {
	Show       *bool     `json:"show,omitempty"`
	Top        int       `json:"top"`
	Right      int       `json:"right"`
	Icon       string    `json:"icon"`
	Type       string    `json:"type"`
	Width      string    `json:"width"`
	Padding    int       `json:"padding"`
	ItemHeight int       `json:"itemHeight"`
	ItemWidth  int       `json:"itemWidth"`
	ItemGap    int       `json:"itemGap"`
	TextStyle  TextStyle `json:"textStyle"`
}

type AxisPointer struct {
	Type string `json:"type,omitempty"`
}

type Tooltip struct {
	Trigger      string      `json:"trigger"`
	AxisPointer  AxisPointer `json:"axisPointer"`
	Confine      bool        `json:"confine"`
	AppendToBody bool        `json:"appendToBody"`
	BorderWidth  int         `json:"borderWidth"`
	Padding      int         `json:"padding"`
	ExtraCSSText string      `json:"extraCssText,omitempty"`
}

type Grid struct {
	Left         int  `json:"left"`
	Top          int  `json:"top"`
	Right        int  `json:"right"`
	Bottom       int  `json:"bottom"`
	ContainLabel bool `json:"containLabel"`
}

type AxisLabel struct {
	TextStyle
	// Formatter names the label format; "compact" renders K/M/B suffixes like FormatAxisValue.
	Formatter string `json:"formatter,omitempty"`
}

type LineStyle struct {
	Color string `json:"color,omitempty"`
	Type  string `json:"type,omitempty"`
	Width int    `json:"width,omitempty"`
}

type XAxis struct {
	Type          string    `json:"type,omitempty"`
	Data          []string  `json:"data,omitempty"`
	Name          string    `json:"name"`
	NameLocation  string    `json:"nameLocation"`
	NameGap       int       `json:"nameGap"`
	NameTextStyle TextStyle `json:"nameTextStyle"`
	AxisLabel     AxisLabel `json:"axisLabel"`
	AxisLine      struct {
		Show bool `json:"show"`
	} `json:"axisLine"`
	AxisTick struct {
		AlignWithLabel bool      `json:"alignWithLabel"`
		LineStyle      LineStyle `json:"lineStyle"`
	} `json:"axisTick"`
}

type YAxis struct {
	Type      string    `json:"type"`
	AxisLabel AxisLabel `json:"axisLabel"`
	SplitLine struct {
		LineStyle LineStyle `json:"lineStyle"`
	} `json:"splitLine"`
	SplitNumber int `json:"splitNumber"`
}

type DataZoom struct {
	Start       int       `json:"start"`
	End         int       `json:"end"`
	MinSpan     int       `json:"minSpan"`
	BrushSelect bool      `json:"brushSelect"`
	Width       string    `json:"width"`
	Left        int       `json:"left"`
	Right       int       `json:"right"`
	TextStyle   TextStyle `json:"textStyle"`
}

type Series struct {
	Name   string    `json:"name"`
	Type   string    `json:"type"`
	Data   []float64 `json:"data"`
	Smooth bool      `json:"smooth,omitempty"`
	Symbol string    `json:"symbol,omitempty"`
}

// Option is a complete chart configuration ready to be serialized for the front end.
type Option struct {
	Title              Title     `json:"title"`
	Color              []string  `json:"color"`
	Legend             Legend    `json:"legend"`
	Tooltip            Tooltip   `json:"tooltip"`
	Grid               Grid      `json:"grid"`
	XAxis              XAxis     `json:"xAxis"`
	YAxis              YAxis     `json:"yAxis"`
	Series             []Series  `json:"series"`
	DataZoom           *DataZoom `json:"dataZoom,omitempty"`
	Animation          *bool     `json:"animation,omitempty"`
	AnimationThreshold int       `json:"animationThreshold,omitempty"`
}

// OptionFunc derives a new Option from o.
type OptionFunc func(o Option) Option

// SeriesData is one named data row.
type SeriesData struct {
	Name string
	Data []float64
}

func defaultLegend() Legend {
	return Legend{
		Top:        0,
		Right:      12,
		Icon:       "rect",
		Type:       "scroll",
		Width:      "50%",
		Padding:    0,
		ItemHeight: 8,
		ItemWidth:  8,
		ItemGap:    8,
		TextStyle:  TextStyle{FontSize: 12, FontWeight: 400, LineHeight: 20, Color: "#3D446E"},
	}
}

func defaultTooltip() Tooltip {
	return Tooltip{
		Trigger:      "item",
		AxisPointer:  AxisPointer{Type: "shadow"},
		Confine:      true,
		AppendToBody: true,
		BorderWidth:  0,
		Padding:      8,
		ExtraCSSText: "box-shadow: 0px 2px 8px 0px rgba(29, 120, 255, 0.15);",
	}
}

func defaultDataZoom() DataZoom {
	return DataZoom{
		Start:     93,
		End:       100,
		MinSpan:   1,
		Width:     "auto",
		Left:      80,
		Right:     80,
		TextStyle: TextStyle{Width: "60", Overflow: "truncate"},
	}
}

func base() Option {
	labelStyle := TextStyle{Color: "#8B8FA8", FontSize: 12, FontWeight: 400, LineHeight: 20}

	o := Option{
		Title: Title{
			Top:  0,
			Left: 12,
			SubtextStyle: TextStyle{
				Color:      "#3D446E",
				LineHeight: 20,
				FontWeight: 400,
				FontSize:   12,
				Width:      "50%",
				Overflow:   "truncate",
			},
		},
		Color:   append([]string(nil), Colors...),
		Legend:  defaultLegend(),
		Tooltip: defaultTooltip(),
		// top leaves room for the subtext and legend row
		Grid: Grid{Left: gap, Top: gap + 10, Right: gap, Bottom: gap, ContainLabel: true},
		XAxis: XAxis{
			NameLocation:  "middle",
			NameGap:       30,
			NameTextStyle: TextStyle{Color: "#3D446E", LineHeight: 20, FontWeight: 400, FontSize: 12},
			AxisLabel:     AxisLabel{TextStyle: labelStyle},
		},
		YAxis: YAxis{
			Type:        "value",
			AxisLabel:   AxisLabel{TextStyle: labelStyle, Formatter: "compact"},
			SplitNumber: 3,
		},
		Series: []Series{},
	}
	o.XAxis.AxisTick.AlignWithLabel = true
	o.XAxis.AxisTick.LineStyle = LineStyle{Color: "#D8DAE2"}
	o.YAxis.SplitLine.LineStyle = LineStyle{Type: "dashed", Width: 1}
	return o
}

// Bar builds a bar chart option.
func Bar(opts ...OptionFunc) Option {
	return base().With(opts...).withSeriesType("bar")
}

// Line builds a line chart option: axis tooltip, smooth series.
func Line(opts ...OptionFunc) Option {
	o := base()
	o.Tooltip.Trigger = "axis"
	return o.With(opts...).withSeriesType("line")
}

// With applies opts to a copy of o.
func (o Option) With(opts ...OptionFunc) Option {
	out := o.clone()
	for _, opt := range opts {
		out = opt(out.clone())
	}
	return out
}

func (o Option) withSeriesType(kind string) Option {
	out := o.clone()
	if out.Series == nil {
		out.Series = []Series{}
	}
	for i := range out.Series {
		out.Series[i].Type = kind
		if kind == "line" {
			out.Series[i].Smooth = true
			out.Series[i].Symbol = "none"
			// a single point cannot be joined into a line, so draw it
			if len(out.Series[i].Data) == 1 {
				out.Series[i].Symbol = "emptyCircle"
			}
		}
	}
	return out
}

func (o Option) clone() Option {
	out := o
	out.Color = append([]string(nil), o.Color...)
	out.XAxis.Data = append([]string(nil), o.XAxis.Data...)
	if o.Series != nil {
		out.Series = make([]Series, len(o.Series))
		for i, s := range o.Series {
			s.Data = append([]float64(nil), s.Data...)
			out.Series[i] = s
		}
	}
	if o.DataZoom != nil {
		dz := *o.DataZoom
		out.DataZoom = &dz
	}
	if o.Animation != nil {
		a := *o.Animation
		out.Animation = &a
	}
	if o.Legend.Show != nil {
		s := *o.Legend.Show
		out.Legend.Show = &s
	}
	return out
}

// WithXAxisData sets the category labels.
func WithXAxisData(labels []string) OptionFunc {
	return func(o Option) Option {
		o.XAxis.Type = "category"
		o.XAxis.Data = append([]string(nil), labels...)
		return o
	}
}

// WithXAxisName names the x axis and moves the grid bottom to make room for it.
func WithXAxisName(name string) OptionFunc {
	return func(o Option) Option {
		o.XAxis.Type = "category"
		o.XAxis.Name = name
		o.Grid.Bottom = gap * 2
		return o
	}
}

// WithSubtext sets the title subtext.
func WithSubtext(text string) OptionFunc {
	return func(o Option) Option {
		o.Title.Subtext = text
		return o
	}
}

// WithSeries replaces the series.
func WithSeries(rows []SeriesData) OptionFunc {
	return func(o Option) Option {
		o.Series = make([]Series, 0, len(rows))
		for _, r := range rows {
			o.Series = append(o.Series, Series{Name: r.Name, Data: append([]float64(nil), r.Data...)})
		}
		return o
	}
}

// WithLegend replaces the legend, starting again from the default legend.
func WithLegend(fn func(Legend) Legend) OptionFunc {
	return func(o Option) Option {
		o.Legend = fn(defaultLegend())
		return o
	}
}

// WithTooltip adjusts the current tooltip.
func WithTooltip(fn func(Tooltip) Tooltip) OptionFunc {
	return func(o Option) Option {
		o.Tooltip = fn(o.Tooltip)
		return o
	}
}

// WithDataZoom adjusts the zoom slider, starting from the current one or the default.
func WithDataZoom(fn func(DataZoom) DataZoom) OptionFunc {
	return func(o Option) Option {
		dz := defaultDataZoom()
		if o.DataZoom != nil {
			dz = *o.DataZoom
		}
		dz = fn(dz)
		o.DataZoom = &dz
		return o
	}
}

// WithPerformance disables animation for large data sets and adds the default zoom slider.
func WithPerformance(enable bool) OptionFunc {
	return func(o Option) Option {
		if !enable {
			return o
		}
		off := false
		o.Animation = &off
		o.AnimationThreshold = 500
		dz := defaultDataZoom()
		o.DataZoom = &dz
		o.Grid.Bottom += 30
		return o
	}
}
