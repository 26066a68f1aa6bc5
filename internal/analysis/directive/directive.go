package directive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Kind 表示指令声明的类型，例如 BAR_CHART、MAP_MARKERS。
type Kind string

const (
	BarChart   Kind = "BAR_CHART"
	LineChart  Kind = "LINE_CHART"
	MapMarkers Kind = "MAP_MARKERS"
)

// Directive is one decoded payload embedded in an assistant reply.
type Directive struct {
	Kind    Kind            `json:"kind"`
	Raw     json.RawMessage `json:"raw"`
	Payload any             `json:"payload,omitempty"`
}

// DecodeError reports a directive block whose body is not valid JSON.
type DecodeError struct {
	Kind   Kind
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("directive %s at offset %d: %v", e.Kind, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Result is the outcome of decoding one final reply.
type Result struct {
	CleanedText string
	Directives  []Directive
	Errors      []*DecodeError
}

// Decoder extracts tagged JSON blocks from text. The zero value is not usable; use New.
type Decoder struct {
	open  *regexp.Regexp
	close *regexp.Regexp
	attr  *regexp.Regexp
}

// New builds a decoder for <tag attr="KIND">JSON</tag> blocks.
func New(tag, attr string) *Decoder {
	qt := regexp.QuoteMeta(tag)
	return &Decoder{
		open:  regexp.MustCompile(`<` + qt + `(\s[^>]*)?>`),
		close: regexp.MustCompile(`</` + qt + `\s*>`),
		attr:  regexp.MustCompile(`\b` + regexp.QuoteMeta(attr) + `\s*=\s*(?:"([^"]*)"|'([^']*)')`),
	}
}

var (
	// Default decodes <DIRECTIVE kind="..."> blocks.
	Default = New("DIRECTIVE", "kind")
	// Legacy decodes the <TSX type="..."> blocks emitted by older agent prompts.
	Legacy = New("TSX", "type")
)

// Decode runs the default decoder.
func Decode(text string) Result {
	return Default.Decode(text)
}

// Strip returns text with every complete directive block removed.
func Strip(text string) string {
	return Default.Decode(text).CleanedText
}

// Decode locates every complete block left to right, decodes its JSON body and removes the block
// from the returned text. A block whose body fails to parse is removed without producing a
// directive. An opening tag without a closing tag is not a block and stays in the text.
//
// Removing a block can join the text around it into a new complete block, so removal repeats
// until no block is left; the cleaned text of a result therefore never decodes to anything.
// Directives keep pass order, and the Offset of an error found in a later pass refers to the
// text of that pass.
func (d *Decoder) Decode(text string) Result {
	var res Result
	for {
		spans := d.spans(text)
		if len(spans) == 0 {
			break
		}
		text = d.removeSpans(text, spans, &res)
	}
	res.CleanedText = text
	return res
}

func (d *Decoder) removeSpans(text string, spans []span, res *Result) string {
	var (
		out  strings.Builder
		last int
	)
	out.Grow(len(text))

	for _, sp := range spans {
		out.WriteString(text[last:sp.start])
		last = sp.end

		kind := d.kindOf(sp.attrs)
		items, err := parseBody(text[sp.bodyStart:sp.bodyEnd])
		if err != nil {
			res.Errors = append(res.Errors, &DecodeError{Kind: kind, Offset: sp.start, Err: err})
			continue
		}
		for _, it := range items {
			res.Directives = append(res.Directives, Directive{Kind: kind, Raw: it.raw, Payload: it.value})
		}
	}
	out.WriteString(text[last:])
	return out.String()
}

// Contains reports whether text still holds at least one complete block.
func (d *Decoder) Contains(text string) bool {
	return len(d.spans(text)) > 0
}

type span struct {
	start, end         int
	bodyStart, bodyEnd int
	attrs              string
}

// spans pairs each closing tag with the nearest opening tag before it, so a stray opening tag
// earlier in the text never swallows the prose between it and a later block.
func (d *Decoder) spans(text string) []span {
	var out []span
	pos := 0
	for pos < len(text) {
		loc := d.open.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		openStart, openEnd := pos+loc[0], pos+loc[1]
		attrStart, attrEnd := loc[2], loc[3]

		cl := d.close.FindStringIndex(text[openEnd:])
		if cl == nil {
			break
		}
		closeStart, closeEnd := openEnd+cl[0], openEnd+cl[1]

		if inner := d.open.FindAllStringSubmatchIndex(text[openEnd:closeStart], -1); len(inner) > 0 {
			lastOpen := inner[len(inner)-1]
			base := openEnd
			openStart, openEnd = base+lastOpen[0], base+lastOpen[1]
			attrStart, attrEnd = lastOpen[2], lastOpen[3]
			if attrStart >= 0 {
				attrStart, attrEnd = attrStart+base-pos, attrEnd+base-pos
			}
		}

		sp := span{start: openStart, end: closeEnd, bodyStart: openEnd, bodyEnd: closeStart}
		if attrStart >= 0 {
			sp.attrs = text[pos+attrStart : pos+attrEnd]
		}
		out = append(out, sp)
		pos = closeEnd
	}
	return out
}

func (d *Decoder) kindOf(attrs string) Kind {
	m := d.attr.FindStringSubmatch(attrs)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return Kind(strings.TrimSpace(m[1]))
	}
	return Kind(strings.TrimSpace(m[2]))
}

type item struct {
	raw   json.RawMessage
	value any
}

// parseBody flattens a top-level array into its elements; any other value is a single item.
func parseBody(body string) ([]item, error) {
	trimmed := bytes.TrimSpace([]byte(body))
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty body")
	}

	if trimmed[0] == '[' {
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return nil, err
		}
		items := make([]item, 0, len(elems))
		for _, elem := range elems {
			var v any
			if err := json.Unmarshal(elem, &v); err != nil {
				return nil, err
			}
			items = append(items, item{raw: elem, value: v})
		}
		return items, nil
	}

	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil, err
	}
	return []item{{raw: json.RawMessage(trimmed), value: v}}, nil
}
