package frame

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"srrt/internal/domain"
)

// Frame is one parsed inbound frame. Numbers are kept as json.Number.
type Frame map[string]any

// Parse decodes raw. Anything but a JSON object fails with
// domain.ErrMalformedFrame.
func Parse(raw []byte) (Frame, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedFrame, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", domain.ErrMalformedFrame)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: not an object", domain.ErrMalformedFrame)
	}
	return Frame(m), nil
}

// Envelope is the uniform view of a capsule delivery, flat or nested.
type Envelope struct {
	Capsule map[string]any
	Meta    map[string]any
	ID      string
	TS      int64
	Type    string
	Nested  bool
}

// Envelope returns the capsule view of f. A nested "envelope" object wins
// over top-level fields.
func (f Frame) Envelope() Envelope {
	if env := asMap(f["envelope"]); env != nil {
		return Envelope{
			Capsule: asMap(env["capsule"]),
			Meta:    asMap(env["meta"]),
			ID:      asString(env["id"]),
			TS:      asInt(env["ts"]),
			Type:    asString(env["type"]),
			Nested:  true,
		}
	}
	return Envelope{
		Capsule: asMap(f["capsule"]),
		Meta:    asMap(f["meta"]),
		ID:      asString(f["id"]),
		TS:      asInt(f["ts"]),
	}
}

// Graph returns the tenancy tag carried by f, or "".
func (f Frame) Graph() string {
	env := asMap(f["envelope"])
	for _, v := range []any{
		asMap(f["meta"])["graph"],
		f["graph"],
		asMap(env["meta"])["graph"],
		env["graph"],
	} {
		if s := asString(v); s != "" {
			return s
		}
	}
	return ""
}

// originKeys name the meta fields that identify the sending connection. A
// bare "conn_id" is not among them: some producers put the recipient there.
var originKeys = []string{"origin_conn_id", "source_conn_id", "from_conn_id"}

// OriginConnID returns the connection identity f was sent from, or "".
func (f Frame) OriginConnID() string {
	for _, meta := range []map[string]any{
		asMap(f["meta"]),
		asMap(asMap(f["envelope"])["meta"]),
	} {
		for _, k := range originKeys {
			if s := asString(meta[k]); s != "" {
				return s
			}
		}
	}
	return ""
}

// IsSelfEcho reports whether f originated from id.
func IsSelfEcho(f Frame, id domain.ConnID) bool {
	return id != "" && f.OriginConnID() == string(id)
}

// AcceptsGraph reports whether f may be delivered to a session bound to g.
// The empty graph accepts everything, as does a frame without a tag. Tags
// are compared exactly; a frame tagged "Work" is not for a work session.
func AcceptsGraph(f Frame, g domain.Graph) bool {
	if g == "" {
		return true
	}
	tag := f.Graph()
	return tag == "" || domain.Graph(tag) == g
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	}
	return ""
}

func asInt(v any) int64 {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return int64(f)
		}
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	return 0
}
