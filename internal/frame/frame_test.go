package frame_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"srrt/internal/domain"
	"srrt/internal/frame"
)

func mustParse(t *testing.T, s string) frame.Frame {
	t.Helper()
	f, err := frame.Parse([]byte(s))
	require.NoError(t, err)
	return f
}

func TestParse_Malformed(t *testing.T) {
	for _, raw := range []string{``, `not json`, `[1,2]`, `"str"`, `{"a":1} {"b":2}`, `{"a":`} {
		_, err := frame.Parse([]byte(raw))
		require.ErrorIs(t, err, domain.ErrMalformedFrame, raw)
	}
}

func TestSelfEcho_OriginVersusRecipient(t *testing.T) {
	const self = domain.ConnID("tab-a")

	for _, raw := range []string{
		`{"capsule":{},"meta":{"origin_conn_id":"tab-a"}}`,
		`{"capsule":{},"meta":{"source_conn_id":"tab-a"}}`,
		`{"capsule":{},"meta":{"from_conn_id":"tab-a"}}`,
		`{"envelope":{"capsule":{},"meta":{"origin_conn_id":"tab-a"}}}`,
	} {
		require.True(t, frame.IsSelfEcho(mustParse(t, raw), self), raw)
	}

	for _, raw := range []string{
		`{"capsule":{},"meta":{"conn_id":"tab-a"}}`,
		`{"capsule":{},"conn_id":"tab-a"}`,
		`{"capsule":{},"meta":{"conn_id":"tab-b"}}`,
		`{"capsule":{},"meta":{"origin_conn_id":"tab-b","conn_id":"tab-a"}}`,
	} {
		require.False(t, frame.IsSelfEcho(mustParse(t, raw), self), raw)
	}
}

func TestAcceptsGraph(t *testing.T) {
	work := []string{
		`{"meta":{"graph":"work"}}`,
		`{"graph":"work"}`,
		`{"envelope":{"meta":{"graph":"work"}}}`,
		`{"envelope":{"graph":"work"}}`,
	}
	for _, raw := range work {
		f := mustParse(t, raw)
		require.False(t, frame.AcceptsGraph(f, domain.GraphPersonal), raw)
		require.True(t, frame.AcceptsGraph(f, domain.GraphWork), raw)
		require.True(t, frame.AcceptsGraph(f, ""), raw)
	}
	require.True(t, frame.AcceptsGraph(mustParse(t, `{"capsule":{}}`), domain.GraphPersonal))

	for _, raw := range []string{`{"meta":{"graph":"Work"}}`, `{"graph":" work"}`} {
		require.False(t, frame.AcceptsGraph(mustParse(t, raw), domain.GraphWork), raw)
	}
}

func TestEnvelope_NestedWins(t *testing.T) {
	f := mustParse(t, `{"capsule":{"a":1},"envelope":{"capsule":{"b":2},"meta":{"x":"y"},"id":"e1","ts":1700000000123}}`)
	env := f.Envelope()
	require.True(t, env.Nested)
	require.Contains(t, env.Capsule, "b")
	require.Equal(t, "e1", env.ID)
	require.Equal(t, int64(1700000000123), env.TS)
	require.Equal(t, "y", env.Meta["x"])
}
