package conn_test

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"srrt/internal/conn"
)

func TestBackoff_StaysWithinJitterOfCappedStep(t *testing.T) {
	b := conn.NewBackoff(rand.New(rand.NewPCG(1, 2)))
	prev := b.Current()
	require.Equal(t, conn.BackoffFloor, prev)

	for i := 0; i < 40; i++ {
		d := b.Next()
		base, j := conn.Bounds(prev)
		ms := d.Milliseconds()
		require.GreaterOrEqual(t, ms, base-j, "step %d", i)
		require.LessOrEqual(t, ms, base+j, "step %d", i)
		require.LessOrEqual(t, d, conn.BackoffCap+conn.BackoffCap/5)
		require.Equal(t, d, b.Current())
		prev = d
	}
}

func TestBackoff_FirstStep(t *testing.T) {
	base, j := conn.Bounds(conn.BackoffFloor)
	require.Equal(t, int64(1440), base)
	require.Equal(t, int64(288), j)

	base, j = conn.Bounds(20 * time.Second)
	require.Equal(t, int64(15000), base)
	require.Equal(t, int64(3000), j)
}

func TestBackoff_Reset(t *testing.T) {
	b := conn.NewBackoff(nil)
	b.Next()
	b.Next()
	require.Greater(t, b.Current(), conn.BackoffFloor)
	b.Reset()
	require.Equal(t, conn.BackoffFloor, b.Current())
}
