package server

import (
	"expvar"
	"testing"

	"github.com/facebookgo/stats"
	"github.com/stretchr/testify/require"
)

func TestExpvarStats(t *testing.T) {
	c := NewExpvarStats("stats-test")
	require.True(t, c == NewExpvarStats("stats-test"))

	stats.BumpSum(c, "jobs", 1)
	stats.BumpSum(c, "jobs", 2)
	stats.BumpAvg(c, "size", 10)
	stats.BumpAvg(c, "size", 30)
	stats.BumpHistogram(c, "seconds", 0.5)
	stats.BumpTime(c, "elapsed").End()

	m := expvar.Get("stats-test").(*expvar.Map)
	require.Equal(t, "3", m.Get("jobs").String())
	require.Equal(t, "2", m.Get("size.count").String())
	require.Equal(t, "40", m.Get("size.total").String())
	require.Equal(t, "30", m.Get("size.max").String())
	require.Equal(t, "1", m.Get("seconds.count").String())
	require.Equal(t, "1", m.Get("elapsed.count").String())
}
