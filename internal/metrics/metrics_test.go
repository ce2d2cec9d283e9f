package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestRegisterAddsEveryCollectorOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	// A CounterVec is only gathered once it has at least one child.
	ValidationRejections.WithLabelValues("invalid_block")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, mfs, len(collectors))
}

func TestRegisterTwiceOnSameRegistererFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.Error(t, Register(reg))
}

func TestCountersObserveIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))

	BlocksConnected.Inc()
	ValidationRejections.WithLabelValues("invalid_block").Inc()
	BatchCommitSeconds.Observe(0.01)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, mfs)
}
