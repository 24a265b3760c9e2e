package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestModeValue(t *testing.T) {
	assert.Equal(t, 0.0, ModeValue("normal"))
	assert.Equal(t, 1.0, ModeValue("degraded"))
	assert.Equal(t, 2.0, ModeValue("frozen"))
	assert.Equal(t, -1.0, ModeValue("unknown"))
}

func TestDivergenceExceeded_Increments(t *testing.T) {
	DivergenceExceeded.Reset()
	DivergenceExceeded.WithLabelValues("ETH", "pyth").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(DivergenceExceeded.WithLabelValues("ETH", "pyth")))
}

func TestIntentTransitions_Labeled(t *testing.T) {
	IntentTransitions.Reset()
	IntentTransitions.WithLabelValues("r1", "submitted").Inc()
	IntentTransitions.WithLabelValues("r1", "submitted").Inc()
	assert.Equal(t, 2.0, testutil.ToFloat64(IntentTransitions.WithLabelValues("r1", "submitted")))
}
