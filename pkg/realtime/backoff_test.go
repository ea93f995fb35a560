package realtime_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/notifykit/pkg/realtime"
)

func TestDefaultBackoff(t *testing.T) {
	t.Parallel()

	b := realtime.DefaultBackoff()
	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, b.NextInterval(i+1), "attempt %d", i+1)
	}
	assert.Equal(t, time.Duration(0), b.NextInterval(0))
	assert.Equal(t, 30*time.Second, b.NextInterval(500))
}

func TestExponentialBackoff(t *testing.T) {
	t.Parallel()

	t.Run("zero value uses defaults", func(t *testing.T) {
		t.Parallel()
		var b realtime.ExponentialBackoff
		assert.Equal(t, time.Second, b.NextInterval(1))
		assert.Equal(t, 30*time.Second, b.NextInterval(6))
	})

	t.Run("jitter stays within bounds", func(t *testing.T) {
		t.Parallel()
		b := realtime.ExponentialBackoff{
			InitialInterval: time.Second,
			MaxInterval:     time.Minute,
			Multiplier:      2,
			JitterFactor:    0.2,
		}
		for range 100 {
			d := b.NextInterval(3)
			assert.GreaterOrEqual(t, d, time.Duration(float64(4*time.Second)*0.8))
			assert.LessOrEqual(t, d, time.Duration(float64(4*time.Second)*1.2))
		}
	})
}

func TestNext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from    realtime.State
		trigger realtime.Trigger
		want    realtime.State
	}{
		{realtime.StateDisconnected, realtime.TriggerStart, realtime.StateConnecting},
		{realtime.StateDisconnected, realtime.TriggerStop, realtime.StateDisconnected},
		{realtime.StateConnecting, realtime.TriggerOpen, realtime.StateConnected},
		{realtime.StateConnecting, realtime.TriggerFail, realtime.StateDisconnected},
		{realtime.StateConnected, realtime.TriggerDrop, realtime.StateReconnecting},
		{realtime.StateConnected, realtime.TriggerStop, realtime.StateDisconnected},
		{realtime.StateReconnecting, realtime.TriggerRetry, realtime.StateReconnecting},
		{realtime.StateReconnecting, realtime.TriggerOpen, realtime.StateConnected},
		{realtime.StateReconnecting, realtime.TriggerStop, realtime.StateDisconnected},
		{realtime.StateReconnecting, realtime.TriggerFail, realtime.StateDisconnected},
	}
	for _, tt := range tests {
		got, err := realtime.Next(tt.from, tt.trigger)
		assert.NoError(t, err, "%s on %s", tt.from, tt.trigger)
		assert.Equal(t, tt.want, got, "%s on %s", tt.from, tt.trigger)
	}

	got, err := realtime.Next(realtime.StateDisconnected, realtime.TriggerDrop)
	var te *realtime.TransitionError
	assert.ErrorAs(t, err, &te)
	assert.Equal(t, realtime.StateDisconnected, got)

	_, err = realtime.Next(realtime.StateConnected, realtime.TriggerStart)
	assert.Error(t, err)
}
