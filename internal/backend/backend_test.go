package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReasonString(t *testing.T) {
	cases := map[Reason]string{
		ReasonUnknown:           "unknown",
		ReasonDeviceNotEligible: "device_not_eligible",
		ReasonFeatureNotEnabled: "feature_not_enabled",
		ReasonModelNotReady:     "model_not_ready",
		Reason(42):              "unrecognized",
	}
	for r, want := range cases {
		require.Equal(t, want, r.String())
	}
}

func TestAvailabilityString(t *testing.T) {
	require.Equal(t, "available", Available.String())
	require.Equal(t, "unavailable(model_not_ready)", Unavailable(ReasonModelNotReady).String())
	require.False(t, Unavailable(ReasonUnknown).Ready)
}

func TestEcho(t *testing.T) {
	e := NewEcho()
	require.True(t, e.Availability(context.Background()).Ready)

	sess, err := e.NewSession(context.Background())
	require.NoError(t, err)
	out, err := sess.Generate(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, DefaultEchoPrefix+"hi", out)

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
	_, err = sess.Generate(context.Background(), "hi")
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestEcho_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEcho().NewSession(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
