package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/connect-alarm-go/internal/clockwork"
)

func TestBypassFalseBeforeThreshold(t *testing.T) {
	b := NewInMemory(3, time.Minute, nil, nil)
	b.RecordFailure("Kitchen")
	b.RecordFailure("Kitchen")
	require.False(t, b.ShouldBypassPrimary("Kitchen"))
}

func TestBypassTrueAtThreshold(t *testing.T) {
	b := NewInMemory(3, time.Minute, nil, nil)
	b.RecordFailure("Kitchen")
	b.RecordFailure("Kitchen")
	b.RecordFailure("Kitchen")
	require.True(t, b.ShouldBypassPrimary("Kitchen"))
}

func TestRecordSuccessResetsState(t *testing.T) {
	b := NewInMemory(3, time.Minute, nil, nil)
	b.RecordFailure("Kitchen")
	b.RecordFailure("Kitchen")
	b.RecordFailure("Kitchen")
	require.True(t, b.ShouldBypassPrimary("Kitchen"))

	b.RecordSuccess("Kitchen")
	require.False(t, b.ShouldBypassPrimary("Kitchen"))

	state := b.State("Kitchen")
	require.Equal(t, 0, state.FailureCount)
	require.False(t, state.IsOpen)
}

func TestBypassClearsAfterCooldown(t *testing.T) {
	clock := clockwork.NewFake(time.Now())
	b := NewInMemory(1, 10*time.Millisecond, nil, clock)
	b.RecordFailure("Kitchen")
	require.True(t, b.ShouldBypassPrimary("Kitchen"))

	clock.Advance(20 * time.Millisecond)
	require.False(t, b.ShouldBypassPrimary("Kitchen"))
}

func TestDevicesAreIndependent(t *testing.T) {
	b := NewInMemory(1, time.Minute, nil, nil)
	b.RecordFailure("Kitchen")
	require.True(t, b.ShouldBypassPrimary("Kitchen"))
	require.False(t, b.ShouldBypassPrimary("Office"))
}

func TestDefaultsAppliedForNonPositiveInputs(t *testing.T) {
	b := NewInMemory(0, 0, nil, nil)
	require.Equal(t, DefaultFailureThreshold, b.threshold)
	require.Equal(t, DefaultCooldown, b.cooldown)
}
