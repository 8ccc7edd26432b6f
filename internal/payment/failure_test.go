package payment_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rawises/storefront-api/internal/payment"
)

func TestDescribeFailure(t *testing.T) {
	known := payment.DescribeFailure("02")
	require.True(t, known.Known)
	require.Equal(t, "Yetersiz bakiye. Lütfen farklı bir kart deneyin.", known.Message)

	for _, code := range []string{"", "99", "abc"} {
		reason := payment.DescribeFailure(code)
		require.False(t, reason.Known)
		require.Equal(t, payment.UnknownFailureMessage, reason.Message)
	}
}

func TestFailureReasonsSorted(t *testing.T) {
	reasons := payment.FailureReasons()
	require.Len(t, reasons, 10)
	require.Equal(t, "01", reasons[0].Code)
	require.Equal(t, "10", reasons[9].Code)
}

func TestStateTransitions(t *testing.T) {
	require.True(t, payment.CanTransition(payment.StateCreated, payment.StateRedirected))
	require.True(t, payment.CanTransition(payment.StateRedirected, payment.StateConfirmedSuccess))
	require.True(t, payment.CanTransition(payment.StateTimedOut, payment.StateConfirmedFailed))
	require.True(t, payment.CanTransition(payment.StateConfirmedSuccess, payment.StateReconciledSuccess))

	require.False(t, payment.CanTransition(payment.StateConfirmedSuccess, payment.StateConfirmedFailed))
	require.False(t, payment.CanTransition(payment.StateReconciledSuccess, payment.StateRedirected))
	require.False(t, payment.CanTransition(payment.StateConfirmedFailed, payment.StateReconciledSuccess))
	require.False(t, payment.CanTransition(payment.StateTimedOut, payment.StateRedirected))

	require.ElementsMatch(t,
		[]payment.State{payment.StateCreated, payment.StateRedirected},
		payment.Sources(payment.StateTimedOut))
}
