package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	all := []Status{
		StatusPending, StatusConfirmed, StatusProcessing, StatusShipped,
		StatusDelivered, StatusCancelled, StatusRefunded,
	}
	allowed := map[Status][]Status{
		StatusPending:    {StatusConfirmed, StatusCancelled, StatusRefunded},
		StatusConfirmed:  {StatusProcessing, StatusCancelled, StatusRefunded},
		StatusProcessing: {StatusShipped, StatusCancelled, StatusRefunded},
		StatusShipped:    {StatusDelivered, StatusCancelled, StatusRefunded},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, ok := range allowed[from] {
				if ok == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusRefunded.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusShipped.Terminal())
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("shipped")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, s)

	_, err = ParseStatus("lost")
	require.ErrorIs(t, err, ErrUnknownStatus)
}

func TestValidateAddress_TrimsBeforeChecking(t *testing.T) {
	err := validateAddress(Address{Name: " A ", Phone: " 1 ", Line1: " x ", City: " y "})
	require.NoError(t, err)

	err = validateAddress(Address{Name: "A", Phone: "1", Line1: "   ", City: "y"})
	var addrErr *InvalidAddressError
	require.ErrorAs(t, err, &addrErr)
	assert.Equal(t, "address line", addrErr.Field)
}
