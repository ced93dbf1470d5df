package ekart

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestClassifyRejection_Serviceability(t *testing.T) {
	err := ClassifyRejection("Sorry, NO VENDOR has pickup serviceability for pincode 560001")
	require.Equal(t, KindServiceability, err.Kind)
	require.Equal(t, "provide an alternate address", err.Remediation)
}

func TestClassifyRejection_Duplicate(t *testing.T) {
	err := ClassifyRejection("Shipment already present in the system")
	require.Equal(t, KindDuplicate, err.Kind)
	require.NotEmpty(t, err.Remediation)
}

func TestClassifyRejection_FallthroughRejected(t *testing.T) {
	err := ClassifyRejection("some brand new vendor message")
	require.Equal(t, KindRejected, err.Kind)
	require.Empty(t, err.Remediation)

	err = ClassifyRejection("")
	require.Equal(t, KindRejected, err.Kind)
	require.NotEmpty(t, err.Message)
}

func TestIsKind_Wrapped(t *testing.T) {
	base := NewAuthError("token refresh failed")
	wrapped := errors.Wrap(base, "create shipment")
	require.True(t, IsKind(wrapped, KindAuth))
	require.False(t, IsKind(wrapped, KindTransport))
	require.False(t, IsKind(errors.New("plain"), KindAuth))
}

func TestAccepted(t *testing.T) {
	require.True(t, Accepted(StatusRequestAccepted))
	require.True(t, Accepted(StatusRequestReceived))
	require.False(t, Accepted("REQUEST_REJECTED"))
	require.False(t, Accepted(""))
}
