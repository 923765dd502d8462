package errz

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsSetKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"config", ConfigError("op", "bad %s", "value"), KindConfig},
		{"drift", PlanDriftError("op", "mismatch %d", 1), KindPlanDrift},
		{"transient", TransientHTTPError("op", errors.New("boom")), KindTransientHTTP},
		{"permanent", PermanentHTTPError("op", 404), KindPermanentHTTP},
		{"parse", ParseError("op", errors.New("boom")), KindParse},
		{"storage", StorageError("op", errors.New("boom")), KindStorage},
		{"circuit", CircuitOpenError("endpoint-a"), KindCircuitOpen},
		{"cancelled", Cancelled("op"), KindCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.err)
			assert.Equal(t, tt.kind, KindOf(tt.err))
		})
	}
}

func TestKindOfUnknownError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := errors.New("network reset")
	wrapped := TransientHTTPError("httpclient.Fetch", cause)

	assert.ErrorIs(t, wrapped, cause)
}

func TestIsMatchesSameKindOnly(t *testing.T) {
	a := StorageError("op1", errors.New("x"))
	b := &Error{Kind: KindStorage}
	c := &Error{Kind: KindParse}

	assert.True(t, errors.Is(a, b), "two StorageErrors should satisfy errors.Is via Kind")
	assert.False(t, errors.Is(a, c))
}

func TestFatalClassifiesTerminalKinds(t *testing.T) {
	assert.True(t, Fatal(KindConfig))
	assert.True(t, Fatal(KindPlanDrift))
	assert.True(t, Fatal(KindStorage))
	assert.True(t, Fatal(KindCancelled))

	assert.False(t, Fatal(KindTransientHTTP))
	assert.False(t, Fatal(KindPermanentHTTP))
	assert.False(t, Fatal(KindParse))
	assert.False(t, Fatal(KindCircuitOpen))
}

func TestErrorMessageIncludesOpAndKind(t *testing.T) {
	err := StorageError("writer.flush", errors.New("disk full"))
	assert.Contains(t, err.Error(), "writer.flush")
	assert.Contains(t, err.Error(), string(KindStorage))
	assert.Contains(t, err.Error(), "disk full")
}
