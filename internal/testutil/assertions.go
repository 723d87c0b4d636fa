// Package testutil provides test helpers shared by the extension host packages:
// result envelope assertions and a generator for tiny guest modules.
package testutil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/reglet-dev/exthost/domain/entities"
	"github.com/reglet-dev/exthost/wireformat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ok renders v as an ok envelope.
func Ok(t testing.TB, v any) string {
	t.Helper()
	data, err := wireformat.EncodeOk(v)
	require.NoError(t, err)
	return string(data)
}

// Err renders an err envelope with the given code and message.
func Err(code, message string) string {
	return string(wireformat.EncodeErr(entities.NewErrorDetail("extension", message).WithCode(code)))
}

// RequireOk asserts an ok envelope and decodes its value into out.
func RequireOk(t testing.TB, data []byte, out any) {
	t.Helper()
	env, err := wireformat.Decode(data)
	require.NoError(t, err, "payload: %s", data)
	require.Nil(t, env.Err, "unexpected err envelope: %s", data)
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Ok, out))
	}
}

// RequireErr asserts an err envelope and returns its detail.
func RequireErr(t testing.TB, data []byte) *entities.ErrorDetail {
	t.Helper()
	env, err := wireformat.Decode(data)
	require.NoError(t, err, "payload: %s", data)
	require.NotNil(t, env.Err, "expected err envelope, got: %s", data)
	return env.Err
}

// AssertJSONEqual compares two JSON strings for equality, ignoring formatting.
func AssertJSONEqual(t testing.TB, expected, actual string, msgAndArgs ...any) {
	t.Helper()
	assert.JSONEq(t, expected, actual, msgAndArgs...)
}

// AssertDurationWithin asserts that a duration is within a tolerance of an expected value.
func AssertDurationWithin(t testing.TB, expected, actual, tolerance time.Duration, msgAndArgs ...any) {
	t.Helper()

	diff := expected - actual
	if diff < 0 {
		diff = -diff
	}
	assert.LessOrEqual(t, diff, tolerance, msgAndArgs...)
}

// RecvWithin receives from ch or fails the test after timeout.
func RecvWithin[T any](t testing.TB, ch <-chan T, timeout time.Duration) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		require.FailNow(t, "timed out waiting for value", "after %s", timeout)
	}
	var zero T
	return zero
}
