package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOTPVerifyConsumesCode(t *testing.T) {
	store := NewOTPStore(5*time.Minute, 3, false)

	code, err := store.Generate("+15551230001")
	require.NoError(t, err)
	require.Len(t, code, 6)

	result := store.Verify("+15551230001", code)
	assert.True(t, result.Valid)

	// The code is single-use.
	result = store.Verify("+15551230001", code)
	assert.False(t, result.Valid)
}

func TestOTPDemoModeFixedCode(t *testing.T) {
	store := NewOTPStore(5*time.Minute, 3, true)

	code, err := store.Generate("+15551230002")
	require.NoError(t, err)
	assert.Equal(t, "123456", code)
}

func TestOTPWrongCodeAttemptsAreBounded(t *testing.T) {
	store := NewOTPStore(5*time.Minute, 3, false)

	code, err := store.Generate("+15551230003")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		result := store.Verify("+15551230003", "000000")
		assert.False(t, result.Valid)
	}

	// The attempt budget is spent; even the right code is refused now.
	result := store.Verify("+15551230003", code)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Message, "too many attempts")
}

func TestOTPExpiry(t *testing.T) {
	store := NewOTPStore(5*time.Minute, 3, true)
	current := time.Now()
	store.now = func() time.Time { return current }

	code, err := store.Generate("+15551230004")
	require.NoError(t, err)

	current = current.Add(6 * time.Minute)
	result := store.Verify("+15551230004", code)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Message, "expired")
}

func TestOTPRegenerateReplacesCode(t *testing.T) {
	store := NewOTPStore(5*time.Minute, 3, false)

	first, err := store.Generate("+15551230005")
	require.NoError(t, err)
	second, err := store.Generate("+15551230005")
	require.NoError(t, err)

	if first != second {
		result := store.Verify("+15551230005", first)
		assert.False(t, result.Valid)
	}
	result := store.Verify("+15551230005", second)
	assert.True(t, result.Valid)
}
