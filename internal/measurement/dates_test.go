package measurement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	got, err := ParseDate("", true)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ParseDate("2025-03-01T10:00:00Z", true)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Hour(), "RFC3339 is taken as-is")

	from, err := ParseDate("2025-03-01", false)
	require.NoError(t, err)
	to, err := ParseDate("2025-03-01", true)
	require.NoError(t, err)
	assert.Equal(t, 0, from.Hour())
	assert.Equal(t, 24*time.Hour-time.Nanosecond, to.Sub(*from))

	_, err = ParseDate("01/03/2025", false)
	assert.Error(t, err)
}
