package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTimestamp(t *testing.T) {
	got, err := NormalizeTimestamp("2024-05-11T12:34:56.789012Z")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-11T12:34:56Z", got)

	got, err = NormalizeTimestamp("2024-05-11T12:34:56.999Z")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-11T12:34:56Z", got, "fraction is truncated")
}

func TestNormalizeTimestampRejects(t *testing.T) {
	inputs := []string{
		"",
		"2024-05-11T12:34:56Z",
		"2024-05-11T12:34:56.1234567Z",
		"2024-05-11T12:34:56.789+02:00",
		"2024-05-11 12:34:56.789Z",
		"2024-13-11T12:34:56.789Z",
		"2024-05-11T12:34:56.789z",
	}

	for _, in := range inputs {
		_, err := NormalizeTimestamp(in)
		assert.ErrorIs(t, err, ErrMalformedTimestamp, "input %q", in)
	}
}

func TestNormalizeDate(t *testing.T) {
	got, err := Record{FieldActionDate: "2023-01-02T03:04:05.000001Z"}.NormalizeDate()
	require.NoError(t, err)
	assert.Equal(t, "2023-01-02T03:04:05Z", got)

	_, err = Record{}.NormalizeDate()
	assert.ErrorIs(t, err, ErrMalformedTimestamp)

	_, err = Record{FieldActionDate: 1700000000}.NormalizeDate()
	assert.ErrorIs(t, err, ErrMalformedTimestamp)
}
