package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseApplicationID(t *testing.T) {
	t.Run("round-trips a valid UUID", func(t *testing.T) {
		id := NewApplicationID()
		parsed, err := ParseApplicationID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		_, err := ParseApplicationID("not-a-uuid")
		assert.Error(t, err)
	})

	t.Run("zero value reports nil", func(t *testing.T) {
		var id ApplicationID
		assert.True(t, id.IsNil())
		assert.False(t, NewApplicationID().IsNil())
	})
}

func TestParseNationalID(t *testing.T) {
	t.Run("accepts ten digits", func(t *testing.T) {
		n, err := ParseNationalID("0101307789")
		require.NoError(t, err)
		assert.Equal(t, "0101307789", n.String())
	})

	t.Run("rejects wrong length", func(t *testing.T) {
		_, err := ParseNationalID("12345")
		assert.Error(t, err)
	})

	t.Run("rejects non-digits", func(t *testing.T) {
		_, err := ParseNationalID("01013x7789")
		assert.Error(t, err)
	})
}
