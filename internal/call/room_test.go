package call

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoom(t *testing.T) {
	tests := []struct {
		in   string
		want RoomID
	}{
		{"r1", "r1"},
		{"  r1 ", "r1"},
		{"https://warpcall.qzz.io/?room=abc", "abc"},
		{"https://warpcall.qzz.io/r/abc", "abc"},
		{"https://warpcall.qzz.io/r/abc/", "abc"},
		{"/r/xyz", "xyz"},
	}
	for _, tt := range tests {
		got, err := ParseRoom(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseRoomMissing(t *testing.T) {
	for _, in := range []string{"", "   ", "https://warpcall.qzz.io/", "https://warpcall.qzz.io/?other=1"} {
		_, err := ParseRoom(in)
		assert.ErrorIs(t, err, ErrNoRoom, in)
	}
}

func TestRandomMemberID(t *testing.T) {
	id := RandomMemberID()
	assert.NotEmpty(t, id)
	assert.LessOrEqual(t, len(id), 4)
}

func TestPolite(t *testing.T) {
	assert.True(t, Polite("b", "a"))
	assert.False(t, Polite("a", "b"))
}
