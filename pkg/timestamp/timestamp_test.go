package timestamp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 14, 15, 9, 26, 535_000_000, time.UTC)
	ms := ToUnixMs(at)

	assert.Equal(t, int64(1741964966535), ms)
	assert.True(t, at.Equal(FromUnixMs(ms)))
	assert.Equal(t, "2025-03-14T15:09:26.535Z", Format(ms))
}

func TestZeroValues(t *testing.T) {
	assert.Equal(t, int64(0), ToUnixMs(time.Time{}))
	assert.True(t, FromUnixMs(0).IsZero())
	assert.Equal(t, "", Format(0))
}

func TestNow(t *testing.T) {
	before := time.Now().UnixMilli()
	now := Now()
	assert.GreaterOrEqual(t, now, before)
	assert.LessOrEqual(t, now, time.Now().UnixMilli())
}
