package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertKey(t *testing.T) {
	withID := AlertKey("official", RawItem{ID: "1790", Text: "fire"})
	assert.Equal(t, "official:1790", withID)

	a := AlertKey("synthetic", RawItem{Text: "Flood  in Houston", AuthorID: "u1"})
	b := AlertKey("replay", RawItem{Text: "flood in houston", AuthorID: "u1"})
	c := AlertKey("replay", RawItem{Text: "flood in houston", AuthorID: "u2"})

	assert.True(t, strings.HasPrefix(a, "h-"))
	assert.Equal(t, a, b, "content hash ignores case, spacing and source")
	assert.NotEqual(t, a, c)
}

func TestRawItem_Validate(t *testing.T) {
	assert.NoError(t, RawItem{Text: "storm"}.Validate())
	assert.True(t, errors.Is(RawItem{Text: "   "}.Validate(), ErrMalformedItem))
}

func TestBuildAlert(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Date(2026, time.March, 3, 12, 0, 0, 0, time.UTC))
	SetClock(fake)
	t.Cleanup(func() { SetClock(nil) })

	coord := &Coordinate{Lat: 1, Lon: 2}
	alert := BuildAlert(RawItem{ID: "9", Text: "help", Location: "Miami"}, AlertInput{
		Source:               "official",
		Classification:       Classification{Relevant: true, Confidence: 1.4, Method: "ml_model"},
		Priority:             2,
		Coordinate:           coord,
		CoordinateConfidence: 0.95,
	})

	assert.Equal(t, "official:9", alert.ID)
	assert.Equal(t, 1.0, alert.Confidence)
	assert.Equal(t, 1.0, alert.Priority)
	require.NotNil(t, alert.Coordinate)
	assert.NotSame(t, coord, alert.Coordinate)
	assert.Equal(t, fake.Now(), alert.ReceivedAt)
	assert.False(t, alert.Synthetic)

	bare := BuildAlert(RawItem{Text: "help"}, AlertInput{Source: "synthetic", Synthetic: true, CoordinateConfidence: 0.9})
	assert.Nil(t, bare.Coordinate)
	assert.Zero(t, bare.CoordinateConfidence, "no coordinate means no coordinate confidence")
	assert.True(t, bare.Synthetic)
}

func TestProviderError(t *testing.T) {
	cause := errors.New("boom")
	err := error(NewRateLimitError("official", 30*time.Second, cause))

	assert.True(t, errors.Is(err, ErrRateLimit))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrAuth))
	assert.Equal(t, "rate_limit", ErrorKind(err))
	assert.Contains(t, err.Error(), "status 429")

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 30*time.Second, pe.RetryAfter)

	assert.Equal(t, "auth", ErrorKind(NewAuthError("x", 401, nil)))
	assert.Equal(t, "provider", ErrorKind(cause))
	assert.Empty(t, ErrorKind(nil))
}
