package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aelexs/directchat/internal/domain"
	"github.com/aelexs/directchat/internal/domain/domaintest"
)

func TestRealClock(t *testing.T) {
	got := domain.RealClock{}.Now()

	assert.Equal(t, time.UTC, got.Location())
	assert.Zero(t, got.Nanosecond()%int(time.Microsecond), "clock must be truncated to microseconds")
	assert.WithinDuration(t, time.Now(), got, time.Second)
}

func TestFakeClock(t *testing.T) {
	fixedTime := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	t.Run("returns fixed time", func(t *testing.T) {
		clock := domaintest.NewFakeClock(fixedTime)
		assert.True(t, clock.Now().Equal(fixedTime))
	})

	t.Run("advance moves time forward", func(t *testing.T) {
		clock := domaintest.NewFakeClock(fixedTime)
		clock.Advance(time.Hour)
		assert.True(t, clock.Now().Equal(fixedTime.Add(time.Hour)))
	})

	t.Run("tick returns then advances", func(t *testing.T) {
		clock := domaintest.NewFakeClock(fixedTime)
		first := clock.Tick(time.Second)
		second := clock.Tick(time.Second)
		assert.True(t, first.Equal(fixedTime))
		assert.True(t, second.Equal(fixedTime.Add(time.Second)))
	})
}
