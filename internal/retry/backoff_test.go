package retry

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixed(t *testing.T) {
	b := Fixed{Interval: time.Second}
	for attempt := 1; attempt <= 5; attempt++ {
		assert.Equal(t, time.Second, b.Next(attempt))
	}
	assert.Equal(t, time.Duration(0), Fixed{Interval: -time.Second}.Next(1))
}

func TestIncremental(t *testing.T) {
	b := Incremental{Step: 250 * time.Millisecond}
	assert.Equal(t, 250*time.Millisecond, b.Next(1))
	assert.Equal(t, 750*time.Millisecond, b.Next(3))
	assert.Equal(t, time.Duration(0), b.Next(0))
	assert.Equal(t, time.Duration(math.MaxInt64), Incremental{Step: time.Duration(math.MaxInt64 / 2)}.Next(3))
}

func TestExponential(t *testing.T) {
	b := Exponential{Base: 100 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, b.Next(1))
	assert.Equal(t, 200*time.Millisecond, b.Next(2))
	assert.Equal(t, 800*time.Millisecond, b.Next(4))
}

func TestExponential_Capped(t *testing.T) {
	b := Exponential{Base: time.Second, Max: 5 * time.Second}
	assert.Equal(t, 4*time.Second, b.Next(3))
	assert.Equal(t, 5*time.Second, b.Next(4))
	assert.Equal(t, 5*time.Second, b.Next(100))
}

func TestExponential_Jitter(t *testing.T) {
	b := Exponential{Base: time.Second, Jitter: true}
	for i := 0; i < 50; i++ {
		d := b.Next(2)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, 2*time.Second)
	}
}

func TestExponential_ZeroBase(t *testing.T) {
	assert.Equal(t, time.Duration(0), Exponential{}.Next(3))
}
