package sched

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/assert"
)

func TestController_RateLimitsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(&buf), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(logiface.LevelWarning),
	).Logger()

	c := NewController(logger)
	calls := 0
	c.set = func(tid, nice int) error {
		calls++
		return errors.New("permission denied")
	}

	for i := 0; i < 10; i++ {
		c.SetThreadNice(42, -10)
	}

	assert.Equal(t, 10, calls)
	assert.Equal(t, 1, strings.Count(buf.String(), "failed to apply thread priority"))
}

func TestController_SuccessIsSilent(t *testing.T) {
	var buf bytes.Buffer
	logger := stumpy.L.New(stumpy.L.WithStumpy(stumpy.WithWriter(&buf))).Logger()

	c := NewController(logger)
	c.set = func(int, int) error { return nil }
	c.SetThreadNice(1, 0)

	assert.Empty(t, buf.String())
}
