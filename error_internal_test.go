package mix

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/mix/stage"
)

func TestFanIn(t *testing.T) {
	assert.Nil(t, newFanIn(2, nil))

	var (
		calls int
		when  stage.When
		err   error
	)
	answer := newFanIn(3, func(w stage.When, e error) {
		calls++
		when, err = w, e
	})
	answer(stage.When{}, stage.ErrCanceled)
	answer(stage.When{MonoTime: 1}, nil)
	assert.Equal(t, 0, calls)
	answer(stage.When{MonoTime: 2}, stage.ErrAlreadyStopped)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, stage.ErrCanceled)
	assert.Equal(t, int64(1), when.MonoTime)
}
