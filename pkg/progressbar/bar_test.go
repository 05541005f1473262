package progressbar

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBar(t *testing.T) {
	var out bytes.Buffer
	finished := false
	steps := 0
	b := New(
		WithInterval(time.Hour),
		WithTitle("下载"),
		WithOutput(&out),
		WithStepHook(func(b *Bar) { steps++ }),
		WithFinishHook(func() { finished = true }),
	)
	go b.Run()

	b.SetTotal(2048)
	b.SetCur(1024)
	b.SetPercent(50)
	b.Finish()

	assert.True(t, finished)
	assert.Equal(t, 1, steps)
	assert.Contains(t, out.String(), "下载")
	assert.Contains(t, out.String(), " 50%")
	assert.Contains(t, out.String(), "1.00 KB/2.00 KB")
}
