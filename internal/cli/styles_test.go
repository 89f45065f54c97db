package cli

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatters(t *testing.T) {
	tests := []struct {
		name   string
		format func(string) string
		icon   string
	}{
		{name: "success", format: FormatSuccess, icon: SuccessIcon},
		{name: "error", format: FormatError, icon: ErrorIcon},
		{name: "warning", format: FormatWarning, icon: WarningIcon},
		{name: "info", format: FormatInfo, icon: InfoIcon},
		{name: "title", format: FormatTitle, icon: CoinIcon},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.format("hello")
			assert.Contains(t, out, tt.icon)
			assert.Contains(t, out, "hello")
		})
	}
}

func TestFormatUSD(t *testing.T) {
	assert.Contains(t, FormatUSD(decimal.RequireFromString("1234.5")), "$1234.50")
	assert.Contains(t, FormatUSD(decimal.RequireFromString("-20")), "-$20.00")
	assert.Equal(t, "$0.00", FormatUSD(decimal.Zero))
}

func TestRenderKeyValues(t *testing.T) {
	out := RenderKeyValues([][2]string{{"Method", "FIFO"}, {"Open lots", "3"}})
	lines := strings.Split(out, "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "FIFO")
	assert.Contains(t, lines[1], "Open lots:")
}

func TestRenderBoxAndWarnings(t *testing.T) {
	box := RenderBox("Summary", "body")
	assert.Contains(t, box, "Summary")
	assert.Contains(t, box, "body")

	warnings := RenderWarnings([]string{"a", "b"})
	assert.Equal(t, 2, strings.Count(warnings, WarningIcon))
	assert.Empty(t, RenderWarnings(nil))
}

func TestProgress(t *testing.T) {
	var out bytes.Buffer
	p := NewProgress(&out, "Classifying")

	p.Finish() // no-op before the first update
	assert.Empty(t, out.String())

	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Update(i, 10)
		}()
	}
	wg.Wait()
	p.Update(10, 10)
	p.Finish()

	assert.Contains(t, out.String(), "Classifying")
}

func TestProgress_ZeroTotal(t *testing.T) {
	var out bytes.Buffer
	p := NewProgress(&out, "Classifying")
	p.Update(0, 0)
	p.Finish()
	assert.Empty(t, out.String())
}
