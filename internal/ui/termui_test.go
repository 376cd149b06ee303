package ui

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/skalibog/bsig/internal/runner"
	"github.com/skalibog/bsig/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReports() []runner.Report {
	return []runner.Report{
		{
			Strategy: "sma_cross",
			Duration: 15 * time.Millisecond,
			Metrics: []models.Metrics{
				{Pair: "ETH/BTC", TotalReturn: 4, SharpeRatio: 1.5, WinRate: 50, Trades: 2},
				{Pair: "LTC/BTC", TotalReturn: 2, SharpeRatio: math.NaN(), WinRate: math.NaN(), Trades: 0},
			},
		},
		{Strategy: "rsi_bb", Err: errors.New("нет поля volume")},
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestRenderSummary(t *testing.T) {
	out := RenderSummary("run-1", sampleReports())

	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "sma_cross")
	assert.Contains(t, out, "3.00%")
	assert.Contains(t, out, "1.50")
	assert.Contains(t, out, "сделок: 2")
	assert.Contains(t, out, "ОШИБКА")
	assert.Contains(t, out, "нет поля volume")
}

func TestNavigation(t *testing.T) {
	ui := NewResultsUI("run-1", sampleReports(), "")
	var m tea.Model = bubbleModel{ui: ui}

	m, _ = m.Update(key("up"))
	assert.Equal(t, 0, ui.selectedIndex)

	m, _ = m.Update(key("down"))
	m, _ = m.Update(key("down"))
	assert.Equal(t, 1, ui.selectedIndex)
	assert.Contains(t, m.View(), "МЕТРИКИ: RSI_BB")

	_, cmd := m.Update(key("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestViewWithoutReports(t *testing.T) {
	ui := NewResultsUI("run-2", nil, "")
	m := bubbleModel{ui: ui}
	m2, _ := m.Update(key("down"))
	assert.Equal(t, 0, ui.selectedIndex)
	assert.Contains(t, m2.View(), "Нет результатов")
}

func TestMetricsSection(t *testing.T) {
	out := renderMetricsSection(sampleReports()[0])
	assert.Contains(t, out, "ETH/BTC")
	assert.Contains(t, out, "n/a")
	assert.Contains(t, out, "4.00")
}

func TestLoadLogsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bsig.json.log")
	lines := []string{
		`{"level":"INFO","ts":"01.02.2025 - 10:11:12.000Z","caller":"runner/runner.go:1","msg":"Данные загружены","pairs":3}`,
		`not json`,
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	ui := NewResultsUI("run", nil, path)
	require.Len(t, ui.logs, 2)
	assert.Equal(t, "[10:11:12] [INFO] Данные загружены (pairs: 3)", ui.logs[0])
	assert.Equal(t, "not json", ui.logs[1])

	missing := NewResultsUI("run", nil, filepath.Join(t.TempDir(), "none.log"))
	assert.Empty(t, missing.logs)
}

func TestMean(t *testing.T) {
	assert.Equal(t, 2.0, mean([]float64{1, math.NaN(), 3}))
	assert.True(t, math.IsNaN(mean(nil)))
}
