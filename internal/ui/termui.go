package ui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/skalibog/bsig/internal/runner"
	"github.com/skalibog/bsig/pkg/models"
)

// Стили UI
var (
	// Основные цвета
	primaryColor   = lipgloss.Color("#0077cc")
	secondaryColor = lipgloss.Color("#333333")
	errorColor     = lipgloss.Color("#cc3300")
	successColor   = lipgloss.Color("#33cc33")
	warningColor   = lipgloss.Color("#cccc00")

	appStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(primaryColor).
			Padding(0, 1).
			Align(lipgloss.Center)
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(secondaryColor).
			Padding(0, 1)
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(secondaryColor).
			Padding(0, 1)
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#999999")).
			Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().Background(lipgloss.Color("#222222"))
)

const maxLogLines = 50

// ResultsUI интерактивный просмотр результатов прогона
type ResultsUI struct {
	runID         string
	reports       []runner.Report
	logs          []string
	logFile       string
	selectedIndex int
	width         int
	height        int
}

// bubbleModel - модель для bubbletea
type bubbleModel struct {
	ui *ResultsUI
}

// NewResultsUI создает просмотрщик. logFile - JSON-лог запуска, может отсутствовать.
func NewResultsUI(runID string, reports []runner.Report, logFile string) *ResultsUI {
	ui := &ResultsUI{
		runID:   runID,
		reports: reports,
		logFile: logFile,
		width:   120,
		height:  40,
	}
	if err := ui.loadLogsFromFile(); err != nil {
		ui.logs = append(ui.logs, fmt.Sprintf("Ошибка загрузки логов: %v", err))
	}
	return ui
}

// Start запускает интерфейс и блокируется до выхода
func (ui *ResultsUI) Start() error {
	program := tea.NewProgram(bubbleModel{ui: ui}, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("ошибка запуска UI: %w", err)
	}
	return nil
}

// ansiRegex удаляет ANSI-цвета из уровня логирования
var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// loadLogsFromFile читает последние строки JSON-лога
func (ui *ResultsUI) loadLogsFromFile() error {
	if ui.logFile == "" {
		return nil
	}
	file, err := os.Open(ui.logFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	var logs []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		logs = append(logs, formatLogLine(scanner.Text()))
		if len(logs) > maxLogLines {
			logs = logs[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	ui.logs = logs
	return nil
}

// formatLogLine превращает JSON-запись zap в строку "[время] [уровень] сообщение (поля)"
func formatLogLine(line string) string {
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		return line
	}
	level, _ := entry["level"].(string)
	ts, _ := entry["ts"].(string)
	msg, _ := entry["msg"].(string)
	level = ansiRegex.ReplaceAllString(level, "")

	timestamp := ""
	if t, err := time.Parse("02.01.2006 - 15:04:05.999999999Z07:00", ts); err == nil {
		timestamp = t.Format("15:04:05")
	}

	var extra []string
	for k, v := range entry {
		if k != "level" && k != "ts" && k != "msg" && k != "caller" {
			extra = append(extra, fmt.Sprintf(" (%s: %v)", k, v))
		}
	}
	sort.Strings(extra)
	return fmt.Sprintf("[%s] [%s] %s%s", timestamp, level, msg, strings.Join(extra, ""))
}

// Методы для bubbletea
func (m bubbleModel) Init() tea.Cmd {
	return nil
}

func (m bubbleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			m.ui.selectedIndex = max(0, m.ui.selectedIndex-1)
		case "down", "j":
			m.ui.selectedIndex = max(0, min(len(m.ui.reports)-1, m.ui.selectedIndex+1))
		case "r":
			if err := m.ui.loadLogsFromFile(); err != nil {
				m.ui.logs = append(m.ui.logs, fmt.Sprintf("Ошибка загрузки логов: %v", err))
			}
		}

	case tea.WindowSizeMsg:
		m.ui.width = msg.Width
		m.ui.height = msg.Height
	}

	return m, nil
}

func (m bubbleModel) View() string {
	title := titleStyle.Render("BSIG - результаты прогона " + m.ui.runID)
	footer := footerStyle.Render("Клавиши: ↑/↓ - выбор стратегии, R - перезагрузить логи, Q - выход")

	parts := []string{
		title, "",
		renderStrategiesSection(m.ui.reports, m.ui.selectedIndex), "",
	}
	if len(m.ui.reports) > 0 {
		parts = append(parts, renderMetricsSection(m.ui.reports[m.ui.selectedIndex]), "")
	}
	parts = append(parts, renderLogsSection(m.ui.logs, m.ui.height), "", footer)
	return appStyle.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func renderStrategiesSection(reports []runner.Report, selectedIndex int) string {
	header := headerStyle.Render("СТРАТЕГИИ")
	content := strings.Builder{}

	if len(reports) == 0 {
		content.WriteString("  Нет результатов\n")
	}
	for i, rep := range reports {
		line := "  " + summaryLine(rep)
		if i == selectedIndex {
			line = selectedStyle.Render("> " + line[2:])
		}
		content.WriteString(line + "\n")
	}
	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, content.String()))
}

func renderMetricsSection(rep runner.Report) string {
	header := headerStyle.Render("МЕТРИКИ: " + strings.ToUpper(rep.Strategy))
	content := strings.Builder{}

	if rep.Failed() {
		content.WriteString("  " + lipgloss.NewStyle().Foreground(errorColor).Render(rep.Err.Error()) + "\n")
	} else {
		content.WriteString(fmt.Sprintf("  %-12s %10s %8s %8s %8s %10s %8s %6s\n",
			"Пара", "Доход,%", "Sharpe", "DD,%", "Win,%", "Ожидание", "Время,%", "Сделки"))
		for _, m := range rep.Metrics {
			content.WriteString(metricsLine(m) + "\n")
		}
	}
	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, content.String()))
}

func renderLogsSection(logs []string, height int) string {
	header := headerStyle.Render("ЛОГИ")
	content := strings.Builder{}

	maxLogsToShow := 10
	if height > 40 {
		maxLogsToShow = height - 30
	}
	start := 0
	if len(logs) > maxLogsToShow {
		start = len(logs) - maxLogsToShow
	}

	for _, log := range logs[start:] {
		// Выделение по уровню логирования
		switch {
		case strings.Contains(log, "[ERROR]"):
			log = lipgloss.NewStyle().Foreground(errorColor).Render(log)
		case strings.Contains(log, "[WARN]"):
			log = lipgloss.NewStyle().Foreground(warningColor).Render(log)
		case strings.Contains(log, "[INFO]"):
			log = lipgloss.NewStyle().Foreground(successColor).Render(log)
		}
		content.WriteString("  " + log + "\n")
	}
	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, content.String()))
}

// RenderSummary сводка по стратегиям для неинтерактивного режима
func RenderSummary(runID string, reports []runner.Report) string {
	content := strings.Builder{}
	for _, rep := range reports {
		content.WriteString(summaryLine(rep) + "\n")
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("BSIG - прогон "+runID),
		sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, headerStyle.Render("СТРАТЕГИИ"), content.String())),
	)
}

// summaryLine строка стратегии: статус, средние доходность и Sharpe по парам, число сделок
func summaryLine(rep runner.Report) string {
	if rep.Failed() {
		status := lipgloss.NewStyle().Foreground(errorColor).Render("ОШИБКА")
		return fmt.Sprintf("%-22s %s: %v", rep.Strategy, status, rep.Err)
	}

	var trades int
	returns := make([]float64, 0, len(rep.Metrics))
	sharpes := make([]float64, 0, len(rep.Metrics))
	for _, m := range rep.Metrics {
		trades += m.Trades
		returns = append(returns, m.TotalReturn)
		sharpes = append(sharpes, m.SharpeRatio)
	}

	avgReturn := mean(returns)
	style := lipgloss.NewStyle().Foreground(warningColor)
	switch {
	case avgReturn > 0:
		style = lipgloss.NewStyle().Foreground(successColor)
	case avgReturn < 0:
		style = lipgloss.NewStyle().Foreground(errorColor)
	}
	return fmt.Sprintf("%-22s пар: %-4d доход: %s  sharpe: %s  сделок: %d  (%s)",
		rep.Strategy, len(rep.Metrics), style.Render(formatValue(avgReturn)+"%"),
		formatValue(mean(sharpes)), trades, rep.Duration.Round(time.Millisecond))
}

func metricsLine(m models.Metrics) string {
	return fmt.Sprintf("  %-12s %10s %8s %8s %8s %10s %8s %6d",
		m.Pair,
		formatValue(m.TotalReturn),
		formatValue(m.SharpeRatio),
		formatValue(m.MaxDrawdown),
		formatValue(m.WinRate),
		formatValue(m.Expectancy),
		formatValue(m.ExposureTime),
		m.Trades)
}

// mean среднее без учета NaN; NaN, если значений нет
func mean(values []float64) float64 {
	var sum float64
	var n int
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

func formatValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v)
}
