package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dd0wney/cluso-flowscan/pkg/binetflow"
	"github.com/dd0wney/cluso-flowscan/pkg/flowgraph"
	"github.com/dd0wney/cluso-flowscan/pkg/matcher"
	"github.com/dd0wney/cluso-flowscan/pkg/segment"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF")).
			MarginLeft(2).
			MarginTop(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FFFF")).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#FF00FF")).
			Padding(0, 2)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#666666")).
				Padding(0, 2)

	contentStyle = lipgloss.NewStyle().
			MarginLeft(2).
			MarginTop(1)

	statsBoxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FF00")).
			Padding(1, 2).
			MarginRight(2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			MarginLeft(2)
)

type view int

const (
	dashboardView view = iota
	matchesView
	scanView
	numViews
)

type keyMap struct {
	Tab      key.Binding
	ShiftTab key.Binding
	Enter    key.Binding
	Quit     key.Binding
	Up       key.Binding
	Down     key.Binding
}

var keys = keyMap{
	Tab: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next view"),
	),
	ShiftTab: key.NewBinding(
		key.WithKeys("shift+tab"),
		key.WithHelp("shift+tab", "prev view"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "run scan"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Enter, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab, k.ShiftTab, k.Enter},
		{k.Up, k.Down},
		{k.Quit},
	}
}

type model struct {
	graph       *flowgraph.Graph
	currentView view
	matchTable  table.Model
	ratioInput  textinput.Model
	proto1Input textinput.Model
	proto2Input textinput.Model
	focusIdx    int
	help        help.Model
	keys        keyMap
	width       int
	height      int
	message     string
	messageErr  bool
	lastResult  *matcher.Result
	lastConstr  matcher.Constraints
	source      string
}

func initialModel(graph *flowgraph.Graph, source string) model {
	defaults := matcher.DefaultConstraints()

	ratio := textinput.New()
	ratio.Placeholder = "10.0"
	ratio.SetValue(strconv.FormatFloat(defaults.DurationRatioMin, 'f', -1, 64))
	ratio.CharLimit = 12
	ratio.Width = 16

	proto1 := textinput.New()
	proto1.Placeholder = "tcp"
	proto1.SetValue(defaults.ProtoFirst)
	proto1.CharLimit = 16
	proto1.Width = 16

	proto2 := textinput.New()
	proto2.Placeholder = "icmp"
	proto2.SetValue(defaults.ProtoSecond)
	proto2.CharLimit = 16
	proto2.Width = 16

	columns := []table.Column{
		{Title: "A", Width: 16},
		{Title: "First Leg", Width: 26},
		{Title: "Dur1", Width: 9},
		{Title: "B", Width: 16},
		{Title: "Return Leg", Width: 26},
		{Title: "Dur2", Width: 9},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#00FFFF")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#FF00FF")).
		Bold(false)
	t.SetStyles(s)

	return model{
		graph:       graph,
		currentView: dashboardView,
		matchTable:  t,
		ratioInput:  ratio,
		proto1Input: proto1,
		proto2Input: proto2,
		help:        help.New(),
		keys:        keys,
		lastConstr:  defaults,
		source:      source,
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			// While a constraint field is focused "q" is just text.
			if m.currentView != scanView || msg.String() == "ctrl+c" {
				return m, tea.Quit
			}

		case key.Matches(msg, m.keys.Tab):
			if m.currentView == scanView && m.focusIdx < 2 {
				// Tab cycles constraint fields before leaving the view.
				m.focusIdx++
				m.refocusInputs()
			} else {
				m.setView((m.currentView + 1) % numViews)
			}

		case key.Matches(msg, m.keys.ShiftTab):
			if m.currentView == 0 {
				m.setView(numViews - 1)
			} else {
				m.setView(m.currentView - 1)
			}

		case key.Matches(msg, m.keys.Enter):
			if m.currentView == scanView {
				m.runScan()
			}
		}
	}

	switch m.currentView {
	case scanView:
		m.ratioInput, cmd = m.ratioInput.Update(msg)
		cmds = append(cmds, cmd)
		m.proto1Input, cmd = m.proto1Input.Update(msg)
		cmds = append(cmds, cmd)
		m.proto2Input, cmd = m.proto2Input.Update(msg)
		cmds = append(cmds, cmd)
	case matchesView:
		m.matchTable, cmd = m.matchTable.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) setView(v view) {
	m.currentView = v
	if v == scanView {
		m.focusIdx = 0
		m.refocusInputs()
	} else {
		m.ratioInput.Blur()
		m.proto1Input.Blur()
		m.proto2Input.Blur()
	}
}

func (m *model) refocusInputs() {
	inputs := []*textinput.Model{&m.ratioInput, &m.proto1Input, &m.proto2Input}
	for i, in := range inputs {
		if i == m.focusIdx {
			in.Focus()
		} else {
			in.Blur()
		}
	}
}

func (m *model) runScan() {
	ratio, err := strconv.ParseFloat(strings.TrimSpace(m.ratioInput.Value()), 64)
	if err != nil {
		m.message = fmt.Sprintf("Invalid ratio: %v", err)
		m.messageErr = true
		return
	}

	c := matcher.Constraints{
		DurationRatioMin: ratio,
		ProtoFirst:       strings.TrimSpace(m.proto1Input.Value()),
		ProtoSecond:      strings.TrimSpace(m.proto2Input.Value()),
		TimeOrder:        true,
	}

	result, err := matcher.FindTwoCycles(context.Background(), m.graph, c)
	if err != nil {
		m.message = fmt.Sprintf("Scan failed: %v", err)
		m.messageErr = true
		return
	}

	m.lastResult = result
	m.lastConstr = c
	m.message = fmt.Sprintf("Found %d matches in %s (%d edges visited)",
		len(result.Matches), result.Elapsed.Round(time.Microsecond), result.VisitedEdges)
	m.messageErr = false

	rows := make([]table.Row, 0, len(result.Matches))
	for i := range result.Matches {
		r := result.Matches[i].Row()
		rows = append(rows, table.Row{
			r.A,
			r.Timestamp1,
			fmt.Sprintf("%.3f", r.Dur1),
			r.B,
			r.Timestamp2,
			fmt.Sprintf("%.3f", r.Dur2),
		})
	}
	m.matchTable.SetRows(rows)
	m.setView(matchesView)
}

func (m model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var s strings.Builder

	s.WriteString(titleStyle.Render("🔥 Cluso FlowScan - Beacon Pattern Browser"))
	s.WriteString("\n\n")
	s.WriteString(m.renderTabs())
	s.WriteString("\n\n")

	switch m.currentView {
	case dashboardView:
		s.WriteString(m.renderDashboard())
	case matchesView:
		s.WriteString(m.renderMatches())
	case scanView:
		s.WriteString(m.renderScan())
	}

	if m.message != "" {
		s.WriteString("\n\n")
		if m.messageErr {
			s.WriteString(errorStyle.Render("✗ " + m.message))
		} else {
			s.WriteString(successStyle.Render("✓ " + m.message))
		}
	}

	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render(m.help.ShortHelpView(m.keys.ShortHelp())))

	return s.String()
}

func (m model) renderTabs() string {
	tabs := []string{"Dashboard", "Matches", "Scan"}
	var renderedTabs []string

	for i, tab := range tabs {
		if view(i) == m.currentView {
			renderedTabs = append(renderedTabs, activeTabStyle.Render(tab))
		} else {
			renderedTabs = append(renderedTabs, inactiveTabStyle.Render(tab))
		}
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, renderedTabs...)
}

func (m model) renderDashboard() string {
	stats := m.graph.Stats()

	statsContent := fmt.Sprintf(`📊 Flow Graph
━━━━━━━━━━━━━━━
Source:    %s
Nodes:     %d
Edges:     %d
Pairs:     %d
Malformed: %d`,
		m.source,
		stats.NodeCount,
		stats.EdgeCount,
		stats.UniquePairs,
		stats.MalformedSkipped,
	)

	scanContent := "🔍 Last Scan\n━━━━━━━━━━━━━━━\nNo scan yet.\n\nSwitch to the Scan tab\nand press Enter."
	if m.lastResult != nil {
		scanContent = fmt.Sprintf(`🔍 Last Scan
━━━━━━━━━━━━━━━
Pattern:   %s ⇄ %s
Ratio:     > %gx
Matches:   %d
Visited:   %d
Elapsed:   %s`,
			m.lastConstr.ProtoFirst,
			m.lastConstr.ProtoSecond,
			m.lastConstr.DurationRatioMin,
			len(m.lastResult.Matches),
			m.lastResult.VisitedEdges,
			m.lastResult.Elapsed.Round(time.Microsecond),
		)
	}

	statsBox := statsBoxStyle.Render(statsContent)
	scanBox := statsBoxStyle.Render(scanContent)

	return contentStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Top, statsBox, scanBox),
	)
}

func (m model) renderMatches() string {
	var s strings.Builder

	s.WriteString(headerStyle.Render("Match Browser"))
	s.WriteString("\n\n")

	if m.lastResult == nil {
		s.WriteString(helpStyle.Render("No results yet. Run a scan first."))
	} else {
		s.WriteString(m.matchTable.View())
		s.WriteString("\n\n")
		s.WriteString(helpStyle.Render("Navigate with ↑/↓"))
	}

	return contentStyle.Render(s.String())
}

func (m model) renderScan() string {
	var s strings.Builder

	s.WriteString(headerStyle.Render("Scan Constraints"))
	s.WriteString("\n\n")

	s.WriteString("Duration ratio (e2.dur > e1.dur × k):\n")
	s.WriteString(m.ratioInput.View())
	s.WriteString("\n\nFirst-leg protocol:\n")
	s.WriteString(m.proto1Input.View())
	s.WriteString("\n\nReturn-leg protocol:\n")
	s.WriteString(m.proto2Input.View())

	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render("Tab cycles fields • Enter runs the scan"))

	return contentStyle.Render(s.String())
}

func main() {
	input := flag.String("input", "", "binetflow CSV capture to browse")
	seg := flag.String("segment", "", "Flow segment to browse")
	flag.Parse()

	var (
		graph  *flowgraph.Graph
		source string
		err    error
	)
	switch {
	case *seg != "":
		source = *seg
		graph, err = segment.LoadGraph(*seg, flowgraph.SkipMalformed)
	case *input != "":
		source = *input
		graph, _, err = binetflow.LoadGraph(*input, flowgraph.SkipMalformed, binetflow.LoaderConfig{})
	default:
		log.Fatalf("Usage: tui --input capture.binetflow | --segment capture.seg")
	}
	if err != nil {
		log.Fatalf("Failed to load flows: %v", err)
	}

	p := tea.NewProgram(initialModel(graph, source), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Error running program: %v", err)
	}
}
