package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// Dashboard panel indices.
const (
	panelLibrary = iota
	panelMotifs
	panelAlerts
	panelCount
)

// dashboardRows caps the rows listed per panel.
const dashboardRows = 8

var dashboardWorkspace string

type dashboardModel struct {
	activePanel int
	width       int
	height      int

	// Data.
	library *librarySnapshot
	catalog *catalogSnapshot
	alerts  []alertSnapshot

	// State.
	loading bool
	err     error
}

type librarySnapshot struct {
	rung     string
	strategy string
	complete bool
	builtAt  string
	clusters []clusterSnapshot
}

type clusterSnapshot struct {
	name      string
	size      int
	frequency float64
	intent    string
}

type catalogSnapshot struct {
	level    string
	traces   int
	complete bool
	minedAt  string
	motifs   []motifSnapshot
	total    int
}

type motifSnapshot struct {
	id       string
	category string
	support  float64
}

type alertSnapshot struct {
	severity string
	message  string
	time     string
}

// dataLoadedMsg carries loaded data back to the model.
type dataLoadedMsg struct {
	library *librarySnapshot
	catalog *catalogSnapshot
	alerts  []alertSnapshot
	err     error
}

// Style definitions.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	activePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(1, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			MarginBottom(1)

	completeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	incompleteStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	mutedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	severityHigh   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	severityMedium = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	severityLow    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newDashboardModel() dashboardModel {
	return dashboardModel{
		activePanel: panelLibrary,
		loading:     true,
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return loadData
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.activePanel = (m.activePanel + 1) % panelCount
			return m, nil
		case "shift+tab":
			m.activePanel = (m.activePanel - 1 + panelCount) % panelCount
			return m, nil
		case "r":
			m.loading = true
			return m, loadData
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case dataLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.library = msg.library
		m.catalog = msg.catalog
		m.alerts = msg.alerts
		m.err = nil
		return m, nil
	}

	return m, nil
}

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(" rung Dashboard ")
	help := helpStyle.Render("tab: switch panel | r: refresh | q: quit")

	if m.loading {
		return fmt.Sprintf("%s\n\n  Loading data...\n\n%s", title, help)
	}

	if m.err != nil {
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", title, m.err, help)
	}

	panels := []string{m.renderLibraryPanel(), m.renderMotifsPanel(), m.renderAlertsPanel()}
	availableWidth := m.width - 2

	var body string
	if availableWidth > 120 {
		colWidth := availableWidth / 3
		for i := range panels {
			panels[i] = m.applyPanelStyle(i, panels[i], colWidth-4)
		}
		body = lipgloss.JoinHorizontal(lipgloss.Top, panels...)
	} else {
		panelWidth := max(availableWidth-4, 20)
		for i := range panels {
			panels[i] = m.applyPanelStyle(i, panels[i], panelWidth)
		}
		body = lipgloss.JoinVertical(lipgloss.Left, panels...)
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, body, help)
}

func (m dashboardModel) applyPanelStyle(panel int, content string, width int) string {
	style := panelStyle
	if m.activePanel == panel {
		style = activePanelStyle
	}
	return style.Width(width).Render(content)
}

func (m dashboardModel) renderLibraryPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Behavioral Library"))
	b.WriteString("\n")

	if m.library == nil {
		b.WriteString("  No library yet. Run 'rung cluster'.")
		return b.String()
	}

	lib := m.library
	b.WriteString(fmt.Sprintf("  %s rung, %s\n", lib.rung, lib.strategy))
	b.WriteString("  " + runState(lib.complete, lib.builtAt) + "\n\n")
	if len(lib.clusters) == 0 {
		b.WriteString("  No clusters.")
		return b.String()
	}
	for _, c := range lib.clusters {
		b.WriteString(fmt.Sprintf("  %-22s %4d %4.0f%%\n", truncate(c.name, 22), c.size, c.frequency*100))
		if c.intent != "" {
			b.WriteString(mutedStyle.Render("    "+c.intent) + "\n")
		}
	}
	return b.String()
}

func (m dashboardModel) renderMotifsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Motif Catalog"))
	b.WriteString("\n")

	if m.catalog == nil {
		b.WriteString("  No catalog yet. Run 'rung mine'.")
		return b.String()
	}

	cat := m.catalog
	b.WriteString(fmt.Sprintf("  %s level, %d trace(s)\n", cat.level, cat.traces))
	b.WriteString("  " + runState(cat.complete, cat.minedAt) + "\n\n")
	if cat.total == 0 {
		b.WriteString("  No motifs.")
		return b.String()
	}
	for _, mo := range cat.motifs {
		b.WriteString(fmt.Sprintf("  %-12s %4.0f%%  %s\n", mo.id, mo.support*100, mo.category))
	}
	b.WriteString(fmt.Sprintf("\n  Total: %d motif(s)", cat.total))
	return b.String()
}

func (m dashboardModel) renderAlertsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Alerts"))
	b.WriteString("\n")

	if len(m.alerts) == 0 {
		b.WriteString("  No active alerts.")
		return b.String()
	}

	for _, a := range m.alerts {
		sev := styleForSeverity(a.severity).Render(fmt.Sprintf("[%s]", strings.ToUpper(a.severity)))
		b.WriteString(fmt.Sprintf("  %s %s\n", sev, a.message))
	}

	b.WriteString(fmt.Sprintf("\n  Total: %d alert(s)", len(m.alerts)))

	return b.String()
}

func runState(complete bool, at string) string {
	if complete {
		return completeStyle.Render("complete") + mutedStyle.Render(", "+at)
	}
	return incompleteStyle.Render("incomplete") + mutedStyle.Render(", "+at)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func styleForSeverity(severity string) lipgloss.Style {
	switch strings.ToLower(severity) {
	case "high":
		return severityHigh
	case "medium":
		return severityMedium
	case "low":
		return severityLow
	default:
		return lipgloss.NewStyle()
	}
}

func loadData() tea.Msg {
	var result dataLoadedMsg

	if Engine != nil {
		lib, ok, err := Engine.Library(dashboardWorkspace)
		if err != nil {
			result.err = fmt.Errorf("loading behavioral library: %w", err)
			return result
		}
		if ok {
			snap := &librarySnapshot{
				rung:     lib.Rung,
				strategy: lib.Strategy,
				complete: lib.Complete,
				builtAt:  lib.BuiltAt.Format("2006-01-02 15:04 UTC"),
			}
			for i, e := range lib.Entries {
				if i == dashboardRows {
					break
				}
				snap.clusters = append(snap.clusters, clusterSnapshot{
					name:      e.Name,
					size:      e.Size,
					frequency: e.Frequency,
					intent:    e.DominantIntent,
				})
			}
			result.library = snap
		}

		cat, ok, err := Engine.Catalog(dashboardWorkspace)
		if err != nil {
			result.err = fmt.Errorf("loading motif catalog: %w", err)
			return result
		}
		if ok {
			snap := &catalogSnapshot{
				level:    cat.Level,
				traces:   cat.TraceCount,
				complete: cat.Complete,
				minedAt:  cat.MinedAt.Format("2006-01-02 15:04 UTC"),
				total:    len(cat.Motifs),
			}
			for i, mo := range cat.Motifs {
				if i == dashboardRows {
					break
				}
				snap.motifs = append(snap.motifs, motifSnapshot{id: mo.PatternID, category: mo.Category, support: mo.Support})
			}
			result.catalog = snap
		}
	}

	if AlertEngine != nil {
		since := time.Now().UTC().AddDate(0, 0, -7)
		alerts, err := AlertEngine.Evaluate(since)
		if err != nil {
			result.err = fmt.Errorf("loading alerts: %w", err)
			return result
		}
		result.alerts = make([]alertSnapshot, 0, len(alerts))

		// Sort alerts by severity: high first, then medium, then low.
		sort.SliceStable(alerts, func(i, j int) bool {
			return severityRank(string(alerts[i].Severity)) < severityRank(string(alerts[j].Severity))
		})

		for _, a := range alerts {
			result.alerts = append(result.alerts, alertSnapshot{
				severity: string(a.Severity),
				message:  a.Message,
				time:     a.TriggeredAt.Format("2006-01-02 15:04 UTC"),
			})
		}
	}

	return result
}

func severityRank(s string) int {
	switch s {
	case "high":
		return 0
	case "medium":
		return 1
	case "low":
		return 2
	default:
		return 3
	}
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive TUI dashboard for the library, motifs and alerts",
	Long: `Launch an interactive terminal dashboard showing the behavioral library,
the motif catalog and active pipeline alerts.

Navigate between panels with Tab, refresh with r, quit with q.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}
		p := tea.NewProgram(newDashboardModel(), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	dashboardCmd.Flags().StringVarP(&dashboardWorkspace, "workspace", "w", "all", "Workspace path, or \"all\"")
	registerWorkspaceCompletion(dashboardCmd)
	rootCmd.AddCommand(dashboardCmd)
}
