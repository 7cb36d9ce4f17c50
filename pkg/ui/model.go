// Package ui repurposes the teacher's bubbletea/bubbles/lipgloss query
// console into a read-only inspector over a live engine.Table and its
// lock manager, per §4.6: an overview of the heap header and free-list
// chain, per-page slot occupancy, each index's root page and first/last
// leaf, and the lock table's live grant queues. B+ tree node contents (key
// arrays, child pointers) are not displayed. The Model/Update/View shape, the
// periodic-tick refresh, and the tab-styled bubbles/table rendering are
// all carried over from the teacher's own Model.
package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"rmdb/pkg/engine"
	"rmdb/pkg/lock"
	debugui "rmdb/pkg/debug/ui"
)

// panel identifies which of the inspector's read-only views is active.
type panel int

const (
	panelOverview panel = iota
	panelHeapPages
	panelIndexes
	panelLocks
	panelCount
)

func (p panel) title() string {
	switch p {
	case panelOverview:
		return "Overview"
	case panelHeapPages:
		return "Heap Pages"
	case panelIndexes:
		return "Indexes"
	case panelLocks:
		return "Lock Table"
	default:
		return "?"
	}
}

// Model is the inspector's Bubble Tea state.
type Model struct {
	table   *engine.Table
	lockMgr *lock.Manager

	active   panel
	heapPage int32

	resultTable table.Model
	help        help.Model
	showHelp    bool

	width, height int
	lastRefresh   time.Time
	err           error

	keys keyMap
}

// NewModel builds an inspector over table and lockMgr, both of which the
// caller (cmd/rmdb) must keep alive for the lifetime of the program.
func NewModel(t *engine.Table, lockMgr *lock.Manager) Model {
	rt := table.New(
		table.WithColumns([]table.Column{{Title: "Field", Width: 20}, {Title: "Value", Width: 40}}),
		table.WithRows([]table.Row{}),
		table.WithFocused(false),
		table.WithHeight(15),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(primaryColor).
		BorderBottom(true).
		Bold(true).
		Foreground(primaryColor)
	styles.Selected = styles.Selected.
		Foreground(bgDark).
		Background(accentColor).
		Bold(false)
	rt.SetStyles(styles)

	return Model{
		table:       t,
		lockMgr:     lockMgr,
		heapPage:    heapFirstDataPage,
		resultTable: rt,
		help:        help.New(),
		keys:        keys,
	}
}

const heapFirstDataPage int32 = 1

func (m Model) Init() tea.Cmd {
	return tickCmd()
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resultTable.SetHeight(m.height - 12)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
		case key.Matches(msg, m.keys.NextPanel):
			m.active = (m.active + 1) % panelCount
		case key.Matches(msg, m.keys.PrevPanel):
			m.active = (m.active - 1 + panelCount) % panelCount
		case key.Matches(msg, m.keys.NextPage):
			m.heapPage++
		case key.Matches(msg, m.keys.PrevPage):
			if m.heapPage > heapFirstDataPage {
				m.heapPage--
			}
		case key.Matches(msg, m.keys.Refresh):
			m.refresh()
		}

	case tickMsg:
		m.refresh()
		return m, tickCmd()
	}

	m.refresh()
	var cmd tea.Cmd
	m.resultTable, cmd = m.resultTable.Update(msg)
	return m, cmd
}

// refresh recomputes the active panel's table rows from live engine/lock
// state. It never mutates anything, matching the inspector's read-only
// contract.
func (m *Model) refresh() {
	m.lastRefresh = time.Now()
	m.err = nil

	var cols []table.Column
	var rows []table.Row

	switch m.active {
	case panelOverview:
		cols, rows = m.renderOverview()
	case panelHeapPages:
		cols, rows = m.renderHeapPage()
	case panelIndexes:
		cols, rows = m.renderIndexes()
	case panelLocks:
		cols, rows = m.renderLocks()
	}

	m.resultTable.SetColumns(cols)
	m.resultTable.SetRows(rows)
}

func (m *Model) renderOverview() ([]table.Column, []table.Row) {
	stats := m.table.HeapStats()
	chain, err := m.table.FreeListChain()
	if err != nil {
		m.err = err
	}
	cols := []table.Column{{Title: "Field", Width: 24}, {Title: "Value", Width: 40}}
	rows := []table.Row{
		{"table", m.table.Name},
		{"record_size", strconv.Itoa(int(stats.RecordSize))},
		{"records_per_page", strconv.Itoa(int(stats.RecordsPerPage))},
		{"num_pages", strconv.Itoa(int(stats.NumPages))},
		{"first_free_page", strconv.Itoa(int(stats.FirstFreePage))},
		{"free_list_chain", joinInt32s(chain)},
		{"indexes", strings.Join(m.table.IndexNames(), ", ")},
	}
	return cols, rows
}

func (m *Model) renderHeapPage() ([]table.Column, []table.Row) {
	cols := []table.Column{{Title: "Slot", Width: 8}, {Title: "Occupied", Width: 10}}
	info, err := m.table.HeapPage(m.heapPage)
	if err != nil {
		m.err = err
		return cols, nil
	}
	rows := make([]table.Row, len(info.Occupied))
	for i, occ := range info.Occupied {
		mark := "."
		if occ {
			mark = "X"
		}
		rows[i] = table.Row{strconv.Itoa(i), mark}
	}
	return cols, rows
}

func (m *Model) renderIndexes() ([]table.Column, []table.Row) {
	cols := []table.Column{{Title: "Index", Width: 20}, {Title: "Root Page", Width: 12}, {Title: "First Leaf", Width: 12}, {Title: "Last Leaf", Width: 12}}
	var rows []table.Row
	for _, name := range m.table.IndexNames() {
		tree, ok := m.table.IndexTree(name)
		if !ok {
			continue
		}
		rows = append(rows, table.Row{
			name,
			strconv.Itoa(int(tree.RootPage())),
			strconv.Itoa(int(tree.FirstLeaf())),
			strconv.Itoa(int(tree.LastLeaf())),
		})
	}
	return cols, rows
}

func (m *Model) renderLocks() ([]table.Column, []table.Row) {
	cols := []table.Column{{Title: "Resource", Width: 30}, {Title: "Group Mode", Width: 12}, {Title: "Holders", Width: 30}}
	var rows []table.Row
	for _, q := range m.lockMgr.Snapshot() {
		holders := make([]string, len(q.Entries))
		for i, e := range q.Entries {
			holders[i] = fmt.Sprintf("txn%d:%s", e.TxnID, e.Mode)
		}
		rows = append(rows, table.Row{q.ID.String(), q.GroupMode.String(), strings.Join(holders, ", ")})
	}
	return cols, rows
}

func joinInt32s(vs []int32) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.Itoa(int(v))
	}
	return strings.Join(parts, " -> ")
}

func (m Model) View() string {
	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderTabs())

	if m.err != nil {
		sections = append(sections, debugui.RenderError(m.err))
	} else {
		sections = append(sections, panelStyle.Render(m.resultTable.View()))
	}

	sections = append(sections, m.renderStatusBar())
	if m.showHelp {
		sections = append(sections, m.renderHelp())
	}
	return appStyle.Render(strings.Join(sections, "\n"))
}

func (m Model) renderHeader() string {
	title := debugui.RenderTitle("⛁", "rmdb inspector")
	badge := panelBadgeStyle.Render(fmt.Sprintf("table: %s", m.table.Name))
	return lipgloss.JoinHorizontal(lipgloss.Left, title, "  ", badge)
}

func (m Model) renderTabs() string {
	tabs := make([]string, panelCount)
	for p := panel(0); p < panelCount; p++ {
		label := p.title()
		if p == m.active {
			tabs[p] = activeTabStyle.Render(label)
		} else {
			tabs[p] = inactiveTabStyle.Render(label)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m Model) renderStatusBar() string {
	pageHint := ""
	if m.active == panelHeapPages {
		pageHint = fmt.Sprintf(" | page %d", m.heapPage)
	}
	status := fmt.Sprintf("refreshed %s%s | tab: switch panel | q: quit", m.lastRefresh.Format("15:04:05"), pageHint)
	return debugui.RenderStatusBar(status)
}

func (m Model) renderHelp() string {
	helpText := m.help.FullHelpView([][]key.Binding{
		{m.keys.NextPanel, m.keys.PrevPanel, m.keys.NextPage, m.keys.PrevPage, m.keys.Refresh, m.keys.Help, m.keys.Quit},
	})
	return lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(primaryColor).
		Padding(1, 2).
		Background(bgMedium).
		Render(helpText)
}

