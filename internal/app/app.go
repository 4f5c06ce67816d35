// Package app is the kwatch top dashboard.
package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
	"github.com/HaPhanBaoMinh/kwatch/internal/sink"
	"github.com/HaPhanBaoMinh/kwatch/internal/ui/styles"
	"github.com/HaPhanBaoMinh/kwatch/internal/ui/widgets"
)

// Source is what the dashboard reads: the live watches and the published events.
type Source interface {
	List() []domain.WatchInfo
	Records() []sink.Record
}

type View int

const (
	ViewPods View = iota
	ViewNodes
	ViewWatches
)

var viewNames = map[View]string{ViewPods: "Pods", ViewNodes: "Nodes", ViewWatches: "Watches"}

const refresh = 2 * time.Second

type Model struct {
	src     Source
	cluster string

	// Namespace picker
	nsPickerOpen bool
	nsTable      table.Model
	autoCursor   bool

	view   View
	ns     string // "" is all namespaces
	sortBy string // "cpu"|"mem"

	table table.Model

	// panes
	infoOpen bool
	feedOpen bool
	feedVP   viewport.Model

	// cache
	snap    snapshot
	watches []domain.WatchInfo

	width, height int
	now           func() time.Time
}

func New(src Source, cluster string) Model {
	t := table.New()
	t.SetHeight(12)
	t.SetWidth(100)

	m := Model{
		src:        src,
		cluster:    cluster,
		view:       ViewPods,
		autoCursor: true,
		sortBy:     "cpu",
		table:      t,
		feedVP:     viewport.New(100, 10),
		now:        time.Now,
	}

	m.nsTable = table.New()
	m.nsTable.SetColumns([]table.Column{{Title: "Namespaces", Width: 32}})
	m.nsTable.SetHeight(10)
	m.nsTable.SetWidth(36)
	return m
}

type tickMsg struct{}

type dataMsg struct {
	snap    snapshot
	watches []domain.WatchInfo
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(refresh, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m Model) fetch() tea.Cmd {
	src, ns, sortBy := m.src, m.ns, m.sortBy
	return func() tea.Msg {
		snap := fold(src.Records(), ns)
		sortPods(snap.pods, sortBy)
		sortNodes(snap.nodes, sortBy)
		return dataMsg{snap: snap, watches: src.List()}
	}
}

// namespaces for the picker; the first row means all.
func (m Model) namespaces() []string {
	return append([]string{""}, m.snap.namespaces...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

		// compute vertical layout using measured header/footer, not magic numbers
		headerH := lipgloss.Height(styles.Header.Render("x"))
		footerH := lipgloss.Height(styles.Footer.Render("x"))
		base := m.height - headerH - footerH - 2 // top/bot padding
		if base < 10 {
			base = 10
		}

		switch {
		case m.infoOpen && m.feedOpen:
			m.table.SetHeight(int(float64(base) * 0.5))
			m.feedVP.Height = int(float64(base) * 0.3)
		case m.feedOpen:
			m.table.SetHeight(int(float64(base) * 0.55))
			m.feedVP.Height = base - m.table.Height()
		case m.infoOpen:
			m.table.SetHeight(int(float64(base) * 0.65))
			m.feedVP.Height = 0
		default:
			m.table.SetHeight(base)
			m.feedVP.Height = 0
		}
		m.feedVP.Width = m.width - 4
		m.table.SetWidth(m.width - 4)
		m.rebuildTable()

		var cmd tea.Cmd
		m.feedVP, cmd = m.feedVP.Update(msg)
		return m, cmd

	case dataMsg:
		m.snap, m.watches = msg.snap, msg.watches
		m.rebuildTable()
		m.renderFeed()

		rows := len(m.table.Rows())
		cur := m.table.Cursor()
		if rows > 0 && (m.autoCursor || cur < 0 || cur >= rows) {
			m.table.SetCursor(0)
		}
		m.autoCursor = false
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetch(), tick())

	case tea.KeyMsg:
		if m.nsPickerOpen {
			return m.updatePicker(msg)
		}
		if m.feedOpen {
			switch msg.String() {
			case "up", "k", "down", "j", "pgup", "pgdown":
				var cmd tea.Cmd
				m.feedVP, cmd = m.feedVP.Update(msg)
				return m, cmd
			}
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "n":
			m.nsPickerOpen = true
			var rows []table.Row
			cur := 0
			for i, ns := range m.namespaces() {
				rows = append(rows, table.Row{nsLabel(ns)})
				if ns == m.ns {
					cur = i
				}
			}
			m.nsTable.SetRows(rows)
			m.nsTable.Focus()
			m.nsTable.SetCursor(cur)
			return m, nil

		case "tab":
			m.view = (m.view + 1) % View(len(viewNames))
			m.infoOpen = false
			m.autoCursor = true
			m.rebuildTable()
			return m, m.fetch()

		case "i":
			m.infoOpen = !m.infoOpen
			// trigger a synthetic resize to recalc heights
			return m, func() tea.Msg { return tea.WindowSizeMsg{Width: m.width, Height: m.height} }

		case "e":
			m.feedOpen = !m.feedOpen
			m.renderFeed()
			return m, func() tea.Msg { return tea.WindowSizeMsg{Width: m.width, Height: m.height} }

		case "esc":
			switch {
			case m.infoOpen:
				m.infoOpen = false
				return m, nil
			case m.feedOpen:
				m.feedOpen = false
				return m, nil
			}
			return m, tea.Quit

		case "s":
			if m.sortBy == "cpu" {
				m.sortBy = "mem"
			} else {
				m.sortBy = "cpu"
			}
			return m, m.fetch()

		case "up", "k", "down", "j", "enter":
			var cmd tea.Cmd
			m.table, cmd = m.table.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		nss := m.namespaces()
		idx := clamp(m.nsTable.Cursor(), 0, len(nss)-1)
		m.nsPickerOpen = false
		m.nsTable.Blur()
		if nss[idx] != m.ns {
			m.ns = nss[idx]
			m.infoOpen = false
			m.autoCursor = true
			return m, m.fetch()
		}
		return m, nil
	case "esc":
		m.nsPickerOpen = false
		m.nsTable.Blur()
		return m, nil
	case "up", "k", "down", "j", "pgup", "pgdown", "home", "end":
		var cmd tea.Cmd
		m.nsTable, cmd = m.nsTable.Update(msg)
		return m, cmd
	}
	return m, nil
}

func nsLabel(ns string) string {
	if ns == "" {
		return "(all)"
	}
	return ns
}

func (m *Model) rebuildTable() {
	// columns change with the view; clear rows first so they never outnumber columns
	m.table.SetRows(nil)
	switch m.view {
	case ViewPods:
		wPod, wCPU, wCPUBar, wMem, wMemBar, wOwner, wNode, wTrend := m.podColWidths(m.table.Width())
		m.table.SetColumns([]table.Column{
			{Title: "POD", Width: wPod},
			{Title: "CPU", Width: wCPU},
			{Title: "", Width: wCPUBar},
			{Title: "MEM", Width: wMem},
			{Title: "", Width: wMemBar},
			{Title: "OWNER", Width: wOwner},
			{Title: "NODE", Width: wNode},
			{Title: "Trend", Width: wTrend},
		})

		// pods without requests are drawn against the busiest pod
		var maxCPU, maxMem int64 = 1, 1
		for _, p := range m.snap.pods {
			maxCPU, maxMem = max(maxCPU, p.CPU), max(maxMem, p.Mem)
		}
		var rows []table.Row
		for _, p := range m.snap.pods {
			rows = append(rows, table.Row{
				p.Namespace + "/" + p.PodName,
				milli(p.CPU),
				widgets.Bar(ratio(p.CPU, orElse(p.CPUReq, maxCPU)), wCPUBar-1),
				mebi(p.Mem),
				widgets.Bar(ratio(p.Mem, orElse(p.MemReq, maxMem)), wMemBar-1),
				ownerLabel(p.Owner),
				p.NodeName,
				widgets.Spark8(normalize(p.CPUTrend, p.CPUReq), wTrend),
			})
		}
		m.table.SetRows(rows)

	case ViewNodes:
		wNode, wCPUP, wCPUBar, wMEMP, wMEMBar, wPods, wK8s, wTrend := m.nodeColWidths(m.table.Width())
		m.table.SetColumns([]table.Column{
			{Title: "NODE", Width: wNode},
			{Title: "CPU%", Width: wCPUP},
			{Title: "", Width: wCPUBar},
			{Title: "MEM%", Width: wMEMP},
			{Title: "", Width: wMEMBar},
			{Title: "PODS", Width: wPods},
			{Title: "K8S", Width: wK8s},
			{Title: "Trend", Width: wTrend},
		})
		var rows []table.Row
		for _, n := range m.snap.nodes {
			cpu, mem := ratio(n.CPU, n.CPUAlloc), ratio(n.Mem, n.MemAlloc)
			trend := widgets.Spark8(normalize(n.CPUTrend, n.CPUAlloc), wTrend)
			if trend == "" {
				trend = "—"
			}
			rows = append(rows, table.Row{
				n.NodeName,
				fmt.Sprintf("%3.0f%%", cpu*100),
				widgets.Bar(cpu, wCPUBar-1),
				fmt.Sprintf("%3.0f%%", mem*100),
				widgets.Bar(mem, wMEMBar-1),
				fmt.Sprintf("%d", n.Pods),
				n.Kubelet,
				trend,
			})
		}
		m.table.SetRows(rows)

	case ViewWatches:
		wID, wTarget, wKind, wEvents, wAge := m.watchColWidths(m.table.Width())
		m.table.SetColumns([]table.Column{
			{Title: "WATCH", Width: wID},
			{Title: "TARGET", Width: wTarget},
			{Title: "KIND", Width: wKind},
			{Title: "EVENTS", Width: wEvents},
			{Title: "AGE", Width: wAge},
		})
		var rows []table.Row
		for _, w := range m.watches {
			rows = append(rows, table.Row{
				w.ID,
				w.Target,
				string(w.Kind),
				fmt.Sprintf("%d", w.Events),
				m.now().Sub(w.StartedAt).Truncate(time.Second).String(),
			})
		}
		m.table.SetRows(rows)
	}
	m.table.Focus()
}

func (m *Model) renderFeed() {
	if !m.feedOpen {
		return
	}
	var b strings.Builder
	for _, rec := range m.snap.feed {
		fmt.Fprintf(&b, "%s %-16s %s\n", rec.Timestamp.Format("15:04:05.000"), rec.Event.EventKind(), describe(rec.Event))
	}
	m.feedVP.SetContent(b.String())
	m.feedVP.GotoBottom()
}

func describe(ev domain.Event) string {
	switch e := ev.(type) {
	case domain.PodInfo:
		return fmt.Sprintf("%s/%s owner=%s req=%s/%s", e.Namespace, e.PodName, ownerLabel(e.TopLevelOwner),
			milli(e.Resources.Requests.CPU.Amount), mebi(e.Resources.Requests.Memory.Amount))
	case domain.PodEvent:
		return fmt.Sprintf("%s %s", e.PodUID, e.Type)
	case domain.NodeInfo:
		return fmt.Sprintf("%s kubelet=%s", e.NodeName, e.KubeletVersion)
	case domain.NodeEvent:
		return fmt.Sprintf("%s %s", e.NodeName, e.Type)
	case domain.ClusterEvent:
		return fmt.Sprintf("%s/%s %s: %s", e.SourceComponent, e.Reason, e.Object.Name, e.Message)
	case domain.QuantityWarning:
		return styles.Warn.Render(fmt.Sprintf("%s %q: %s", e.Object, e.Raw, e.Message))
	}
	return ev.ResourceUID()
}

func (m Model) View() string {
	head := styles.Header.Render(
		fmt.Sprintf("kwatch  │ cluster: %s  ns: %s  view: %s  sort: %s  watches: %d  warnings: %d",
			m.cluster, nsLabel(m.ns), viewNames[m.view], m.sortBy, len(m.watches), m.snap.warnings),
	)
	body := lipgloss.NewStyle().Padding(0, 1).Render(m.table.View())

	info := ""
	if m.infoOpen {
		info = styles.Box.Width(m.width - 2).Render(m.renderInfo())
	}

	feed := ""
	if m.feedOpen {
		feed = styles.Box.Width(m.width - 2).Render(styles.Title.Render("Events") + "\n" + m.feedVP.View())
	}

	footer := styles.Footer.Render("↑/↓ move • [Tab] switch view • [n] namespace • [i] info • [e] events • [s] sort • [q] quit")
	main := lipgloss.JoinVertical(lipgloss.Left, head, body, info, feed, footer)

	if m.nsPickerOpen {
		box := styles.Box.
			BorderForeground(lipgloss.Color("#7DCE13")).
			Width(40).Height(14)
		title := styles.Title.Render(" Switch Namespace (↑/↓, Enter, Esc) ")
		overlay := lipgloss.Place(m.width, m.height,
			lipgloss.Center, lipgloss.Center,
			box.Render(lipgloss.JoinVertical(lipgloss.Left, title, m.nsTable.View())),
		)
		return main + "\n" + overlay
	}
	return main
}

func (m Model) selected() int {
	return max(m.table.Cursor(), 0)
}

func (m Model) renderInfo() string {
	switch m.view {
	case ViewPods:
		if len(m.snap.pods) == 0 {
			return "No pods"
		}
		p := m.snap.pods[m.selected()%len(m.snap.pods)]
		cpuReq, memReq := ratio(p.CPU, p.CPUReq), ratio(p.Mem, p.MemReq)
		return fmt.Sprintf(
			`Pod: %s  ns: %s  node: %s  qos: %s
Owner: %s  uid: %s
Images: %s
Requests: cpu=%s mem=%s  Limits: cpu=%s mem=%s

Util vs Req: CPU %.0f%% %s  MEM %.0f%% %s

Trend CPU: %s
Trend MEM: %s`,
			p.PodName, p.Namespace, p.NodeName, p.QOSClass,
			ownerLabel(p.Owner), p.Owner.UID,
			strings.Join(p.Images, ", "),
			milli(p.CPUReq), mebi(p.MemReq), milli(p.CPULim), mebi(p.MemLim),
			cpuReq*100, widgets.Bar(cpuReq/2.5, 12),
			memReq*100, widgets.Bar(memReq/3.0, 12),
			widgets.Spark8(normalize(p.CPUTrend, p.CPUReq), 30),
			widgets.Spark8(normalize(p.MemTrend, p.MemReq), 30),
		)

	case ViewNodes:
		if len(m.snap.nodes) == 0 {
			return "No nodes"
		}
		n := m.snap.nodes[m.selected()%len(m.snap.nodes)]
		return fmt.Sprintf(
			"Node: %s  k8s: %s  pods: %d\nAllocatable: cpu=%s mem=%s\nCPU: %s\nMEM: %s",
			n.NodeName, n.Kubelet, n.Pods,
			milli(n.CPUAlloc), mebi(n.MemAlloc),
			widgets.Spark8(normalize(n.CPUTrend, n.CPUAlloc), 40),
			widgets.Spark8(normalize(n.MemTrend, n.MemAlloc), 40),
		)

	case ViewWatches:
		if len(m.watches) == 0 {
			return "No watches"
		}
		w := m.watches[m.selected()%len(m.watches)]
		return fmt.Sprintf("Watch: %s\nCluster: %s (%s)\nStarted: %s",
			w.ID, w.Cluster.ClusterID, w.Cluster.ClusterName, w.StartedAt.Format(time.RFC3339))
	}
	return ""
}

func milli(nano int64) string {
	return fmt.Sprintf("%dm", nano/1_000_000)
}

func mebi(bytes int64) string {
	return fmt.Sprintf("%.1fMi", float64(bytes)/(1024*1024))
}

func orElse(v, def int64) int64 {
	if v > 0 {
		return v
	}
	return def
}

func ownerLabel(o domain.Owner) string {
	if o.Kind == "" {
		return "—"
	}
	return o.Kind + "/" + o.Name
}
