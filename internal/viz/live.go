package viz

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/hydroflow/internal/dynamo"
)

const sparkWidth = 60

// ReportMsg carries one reported outlet discharge.
type ReportMsg struct {
	Time      float64
	Discharge float64
}

// DoneMsg ends a live view. Err is the run's result.
type DoneMsg struct {
	Err error
}

// Feed forwards reported states to a live view. It satisfies the simulator's
// observer interface.
type Feed struct {
	ch   chan tea.Msg
	stop chan struct{}
}

func NewFeed(buffer int) *Feed {
	return &Feed{
		ch:   make(chan tea.Msg, buffer),
		stop: make(chan struct{}),
	}
}

func (f *Feed) OnReport(t float64, x dynamo.State) {
	f.send(ReportMsg{Time: t, Discharge: x.Lead()})
}

// Done delivers the run result and closes the feed.
func (f *Feed) Done(err error) {
	f.send(DoneMsg{Err: err})
	close(f.ch)
}

// Stop unblocks pending sends once the view has gone away.
func (f *Feed) Stop() {
	select {
	case <-f.stop:
	default:
		close(f.stop)
	}
}

func (f *Feed) send(msg tea.Msg) {
	select {
	case f.ch <- msg:
	case <-f.stop:
	}
}

func (f *Feed) wait() tea.Msg {
	msg, ok := <-f.ch
	if !ok {
		return DoneMsg{}
	}
	return msg
}

// Live shows the outlet discharge of a running simulation.
type Live struct {
	title      string
	start, end float64
	format     func(float64) string

	feed    *Feed
	history []float64
	now     float64
	peak    float64
	done    bool
	err     error
}

// NewLive returns a view over [start, end] minutes. format renders times.
func NewLive(title string, start, end float64, format func(float64) string, feed *Feed) Live {
	return Live{
		title:  title,
		start:  start,
		end:    end,
		format: format,
		feed:   feed,
		now:    start,
	}
}

func (m Live) Init() tea.Cmd {
	return m.feed.wait
}

func (m Live) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ReportMsg:
		m.now = msg.Time
		m.history = append(m.history, msg.Discharge)
		m.peak = max(m.peak, msg.Discharge)
		return m, m.feed.wait
	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.feed.Stop()
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Live) View() string {
	var b strings.Builder

	status := StatusRunning.Render("running")
	switch {
	case m.err != nil:
		status = StatusFailed.Render("failed: " + m.err.Error())
	case m.done:
		status = StatusRunning.Render("done")
	}
	b.WriteString(Title.Render(m.title) + "  " + status + "\n\n")

	progress := 0.0
	if m.end > m.start {
		progress = (m.now - m.start) / (m.end - m.start)
	}
	b.WriteString(ProgressBar(progress, sparkWidth) + "\n")
	b.WriteString(Subtle.Render(fmt.Sprintf("%s / %s", m.format(m.now), m.format(m.end))) + "\n\n")

	b.WriteString(Sparkline(m.history, sparkWidth) + "\n\n")

	current := 0.0
	if len(m.history) > 0 {
		current = m.history[len(m.history)-1]
	}
	b.WriteString(Metric("discharge", fmt.Sprintf("%.4f m³/s", current)) + "   ")
	b.WriteString(Metric("peak", fmt.Sprintf("%.4f m³/s", m.peak)) + "   ")
	b.WriteString(Metric("reports", fmt.Sprintf("%d", len(m.history))) + "\n\n")
	b.WriteString(KeyHint.Render("q to quit"))

	return Panel.Render(b.String())
}

// Err returns the error the run finished with.
func (m Live) Err() error { return m.err }

func (m Live) History() []float64 { return m.history }
