package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dukerupert/tasksparkle/internal/model"
	"github.com/dukerupert/tasksparkle/internal/taskstatus"
	"github.com/dukerupert/tasksparkle/internal/tracker"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	missedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
	scoreStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

func heading(w io.Writer, text string) {
	fmt.Fprintln(w, headingStyle.Render(text))
}

func statusLabel(s taskstatus.Status) string {
	switch s {
	case taskstatus.Done:
		return doneStyle.Render("✔ done")
	case taskstatus.NotDone:
		return missedStyle.Render("✘ not done")
	default:
		return faintStyle.Render("· pending")
	}
}

func renderDashboard(w io.Writer, d *tracker.Dashboard) {
	heading(w, "Children")
	if d.Err != nil {
		fmt.Fprintln(w, errorStyle.Render("  Failed to fetch children."))
	} else if len(d.Children) == 0 {
		fmt.Fprintln(w, faintStyle.Render("  No children yet."))
	}
	for _, c := range d.Children {
		line := fmt.Sprintf("  #%d  %s", c.ID, c.Name)
		if c.Total != nil {
			line += "  " + scoreStyle.Render(fmt.Sprintf("%d pts", *c.Total))
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintln(w)
	renderTasks(w, d.Tasks)
	fmt.Fprintln(w)
	renderRewards(w, d.Rewards)
}

func renderTasks(w io.Writer, tasks []model.Task) {
	heading(w, "Tasks")
	if len(tasks) == 0 {
		fmt.Fprintln(w, faintStyle.Render("  No tasks yet."))
	}
	for _, t := range tasks {
		fmt.Fprintf(w, "  #%d  %s%s  (%+d)\n", t.ID, iconPrefix(t.Icon), t.Name, t.PointValue)
	}
}

func renderRewards(w io.Writer, rewards []model.Reward) {
	heading(w, "Rewards")
	if len(rewards) == 0 {
		fmt.Fprintln(w, faintStyle.Render("  No rewards yet."))
	}
	for _, r := range rewards {
		fmt.Fprintf(w, "  #%d  %s%s  (%d pts)\n", r.ID, iconPrefix(r.Icon), r.Name, r.Cost)
	}
}

func renderHistory(w io.Writer, history []model.RedeemedReward) {
	heading(w, "Redeemed")
	if len(history) == 0 {
		fmt.Fprintln(w, faintStyle.Render("  No rewards redeemed yet."))
	}
	for _, h := range history {
		fmt.Fprintf(w, "  %s  %s  (%d pts)\n", redeemedDate(h.RedeemedAt), h.Name, h.Cost)
	}
}

func renderChild(w io.Writer, d *tracker.ChildDetail) {
	fmt.Fprintf(w, "%s  %s\n\n",
		headingStyle.Render(fmt.Sprintf("%s (#%d)", d.Child.Name, d.Child.ID)),
		scoreStyle.Render(fmt.Sprintf("%d pts", d.Score)))

	heading(w, "Tasks for "+d.Day.String())
	if len(d.Tasks) == 0 {
		fmt.Fprintln(w, faintStyle.Render("  No tasks yet."))
	}
	for _, t := range d.Tasks {
		fmt.Fprintf(w, "  #%d  %-30s %s\n", t.ID, iconPrefix(t.Icon)+t.Name, statusLabel(d.Statuses.Get(t.ID)))
	}

	fmt.Fprintln(w)
	renderRewards(w, d.Rewards)
	fmt.Fprintln(w)
	renderHistory(w, d.History)
}

func iconPrefix(icon string) string {
	if icon == "" {
		return ""
	}
	return icon + " "
}

// redeemedDate trims a timestamp to its date part.
func redeemedDate(s string) string {
	if i := strings.IndexByte(s, 'T'); i > 0 {
		return s[:i]
	}
	return s
}
