package replay

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/samber/lo"

	"github.com/ardnew/softudc/device/udc"
)

var (
	borderColor = lipgloss.AdaptiveColor{Light: "#6C6CFF", Dark: "#6C6CFF"}
	okColor     = lipgloss.AdaptiveColor{Light: "#006400", Dark: "#9FF29A"}
	errColor    = lipgloss.AdaptiveColor{Light: "#8B0000", Dark: "#FF6B6B"}

	baseCell    = lipgloss.NewStyle().Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(okColor).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(errColor).Bold(true)
)

// Summary tallies a set of results.
type Summary struct {
	Scenarios    int
	Steps        int
	Failed       int
	Activations  int
	HandlerCalls int
	Traps        int
}

// Summarize tallies results.
func Summarize(results []*Result) Summary {
	steps := lo.FlatMap(results, func(r *Result, _ int) []StepResult { return r.Steps })
	return Summary{
		Scenarios: len(results),
		Steps:     len(steps),
		Failed:    lo.CountBy(steps, func(s StepResult) bool { return !s.Passed() }),
		Activations: lo.SumBy(steps, func(s StepResult) int {
			return len(s.Activations)
		}),
		HandlerCalls: lo.SumBy(steps, func(s StepResult) int { return s.HandlerCalls() }),
		Traps:        lo.SumBy(steps, func(s StepResult) int { return len(s.Traps()) }),
	}
}

// String returns a one-line summary.
func (s Summary) String() string {
	return fmt.Sprintf("%d scenarios, %d steps, %d failed, %d activations, %d handler calls, %d traps",
		s.Scenarios, s.Steps, s.Failed, s.Activations, s.HandlerCalls, s.Traps)
}

func eventList(events []udc.Event) string {
	if len(events) == 0 {
		return "-"
	}
	return strings.Join(lo.Map(events, func(e udc.Event, _ int) string { return e.String() }), " ")
}

// Render writes a table of every step of results followed by a summary
// line. Failed steps list their failures below the table.
func Render(w io.Writer, results []*Result) error {
	headers := lo.Map([]string{"scenario", "step", "events", "handler", "traps", "ISTR", "result"},
		func(h string, _ int) string { return headerStyle.Render(h) })

	var rows [][]string
	var failures []string
	for _, r := range results {
		for _, st := range r.Steps {
			verdict := passStyle.Render("pass")
			if !st.Passed() {
				verdict = failStyle.Render("FAIL")
				for _, f := range st.Failures {
					failures = append(failures, fmt.Sprintf("%s / %s: %s", r.Scenario, st.Name, f))
				}
			}
			rows = append(rows, []string{
				r.Scenario,
				st.Name,
				eventList(st.Events()),
				strconv.Itoa(st.HandlerCalls()),
				strconv.Itoa(len(st.Traps())),
				fmt.Sprintf("0x%04X", st.ISTR),
				verdict,
			})
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(borderColor)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := baseCell
			if row != table.HeaderRow && col >= 3 && col <= 5 {
				return s.Align(lipgloss.Right)
			}
			return s.Align(lipgloss.Left)
		})

	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return err
	}
	for _, f := range failures {
		if _, err := fmt.Fprintln(w, failStyle.Render(f)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, Summarize(results))
	return err
}
