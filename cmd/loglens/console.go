package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/loglens/internal/analyzer"
	"github.com/tinytelemetry/loglens/internal/logparse"
	"github.com/tinytelemetry/loglens/internal/model"
	"github.com/tinytelemetry/loglens/internal/stats"
)

type consoleLimits struct {
	Errors    int
	Slow      int
	Endpoints int
	DBOps     int
	Users     int
}

// console renders the human-readable run summary.
type console struct {
	w      io.Writer
	limits consoleLimits

	title   lipgloss.Style
	heading lipgloss.Style
	dim     lipgloss.Style
	good    lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
	accent  lipgloss.Style
}

func newConsole(w io.Writer, noColor bool, limits consoleLimits) *console {
	r := lipgloss.NewRenderer(w)
	c := &console{
		w:       w,
		limits:  limits,
		title:   r.NewStyle(),
		heading: r.NewStyle(),
		dim:     r.NewStyle(),
		good:    r.NewStyle(),
		warn:    r.NewStyle(),
		bad:     r.NewStyle(),
		accent:  r.NewStyle(),
	}
	if noColor {
		return c
	}
	c.title = r.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	c.heading = r.NewStyle().Bold(true)
	c.dim = r.NewStyle().Foreground(lipgloss.Color("240"))
	c.good = r.NewStyle().Foreground(lipgloss.Color("42"))
	c.warn = r.NewStyle().Foreground(lipgloss.Color("220"))
	c.bad = r.NewStyle().Foreground(lipgloss.Color("196"))
	c.accent = r.NewStyle().Foreground(lipgloss.Color("39"))
	return c
}

func (c *console) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.w, format, args...)
}

func (c *console) section(name string) {
	c.printf("\n%s\n", c.heading.Render(name))
}

// Print writes every section in a fixed order: errors, performance,
// endpoints, database operations, user activity, severities, recommendations.
func (c *console) Print(s *analyzer.Snapshot, rep *model.AnalysisReport, slowThresholdMS float64, reportPath string) {
	rule := c.dim.Render(strings.Repeat("=", 60))
	c.printf("%s\n%s\n%s\n", rule, c.title.Render("Log Analysis Report"), rule)
	c.printf("%s %s\n", c.dim.Render("Source:"), rep.Source)
	c.printf("%s %d read, %d skipped, %d records\n",
		c.dim.Render("Lines:"), rep.LinesRead, rep.LinesSkipped, rep.TotalLogs)

	c.printErrors(s)
	c.printPerformance(s, slowThresholdMS)
	c.printEndpoints(s)
	c.printDatabase(s)
	c.printUsers(s)
	c.printSeverities(s)
	c.printRecommendations(rep.Recommendations)

	c.printf("\n%s %s\n", c.dim.Render("Report written to"), c.accent.Render(reportPath))
}

func (c *console) printErrors(s *analyzer.Snapshot) {
	c.section("Errors")
	count := fmt.Sprintf("%d", s.ErrorCount)
	if s.ErrorCount > 0 {
		count = c.bad.Render(count)
	}
	c.printf("Total errors: %s\n", count)

	if top := stats.TopCounts(s.ErrorTypes, c.limits.Errors); len(top) > 0 {
		c.printf("\nMost common errors:\n")
		for _, kc := range top {
			c.printf("  %3dx - %s\n", kc.Count, truncate(kc.Key, 80))
		}
	}
	// Templates only add something once distinct messages were merged.
	if len(s.ErrorPatterns) > 0 && len(s.ErrorPatterns) < len(s.ErrorTypes) {
		c.printf("\nCommon error patterns:\n")
		for i, p := range s.ErrorPatterns {
			if c.limits.Errors > 0 && i >= c.limits.Errors {
				break
			}
			c.printf("  %3dx - %s\n", p.Count, truncate(p.Template, 80))
		}
	}
	if top := stats.TopCounts(s.ErrorEndpoints, c.limits.Errors); len(top) > 0 {
		c.printf("\nEndpoints with most errors:\n")
		for _, kc := range top {
			c.printf("  %3dx - %s\n", kc.Count, kc.Key)
		}
	}
}

func (c *console) printPerformance(s *analyzer.Snapshot, slowThresholdMS float64) {
	c.section("Performance")
	c.printf("Slow requests (>%.0fms): %d\n", slowThresholdMS, s.SlowCount)

	if slowest := stats.SlowestRequests(s.SlowRequests, c.limits.Slow); len(slowest) > 0 {
		c.printf("\nSlowest requests:\n")
		for _, req := range slowest {
			c.printf("  %s - %s\n", c.warn.Render(fmt.Sprintf("%6.0fms", req.DurationMS)), req.Path)
		}
	}
}

func (c *console) printEndpoints(s *analyzer.Snapshot) {
	c.section("API endpoints")
	summaries := stats.EndpointSummaries(s.Endpoints)
	if len(summaries) == 0 {
		c.printf("%s\n", c.dim.Render("No API requests"))
		return
	}
	if c.limits.Endpoints > 0 && len(summaries) > c.limits.Endpoints {
		summaries = summaries[:c.limits.Endpoints]
	}
	for _, ep := range summaries {
		p95 := "n/a"
		if ep.HasP95 {
			p95 = fmt.Sprintf("%.0fms", ep.P95MS)
		}
		c.printf("  %4dx - %s\n", ep.Count, ep.Path)
		c.printf("          Avg: %.0fms | P95: %s | Success: %s\n",
			ep.AvgMS, p95, c.rate(ep.SuccessRate, true))
	}
}

func (c *console) printDatabase(s *analyzer.Snapshot) {
	c.section("Database operations")
	summaries := stats.DBSummaries(s.DBOps)
	if len(summaries) == 0 {
		c.printf("%s\n", c.dim.Render("No database operations"))
		return
	}
	if c.limits.DBOps > 0 && len(summaries) > c.limits.DBOps {
		summaries = summaries[:c.limits.DBOps]
	}
	for _, op := range summaries {
		c.printf("  %-30s - %4dx | Avg: %.0fms | Failures: %d (%s)\n",
			op.Key, op.Count, op.AvgMS, op.Failures, c.rate(op.FailureRate, false))
	}
}

func (c *console) printUsers(s *analyzer.Snapshot) {
	c.section("User activity")
	c.printf("Active users: %d\n", len(s.UserActions))
	c.printf("Security events: %d\n", s.SecurityEvents)

	if top := stats.TopCounts(s.UserActions, c.limits.Users); len(top) > 0 {
		c.printf("\nMost active users:\n")
		for _, kc := range top {
			c.printf("  User %s: %d actions\n", kc.Key, kc.Count)
		}
	}
}

func (c *console) printSeverities(s *analyzer.Snapshot) {
	c.section("Severity distribution")
	printed := false
	for _, sev := range logparse.Order {
		n := s.SeverityCounts[sev]
		if n == 0 {
			continue
		}
		c.printf("  %-6s %d\n", sev, n)
		printed = true
	}
	if !printed {
		c.printf("%s\n", c.dim.Render("No records"))
	}
}

func (c *console) printRecommendations(recs []model.Recommendation) {
	c.section("Recommendations")
	for i, rec := range recs {
		if rec.Rule == model.RuleNone {
			c.printf("%s\n", c.good.Render(rec.Message))
			continue
		}
		c.printf("%d. %s\n", i+1, rec.Message)
	}
}

// rate colors a percentage; higherIsBetter selects the direction.
func (c *console) rate(pct float64, higherIsBetter bool) string {
	text := fmt.Sprintf("%.1f%%", pct)
	good := pct >= 95
	if !higherIsBetter {
		good = pct <= 5
	}
	if good {
		return c.good.Render(text)
	}
	return c.bad.Render(text)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func printServeBanner(out io.Writer, cfg appConfig, addr string, mirror bool) {
	r := lipgloss.NewRenderer(out)
	dim := r.NewStyle().Foreground(lipgloss.Color("240"))
	green := r.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := r.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := r.NewStyle().Foreground(lipgloss.Color("220"))
	bold := r.NewStyle().Bold(true)
	if cfg.NoColor {
		dim, green, cyan, yellow, bold = r.NewStyle(), r.NewStyle(), r.NewStyle(), r.NewStyle(), r.NewStyle()
	}

	check := green.Render("●")
	dot := dim.Render("●")
	separator := dim.Render("    ─────────────────────────────────")

	var lines []string
	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")
	lines = append(lines, bold.Render("    Serving")+"  "+dim.Render("loglens v"+version))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render("http://"+addr)))
	lines = append(lines, fmt.Sprintf("    %s  Report         %s", check, dim.Render("/api/report")))
	lines = append(lines, fmt.Sprintf("    %s  Metrics        %s", check, dim.Render("/metrics")))
	if mirror {
		lines = append(lines, fmt.Sprintf("    %s  SQL mirror     %s", check, dim.Render(shortenPath(cfg.DBPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  SQL mirror     %s", dot, dim.Render("disabled")))
	}
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}
	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	lines = append(lines, "")

	fmt.Fprintln(out, strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
