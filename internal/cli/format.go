package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/perflens/perflens/internal/analyze"
	"github.com/perflens/perflens/internal/profile"
)

// printReport renders session metadata and the top-N entries per adapter kind.
func printReport(w io.Writer, r *profile.Report, topN int) {
	fmt.Fprintf(w, "Session %s\n", r.Meta.SessionID)
	fmt.Fprintf(w, "  started:  %s\n", r.Meta.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "  duration: %s\n", r.Meta.Duration)
	fmt.Fprintf(w, "  adapters: %s\n", kindList(r.Meta.Adapters))
	if len(r.Meta.Failed) > 0 {
		fmt.Fprintf(w, "  failed:   %s\n", kindList(r.Meta.Failed))
	}
	if r.Meta.TargetError != "" {
		fmt.Fprintf(w, "  target error: %s\n", r.Meta.TargetError)
	}
	if r.Meta.TimedOut {
		fmt.Fprintf(w, "  exceeded advisory timeout\n")
	}

	for _, kind := range profile.Kinds() {
		entries := r.Top(kind, topN)
		if len(entries) == 0 {
			continue
		}
		fmt.Fprintf(w, "\nTop %s:\n", kind)
		tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
		fmt.Fprintln(tw, "  FUNCTION\tHITS\tTOTAL\tSELF\tPER HIT\t%")
		for _, e := range entries {
			s := e.Stat(kind)
			fmt.Fprintf(tw, "  %s\t%d\t%s\t%s\t%s\t%.1f\n",
				e.Location.Function, s.Hits,
				formatValue(kind, s.Total), formatValue(kind, s.Self),
				formatValue(kind, int64(s.PerHit)), s.Percent)
		}
		_ = tw.Flush()
	}
}

// printRecommendations renders ranked recommendations, strongest first.
func printRecommendations(w io.Writer, recs []analyze.Recommendation) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "\nNo optimization recommendations.")
		return
	}
	fmt.Fprintf(w, "\nRecommendations (%d):\n", len(recs))
	for i, rec := range recs {
		fmt.Fprintf(w, "  %d. [%s] %s (impact: %s)\n",
			i+1, strings.ToUpper(rec.Severity.String()), rec.Title, rec.Impact)
		fmt.Fprintf(w, "     %s\n", rec.Description)
	}
}

// printFindings renders raw pattern matches with their evidence.
func printFindings(w io.Writer, findings []analyze.Finding) {
	if len(findings) == 0 {
		fmt.Fprintln(w, "\nNo inefficiency patterns detected.")
		return
	}
	fmt.Fprintf(w, "\nPatterns detected (%d):\n", len(findings))
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "  PATTERN\tLOCATION\tCONFIDENCE")
	for _, f := range findings {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", f.Pattern, f.Primary(), f.Confidence)
	}
	_ = tw.Flush()
}

func kindList(kinds []profile.Kind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}

// formatValue renders nanoseconds for timing kinds and bytes for alloc.
func formatValue(kind profile.Kind, v int64) string {
	if kind == profile.KindAlloc {
		return formatBytes(v)
	}
	return time.Duration(v).String()
}

func formatBytes(v int64) string {
	switch {
	case v >= 1<<30:
		return fmt.Sprintf("%.1fGiB", float64(v)/(1<<30))
	case v >= 1<<20:
		return fmt.Sprintf("%.1fMiB", float64(v)/(1<<20))
	case v >= 1<<10:
		return fmt.Sprintf("%.1fKiB", float64(v)/(1<<10))
	}
	return fmt.Sprintf("%dB", v)
}
