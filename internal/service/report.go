package service

import (
	"fmt"
	"io"
	"strings"

	"github.com/basel-ax/illustrator/internal/domain"
)

var rule = strings.Repeat("=", 60)

// PrintReport writes the human-readable run summary.
func PrintReport(w io.Writer, r *domain.Report) {
	fmt.Fprintf(w, "\nRun %s\n", r.RunID)
	fmt.Fprintf(w, "Total images defined: %d\n", r.Defined)
	fmt.Fprintf(w, "Already generated:    %d\n", r.Excluded)
	fmt.Fprintf(w, "Selected this run:    %d\n", len(r.WorkingSet))

	if len(r.WorkingSet) == 0 {
		fmt.Fprintln(w, "\nAll images already generated! Nothing to do.")
		return
	}

	if r.DryRun {
		fmt.Fprintln(w, "\nDry run, would generate:")
		for _, id := range r.WorkingSet {
			fmt.Fprintf(w, "   - %s\n", id)
		}
		return
	}

	total := len(r.WorkingSet)
	ok := r.Succeeded()
	failed := r.Failed()

	fmt.Fprintf(w, "\n%s\nSUMMARY\n%s\n", rule, rule)

	fmt.Fprintf(w, "\nSuccessful: %d/%d\n", len(ok), total)
	for _, res := range ok {
		fmt.Fprintf(w, "   - %s: %s\n", res.ID, res.URL)
	}

	if len(failed) > 0 {
		fmt.Fprintf(w, "\nFailed: %d/%d\n", len(failed), total)
		for _, res := range failed {
			fmt.Fprintf(w, "   - %s: %s\n", res.ID, res.Err)
		}
	}

	if skipped := total - len(r.Results); skipped > 0 {
		fmt.Fprintf(w, "\nNot attempted (run interrupted): %d/%d\n", skipped, total)
	}

	fmt.Fprintf(w, "\n%s\n", rule)

	switch r.Outcome() {
	case domain.OutcomeSucceeded:
		fmt.Fprintln(w, "All images generated successfully!")
	case domain.OutcomePartial:
		fmt.Fprintln(w, "Some images generated. Re-run to retry the failed ones.")
	default:
		fmt.Fprintln(w, "No images were generated. Please check the errors above.")
	}
}
