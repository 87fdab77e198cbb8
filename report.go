package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FormatRunReport renders the run report as markdown for the report
// file and the optional Slack posting.
func FormatRunReport(report RunReport) string {
	var out strings.Builder
	out.WriteString(fmt.Sprintf("# Done & Delivered run %s\n\n", report.RunID))
	out.WriteString(fmt.Sprintf("Started %s, finished %s.\n\n",
		report.StartedAt.Format("2006-01-02 15:04:05"),
		report.FinishedAt.Format("2006-01-02 15:04:05")))

	out.WriteString(fmt.Sprintf("- Messages scanned: %d\n", report.MessagesScanned))
	out.WriteString(fmt.Sprintf("- Documents scanned: %d\n", report.DocumentsScanned))
	out.WriteString(fmt.Sprintf("- New requests extracted: %d\n", report.RequestsExtracted))
	out.WriteString(fmt.Sprintf("- Completed documents found: %d\n", report.CompletionsExtracted))
	if report.ExtractionFailures > 0 {
		out.WriteString(fmt.Sprintf("- Extraction failures: %d\n", report.ExtractionFailures))
	}
	if report.ExpiredRequests > 0 {
		out.WriteString(fmt.Sprintf("- Requests expired: %d\n", report.ExpiredRequests))
	}
	out.WriteString(fmt.Sprintf("- Matched: %d\n", report.MatchedCount))
	out.WriteString(fmt.Sprintf("- Sent: %d\n", report.SentCount))
	out.WriteString(fmt.Sprintf("- Failed: %d\n", report.FailedCount))
	out.WriteString(fmt.Sprintf("- Skipped: %d\n", report.SkippedCount))

	if len(report.PairOutcomes) > 0 {
		out.WriteString("\n## Pairs\n\n")
		for _, pair := range report.PairOutcomes {
			line := fmt.Sprintf("- request %s <- doc %s (score %.2f): %s",
				pair.RequestID, pair.CompletionID, pair.Score, pair.Outcome)
			if pair.Reason != "" {
				line += " (" + pair.Reason + ")"
			}
			out.WriteString(line + "\n")
		}
	}

	if len(report.Errors) > 0 {
		out.WriteString("\n## Errors\n\n")
		for _, e := range report.Errors {
			out.WriteString("- " + e + "\n")
		}
	}
	return out.String()
}

func WriteRunReportFile(content, outputDir string, finishedAt time.Time) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}
	filename := fmt.Sprintf("run_%s.md", finishedAt.Format("20060102_150405"))
	path := filepath.Join(outputDir, filename)
	return path, os.WriteFile(path, []byte(content), 0644)
}
