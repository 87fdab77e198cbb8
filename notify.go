package main

import (
	"fmt"
	"log"

	"github.com/slack-go/slack"
)

// PostRunReport posts the run summary to the configured Slack channel.
// Notification is best-effort: a posting failure is logged, never
// propagated into the run outcome.
func PostRunReport(api *slack.Client, channelID string, report RunReport) {
	if api == nil || channelID == "" {
		return
	}

	summary := fmt.Sprintf(
		"*Done & Delivered* run finished: %d matched, %d sent, %d failed, %d skipped (%d messages, %d docs scanned)",
		report.MatchedCount, report.SentCount, report.FailedCount, report.SkippedCount,
		report.MessagesScanned, report.DocumentsScanned,
	)

	_, _, err := api.PostMessage(channelID,
		slack.MsgOptionText(summary, false),
		slack.MsgOptionDisableLinkUnfurl(),
	)
	if err != nil {
		log.Printf("slack report post error: %v", err)
		return
	}
	log.Printf("slack report posted channel=%s", channelID)
}
