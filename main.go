package main

import (
	"context"
	"log"
	"os"

	"github.com/slack-go/slack"
)

func main() {
	cfg := LoadConfig()

	db, err := InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	defer db.Close()

	os.MkdirAll(cfg.ReportOutputDir, 0755)

	var classifier Classifier
	switch cfg.Classifier {
	case "llm":
		classifier = LLMClassifier{APIKey: cfg.AnthropicAPIKey, Model: cfg.LLMModel}
	default:
		classifier = KeywordClassifier{}
	}

	pipeline := NewPipeline(cfg, db, Capabilities{
		Mailbox:    NewGmailMailbox(cfg),
		Documents:  NewGoogleDocsStore(cfg),
		Classifier: classifier,
		Summarizer: AnthropicSummarizer{APIKey: cfg.AnthropicAPIKey, Model: cfg.LLMModel},
		Renderer:   PDFRenderer{CompletionMarker: cfg.CompletionMarker},
	})

	var slackAPI *slack.Client
	if cfg.SlackBotToken != "" {
		slackAPI = slack.New(cfg.SlackBotToken)
	}

	runAndReport := func() {
		report := pipeline.RunOnce(context.Background())
		content := FormatRunReport(report)
		if path, err := WriteRunReportFile(content, cfg.ReportOutputDir, report.FinishedAt); err != nil {
			log.Printf("Error writing run report: %v", err)
		} else {
			log.Printf("Run report written to %s", path)
		}
		PostRunReport(slackAPI, cfg.ReportChannelID, report)
	}

	log.Println("Starting Done & Delivered...")

	if cfg.RunDay == "" {
		runAndReport()
		return
	}

	if _, err := StartRunScheduler(cfg, runAndReport); err != nil {
		log.Fatalf("Scheduler error: %v", err)
	}
	select {}
}
