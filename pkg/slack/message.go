package slack

import (
	"fmt"
	"time"

	goslack "github.com/slack-go/slack"
)

const maxBlockTextLength = 2900

var statusEmoji = map[string]string{
	"completed": ":white_check_mark:",
	"failed":    ":x:",
}

var statusLabel = map[string]string{
	"completed": "Analysis Complete",
	"failed":    "Analysis Failed",
}

func sessionURL(sessionID, dashboardURL string) string {
	return fmt.Sprintf("%s/sessions/%s", dashboardURL, sessionID)
}

// BuildSessionMessage creates Block Kit blocks for a terminal session
// notification: status header, alert/chain/duration facts, an analysis or
// error excerpt, and a dashboard link.
func BuildSessionMessage(input NotificationInput, dashboardURL string) []goslack.Block {
	emoji := statusEmoji[input.Status]
	if emoji == "" {
		emoji = ":question:"
	}
	label := statusLabel[input.Status]
	if label == "" {
		label = "Analysis " + input.Status
	}

	var blocks []goslack.Block

	blocks = append(blocks, goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType,
			fmt.Sprintf("%s *%s*", emoji, label), false, false),
		nil, nil,
	))

	facts := fmt.Sprintf("*Alert Type:* %s\n*Chain:* %s", input.AlertType, input.ChainID)
	if input.Duration > 0 {
		facts += fmt.Sprintf("\n*Duration:* %s", input.Duration.Round(time.Second))
	}
	blocks = append(blocks, goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, facts, false, false),
		nil, nil,
	))

	if input.Status == "completed" && input.FinalAnalysis != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(input.FinalAnalysis), false, false),
			nil, nil,
		))
	}
	if input.Status != "completed" && input.ErrorMessage != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType,
				"*Error:*\n"+truncateForSlack(input.ErrorMessage), false, false),
			nil, nil,
		))
	}

	buttonText := "View Full Analysis"
	if input.Status != "completed" {
		buttonText = "View Details"
	}
	btn := goslack.NewButtonBlockElement("", "",
		goslack.NewTextBlockObject(goslack.PlainTextType, buttonText, false, false))
	btn.URL = sessionURL(input.SessionID, dashboardURL)
	blocks = append(blocks, goslack.NewActionBlock("", btn))

	return blocks
}

func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated, view full analysis in dashboard)_"
}
