package delivery

import (
	"fmt"
	"html"
	"strings"

	"github.com/briefwell/briefwell/pkg/models"
)

// Format renders an execution's content into a sendable message using the
// definition snapshot captured when the execution started, so edits made
// after the trigger do not change what the recipient sees.
func Format(snapshot models.Snapshot, record *models.ExecutionRecord) Message {
	subject := fmt.Sprintf("%s (%s)", snapshot.Title, record.PeriodKey)

	return Message{
		Recipient: snapshot.Recipient,
		Subject:   subject,
		BodyText:  record.Content,
		BodyHTML:  renderHTML(subject, record.Content),
	}
}

func renderHTML(title, content string) string {
	var sb strings.Builder

	sb.WriteString("<html><body>")
	fmt.Fprintf(&sb, "<h1>%s</h1>", html.EscapeString(title))

	for _, paragraph := range strings.Split(content, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}

		escaped := html.EscapeString(paragraph)
		escaped = strings.ReplaceAll(escaped, "\n", "<br>")
		fmt.Fprintf(&sb, "<p>%s</p>", escaped)
	}

	sb.WriteString("</body></html>")

	return sb.String()
}
