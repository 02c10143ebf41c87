package chatlog

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var transcriptMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// RenderHTML renders a conversation transcript as a standalone HTML
// page. Model replies are markdown and rendered as such; user and
// error turns are escaped verbatim.
func RenderHTML(conv *Conversation, messages []Message) (string, error) {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>Conversation %s</title>\n", html.EscapeString(conv.ID))
	b.WriteString("<style>\nbody { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; }\n.turn { margin: 1rem 0; padding: 0.75rem 1rem; border-radius: 0.5rem; }\n.user { background: #e8f0fe; }\n.model { background: #f5f5f5; }\n.error { background: #fdecea; }\n.meta { color: #666; font-size: 0.8rem; }\n</style>\n</head>\n<body>\n")

	fmt.Fprintf(&b, "<h1>Conversation %s</h1>\n", html.EscapeString(conv.ID))
	fmt.Fprintf(&b, "<p class=\"meta\">started %s, %d messages, status %s</p>\n",
		conv.StartTime.Format(time.RFC3339), conv.MessageCount, html.EscapeString(conv.Status))

	for _, m := range messages {
		cls := "model"
		switch m.Role {
		case RoleUser:
			cls = "user"
		case RoleError:
			cls = "error"
		}
		fmt.Fprintf(&b, "<div class=\"turn %s\">\n<p class=\"meta\">%s at %s</p>\n",
			cls, html.EscapeString(m.Role), m.Timestamp.Format(time.RFC3339))

		if m.Role == RoleModel || m.Role == RoleError {
			var body bytes.Buffer
			if err := transcriptMarkdown.Convert([]byte(m.Text), &body); err != nil {
				return "", fmt.Errorf("render message %s: %w", m.ID, err)
			}
			b.Write(body.Bytes())
		} else {
			fmt.Fprintf(&b, "<p>%s</p>\n", html.EscapeString(m.Text))
		}
		b.WriteString("</div>\n")
	}

	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}
