package tools

import (
	"context"
	"fmt"
	"strings"
)

// prependNotifications consumes and formats any pending Notifications for
// a project, prefixing them onto a tool's response text (spec.md §4.8:
// "each response optionally prepends any pending Notifications").
func prependNotifications(ctx context.Context, st Store, projectHash, body string) string {
	notes, err := st.ConsumePendingNotifications(ctx, projectHash)
	if err != nil || len(notes) == 0 {
		return body
	}
	var b strings.Builder
	for _, n := range notes {
		fmt.Fprintf(&b, "[notice] %s\n", n.Text)
	}
	b.WriteString("\n")
	b.WriteString(body)
	return b.String()
}
