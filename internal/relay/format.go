package relay

import (
	"strings"
	"time"

	"github.com/field-notes/apiserver/types"
)

// recordedLayout renders createdAt in chat messages.
const recordedLayout = "Jan 2, 2006, 3:04 PM MST"

// FormatNote renders a note as a chat message.
func FormatNote(note types.Note, loc *time.Location) string {
	title := note.Title
	if strings.TrimSpace(title) == "" {
		title = "Untitled"
	}
	if loc == nil {
		loc = time.UTC
	}

	lines := []string{
		"*📋 Field Note: " + title + "*",
		"",
		note.Content,
	}
	if note.Location != "" {
		lines = append(lines, "", "📍 *Location:* "+note.Location)
	}
	if len(note.Tags) > 0 {
		lines = append(lines, "🏷️ *Tags:* "+strings.Join(note.Tags, ", "))
	}
	if note.NoteTaker != "" {
		lines = append(lines, "👤 *Noted by:* "+note.NoteTaker)
	}
	lines = append(lines, "", "🕐 *Recorded:* "+note.CreatedAt.In(loc).Format(recordedLayout))

	return strings.Join(lines, "\n")
}
