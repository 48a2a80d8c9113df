package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/zhouzirui/z-chatroom/backend/internal/model/chat"
)

func printRooms(w io.Writer, rooms []chat.Room) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCREATED\tMESSAGES")
	for _, r := range rooms {
		title := r.Title
		if r.Untitled() {
			title = "(untitled)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", r.ID, title, r.CreatedAt.Local().Format(time.DateTime), len(r.Messages))
	}
	_ = tw.Flush()
}

func printMessages(w io.Writer, messages []chat.Message) {
	for _, m := range messages {
		line := fmt.Sprintf("[%s] %s", m.Role, m.Content)
		if m.Status == chat.StatusFailed {
			line += "  (failed)"
		}
		fmt.Fprintln(w, line)
	}
}
