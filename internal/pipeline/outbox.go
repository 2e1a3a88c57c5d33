package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// OutboxMailer writes each message to a Markdown file under Dir instead of
// sending mail. The file starts with To/Subject headers followed by the body.
type OutboxMailer struct {
	Dir string
}

// Send implements Mailer.
func (o OutboxMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(msg.Recipients) == 0 {
		return errors.New("outbox: message has no recipients")
	}
	if err := os.MkdirAll(o.Dir, 0o755); err != nil {
		return fmt.Errorf("create outbox directory: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\n", strings.Join(msg.Recipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	if msg.RunID != "" {
		fmt.Fprintf(&b, "X-Run-ID: %s\n", msg.RunID)
	}
	b.WriteString("\n")
	b.WriteString(msg.Body)

	path := filepath.Join(o.Dir, OutboxFileName(msg))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write outbox message: %w", err)
	}
	return nil
}

// OutboxFileName names the file a message is written to.
func OutboxFileName(msg Message) string {
	name := fmt.Sprintf("%s-%s-%s", msg.Date.Format("20060102"), msg.Report, msg.Cadence)
	if id := msg.RunID; id != "" {
		name += "-" + id[:min(8, len(id))]
	}
	return name + ".md"
}
