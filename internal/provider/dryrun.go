package provider

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// DryRun logs messages instead of sending them. Used when no provider credentials are configured.
type DryRun struct{}

func (DryRun) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", Classify(err)
	}
	id := "dryrun." + uuid.NewString()
	slog.Info("dry run send", "to", msg.To, "template", msg.TemplateName, "message_id", id)
	return id, nil
}
