// Package notify delivers duplication notices to flagged submitters.
package notify

import (
	"context"

	"github.com/RishiKendai/dupcheck/internal/models"
)

// Sender delivers one notification. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(ctx context.Context, n *models.Notification) error
}
