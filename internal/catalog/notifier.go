package catalog

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Notifier tells the front-end to drop a cached instrument after a
// successful update. The cache is an accelerator, not a source of truth,
// so delivery is fire-and-forget: failures are logged and swallowed, and
// the whole mechanism is disabled when cache mode is off.
type Notifier struct {
	frontURL string
	enabled  bool
	timeout  time.Duration
	log      zerolog.Logger
}

// NewNotifier builds a notifier targeting the front-end at frontURL.
// When enabled is false, Invalidate is a no-op.
func NewNotifier(frontURL string, enabled bool, log zerolog.Logger) *Notifier {
	return &Notifier{
		frontURL: frontURL,
		enabled:  enabled,
		timeout:  2 * time.Second,
		log:      log,
	}
}

// Invalidate posts /invalidate/<name> to the front-end. Call it after
// the store lock has been released; the reply is informational only.
func (n *Notifier) Invalidate(name string) {
	if !n.enabled {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/invalidate/%s", n.frontURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		n.log.Warn().Err(err).Str("stock", name).Msg("invalidation request build failed")
		return
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		// Front-end may be absent or slow; correctness does not depend
		// on delivery.
		n.log.Warn().Err(err).Str("stock", name).Msg("invalidation not delivered")
		return
	}
	resp.Body.Close()
	n.log.Debug().Str("stock", name).Int("status", resp.StatusCode).Msg("invalidation sent")
}
