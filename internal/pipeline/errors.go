package pipeline

import (
	"errors"
	"fmt"

	"digest_bot/internal/credential"
	"digest_bot/internal/summarize"
)

// Failure classes of a run. Every error a watcher returns or logs wraps one of them.
var (
	ErrCredential    = credential.ErrCredential
	ErrSourceFetch   = errors.New("source fetch failed")
	ErrProvision     = errors.New("provision failed")
	ErrSummarization = summarize.ErrSummarization
	ErrDelivery      = errors.New("delivery failed")
)

// classify wraps err with class unless it is already of that class.
func classify(class, err error) error {
	if errors.Is(err, class) {
		return err
	}
	return fmt.Errorf("%w: %w", class, err)
}

// fatalForRun reports whether err must stop the whole run rather than one item or group.
func fatalForRun(err error) bool {
	return errors.Is(err, ErrCredential)
}
