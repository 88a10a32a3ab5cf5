package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// Limits of /runs.
const (
	DefaultRunsLimit = 10
	MaxRunsLimit     = 50
)

// DefaultOrphanSource is the grouped source /orphans reports on when none is named.
const DefaultOrphanSource = "milestones"

// ParseChatID parses a Telegram chat id.
func ParseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat ID %q", s)
	}
	return id, nil
}

// ParseRunsArgs parses arguments of /runs.
// Format: [source] [limit]; a lone number is a limit.
func ParseRunsArgs(args string) (string, int, error) {
	parts := strings.Fields(args)
	if len(parts) > 2 {
		return "", 0, fmt.Errorf("usage: /runs [source] [limit]")
	}

	source := ""
	limit := DefaultRunsLimit
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			if i > 0 {
				return "", 0, fmt.Errorf("invalid limit %q", p)
			}
			source = p
			continue
		}
		if n < 1 || n > MaxRunsLimit {
			return "", 0, fmt.Errorf("limit must be between 1 and %d", MaxRunsLimit)
		}
		limit = n
	}
	return source, limit, nil
}

// ParseOrphansArgs parses arguments of /orphans.
// Format: [source] <group>.
func ParseOrphansArgs(args string) (string, string, error) {
	parts := strings.Fields(args)
	switch len(parts) {
	case 1:
		return DefaultOrphanSource, parts[0], nil
	case 2:
		return parts[0], parts[1], nil
	default:
		return "", "", fmt.Errorf("usage: /orphans [source] <group>")
	}
}
