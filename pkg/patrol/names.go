package patrol

import (
	"context"

	"github.com/dotsetgreg/deskpatrol/pkg/chat"
	"github.com/dotsetgreg/deskpatrol/pkg/logger"
)

// NameResolver maps a user id to something a human can read in the usage log.
type NameResolver interface {
	ResolveDisplayName(ctx context.Context, userID string) string
}

// nameCache memoizes lookups for one cycle, failures included.
type nameCache struct {
	platform chat.Platform
	names    map[string]string
}

func newNameCache(p chat.Platform) *nameCache {
	return &nameCache{platform: p, names: map[string]string{}}
}

func (c *nameCache) ResolveDisplayName(ctx context.Context, userID string) string {
	if userID == "" {
		return "Unknown"
	}
	if name, ok := c.names[userID]; ok {
		return name
	}
	name := userID
	u, err := c.platform.UserInfo(ctx, userID)
	if err != nil {
		logger.DebugCF("patrol", "User lookup failed", map[string]any{"user": userID, "error": err.Error()})
	} else if u.DisplayName != "" {
		name = u.DisplayName
	}
	c.names[userID] = name
	return name
}
