package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ResourceKey is the cache key for a single resource document
func ResourceKey(resourceType, id string) string {
	return fmt.Sprintf("%s:one:%s", resourceType, id)
}

// CollectionKey is the cache key for a collection document. Query parameters
// are sorted and hashed so equivalent requests share an entry.
func CollectionKey(resourceType string, query url.Values) string {
	if len(query) == 0 {
		return fmt.Sprintf("%s:all", resourceType)
	}

	var parts []string
	for key, values := range query {
		sort.Strings(values)
		for _, value := range values {
			parts = append(parts, key+"="+value)
		}
	}
	sort.Strings(parts)

	hash := sha256.Sum256([]byte(strings.Join(parts, "&")))
	return fmt.Sprintf("%s:all:%s", resourceType, hex.EncodeToString(hash[:16]))
}
