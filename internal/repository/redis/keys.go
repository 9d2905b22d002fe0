package redisrepo

import "fmt"

const ns = "boxoffice:v1"

func KeyEventSummary(key string) string {
	return fmt.Sprintf("%s:event:%s:summary", ns, key)
}

func KeyProductAvailability(key string) string {
	return fmt.Sprintf("%s:product:%s:availability", ns, key)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func ChannelCatalogChanged() string {
	return ns + ":catalog:changed"
}

func ChannelOrdersChanged() string {
	return ns + ":orders:changed"
}
