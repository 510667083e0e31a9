// Package partition shards banner ids across rebuild workers.
package partition

import "hash/fnv"

// Count is the number of logical partitions banner ids hash into.
// It only decides how rebuild work is split; results do not depend on it.
const Count = 256

// For maps a banner id to a partition in [0, Count) using FNV-32a.
func For(bannerID string) int {
	h := fnv.New32a()
	h.Write([]byte(bannerID))
	return int(h.Sum32() % Count)
}

// Group buckets items by the partition of key(item). Order within a bucket follows items.
func Group[T any](items []T, key func(T) string) map[int][]T {
	groups := make(map[int][]T)
	for _, it := range items {
		p := For(key(it))
		groups[p] = append(groups[p], it)
	}
	return groups
}
