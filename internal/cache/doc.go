// Package cache holds synthesized clips in memory and hands out revocable
// handles to them.
//
// BlobCache is an LRU bounded by total bytes. Entries that sit unused for
// longer than the maximum age are swept periodically. Every entry owns a
// Handle from an ObjectStore; the handle is revoked the moment the entry
// leaves the cache, so a stale handle never resolves to freed audio.
package cache
