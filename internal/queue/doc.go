// Package queue warms the clip cache for lines that are about to be read.
// Requests are served nearest line first by a single background worker.
package queue
