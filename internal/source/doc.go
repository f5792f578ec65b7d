// Package source provides the data sources a container can observe:
// an in-process channel fed by Emit, a filesystem activity watcher,
// and a paced replay of stored interaction history. Every source runs
// its observation on a single goroutine, so once the handle reports
// done no further callback is invoked.
package source
