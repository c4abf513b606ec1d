// Package cache provides an LRU cache for clean page images.
//
// The file page manager keeps the committed image of recently detached pages
// here so that re-attaching a page does not hit the disk. Dirty pages never
// enter the cache; they live in the manager's working set until flushed.
// Memory is charged against an optional resource.Controller.
package cache
