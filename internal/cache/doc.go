// Package cache provides a count-bounded LRU used by the classification and
// recommendation layers. Eviction is by entry count, not time, so memory
// stays bounded under load.
// This package is internal and should not be imported by external projects.
package cache
