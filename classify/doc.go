// Package classify maps free-text automation requests to an intent, a
// confidence, and a complexity tier with a deterministic routing hint.
//
// Classification is a pure function of the normalized input plus an LRU
// cache; it never returns an error. Unrecognized input degrades to
// IntentUnknown with low confidence rather than failing.
package classify
