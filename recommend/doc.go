// Package recommend suggests ranked workflow building blocks for a
// classified intent. It combines a curated per-intent catalog with keyword
// boosts, down-weights nodes already present in the target workflow, and
// emits warnings for common structural gaps.
//
// Recommendation never fails: an unknown intent yields an empty but
// well-formed RecommendationSet. Learning feedback is applied asynchronously
// and may be dropped under backpressure without corrupting state.
package recommend
