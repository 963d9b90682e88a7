// Package types defines the shared data model for the flowroute core:
// classification results, node recommendations, routing decisions, sessions
// with their handover chains, and the structured error type used across
// packages.
package types
