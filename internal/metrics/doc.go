// Package metrics provides internal metrics collection for routing,
// dispatch, session, and cache activity.
// This package is internal and should not be imported by external projects.
package metrics
