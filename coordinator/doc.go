// Package coordinator dispatches routed requests to registered workers and
// drives multi-hop handover chains through the session manager.
//
// Direct and emergency strategies execute a single hop with no session.
// Handover strategies open a session and loop: each worker's outcome either
// terminates the chain, names the next worker, or hands the task back.
package coordinator
