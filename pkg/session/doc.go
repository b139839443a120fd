// Package session owns the per-connection state of the relay.
//
// Invariants:
//   - Session IDs are unique among live sessions.
//   - Every session gets its own limiter, backend tools and orchestrator;
//     nothing but static configuration is shared between sessions.
//   - Closing a session only drops it from the registry. In-flight backend
//     calls finish on their own and release their permits.
//
// Usage:
//
//	mgr, _ := session.NewManager(session.Config{Providers: factory, Backends: backends})
//	sess, _ := mgr.Open(ctx)
//	defer mgr.Close(sess.ID)
//	for chunk, err := range sess.Answer(ctx, "Is the Great Wall visible from space?").Chunks() {
//		...
//	}
package session
