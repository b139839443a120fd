// Package aggregator runs the fan-out reasoning loop behind each answer and
// turns its cumulative transcript snapshots into an ordered chunk stream.
//
// A Stream moves INIT -> STEP* -> DONE | ERROR. Snapshots only grow, so the
// stream keeps a cursor over the assistant messages it already emitted and
// emits each one exactly once.
package aggregator
