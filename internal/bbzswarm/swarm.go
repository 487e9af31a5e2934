// Package bbzswarm is the typed integration seam for BittyBuzz's
// out-going message queue (spec.md §1 names it a collaborator out of
// scope; SPEC_FULL.md §5.4 confirms its shape from original_source/'s
// bbzoutmsg.c without implementing serialization or the ring-buffer
// transport). It does not implement the queue: it gives a future
// message-queue package a narrow, typed interface to sit behind. The
// swarm flag itself is not defined here: the VM stores it directly on a
// local-symbol array's table object, via internal/bbzheap.MarkSwarm/IsSwarm.
package bbzswarm

import "github.com/ulrichdah/BittyBuzz/internal/bbztype"

// Priority is a message's send priority; bbzoutmsg.c sorts its queue by
// this field, highest first, and evicts the lowest-priority entry on
// overflow.
type Priority uint8

// Message is a single outgoing payload addressed to a robot, built from
// VM leaf values a future queue package would serialize. It is a plain
// value type: this package does not own a queue's storage or eviction
// policy, only the shape a queue implementation receives.
type Message struct {
	Recipient uint16 // robot id, or a broadcast sentinel meaningful to the queue implementation
	Priority  Priority
	Payload   []bbztype.Object
}

// QueueAppender is the seam a host-provided message queue implements.
// RET0/RET1 invoke it (via the VM's SwarmHook) when a returning call's
// local-symbol array was flagged swarm, so the queue can observe
// swarm-call completion without the VM knowing anything about queue
// internals, capacity, or eviction.
type QueueAppender interface {
	Append(msg Message) (accepted bool)
}

// NoAppender is the default QueueAppender: it accepts nothing. A host
// that never wires a real queue gets well-defined (if inert) behavior
// instead of a nil-interface panic.
type NoAppender struct{}

// Append always reports the message as rejected.
func (NoAppender) Append(Message) bool { return false }
