// Package stack deploys or
// destroys a spec.StackDecl's named VM nodes in dependency order, running
// independent nodes concurrently through a small bounded worker pool, and
// reports a per-node status map. A node whose dependency failed is marked
// Skipped rather than attempted; nodes that already reached Running are
// never rolled back because a sibling failed.
//
// The reconciler talks only to internal/vm's Environment-based operations
// for each node — never to the hypervisor driver directly — so a stack
// deploy is exactly N independent single-VM lifecycles plus ordering.
package stack
