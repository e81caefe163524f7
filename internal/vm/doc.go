// Package vm is the VM lifecycle engine: it orchestrates the
// image cache, cloud-init seed builder, disk builder, hypervisor driver, and
// readiness prober to carry one named VM through the state machine
// Absent → Prepared → Defined → Running → Ready → Torn-down.
//
// The package accepts its dependencies through a single Environment value
// rather than reaching for ambient globals, so tests construct one under a
// temp directory and an injected hypervisor driver.
//
// Error Handling:
//
// Preparation failures (image cache, seed render, disk create) leave no
// domain defined and remove any work_dir they started. Failures after the
// domain is defined trigger rollback: the domain is destroyed and its
// work_dir deleted before the error is returned. A LeaseTimeout or
// HTTPTimeout from the readiness prober is reported as a non-fatal warning:
// the domain stays Running.
package vm
