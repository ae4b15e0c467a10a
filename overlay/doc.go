// Package overlay holds the data model shared by the HymoFS kernel-shim
// planner and the bind-mount fallback planner: the module inventory, path
// utilities, the user hide-rule store, and the on-disk runtime state
// snapshot.
//
// Nothing in this package talks to the kernel control channel directly; see
// package kernel for the ioctl client and kernel-shim planner, and package
// magicmount for the bind-mount union planner/executor.
package overlay
