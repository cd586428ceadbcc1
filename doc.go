// Package whse drives the Windows Hypervisor Platform to execute a small
// code payload inside a freshly built guest. It owns the guest's address
// spaces end to end: a four-level paging hierarchy, a GDT/TSS, an IDT whose
// entries deliberately fault so interrupts can be turned into callbacks,
// and the run loop that ferries VM exits back to the caller.
//
// The platform syscalls themselves live in internal/bindings; this package
// is the bookkeeping and synthesis layer on top of them.
package whse
