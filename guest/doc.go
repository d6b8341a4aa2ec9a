// Package guest defines the contract between the playground and the guest
// language front ends: documents, diagnostics, completion, info tips,
// quick fixes and compilation results.
//
// A Language is a process-wide descriptor; it creates one FrontEnd per
// session. FrontEnd is the core capability. Completion and info tips are
// optional and discovered through the Completer and InfoTipper interfaces.
package guest
