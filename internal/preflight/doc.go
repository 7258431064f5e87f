// Package preflight provides readiness checks for the filesystem paths and
// remote endpoints grantfeed depends on.
//
// The CLI "doctor" command runs RunAll and renders every result; "status"
// uses the individual checks to show publisher and notification health.
// Fetch reuses FreeBytes to refuse downloads that would fill the disk.
package preflight
