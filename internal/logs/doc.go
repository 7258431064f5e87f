// Package logs reads grantfeed.log for the `grantfeed logs` command.
//
// Last reads the final lines of the file with bounded memory. Follow polls
// from an offset and hands each new line to a callback until its context is
// cancelled. A missing file is treated as empty so the command works before
// the first stage has run.
package logs
