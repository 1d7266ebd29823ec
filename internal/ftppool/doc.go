// Package ftppool maintains a bounded pool of logged-in FTP sessions.
//
// A Pool hands out at most Config.Size sessions at a time. Acquire blocks
// until a slot is free or the checkout timeout elapses, in which case it
// returns ErrPoolExhausted. Sessions idle longer than Config.StaleAfter are
// probed with NOOP before being handed out, and sessions released as
// unhealthy are closed and replaced lazily on a later Acquire.
//
// The pool never holds its lock while dialing or talking to the server.
package ftppool
