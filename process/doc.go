// Package process runs external programs under supervision.
//
// A Command is configured once with New and invoked any number of times.
// Each invocation spawns one child with its standard output and error bound
// to pipes, drains both streams line by line without letting either one
// stall the other, and reaps the child:
//
//	cmd, err := process.New("tar", process.WithArgs("-C", dir),
//		process.WithCheck(true),
//		process.WithRetry(2, time.Second))
//	out, errText, err := cmd.GetOutput(ctx, []string{"-czf", "backup.tgz", "."})
//
// Lines go to LineHandler values: LogHandler, PrintHandler, Collector, or
// any LineHandlerFunc. GetOutput and Run collect the output in memory and
// apply the retry budget; Execute runs a single attempt and streams lines to
// the configured handlers.
//
// Per-call CallOptions override the configured defaults for one invocation
// only. OverridesFromMap builds them from named values and rejects unknown
// names.
//
// EnableSignalForwarding relays a signal received by the controller to the
// live child through the signals registry. NewRsync and NewSubInvocation
// build the remote-copy profile and the detached self-invocation on top of
// the same engine.
package process
