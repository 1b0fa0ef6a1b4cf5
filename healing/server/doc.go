/*
Package server monitors commands executed by a workflow engine and heals
their stragglers.

One CommandMonitor per command accumulates the durations of the phases its
jobs go through and, on every tick, estimates when each running replica of
each invocation will complete. Replicas much slower than a sibling get a
KILL_REPLICA request. A best replica much slower than the command's median
job gets a REPLICATE request. Commands whose jobs fail too often are aborted.

Requests are status updates written to the store; the workflow engine carries
them out.
*/
package server
