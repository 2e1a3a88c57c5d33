// Package main hosts the newsagent CLI entrypoint and command graph.
//
// `newsagent run` is what the scheduled CI workflow invokes: it resolves the
// trigger, asks the cadence gate what is due, and runs the pipeline under a
// host-local lock. The remaining commands inspect the same documents the run
// uses (gate decisions, dedup state, monthly rollups, recipient resolution,
// the audit journal) without modifying them, apart from `state prune`.
package main
