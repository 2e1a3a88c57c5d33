// Package cadence owns the closed vocabularies of the newsletter pipeline
// (cadence tiers, report profiles, trigger kinds) and the Gate that decides
// whether an invocation should run.
//
// The gate converts every instant into the configured named zone before any
// calendar test, so tests inject instants and the host clock and zone never
// leak into a decision. Zone data is embedded in the binary.
package cadence
