// Package config loads, normalizes, and validates newsagent configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// NEWSAGENT_STATE_PATH and NTFY_TOPIC. The Config type centralizes the
// schedule policy, persistence locations, and retention limits so the CLI and
// pipeline discover everything in one pass.
//
// GatePolicy converts the schedule section into the cadence gate's policy;
// validation rejects unknown report keys and weekdays at the boundary.
package config
