// Package preflight provides readiness checks for the filesystem paths and
// recipient configuration newsagent depends on.
//
// These checks run in two contexts:
//   - `newsagent run` calls RunAll before invoking the pipeline and refuses to
//     start when a required check fails, so a read-only checkout never gets
//     as far as sending mail it cannot record.
//   - `newsagent doctor` prints every result, including advisory ones.
package preflight
