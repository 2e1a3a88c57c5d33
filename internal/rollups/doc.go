// Package rollups stores one compressed summary per report and month and
// compiles a year of them into the payload for the yearly edition.
//
// Monthly runs upsert (replace, never append) the entry for their target
// month and prune old months; yearly runs only read. The document persists
// independently of the processed-item state with the same atomic contract.
package rollups
