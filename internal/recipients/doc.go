// Package recipients resolves the delivery list for a (report, cadence)
// pair from an ordered cascade of configuration sources.
//
// Resolution is first-match-wins per pair: the first source that yields a
// well-formed, non-empty list is used and no other source contributes. A
// malformed source is skipped and recorded in Resolution.Fallbacks; it never
// fails the resolution. The yearly cadence resolves to the union of the
// daily, weekly, and monthly lists.
package recipients
