// Package pipeline runs one newsletter invocation end to end.
//
// The Orchestrator asks the cadence gate what is due, then for each proceeding
// (report, cadence) pair collects candidate items, filters them against the
// dedup state, renders, updates monthly rollups, resolves recipients, and
// hands the message to a Mailer. Collectors, renderers, and mailers are ports;
// the package ships file-backed defaults (FeedCollector, MarkdownRenderer,
// OutboxMailer) that let the whole flow run locally and in tests.
//
// Only daily runs mutate the processed-item state. Weekly, monthly, and yearly
// runs read it through a read-only store and never write the state file.
package pipeline
