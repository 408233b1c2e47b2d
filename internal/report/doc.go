// Package report collects wait results and renders the run summary.
//
// The main components are:
//
//   - [Store]: Interface defining result storage operations
//   - [MemoryStore]: In-memory implementation of Store
//   - [Entry]: Storage representation of a finished wait
//
// Entries can be written as a table for terminals or as JSON for other
// tools in a pipeline.
package report
