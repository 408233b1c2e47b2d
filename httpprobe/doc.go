// Package httpprobe builds [dbwait.Probe] values over HTTP responses.
//
// It covers the other half of the write-then-verify flow: waiting for a
// service to report a state, for example before or after checking the
// database. The main components are:
//
//   - [Client]: HTTP client wrapper with pooled connections, per-request
//     timeouts and a 1MB body limit
//   - [Probe]: a probe that fetches a [Request] and accepts the [Response]
//   - [StatusIn], [JSONField], [BodyContains], [BodyMatches], [AllOf]: matchers
package httpprobe
