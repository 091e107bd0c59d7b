// Package resilience provides the failure taxonomy shared by the request
// executor, the transaction publisher and the health monitor.
//
// Failures fall into three classes:
//   - Transient: likely to succeed on retry (network blip, timeout, 5xx, 429, 408)
//   - Permanent: will not change on retry (other 4xx, confirmed rejection of a write)
//   - Configuration: missing or invalid settings, surfaced at construction
//
// The executor resolves transient failures locally with backoff and only
// surfaces an ExhaustedError after the retry budget is spent; permanent
// errors bypass the retry loop entirely.
package resilience
