// Package health tracks the last known availability of each tournament source.
//
// Every source starts unavailable and unchecked. RefreshIfStale probes the sources
// whose state is older than the check interval; concurrent callers share one probe.
// Sources are never removed, so a failing source is re-probed every interval and
// recovers automatically.
package health
