// Package source defines the contract every tournament listing provider satisfies.
//
// An Adapter fetches current listings for a time window and answers a cheap liveness
// probe. Adapters may additionally release held resources (Closer) and report their
// self-imposed rate-limit state (RateLimitReporter). Concrete adapters live in
// restapi, scraper and browser.
package source
