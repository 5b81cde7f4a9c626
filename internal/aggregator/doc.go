// Package aggregator answers tournament queries by fanning out to every usable
// source, merging the results in source priority order, deduplicating, filtering
// and caching them per filter signature.
//
// A Service is constructed once and owns its Health Monitor and Cache Store.
// Source failures never reach the caller: they are recorded as health data and
// the round returns whatever the remaining sources produced. When every source
// fails the previous result for the same filter is served if one exists,
// otherwise an empty list; Result.AllSourcesFailed tells the two cases apart from
// a legitimately empty range.
//
// Concurrent queries with the same filter signature share one aggregation round.
package aggregator
