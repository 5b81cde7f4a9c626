// Package tournament provides the canonical tournament record shared by every source.
//
// The tournament package handles record representation, identification, validation and
// change detection through snapshot-based diffing. Records scraped without a native
// identifier are assigned a deterministic SHA1-based ID generated from their source and
// stable fields, enabling reliable tracking across runs.
package tournament
