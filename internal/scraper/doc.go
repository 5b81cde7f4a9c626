// Package scraper provides HTTP fetching and HTML parsing for tournament listing pages.
//
// Extraction is driven by CSS selectors from configuration instead of a hard-coded
// page layout: one selector finds each listing row, the others find the fields within
// it. A field selector may end in "@attr" to read an attribute instead of text, e.g.
// "a.details@href". Rows that cannot be turned into a valid record are dropped and
// logged without failing the page.
package scraper
