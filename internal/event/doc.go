// Package event provides the competition record, its deduplication key and
// the diff that turns a scraped listing into newly announced competitions.
//
// A Key has the form "<region>: <name>" and is stable across scrapes: the same
// region and name always yield the same key regardless of surrounding
// whitespace, so it can be persisted and compared across restarts.
package event
