// Package scraper fetches the World Cube Association competition listing and
// parses it into event records.
//
// The listing is fetched without credentials. Rows are read from the
// children of the "#upcoming-comps > ul" list by position: the second child
// of each row holds the competition link (whose second child is the name)
// followed by the location. Rows that do not have that shape, such as year
// separators, are skipped without error.
package scraper
