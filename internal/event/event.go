package event

import (
	"strings"
)

// LocationSeparator separates the city from the region in a listing location,
// e.g. "Warsaw, Poland".
const LocationSeparator = ", "

// Record is one competition row scraped from the listing.
type Record struct {
	Location string `json:"location"`
	Name     string `json:"name"`
}

// Key identifies a competition for deduplication.
type Key string

// Region returns the region part of the record's location (the element after
// the first separator), trimmed. ok is false when the location has no region.
func (r Record) Region() (region string, ok bool) {
	parts := strings.Split(strings.TrimSpace(r.Location), LocationSeparator)
	if len(parts) < 2 {
		return "", false
	}
	region = strings.TrimSpace(parts[1])
	return region, region != ""
}

// Key derives the record's deduplication key.
func (r Record) Key() (Key, bool) {
	return NewKey(r.Location, r.Name)
}

// NewKey builds "<region>: <name>" from a raw location and name. ok is false
// when either part is empty after trimming.
func NewKey(location, name string) (Key, bool) {
	region, ok := Record{Location: location}.Region()
	if !ok {
		return "", false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	return Key(region + ": " + name), true
}

// FilterCountry returns the records whose location contains country, in
// their original order.
func FilterCountry(records []Record, country string) []Record {
	filtered := make([]Record, 0, len(records))
	for _, r := range records {
		if strings.Contains(r.Location, country) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
