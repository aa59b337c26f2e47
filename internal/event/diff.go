package event

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pfrederiksen/wca-events/internal/logger"
)

// Seen is the set of keys that have already been announced.
//
// Add must record the key in memory even when persisting it fails, so a
// later Has in the same process reports it as seen.
type Seen interface {
	Has(key string) bool
	Add(key string) error
}

// Diff is the result of comparing a scraped listing against the seen set.
type Diff struct {
	Scraped int   `json:"scraped"`
	Matched int   `json:"matched"`
	Skipped int   `json:"skipped"`
	NewKeys []Key `json:"new_keys"`
}

// Message joins the new keys into one notification body, one key per line.
func (d *Diff) Message() string {
	lines := make([]string, len(d.NewKeys))
	for i, k := range d.NewKeys {
		lines[i] = string(k)
	}
	return strings.Join(lines, "\n")
}

// Detect filters records to country and returns the keys not yet in seen,
// in listing order. Each new key is added to seen (and so persisted) before
// Detect moves on to the next record.
//
// Persistence failures do not stop detection; they are joined into the
// returned error and the diff is still complete.
func Detect(records []Record, country string, seen Seen) (*Diff, error) {
	matched := FilterCountry(records, country)
	diff := &Diff{
		Scraped: len(records),
		Matched: len(matched),
		NewKeys: make([]Key, 0),
	}

	var errs []error
	for _, r := range matched {
		key, ok := r.Key()
		if !ok {
			diff.Skipped++
			continue
		}
		if seen.Has(string(key)) {
			continue
		}

		if err := seen.Add(string(key)); err != nil {
			errs = append(errs, fmt.Errorf("recording %q: %w", key, err))
		}
		diff.NewKeys = append(diff.NewKeys, key)

		region, _ := r.Region()
		logger.Info("New competition", logger.Fields{
			"region": region,
			"name":   strings.TrimSpace(r.Name),
		})
	}

	return diff, errors.Join(errs...)
}
