package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/PuerkitoBio/goquery"

	"github.com/pfrederiksen/wca-events/internal/event"
	"github.com/pfrederiksen/wca-events/internal/request"
)

const (
	ListingURL = "https://www.worldcubeassociation.org/competitions?utf8=%E2%9C%93&region=_Europe&search=&state=present&year=all+years&from_date=&to_date=&delegate=&display=list"

	listSelector = "#upcoming-comps > ul"
)

// ErrFetch wraps every failure to fetch or parse the listing page.
var ErrFetch = errors.New("getting WCA listing")

// Scraper fetches and parses the competition listing
type Scraper struct {
	client *request.Client
	url    string
}

// New creates a Scraper for listingURL (ListingURL when empty).
func New(httpClient *http.Client, listingURL string) *Scraper {
	if listingURL == "" {
		listingURL = ListingURL
	}
	return &Scraper{
		client: request.NewClient(httpClient, "", ""),
		url:    listingURL,
	}
}

// URL returns the listing address.
func (s *Scraper) URL() string {
	return s.url
}

// FetchListing fetches the listing and returns its records in document order.
// A reachable page without a listing yields no records and no error.
func (s *Scraper) FetchListing(ctx context.Context) ([]event.Record, error) {
	return request.Send(ctx, s.client,
		request.Request{NoAuth: true, Decoder: request.HTMLDecoder{}},
		s.url,
		func(doc *goquery.Document) ([]event.Record, error) {
			return ParseListing(doc), nil
		},
		ErrFetch,
	)
}

// Parse reads an HTML document and extracts its records.
func Parse(r io.Reader) ([]event.Record, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}
	return ParseListing(doc), nil
}

// ParseListing extracts records from the upcoming competitions list.
func ParseListing(doc *goquery.Document) []event.Record {
	records := make([]event.Record, 0)
	if doc == nil {
		return records
	}

	doc.Find(listSelector).First().Children().Each(func(_ int, row *goquery.Selection) {
		if rec, ok := parseRow(row); ok {
			records = append(records, rec)
		}
	})

	return records
}

// parseRow reads name and location by position within a listing row.
func parseRow(row *goquery.Selection) (event.Record, bool) {
	info := row.Children().Eq(1)
	name := info.Children().Eq(0).Children().Eq(1)
	location := info.Children().Eq(1)

	if name.Length() == 0 || location.Length() == 0 {
		return event.Record{}, false
	}

	return event.Record{
		Location: location.Text(),
		Name:     name.Text(),
	}, true
}
