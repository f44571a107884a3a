package scraper

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"jobs-scraper/config"
	"jobs-scraper/models"
	"jobs-scraper/utils"

	"github.com/PuerkitoBio/goquery"
	"github.com/PuerkitoBio/purell"
)

// field aliases for structured payloads, first non-empty wins
var (
	titleKeys        = []string{"title", "positionName", "jobTitle", "name"}
	organizationKeys = []string{"organization", "company", "companyName"}
	locationKeys     = []string{"location", "jobLocation", "place"}
	linkKeys         = []string{"link", "url", "jobUrl", "applyUrl"}
)

var (
	errMalformed = errors.New("item has neither title nor link")

	ErrDetailMissing = errors.New("detail region not found")
)

type Extractor struct {
	sel       config.Selectors
	keepQuery bool
}

func NewExtractor(sel config.Selectors, keepLinkQuery bool) Extractor {
	return Extractor{sel: sel, keepQuery: keepLinkQuery}
}

// Extract parses HTML cards and structured items of a page. Malformed items
// are skipped, they never fail the page.
func (e Extractor) Extract(page models.RawPage) []models.Listing {
	var listings []models.Listing
	if page.HTML != "" {
		listings = append(listings, e.extractHTML(page)...)
	}
	if len(page.Items) > 0 {
		listings = append(listings, e.extractItems(page)...)
	}
	return listings
}

func (e Extractor) extractHTML(page models.RawPage) []models.Listing {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		slog.Warn("could not parse page markup", "cursor", page.Cursor, "err", err)
		return nil
	}

	var listings []models.Listing
	doc.Find(e.sel.Card).Each(func(i int, card *goquery.Selection) {
		href := ""
		if card.Is("a") {
			href, _ = card.Attr("href")
		} else if e.sel.Link != "" {
			href, _ = card.Find(e.sel.Link).First().Attr("href")
		}

		listing, err := e.build(
			page,
			e.text(card, e.sel.Title),
			e.text(card, e.sel.Organization),
			e.text(card, e.sel.Location),
			href,
		)
		if err != nil {
			slog.Warn("skipping card", "cursor", page.Cursor, "index", i, "err", err)
			return
		}
		listings = append(listings, listing)
	})
	return listings
}

func (e Extractor) text(card *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return utils.CleanText(card.Find(selector).First().Text())
}

func (e Extractor) extractItems(page models.RawPage) []models.Listing {
	var listings []models.Listing
	for i, raw := range page.Items {
		var item map[string]any
		if err := json.Unmarshal(raw, &item); err != nil {
			slog.Warn("skipping item", "cursor", page.Cursor, "index", i, "err", err)
			continue
		}

		listing, err := e.build(
			page,
			pick(item, titleKeys),
			pick(item, organizationKeys),
			pick(item, locationKeys),
			pick(item, linkKeys),
		)
		if err != nil {
			slog.Warn("skipping item", "cursor", page.Cursor, "index", i, "err", err)
			continue
		}
		listings = append(listings, listing)
	}
	return listings
}

func (e Extractor) build(page models.RawPage, title, organization, location, href string) (models.Listing, error) {
	link, err := NormalizeLink(href, page.BaseURL, e.keepQuery)
	if err != nil {
		return models.Listing{}, err
	}
	if title == "" && link == "" {
		return models.Listing{}, errMalformed
	}
	return models.Listing{
		Title:        title,
		Organization: organization,
		Location:     location,
		Link:         link,
		SourceCursor: page.Cursor,
	}, nil
}

func pick(item map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := item[k].(type) {
		case string:
			if s := utils.CleanText(v); s != "" {
				return s
			}
		case map[string]any:
			// {"company": {"name": "..."}}
			if name, ok := v["name"].(string); ok && utils.CleanText(name) != "" {
				return utils.CleanText(name)
			}
		}
	}
	return ""
}

// NormalizeLink resolves raw against base and strips fragment and, unless
// keepQuery is set, the query string, so tracking parameters don't defeat
// deduplication. An empty raw link stays empty.
func NormalizeLink(raw, base string, keepQuery bool) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if base != "" && !u.IsAbs() {
		if b, err := url.Parse(base); err == nil {
			u = b.ResolveReference(u)
		}
	}
	if !keepQuery {
		u.RawQuery = ""
		u.ForceQuery = false
	}

	return purell.NormalizeURL(
		u,
		purell.FlagsSafe|
			purell.FlagRemoveFragment|
			purell.FlagRemoveDuplicateSlashes,
	), nil
}

// DetailText returns the cleaned text of the first element matching selector
// in a detail page.
func DetailText(html, selector string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	region := doc.Find(selector).First()
	if region.Length() == 0 {
		return "", ErrDetailMissing
	}
	text := utils.CleanText(region.Text())
	if text == "" {
		return "", ErrEmptyDetail
	}
	return text, nil
}
