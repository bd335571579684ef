package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Selectors for the auto.ria.com markup.
const (
	listingLinkSelector = "a.m-link-ticket"
	titleSelector       = "h1.head"
	priceSelector       = "div.price_value strong"
	odometerSelector    = "div.base-information"
	sellerSelector      = "div.seller_info_name"
	galleryImgSelector  = "div.gallery-order img"
	plateSelector       = "span.state-num"
	vinSelector         = "span.label-vin"
	phoneShowSelector   = "a.phone_show_link"
	phoneValueSelector  = "span.phone.bold"
)

const defaultRevealTimeout = 5 * time.Second

// ExtractorConfig controls extraction behavior.
type ExtractorConfig struct {
	// RevealTimeout bounds the wait for the phone number to populate after
	// the reveal click.
	RevealTimeout time.Duration
}

// Extractor turns rendered pages into listing URLs and Listing records.
type Extractor struct {
	cfg    ExtractorConfig
	clock  Clock
	logger *zap.Logger
}

// NewExtractor builds an Extractor.
func NewExtractor(cfg ExtractorConfig, clock Clock, logger *zap.Logger) *Extractor {
	if cfg.RevealTimeout <= 0 {
		cfg.RevealTimeout = defaultRevealTimeout
	}
	return &Extractor{cfg: cfg, clock: clock, logger: logger}
}

// ListingLinks returns the listing URLs on a search-results page in
// document order, de-duplicated, resolved to absolute form. An empty slice
// is the page-end signal, not an error.
func (e *Extractor) ListingLinks(page Page) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}
	base, err := url.Parse(page.URL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find(listingLinkSelector).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		abs := resolveHref(base, href)
		if abs == "" {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})
	return links, nil
}

// ExtractListing parses one listing page and performs the phone reveal.
// A missing title fails the extraction; everything else degrades to an
// absent field.
func (e *Extractor) ExtractListing(ctx context.Context, pageURL string, sess Session) (Listing, error) {
	if pageURL == "" {
		return Listing{}, &ExtractError{Kind: MissingRequiredField, Field: "url"}
	}

	html, err := sess.HTML(ctx)
	if err != nil {
		return Listing{}, fmt.Errorf("read listing dom: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Listing{}, fmt.Errorf("parse listing page: %w", err)
	}

	title := CleanText(doc.Find(titleSelector).First().Text())
	if title == "" {
		return Listing{}, &ExtractError{URL: pageURL, Kind: MissingRequiredField, Field: "title"}
	}

	listing := Listing{
		URL:         pageURL,
		Title:       title,
		CollectedAt: e.clock.Now(),
	}

	listing.PriceUSD = ParsePrice(doc.Find(priceSelector).First().Text())
	listing.OdometerKM = ParseOdometer(doc.Find(odometerSelector).First().Text())
	if seller := CleanText(doc.Find(sellerSelector).First().Text()); seller != "" {
		listing.SellerName = &seller
	}

	gallery := doc.Find(galleryImgSelector)
	listing.ImageCount = gallery.Length()
	if src, ok := gallery.First().Attr("src"); ok && src != "" {
		abs := src
		if base, err := url.Parse(pageURL); err == nil {
			abs = resolveHref(base, src)
		}
		if abs != "" {
			listing.PrimaryImageURL = &abs
		}
	}

	if plate := ownText(doc.Find(plateSelector).First()); plate != "" {
		listing.PlateNumber = &plate
	}
	if vin := CleanText(doc.Find(vinSelector).First().Text()); vin != "" {
		listing.VIN = &vin
	}

	// The reveal must run against the same live page the fields came from.
	listing.PhoneNumber = e.revealPhone(ctx, pageURL, sess)

	return listing, nil
}

// revealPhone clicks the show-phone control and reads the disclosed number.
// Every failure path yields nil: an unrevealed phone never fails the
// extraction.
func (e *Extractor) revealPhone(ctx context.Context, pageURL string, sess Session) *string {
	if err := sess.Click(ctx, phoneShowSelector); err != nil {
		e.logger.Debug("phone reveal click failed",
			zap.String("url", pageURL), zap.Error(err))
		return nil
	}

	switch err := sess.WaitVisible(ctx, phoneValueSelector, e.cfg.RevealTimeout); {
	case err == nil:
		if text, terr := sess.Text(ctx, phoneValueSelector); terr == nil {
			if cleaned := CleanText(text); cleaned != "" {
				phone := NormalizePhone(cleaned)
				return &phone
			}
		}
	case errors.Is(err, ErrWaitTimeout):
		// Timed out; the number may still be present elsewhere in the DOM,
		// so fall through to the regex scan.
		ObserveRevealTimeout()
		e.logger.Debug("phone reveal timed out", zap.String("url", pageURL))
	default:
		e.logger.Debug("phone reveal wait failed",
			zap.String("url", pageURL), zap.Error(err))
		return nil
	}

	revealed, err := sess.HTML(ctx)
	if err != nil {
		e.logger.Debug("phone reveal re-read failed",
			zap.String("url", pageURL), zap.Error(err))
		return nil
	}
	return FindPhone(revealed)
}

// ownText returns the element's immediate text, ignoring nested elements
// (the plate badge nests hint markup after the number).
func ownText(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	clone := sel.Clone()
	clone.Children().Remove()
	return CleanText(clone.Text())
}

func resolveHref(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}
