package discover

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
)

// ListingEntry is one row parsed from a board listing page.
type ListingEntry struct {
	ThreadURL    string
	Title        string
	Author       string
	PublishedRaw string
}

// ListingParser extracts thread entries from one forum site's listing
// HTML. PageParam is the site's default pagination query parameter,
// used when config leaves page_param empty.
type ListingParser struct {
	PageParam string
	Parse     func(html, boardURL string) []ListingEntry
}

var listingParsers = map[string]*ListingParser{
	"dcinside":   {PageParam: "page", Parse: parseDcinsideListing},
	"bobaedream": {PageParam: "page", Parse: parseBobaedreamListing},
	"mlbpark":    {PageParam: "p", Parse: parseMlbparkListing},
	"theqoo":     {PageParam: "page", Parse: parseTheqooListing},
	"ppomppu":    {PageParam: "page", Parse: parsePpomppuListing},
}

// SiteParser returns the listing parser for a forum site key.
func SiteParser(site string) (*ListingParser, bool) {
	p, ok := listingParsers[site]
	return p, ok
}

// resolveThreadURL makes a listing href absolute against its board URL.
func resolveThreadURL(boardURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "#") {
		return ""
	}
	base, err := url.Parse(boardURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func parseDcinsideListing(html, boardURL string) []ListingEntry {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var out []ListingEntry
	doc.Find("tr.ub-content").Each(func(_ int, row *goquery.Selection) {
		link := row.Find("td.gall_tit a").First()
		href, _ := link.Attr("href")
		threadURL := resolveThreadURL(boardURL, href)
		if threadURL == "" || !strings.Contains(threadURL, "no=") {
			return
		}
		dateCell := row.Find("td.gall_date").First()
		raw, ok := dateCell.Attr("title")
		if !ok {
			raw = strings.TrimSpace(dateCell.Text())
		}
		author := strings.TrimSpace(row.Find("td.gall_writer").First().AttrOr("data-nick", ""))
		if author == "" {
			author = strings.TrimSpace(row.Find("td.gall_writer").First().Text())
		}
		out = append(out, ListingEntry{
			ThreadURL:    threadURL,
			Title:        strings.TrimSpace(link.Text()),
			Author:       author,
			PublishedRaw: raw,
		})
	})
	return out
}

func parseBobaedreamListing(html, boardURL string) []ListingEntry {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var out []ListingEntry
	doc.Find("table#boardlist tbody tr").Each(func(_ int, row *goquery.Selection) {
		link := row.Find("a.bsubject").First()
		href, _ := link.Attr("href")
		threadURL := resolveThreadURL(boardURL, href)
		if threadURL == "" {
			return
		}
		out = append(out, ListingEntry{
			ThreadURL:    threadURL,
			Title:        strings.TrimSpace(link.Text()),
			Author:       strings.TrimSpace(row.Find("span.author").First().Text()),
			PublishedRaw: strings.TrimSpace(row.Find("td.date").First().Text()),
		})
	})
	return out
}

// parseMlbparkListing uses XPath: the listing table mixes notice rows
// and thread rows, and the thread link class varies across boards.
func parseMlbparkListing(html, boardURL string) []ListingEntry {
	doc, err := htmlquery.Parse(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var out []ListingEntry
	rows := htmlquery.Find(doc, `//table[contains(@class,"tbl_type01")]//tr[td[contains(@class,"t_left")]]`)
	for _, row := range rows {
		link := htmlquery.FindOne(row, `.//td[contains(@class,"t_left")]//a`)
		if link == nil {
			continue
		}
		threadURL := resolveThreadURL(boardURL, htmlquery.SelectAttr(link, "href"))
		if threadURL == "" {
			continue
		}
		var author, raw string
		if n := htmlquery.FindOne(row, `.//span[contains(@class,"nick")]`); n != nil {
			author = strings.TrimSpace(htmlquery.InnerText(n))
		}
		if n := htmlquery.FindOne(row, `.//span[contains(@class,"date")]`); n != nil {
			raw = strings.TrimSpace(htmlquery.InnerText(n))
		}
		out = append(out, ListingEntry{
			ThreadURL:    threadURL,
			Title:        strings.TrimSpace(htmlquery.InnerText(link)),
			Author:       author,
			PublishedRaw: raw,
		})
	}
	return out
}

func parseTheqooListing(html, boardURL string) []ListingEntry {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var out []ListingEntry
	doc.Find("table.bd_lst tbody tr").Each(func(_ int, row *goquery.Selection) {
		if row.HasClass("notice") {
			return
		}
		link := row.Find("td.title a").First()
		href, _ := link.Attr("href")
		threadURL := resolveThreadURL(boardURL, href)
		if threadURL == "" {
			return
		}
		out = append(out, ListingEntry{
			ThreadURL:    threadURL,
			Title:        strings.TrimSpace(link.Text()),
			PublishedRaw: strings.TrimSpace(row.Find("td.time").First().Text()),
		})
	})
	return out
}

func parsePpomppuListing(html, boardURL string) []ListingEntry {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var out []ListingEntry
	doc.Find("tr.baseList").Each(func(_ int, row *goquery.Selection) {
		link := row.Find("a.baseList-title").First()
		href, _ := link.Attr("href")
		threadURL := resolveThreadURL(boardURL, href)
		if threadURL == "" {
			return
		}
		timeCell := row.Find("time.baseList-time").First()
		raw, ok := timeCell.Attr("title")
		if !ok {
			raw = strings.TrimSpace(timeCell.Text())
		}
		out = append(out, ListingEntry{
			ThreadURL:    threadURL,
			Title:        strings.TrimSpace(link.Text()),
			Author:       strings.TrimSpace(row.Find("span.baseList-name").First().Text()),
			PublishedRaw: raw,
		})
	})
	return out
}
