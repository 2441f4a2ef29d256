package feed

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// hostRule overrides the generic selectors for sites with known markup.
type hostRule struct {
	container string
	title     string
	snippet   string
	date      string
}

var hostRules = map[string]hostRule{
	"techblog.woowahan.com": {
		container: ".post-item",
		title:     ".post-title",
		snippet:   ".post-excerpt",
		date:      ".post-author-date, time",
	},
}

const (
	genericContainers = `[class*="post"], [class*="entry"], [class*="article"]`
	genericHeading    = "h1 a, h2 a, h3 a"
	genericDateText   = `[class*="date"], [class*="time"], [class*="meta"]`
)

var (
	monthDayYear = regexp.MustCompile(`([A-Za-z]{3,9})\.?\s*(\d{1,2})[,\s.]+(20\d{2})`)
	yearMonthDay = regexp.MustCompile(`(20\d{2})[./-](\d{1,2})[./-](\d{1,2})`)
	compactDate  = regexp.MustCompile(`(20\d{2})(\d{2})(\d{2})`)

	urlDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`/(20\d{2})/(\d{1,2})/(\d{1,2})/`),
		regexp.MustCompile(`(20\d{2})-(\d{2})-(\d{2})`),
	}

	months = map[string]time.Month{
		"jan": time.January, "january": time.January,
		"feb": time.February, "february": time.February,
		"mar": time.March, "march": time.March,
		"apr": time.April, "april": time.April,
		"may": time.May,
		"jun": time.June, "june": time.June,
		"jul": time.July, "july": time.July,
		"aug": time.August, "august": time.August,
		"sep": time.September, "sept": time.September, "september": time.September,
		"oct": time.October, "october": time.October,
		"nov": time.November, "november": time.November,
		"dec": time.December, "december": time.December,
	}
)

// ParseHTML extracts listing entries from a blog index page. Relative links resolve against
// baseURL. Entries without a link or a title are dropped.
func ParseHTML(text, baseURL string) []Item {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return nil
	}

	base, _ := url.Parse(baseURL)
	rule, hasRule := lookupRule(base)

	var containers *goquery.Selection
	if hasRule {
		containers = doc.Find(rule.container)
	} else {
		containers = doc.Find("article")
	}
	if containers.Length() == 0 {
		containers = doc.Find(genericContainers)
	}

	var items []Item
	containers.Each(func(_ int, node *goquery.Selection) {
		if item, ok := parseContainer(node, rule, hasRule, base); ok {
			items = append(items, item)
		}
	})
	return items
}

func lookupRule(base *url.URL) (hostRule, bool) {
	if base == nil {
		return hostRule{}, false
	}
	host := strings.TrimPrefix(strings.ToLower(base.Hostname()), "www.")
	rule, ok := hostRules[host]
	return rule, ok
}

func parseContainer(node *goquery.Selection, rule hostRule, hasRule bool, base *url.URL) (Item, bool) {
	headingSel := genericHeading
	if hasRule {
		headingSel = rule.title
	}
	heading := node.Find(headingSel).First()
	link := heading
	if heading.Length() == 0 || !heading.Is("a") {
		link = node.Find("a").First()
	}

	href, _ := link.Attr("href")
	href = strings.TrimSpace(href)
	linkText := collapseSpace(link.Text())
	title := collapseSpace(heading.Text())
	if title == "" {
		title = linkText
	}
	if title == "" {
		title = collapseSpace(node.Find("h1,h2,h3").First().Text())
	}
	if href == "" || title == "" {
		return Item{}, false
	}

	resolved := resolveHref(base, href)

	var timeNode, dateTextNode *goquery.Selection
	if hasRule && rule.date != "" {
		timeNode = node.Find(rule.date).First()
		dateTextNode = timeNode
	} else {
		timeNode = node.Find("time").First()
		dateTextNode = node.Find(genericDateText).First()
	}
	datetime, _ := timeNode.Attr("datetime")

	published, ok := parseTimestamp(datetime)
	if !ok {
		published, ok = parseDateText(timeNode.Text())
	}
	if !ok {
		published, ok = parseDateText(dateTextNode.Text())
	}
	if !ok {
		published, _ = parseDateFromURL(resolved)
	}

	snippetSel := "p"
	if hasRule && rule.snippet != "" {
		snippetSel = rule.snippet
	}
	snippet := collapseSpace(node.Find(snippetSel).First().Text())

	return Item{
		Title:       title,
		Link:        resolved,
		Snippet:     snippet,
		PublishedAt: published,
		Raw: map[string]any{
			"sourceType": "html",
			"linkText":   nullable(linkText),
		},
	}, true
}

func resolveHref(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

// parseTimestamp accepts full RFC 3339 datetime attributes before falling back to date text.
func parseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), true
	}
	return parseDateText(value)
}

// parseDateText recognizes "Dec 26, 2025", "2025.12.26" (and - or / separators), and "20251226".
func parseDateText(value string) (time.Time, bool) {
	text := collapseSpace(value)
	if text == "" {
		return time.Time{}, false
	}
	if m := monthDayYear.FindStringSubmatch(text); m != nil {
		if month, ok := months[strings.ToLower(m[1])]; ok {
			if t, ok := buildDate(m[3], int(month), m[2]); ok {
				return t, true
			}
		}
	}
	for _, pattern := range []*regexp.Regexp{yearMonthDay, compactDate} {
		if m := pattern.FindStringSubmatch(text); m != nil {
			month, err := strconv.Atoi(m[2])
			if err != nil {
				continue
			}
			if t, ok := buildDate(m[1], month, m[3]); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func parseDateFromURL(rawURL string) (time.Time, bool) {
	for _, pattern := range urlDatePatterns {
		if m := pattern.FindStringSubmatch(rawURL); m != nil {
			month, err := strconv.Atoi(m[2])
			if err != nil {
				continue
			}
			if t, ok := buildDate(m[1], month, m[3]); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// buildDate returns UTC midnight of the date, rejecting impossible calendar values.
func buildDate(yearText string, month int, dayText string) (time.Time, bool) {
	year, err := strconv.Atoi(yearText)
	if err != nil {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(dayText)
	if err != nil {
		return time.Time{}, false
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}
