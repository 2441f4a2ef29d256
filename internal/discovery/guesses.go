package discovery

import (
	"net/url"
	"strings"
)

var feedSuffixes = []string{"feed", "feed.xml", "rss", "rss.xml", "atom.xml", "index.xml"}

// Guesses lists conventional feed locations for pageURL, most likely first, capped at limit.
// Each suffix is tried at the origin root and in the page's directory. Pages with a query
// string also get WordPress-style ?feed= variants and a trailing /feed/ path.
func Guesses(pageURL string, limit int) []string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return nil
	}
	origin := u.Scheme + "://" + u.Host
	dir := u.Path
	if dir == "" {
		dir = "/"
	}
	if !strings.HasSuffix(dir, "/") {
		dir = dir[:strings.LastIndex(dir, "/")+1]
	}

	var out []string
	for _, suffix := range feedSuffixes {
		out = appendUnique(out, origin+"/"+suffix)
		out = appendUnique(out, origin+dir+suffix)
	}

	if u.RawQuery != "" {
		if !u.Query().Has("feed") {
			out = appendUnique(out, withQuery(u, "feed=rss2"))
			out = appendUnique(out, withQuery(u, "feed=rss"))
		}
		feedPath := *u
		if strings.HasSuffix(feedPath.Path, "/") {
			feedPath.Path += "feed/"
		} else {
			feedPath.Path += "/feed/"
		}
		feedPath.RawPath = ""
		feedPath.Fragment = ""
		out = appendUnique(out, feedPath.String())
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func withQuery(u *url.URL, pair string) string {
	clone := *u
	clone.Fragment = ""
	clone.RawQuery = u.RawQuery + "&" + pair
	return clone.String()
}
