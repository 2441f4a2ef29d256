package discovery

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// page is what one collector visit observed.
type page struct {
	Status      int
	FinalURL    string
	ContentType string
	Body        []byte
	FeedLinks   []string
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnHTML(string, colly.HTMLCallback)
	OnError(colly.ErrorCallback)
}

// newBaseCollector builds the collector every visit is cloned from. Clones share its HTTP
// backend, so the client timeout is set once here and visits bound themselves by context.
// Revisits are allowed because the same guess URL may be probed by separate discoveries.
func newBaseCollector(userAgent string, timeout time.Duration) *colly.Collector {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.UserAgent = userAgent
	c.ParseHTTPErrorResponse = true
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(timeout)
	return c
}

// visit fetches rawURL with a fresh clone of base bounded by timeout.
func visit(ctx context.Context, base *colly.Collector, rawURL string, timeout time.Duration) (page, error) {
	var (
		result   page
		fetchErr error
	)
	collector := base.Clone()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	collector.Context = ctx

	configureHooks(collector, &result, &fetchErr)
	if err := runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		return page{}, err
	}
	return result, nil
}

func configureHooks(hooks collectorHooks, result *page, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		result.Status = r.StatusCode
		result.FinalURL = r.Request.URL.String()
		result.ContentType = r.Headers.Get("Content-Type")
		result.Body = append([]byte(nil), r.Body...)
	})

	hooks.OnHTML(`link[rel][href]`, func(e *colly.HTMLElement) {
		if !isFeedLink(e.Attr("rel"), e.Attr("type")) {
			return
		}
		if abs := e.Request.AbsoluteURL(e.Attr("href")); abs != "" {
			result.FeedLinks = appendUnique(result.FeedLinks, abs)
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func isFeedLink(rel, typ string) bool {
	rel = strings.ToLower(rel)
	typ = strings.ToLower(typ)
	if !strings.Contains(rel, "alternate") {
		return false
	}
	return strings.Contains(typ, "rss") || strings.Contains(typ, "atom") || strings.Contains(typ, "xml")
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("discovery fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("discovery visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("discovery response failed: %w", *fetchErr)
		}
		return nil
	}
}

func appendUnique(list []string, value string) []string {
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	return append(list, value)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          50,
		IdleConnTimeout:       90 * time.Second,
	}
}
