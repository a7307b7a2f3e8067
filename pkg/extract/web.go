package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// WebDocument is one crawled page of readable text, ready to be chunked
// as a single-page source.
type WebDocument struct {
	URL   string
	Title string
	Text  string
}

// WebSourceConfig represents the configuration for a crawling web source.
type WebSourceConfig struct {
	BaseURL        string
	MaxDepth       int
	RateLimit      float64 // requests per second
	IgnorePatterns []string
	Timeout        time.Duration
	OnProgress     func(url string)
}

// WebSource crawls same-host HTML pages starting from a base URL and
// extracts their main text content for ingestion.
type WebSource struct {
	config   WebSourceConfig
	client   *http.Client
	limiter  *rate.Limiter
	visited  map[string]bool
	baseHost string
	logger   *zap.Logger
}

func NewWebSource(config WebSourceConfig, logger *zap.Logger) (*WebSource, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth == 0 {
		config.MaxDepth = 3
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	parsedURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	return &WebSource{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		visited:  make(map[string]bool),
		baseHost: parsedURL.Host,
		logger:   logger,
	}, nil
}

// Crawl walks pages breadth-first up to the configured depth and
// returns one WebDocument per fetched page.
func (w *WebSource) Crawl(ctx context.Context) ([]WebDocument, error) {
	var documents []WebDocument
	if err := w.crawl(ctx, w.config.BaseURL, 0, &documents); err != nil {
		return documents, err
	}
	return documents, nil
}

func (w *WebSource) crawl(ctx context.Context, urlStr string, depth int, documents *[]WebDocument) error {
	if depth > w.config.MaxDepth || w.visited[urlStr] {
		return nil
	}
	if !w.shouldVisit(urlStr) {
		return nil
	}

	w.visited[urlStr] = true
	if w.config.OnProgress != nil {
		w.config.OnProgress(urlStr)
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return err
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return err
	}

	text := mainContent(doc)
	if text != "" {
		*documents = append(*documents, WebDocument{
			URL:   urlStr,
			Title: strings.TrimSpace(doc.Find("title").Text()),
			Text:  text,
		})
	}

	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, exists := selection.Attr("href")
		if !exists {
			return
		}

		absolute, err := url.Parse(href)
		if err != nil {
			return
		}
		if !absolute.IsAbs() {
			base, err := url.Parse(urlStr)
			if err != nil {
				return
			}
			absolute = base.ResolveReference(absolute)
		}
		absolute.Fragment = ""

		if err := w.crawl(ctx, absolute.String(), depth+1, documents); err != nil {
			w.logger.Debug("skipping link", zap.String("url", absolute.String()), zap.Error(err))
		}
	})

	return nil
}

func (w *WebSource) shouldVisit(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if parsedURL.Host != w.baseHost {
		return false
	}

	for _, pattern := range w.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return false
		}
	}

	return true
}

// mainContent prefers a page's main/article region and falls back to
// the whole body.
func mainContent(doc *goquery.Document) string {
	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
		".documentation",
		"#documentation",
	}

	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}
	if content == "" {
		content = doc.Find("body").Text()
	}

	return strings.TrimSpace(strings.Join(strings.Fields(content), " "))
}
