package extractor

import (
	"net/url"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

const maxHeadings = 20

var reBlankLines = regexp.MustCompile(`\n{3,}`)

// cleanHTML reduces a rendered page to markdown text. A readability pass
// strips navigation and boilerplate first; whatever survives is converted to
// markdown. Perfect boilerplate removal is not guaranteed, so the chunker
// must tolerate noise.
func cleanHTML(pageURL, rawHTML string) (string, error) {
	content := rawHTML

	if parsed, err := url.Parse(pageURL); err == nil {
		if article, err := readability.FromReader(strings.NewReader(rawHTML), parsed); err == nil && article.Content != "" {
			content = article.Content
		}
	}

	markdown, err := htmltomarkdown.ConvertString(content)
	if err != nil {
		return "", err
	}

	markdown = reBlankLines.ReplaceAllString(markdown, "\n\n")
	return strings.TrimSpace(markdown), nil
}

// extractTitle extracts the <title> content from HTML.
func extractTitle(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}

	var title string
	var findTitle func(*html.Node)
	findTitle = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil {
				title = n.FirstChild.Data
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			findTitle(c)
		}
	}
	findTitle(doc)

	return strings.TrimSpace(title)
}

// extractHeadings collects up to maxHeadings h1-h3 texts in document order.
// The chunker and summarizer use them as section hints.
func extractHeadings(htmlContent string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil
	}

	var headings []string
	doc.Find("h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		if len(headings) >= maxHeadings {
			return
		}
		if text := strings.TrimSpace(s.Text()); text != "" {
			headings = append(headings, text)
		}
	})
	return headings
}
