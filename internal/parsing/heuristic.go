package parsing

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

// Confidence contributions of the structural signals the heuristic pass
// looks for. A strong title comes from an explicit heading; a weak one
// from document metadata or a first-line guess.
const (
	scoreTitleStrong = 0.35
	scoreTitleWeak   = 0.20
	scoreBodyFull    = 0.40
	scoreBodyShort   = 0.20
	scoreAuthor      = 0.10
	scoreMetadata    = 0.15
)

// minBodyRunes separates a substantial body from a fragment.
const minBodyRunes = 200

// maxGuessedTitleRunes caps how long a first line can be and still read
// as a title in the plain text path.
const maxGuessedTitleRunes = 120

// DefaultConfidenceFloor is the score below which a heuristic result is
// handed to the language model instead.
const DefaultConfidenceFloor = 0.7

// ExtractHeuristic segments raw content without model assistance. HTML
// documents are parsed structurally; anything else goes through the plain
// text path. The returned confidence reflects how many structural signals
// were found.
func ExtractHeuristic(content string) *Extraction {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil || doc.Find("body").Children().Length() == 0 {
		return extractPlainText(content)
	}
	return extractHTML(doc)
}

func extractHTML(doc *goquery.Document) *Extraction {
	ex := &Extraction{}
	score := 0.0

	if h1 := doc.Find("h1").First(); h1.Length() > 0 {
		ex.Title = CollapseWhitespace(h1.Text())
	}
	if ex.Title != "" {
		score += scoreTitleStrong
	} else {
		if t := doc.Find("title").First(); t.Length() > 0 {
			ex.Title = CollapseWhitespace(t.Text())
		}
		if ex.Title == "" {
			if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
				ex.Title = CollapseWhitespace(og)
			}
		}
		if ex.Title != "" {
			score += scoreTitleWeak
		}
	}

	ex.Subtitle = findSubtitle(doc)
	ex.Author = findAuthor(doc)
	if ex.Author != "" {
		score += scoreAuthor
	}

	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		ex.MetaDescription = CollapseWhitespace(desc)
	}
	if kw, ok := doc.Find(`meta[name="keywords"]`).Attr("content"); ok {
		ex.Keywords = NormalizeKeywords(strings.Split(kw, ","))
	}
	if ex.MetaDescription != "" || len(ex.Keywords) > 0 {
		score += scoreMetadata
	}

	container := findBodyContainer(doc)
	// Chrome and the already-captured headline fields stay out of the body
	container.Find("script, style, nav, footer, aside, noscript, iframe, form, header, h1, .subtitle, .standfirst, .byline").Remove()
	ex.Media = findMedia(container)

	if html, err := container.Html(); err == nil {
		ex.BodyHTML = strings.TrimSpace(html)
	}
	ex.Body = NormalizeBody(containerText(container))

	switch runes := utf8.RuneCountInString(ex.Body); {
	case runes >= minBodyRunes:
		score += scoreBodyFull
	case runes > 0:
		score += scoreBodyShort
	}

	ex.Confidence = score
	return ex
}

// findBodyContainer picks the most specific element likely to hold the
// article body.
func findBodyContainer(doc *goquery.Document) *goquery.Selection {
	for _, selector := range []string{"article", "main", "#content", ".post-content", ".entry-content"} {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			return sel
		}
	}
	return doc.Find("body")
}

func findSubtitle(doc *goquery.Document) string {
	if sel := doc.Find(".subtitle, .standfirst").First(); sel.Length() > 0 {
		return CollapseWhitespace(sel.Text())
	}
	if sub := doc.Find("h1").First().NextFiltered("h2"); sub.Length() > 0 {
		return CollapseWhitespace(sub.Text())
	}
	return ""
}

func findAuthor(doc *goquery.Document) string {
	if meta, ok := doc.Find(`meta[name="author"]`).Attr("content"); ok {
		if author := StripByline(meta); author != "" {
			return author
		}
	}
	for _, selector := range []string{".byline", ".author", `a[rel="author"]`} {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			if author := StripByline(sel.Text()); author != "" {
				return author
			}
		}
	}
	return ""
}

// containerText collects block-level text with paragraph breaks between
// blocks. Containers without block elements fall back to their full text.
func containerText(container *goquery.Selection) string {
	blocks := container.Find("p, h2, h3, h4, li")
	if blocks.Length() == 0 {
		return container.Text()
	}

	var parts []string
	blocks.Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n\n")
}

func findMedia(container *goquery.Selection) []types.MediaRef {
	var media []types.MediaRef
	seen := make(map[string]bool)

	container.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || strings.TrimSpace(src) == "" {
			src, _ = img.Attr("data-src")
		}
		src = strings.TrimSpace(src)
		if src == "" || seen[src] || strings.HasPrefix(src, "data:") {
			return
		}
		seen[src] = true

		ref := types.MediaRef{SourceURL: src}
		if alt, ok := img.Attr("alt"); ok {
			ref.AltText = strings.TrimSpace(alt)
		}
		if caption := img.Closest("figure").Find("figcaption").First(); caption.Length() > 0 {
			ref.Caption = CollapseWhitespace(caption.Text())
		}
		media = append(media, ref)
	})
	return media
}

// extractPlainText handles markdown and bare text sources. The first short
// line reads as the title, an immediately following ## heading as the
// subtitle, and a leading byline as the author.
func extractPlainText(content string) *Extraction {
	ex := &Extraction{}
	score := 0.0

	normalized := NormalizeBody(content)
	lines := strings.Split(normalized, "\n")
	bodyStart := 0

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "# ") {
			ex.Title = strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
			score += scoreTitleStrong
			bodyStart = i + 1
		} else if utf8.RuneCountInString(trimmed) <= maxGuessedTitleRunes {
			ex.Title = trimmed
			score += scoreTitleWeak
			bodyStart = i + 1
		}
		break
	}

	if ex.Title != "" {
		for i := bodyStart; i < len(lines); i++ {
			trimmed := strings.TrimSpace(lines[i])
			if trimmed == "" {
				continue
			}
			if strings.HasPrefix(trimmed, "## ") {
				ex.Subtitle = strings.TrimSpace(strings.TrimPrefix(trimmed, "## "))
				bodyStart = i + 1
			}
			break
		}

		for i := bodyStart; i < len(lines); i++ {
			trimmed := strings.TrimSpace(lines[i])
			if trimmed == "" {
				continue
			}
			if hasByline(trimmed) {
				ex.Author = StripByline(trimmed)
				score += scoreAuthor
				bodyStart = i + 1
			}
			break
		}
	}

	ex.Body = strings.TrimSpace(strings.Join(lines[bodyStart:], "\n"))

	switch runes := utf8.RuneCountInString(ex.Body); {
	case runes >= minBodyRunes:
		score += scoreBodyFull
	case runes > 0:
		score += scoreBodyShort
	}

	ex.Confidence = score
	return ex
}

func hasByline(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, prefix := range bylinePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
