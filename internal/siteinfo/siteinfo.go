// Package siteinfo fetches remote pages and extracts the metadata used
// when rendering attachments: title, description, preview images and the
// page type.
package siteinfo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	readability "codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"

	"github.com/riverfjs/bbcodify-go/internal/types"
)

const (
	maxFetchBytes  = 2 << 20
	maxDescription = 500
	userAgent      = "bbcodify/1.0"
)

// Prober fetches page metadata over HTTP. Results are memoized when a
// cache is supplied.
type Prober struct {
	client *http.Client
	cache  types.Cache
}

// New returns a Prober with a bounded request timeout.
func New(cache types.Cache) *Prober {
	return &Prober{
		client: &http.Client{Timeout: 15 * time.Second},
		cache:  cache,
	}
}

// Probe returns the metadata for url, served from cache when available.
func (p *Prober) Probe(rawURL string, withImages bool) (types.SiteInfo, error) {
	key := fmt.Sprintf("siteinfo:%t:%s", withImages, rawURL)
	if p.cache != nil {
		if raw, ok := p.cache.Get(key); ok {
			var info types.SiteInfo
			if err := json.Unmarshal([]byte(raw), &info); err == nil {
				return info, nil
			}
		}
	}
	info, err := p.fetch(rawURL, withImages)
	if err != nil {
		return types.SiteInfo{}, err
	}
	if p.cache != nil {
		if raw, err := json.Marshal(info); err == nil {
			p.cache.Set(key, string(raw))
		}
	}
	return info, nil
}

// ProbeFresh fetches the metadata bypassing the cache read. The fresh
// result still replaces the cached entry.
func (p *Prober) ProbeFresh(rawURL string, withImages bool) (types.SiteInfo, error) {
	info, err := p.fetch(rawURL, withImages)
	if err != nil {
		return types.SiteInfo{}, err
	}
	if p.cache != nil {
		if raw, err := json.Marshal(info); err == nil {
			p.cache.Set(fmt.Sprintf("siteinfo:%t:%s", withImages, rawURL), string(raw))
		}
	}
	return info, nil
}

func (p *Prober) fetch(rawURL string, withImages bool) (types.SiteInfo, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return types.SiteInfo{}, fmt.Errorf("siteinfo: invalid URL: %w", err)
	}

	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return types.SiteInfo{}, fmt.Errorf("siteinfo: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return types.SiteInfo{}, fmt.Errorf("siteinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return types.SiteInfo{}, fmt.Errorf("siteinfo: HTTP %d for %s", resp.StatusCode, rawURL)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return types.SiteInfo{}, fmt.Errorf("siteinfo: unsupported content type %q", ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return types.SiteInfo{}, fmt.Errorf("siteinfo: read %s: %w", rawURL, err)
	}

	info := types.SiteInfo{Type: "link", URL: rawURL}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return types.SiteInfo{}, fmt.Errorf("siteinfo: parse %s: %w", rawURL, err)
	}

	info.Title = strings.TrimSpace(doc.Find("title").First().Text())

	meta := func(names ...string) string {
		for _, name := range names {
			sel := doc.Find(`meta[property="` + name + `"], meta[name="` + name + `"]`).First()
			if v, ok := sel.Attr("content"); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}

	if t := meta("og:title", "twitter:title"); t != "" {
		info.Title = t
	}
	info.Text = meta("og:description", "twitter:description", "description")
	if canonical := meta("og:url"); canonical != "" {
		info.URL = canonical
	}

	switch {
	case meta("og:video", "og:video:url", "twitter:player") != "":
		info.Type = "video"
	case meta("twitter:card") == "photo":
		info.Type = "photo"
	}

	if withImages {
		doc.Find(`meta[property="og:image"], meta[name="twitter:image"]`).Each(func(_ int, sel *goquery.Selection) {
			src, ok := sel.Attr("content")
			if !ok || strings.TrimSpace(src) == "" {
				return
			}
			img := types.SiteImage{Src: resolveRef(parsed, strings.TrimSpace(src))}
			if w := meta("og:image:width"); w != "" {
				img.Width, _ = strconv.Atoi(w)
			}
			if h := meta("og:image:height"); h != "" {
				img.Height, _ = strconv.Atoi(h)
			}
			info.Images = append(info.Images, img)
		})
	}

	// Pages without any description meta still get a text snippet so the
	// attachment blockquote is never empty for readable articles.
	if info.Text == "" {
		if article, err := readability.FromReader(bytes.NewReader(body), parsed); err == nil {
			var buf bytes.Buffer
			if err := article.RenderText(&buf); err == nil {
				info.Text = snippet(buf.String())
			}
			if info.Title == "" {
				info.Title = article.Title()
			}
		}
	}

	return info, nil
}

func resolveRef(base *url.URL, ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= maxDescription {
		return text
	}
	return string(runes[:maxDescription]) + "…"
}
