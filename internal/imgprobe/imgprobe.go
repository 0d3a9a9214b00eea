// Package imgprobe fetches remote images and reports their dimensions
// and mime type without decoding the full pixel data.
package imgprobe

import (
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	_ "golang.org/x/image/webp"

	"github.com/riverfjs/bbcodify-go/internal/types"
)

// maxProbeBytes bounds how much of the remote body is read. Image headers
// sit at the front of the file so this is plenty for DecodeConfig.
const maxProbeBytes = 1 << 20

// Prober probes remote images over HTTP. Results are memoized when a
// cache is supplied.
type Prober struct {
	client *http.Client
	cache  types.Cache
}

// New returns a Prober with a bounded request timeout.
func New(cache types.Cache) *Prober {
	return &Prober{
		client: &http.Client{Timeout: 10 * time.Second},
		cache:  cache,
	}
}

// Probe fetches url and returns the decoded image geometry and mime type.
func (p *Prober) Probe(url string) (types.ImageInfo, error) {
	key := "imgprobe:" + url
	if p.cache != nil {
		if raw, ok := p.cache.Get(key); ok {
			var info types.ImageInfo
			if err := json.Unmarshal([]byte(raw), &info); err == nil {
				return info, nil
			}
		}
	}

	resp, err := p.client.Get(url)
	if err != nil {
		return types.ImageInfo{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return types.ImageInfo{}, fmt.Errorf("imgprobe: unexpected status %d for %s", resp.StatusCode, url)
	}

	cfg, format, err := image.DecodeConfig(io.LimitReader(resp.Body, maxProbeBytes))
	if err != nil {
		return types.ImageInfo{}, fmt.Errorf("imgprobe: decode %s: %w", url, err)
	}

	info := types.ImageInfo{
		Width:  cfg.Width,
		Height: cfg.Height,
		Mime:   "image/" + format,
	}
	if p.cache != nil {
		if raw, err := json.Marshal(info); err == nil {
			p.cache.Set(key, string(raw))
		}
	}
	return info, nil
}
