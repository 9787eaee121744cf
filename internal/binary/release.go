package binary

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// LatestReleaseTimeout bounds the latest-release lookup.
const LatestReleaseTimeout = 5 * time.Second

// maxReleaseBody caps how much of the release API response is read.
const maxReleaseBody = 4 << 20

// LatestVersion asks the release API at url for the newest published
// version. The "v" prefix of the tag, if any, is removed.
func (d *Downloader) LatestVersion(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, LatestReleaseTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("query latest release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("query latest release: unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReleaseBody))
	if err != nil {
		return "", fmt.Errorf("read latest release: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("latest release response is not valid JSON")
	}

	tag := strings.TrimSpace(gjson.GetBytes(body, "tag_name").String())
	if tag == "" {
		return "", fmt.Errorf("latest release response has no tag_name")
	}
	return strings.TrimPrefix(tag, "v"), nil
}

// resolveVersion returns the pinned version, else the latest release, else
// fallback when the lookup fails.
func (d *Downloader) resolveVersion(ctx context.Context, pinned, latestURL, fallback string) string {
	if pinned != "" {
		return pinned
	}
	v, err := d.LatestVersion(ctx, latestURL)
	if err != nil {
		d.logger.Warn("latest release lookup failed, using default version", "default", fallback, "error", err)
		return fallback
	}
	return v
}
