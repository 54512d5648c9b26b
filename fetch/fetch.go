// fetch/fetch.go
// Copyright(c) 2024-2026 gaggle contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package fetch downloads contest-day flight logs from a results site.
// The default path scrapes a SoaringSpot-style daily results page for
// the per-competitor download popovers; sites that offer a JSON API can
// be queried instead with OAuth2 client credentials. Downloads are
// atomic (written to a temp file, then renamed), retried with
// exponential backoff on transient failures, and recorded in an
// index.json that preserves the results-page order.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/klauspost/compress/zstd"
	"github.com/mmp/gaggle/log"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/errgroup"
)

const DefaultSite = "https://www.soaringspot.com"

// LogRef identifies one downloadable flight log on the results site.
type LogRef struct {
	Competitor string // competitor name as shown on the results page
	URL        string // absolute download URL
}

// APICredentials configures OAuth2 client-credentials authentication
// for sites that serve flight lists over a JSON API.
type APICredentials struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

type Options struct {
	Site        string          // results site base URL; DefaultSite if empty
	Client      *http.Client    // optional; ignored when Credentials is set
	Compress    bool            // store downloaded logs zstd-compressed
	CacheTTL    time.Duration   // results-page cache lifetime; 15 minutes if zero
	Credentials *APICredentials // non-nil enables the authenticated API path
}

type Fetcher struct {
	client   *http.Client
	site     *url.URL
	cache    *expirable.LRU[string, string]
	lg       *log.Logger
	compress bool
	backoff  time.Duration // initial retry delay; shortened by tests
}

func New(opts Options, lg *log.Logger) (*Fetcher, error) {
	site := opts.Site
	if site == "" {
		site = DefaultSite
	}
	u, err := url.Parse(site)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%s: invalid results site URL", site)
	}

	ttl := opts.CacheTTL
	if ttl == 0 {
		ttl = 15 * time.Minute
	}

	client := opts.Client
	if opts.Credentials != nil {
		cc := clientcredentials.Config{
			ClientID:     opts.Credentials.ClientID,
			ClientSecret: opts.Credentials.ClientSecret,
			TokenURL:     opts.Credentials.TokenURL,
		}
		client = cc.Client(context.Background())
		client.Timeout = 30 * time.Second
	} else if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &Fetcher{
		client:   client,
		site:     u,
		cache:    expirable.NewLRU[string, string](32, nil, ttl),
		lg:       lg,
		compress: opts.Compress,
		backoff:  5 * time.Second,
	}, nil
}

type Status int

const (
	StatusSuccess Status = iota
	StatusTransientFailure
	StatusPermanentFailure
)

func (f *Fetcher) withBackoff(try func() Status) bool {
	backoff := f.backoff
	for range 5 {
		switch try() {
		case StatusSuccess:
			return true

		case StatusTransientFailure:
			time.Sleep(backoff)
			backoff *= 2

		case StatusPermanentFailure:
			return false
		}
	}
	return false // unsuccessful after multiple retries
}

// The daily results page marks each competitor's downloads with a
// Bootstrap popover anchor whose data-content attribute holds an
// HTML-escaped fragment of download links.
var (
	popoverRe = regexp.MustCompile(`(?s)<a\s[^>]*data-toggle="popover"[^>]*>(.*?)</a>`)
	contentRe = regexp.MustCompile(`data-content="([^"]*)"`)
	igcHrefRe = regexp.MustCompile(`(?s)<a\s[^>]*href="([^"]*)"[^>]*>[^<]*Download IGC`)
)

// DayLogs scrapes a daily results page and returns one LogRef per
// competitor offering an IGC download, in page order.
func (f *Fetcher) DayLogs(ctx context.Context, dayURL string) ([]LogRef, error) {
	page, err := f.page(ctx, dayURL)
	if err != nil {
		return nil, err
	}

	var refs []LogRef
	for _, m := range popoverRe.FindAllStringSubmatch(page, -1) {
		name := strings.TrimSpace(html.UnescapeString(m[1]))

		cm := contentRe.FindStringSubmatch(m[0])
		if cm == nil {
			continue
		}
		hm := igcHrefRe.FindStringSubmatch(html.UnescapeString(cm[1]))
		if hm == nil {
			// Popover without an IGC link (KML-only, scoring sheets...)
			f.lg.Debugf("%s: no IGC download offered", name)
			continue
		}

		href, err := url.Parse(strings.TrimSpace(hm[1]))
		if err != nil {
			f.lg.Warnf("%s: unparsable download link %q: %v", name, hm[1], err)
			continue
		}
		refs = append(refs, LogRef{
			Competitor: name,
			URL:        f.site.ResolveReference(href).String(),
		})
	}

	f.lg.Infof("%s: found %d flight logs", dayURL, len(refs))
	return refs, nil
}

// ContestDayAPI lists a day's flights through the site's JSON API.
// Requires Options.Credentials.
func (f *Fetcher) ContestDayAPI(ctx context.Context, contest, day string) ([]LogRef, error) {
	apiURL := fmt.Sprintf("%s/api/v1/contests/%s/days/%s/flights",
		strings.TrimSuffix(f.site.String(), "/"),
		url.PathEscape(contest), url.PathEscape(day))

	req, err := http.NewRequestWithContext(ctx, "GET", apiURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", apiURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: HTTP status code %d", apiURL, resp.StatusCode)
	}

	var flights []struct {
		Competitor string `json:"competitor"`
		IGCURL     string `json:"igc_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&flights); err != nil {
		return nil, fmt.Errorf("%s: %w", apiURL, err)
	}

	var refs []LogRef
	for _, fl := range flights {
		href, err := url.Parse(fl.IGCURL)
		if err != nil {
			f.lg.Warnf("%s: unparsable download link %q: %v", fl.Competitor, fl.IGCURL, err)
			continue
		}
		refs = append(refs, LogRef{
			Competitor: fl.Competitor,
			URL:        f.site.ResolveReference(href).String(),
		})
	}

	f.lg.Infof("%s day %s: API lists %d flights", contest, day, len(refs))
	return refs, nil
}

// page returns a results page body, serving repeat requests from the
// TTL cache so rescraping within a few minutes costs one fetch.
func (f *Fetcher) page(ctx context.Context, pageURL string) (string, error) {
	if body, ok := f.cache.Get(pageURL); ok {
		return body, nil
	}

	var body string
	ok := f.withBackoff(func() Status {
		req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
		if err != nil {
			f.lg.Errorf("%s: %v", pageURL, err)
			return StatusPermanentFailure
		}
		resp, err := f.client.Do(req)
		if err != nil {
			f.lg.Errorf("%s: %v", pageURL, err)
			return StatusTransientFailure
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			f.lg.Errorf("%s: HTTP status code %d", pageURL, resp.StatusCode)
			if resp.StatusCode >= 500 {
				return StatusTransientFailure
			}
			return StatusPermanentFailure
		}

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			f.lg.Errorf("%s: %v", pageURL, err)
			return StatusTransientFailure
		}
		body = string(b)
		return StatusSuccess
	})
	if !ok {
		return "", fmt.Errorf("%s: unable to fetch results page", pageURL)
	}

	f.cache.Add(pageURL, body)
	return body, nil
}

// Download fetches every referenced log into dir and writes an
// index.json recording what was stored. Individual failures are logged
// and leave a gap in the index; it is an error only if nothing at all
// could be downloaded.
func (f *Fetcher) Download(ctx context.Context, source string, refs []LogRef, dir string) (*Index, error) {
	if len(refs) == 0 {
		return nil, errors.New("no flight logs to download")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	if err := checkDiskSpace(dir, 1); err != nil {
		return nil, err
	}

	names := f.filenames(refs)
	stored := make([]string, len(refs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, ref := range refs {
		g.Go(func() error {
			f.lg.Infof("%s: downloading %s", ref.Competitor, ref.URL)
			if f.withBackoff(func() Status { return f.downloadToFile(ctx, ref.URL, filepath.Join(dir, names[i])) }) {
				stored[i] = names[i]
			} else {
				f.lg.Errorf("%s: unable to download flight log; skipping", ref.Competitor)
			}
			return nil
		})
	}
	g.Wait()

	idx := NewIndex(source)
	n := 0
	for i, ref := range refs {
		if stored[i] != "" {
			idx.Files.Set(ref.Competitor, stored[i])
			n++
		}
	}
	if n == 0 {
		return nil, fmt.Errorf("%s: no flight logs downloaded", source)
	}
	if err := WriteIndex(dir, idx); err != nil {
		return nil, err
	}

	f.lg.Infof("%s: downloaded %d of %d flight logs to %s", source, n, len(refs), dir)
	return idx, nil
}

// filenames maps competitor names to the files they will be stored
// under, deduplicating names that collide after sanitizing.
func (f *Fetcher) filenames(refs []LogRef) []string {
	ext := ".igc"
	if f.compress {
		ext += ".zst"
	}

	seen := make(map[string]int)
	names := make([]string, len(refs))
	for i, ref := range refs {
		name := sanitizeCompetitor(ref.Competitor)
		if n := seen[name]; n > 0 {
			names[i] = fmt.Sprintf("%s-%d%s", name, n+1, ext)
		} else {
			names[i] = name + ext
		}
		seen[name]++
	}
	return names
}

func sanitizeCompetitor(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, ":", "_")
	if name == "" {
		name = "unknown"
	}
	return name
}

func (f *Fetcher) downloadToFile(ctx context.Context, logURL, filename string) Status {
	req, err := http.NewRequestWithContext(ctx, "GET", logURL, nil)
	if err != nil {
		f.lg.Errorf("%s: %v", logURL, err)
		return StatusPermanentFailure
	}
	resp, err := f.client.Do(req)
	if err != nil {
		f.lg.Errorf("%s: %v", logURL, err)
		return StatusTransientFailure
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.lg.Errorf("%s: HTTP status code %d", logURL, resp.StatusCode)
		if resp.StatusCode >= 500 {
			return StatusTransientFailure
		}
		return StatusPermanentFailure
	}

	tmpFile := filename + ".tmp"
	fw, err := os.Create(tmpFile)
	if err != nil {
		f.lg.Errorf("%s: %v", tmpFile, err)
		return StatusPermanentFailure
	}

	if f.compress {
		zw, err := zstd.NewWriter(fw, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
		if err != nil {
			fw.Close()
			os.Remove(tmpFile)
			f.lg.Errorf("%s: %v", tmpFile, err)
			return StatusTransientFailure
		}

		if _, err = io.Copy(zw, resp.Body); err != nil {
			zw.Close()
			fw.Close()
			os.Remove(tmpFile)
			f.lg.Errorf("%s: %v", tmpFile, err)
			return StatusTransientFailure
		}

		if err = zw.Close(); err != nil {
			fw.Close()
			os.Remove(tmpFile)
			f.lg.Errorf("%s: %v", tmpFile, err)
			return StatusTransientFailure
		}
	} else {
		if _, err = io.Copy(fw, resp.Body); err != nil {
			fw.Close()
			os.Remove(tmpFile)
			f.lg.Errorf("%s: %v", tmpFile, err)
			return StatusTransientFailure
		}
	}

	if err := fw.Close(); err != nil {
		os.Remove(tmpFile)
		f.lg.Errorf("%s: %v", tmpFile, err)
		return StatusPermanentFailure
	}

	if err := os.Rename(tmpFile, filename); err != nil {
		os.Remove(tmpFile)
		f.lg.Errorf("%s -> %s: %v", tmpFile, filename, err)
		return StatusPermanentFailure
	}

	return StatusSuccess
}

func checkDiskSpace(path string, requiredGB int64) error {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return fmt.Errorf("failed to check disk space for %s: %w", path, err)
	}

	availableBytes := int64(stat.Bavail) * int64(stat.Bsize)
	requiredBytes := requiredGB * 1024 * 1024 * 1024

	if availableBytes < requiredBytes {
		return fmt.Errorf("insufficient disk space in %s: %.2f GB available, %d GB required",
			path, float64(availableBytes)/(1024*1024*1024), requiredGB)
	}

	return nil
}
