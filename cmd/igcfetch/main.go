// cmd/igcfetch/main.go
// Copyright(c) 2024-2026 gaggle contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// igcfetch downloads the flight logs for a contest day so they can be
// fed to gaggle: point it at a day's results page (or a contest/day via
// the JSON API) and it scrapes the per-competitor IGC links, downloads
// them concurrently, and writes an index.json recording what came from
// where. Downloaded directories can be mirrored to and restored from
// cloud storage for sharing within a team.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mmp/gaggle/fetch"
	"github.com/mmp/gaggle/log"
	"github.com/pkg/browser"
)

var (
	logLevel = flag.String("lglevel", "info", "logging level: debug, info, warn, error")
	logDir   = flag.String("logdir", "", "log file directory; empty uses the user config directory")

	outDir   = flag.String("dir", ".", "directory downloaded logs are written to")
	compress = flag.Bool("compress", false, "store logs zstd-compressed (.igc.zst)")
	openPage = flag.Bool("open", false, "open the results page in a browser and exit")
	apiDay   = flag.String("api", "",
		"fetch contest-id/day via the JSON API instead of scraping (needs GAGGLE_CONTEST_CREDENTIALS)")
	mirror = flag.String("mirror", "",
		"after downloading, copy logs to gs://bucket/prefix, s3://bucket/prefix, or a directory")
	restore   = flag.String("restore", "", "copy logs back from a mirror into -dir and exit")
	showIndex = flag.Bool("index", false, "print -dir's download index and exit")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: igcfetch [options] <contest day results URL>\n")
	fmt.Fprintf(os.Stderr, "       igcfetch [options] -api <contest-id/day>\n")
	fmt.Fprintf(os.Stderr, "       igcfetch [-dir <dir>] -restore <mirror> | -index\n")
	flag.PrintDefaults()
	os.Exit(1)
}

func main() {
	flag.Parse()

	lg := log.New(*logLevel, *logDir)
	defer lg.CatchAndReportCrash()

	if *showIndex {
		idx, err := fetch.ReadIndex(*outDir)
		if err != nil {
			lg.Errorf("%s: %v", *outDir, err)
			os.Exit(1)
		}
		fmt.Printf("%s\nfetched %s\n", idx.Source, idx.Fetched.Format(time.RFC1123))
		for _, k := range idx.Files.Keys() {
			v, _ := idx.Files.Get(k)
			fmt.Printf("  %-28s %v\n", k, v)
		}
		return
	}

	if *restore != "" {
		sb, prefix, err := fetch.MakeStorageBackend(*restore)
		if err != nil {
			lg.Errorf("%s: %v", *restore, err)
			os.Exit(1)
		}
		defer sb.Close()
		n, err := fetch.Restore(sb, prefix, *outDir, lg)
		if err != nil {
			lg.Errorf("restore: %v", err)
			os.Exit(1)
		}
		fmt.Printf("restored %d flight logs to %s\n", n, *outDir)
		return
	}

	ctx := context.Background()

	var f *fetch.Fetcher
	var refs []fetch.LogRef
	var source string
	var err error

	if *apiDay != "" {
		contest, day, ok := strings.Cut(*apiDay, "/")
		if !ok || contest == "" || day == "" {
			usage()
		}
		creds, err := apiCredentials()
		if err != nil {
			lg.Errorf("%v", err)
			os.Exit(1)
		}
		f, err = fetch.New(fetch.Options{Compress: *compress, Credentials: creds}, lg)
		if err != nil {
			lg.Errorf("%v", err)
			os.Exit(1)
		}
		refs, err = f.ContestDayAPI(ctx, contest, day)
		if err != nil {
			lg.Errorf("%s: %v", *apiDay, err)
			os.Exit(1)
		}
		source = fetch.DefaultSite + "/api/v1/contests/" + contest + "/days/" + day
	} else {
		if flag.NArg() != 1 {
			usage()
		}
		dayURL := flag.Arg(0)

		if *openPage {
			if err := browser.OpenURL(dayURL); err != nil {
				lg.Errorf("%s: %v", dayURL, err)
				os.Exit(1)
			}
			return
		}

		// Relative IGC links on the page resolve against the page's
		// own site, not the default one.
		u, err := url.Parse(dayURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			lg.Errorf("%s: not an absolute URL", dayURL)
			os.Exit(1)
		}
		f, err = fetch.New(fetch.Options{Site: u.Scheme + "://" + u.Host, Compress: *compress}, lg)
		if err != nil {
			lg.Errorf("%v", err)
			os.Exit(1)
		}

		refs, err = f.DayLogs(ctx, dayURL)
		if err != nil {
			lg.Errorf("%s: %v", dayURL, err)
			os.Exit(1)
		}
		source = dayURL
	}

	if len(refs) == 0 {
		lg.Errorf("%s: no flight logs found", source)
		os.Exit(1)
	}
	fmt.Printf("found %d flight logs\n", len(refs))

	idx, err := f.Download(ctx, source, refs, *outDir)
	if err != nil {
		lg.Errorf("download: %v", err)
		os.Exit(1)
	}
	fmt.Printf("downloaded %d of %d logs to %s\n", len(idx.Filenames()), len(refs), *outDir)

	if *mirror != "" {
		sb, prefix, err := fetch.MakeStorageBackend(*mirror)
		if err != nil {
			lg.Errorf("%s: %v", *mirror, err)
			os.Exit(1)
		}
		defer sb.Close()
		n, err := fetch.Mirror(sb, *outDir, prefix, lg)
		if err != nil {
			lg.Errorf("mirror: %v", err)
			os.Exit(1)
		}
		fmt.Printf("mirrored %d files to %s\n", n, *mirror)
	}
}

// apiCredentials reads GAGGLE_CONTEST_CREDENTIALS, formatted as
// client-id:client-secret with an optional third :token-url field for
// sites that host their token endpoint elsewhere.
func apiCredentials() (*fetch.APICredentials, error) {
	v := os.Getenv("GAGGLE_CONTEST_CREDENTIALS")
	if v == "" {
		return nil, fmt.Errorf("GAGGLE_CONTEST_CREDENTIALS environment variable not set " +
			"(want client-id:client-secret[:token-url])")
	}
	parts := strings.SplitN(v, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("GAGGLE_CONTEST_CREDENTIALS: want client-id:client-secret[:token-url]")
	}
	creds := &fetch.APICredentials{ClientID: parts[0], ClientSecret: parts[1]}
	if len(parts) == 3 {
		creds.TokenURL = parts[2]
	}
	return creds, nil
}
