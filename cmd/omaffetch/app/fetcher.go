// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package app implements omaffetch, a batch downloader that resolves every
// segment the first Period of an MPD references and stores it to disk,
// grounded on dashfetcher's download loop but routed through pkg/mpdmodel
// so the same OMAF classification and segment template logic the live
// engine uses is exercised here too, rather than re-walking the raw
// dash-mpd tree a second time.
package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path"
	"strings"
	"time"

	"github.com/omafstream/viewport-engine/internal"
	"github.com/omafstream/viewport-engine/pkg/httpclient"
	"github.com/omafstream/viewport-engine/pkg/mpdmodel"
)

// Options configures a single batch-fetch run.
type Options struct {
	AssetURL   string
	OutDir     string
	LogFile    string
	LogFormat  string
	LogLevel   string
	MaxTimeS   int
	Version    bool
	Force      bool
	AutoOutDir bool
}

// Counts tallies the outcome of a fetch run.
type Counts struct {
	NrDownloaded int
	NrExisting   int
	NrErrors     int
}

func (c Counts) total() int { return c.NrDownloaded + c.NrExisting + c.NrErrors }

// Fetch downloads the MPD at o.AssetURL and every segment its first Period
// resolves to into o.OutDir, honouring o.MaxTimeS as an overall deadline and
// os.Interrupt as an early-cancel signal.
func Fetch(o *Options) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if o.MaxTimeS > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(o.MaxTimeS)*time.Second)
		defer cancel()
	}
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	go func() {
		<-signalChan
		cancel()
	}()
	if err := createDirIfNotExists(o.OutDir); err != nil {
		return fmt.Errorf("createDir: %w", err)
	}
	client := httpclient.NewNetHTTPClient()
	cnt, err := run(ctx, client, o)
	slog.Info("download results", "nrFiles", cnt.total(),
		"nrExisting", cnt.NrExisting,
		"nrDownloaded", cnt.NrDownloaded,
		"nrErrors", cnt.NrErrors)
	return err
}

func createDirIfNotExists(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func run(ctx context.Context, client httpclient.Client, o *Options) (Counts, error) {
	cnt := Counts{}
	parts := strings.Split(o.AssetURL, "/")
	mpdName := parts[len(parts)-1]
	var err error
	cnt, err = downloadMPDFile(ctx, client, o.AssetURL, o.OutDir, mpdName, cnt, o.Force)
	if err != nil {
		return cnt, err
	}
	mpdPath := path.Join(o.OutDir, mpdName)
	raw, err := os.ReadFile(mpdPath)
	if err != nil {
		return cnt, fmt.Errorf("read mpd: %w", err)
	}
	mpd, err := mpdmodel.Parse(raw)
	if err != nil {
		return cnt, fmt.Errorf("parse mpd: %w", err)
	}
	if mpd.Type == "dynamic" {
		return cnt, fmt.Errorf("dynamic MPD not supported by batch fetch")
	}
	if mpd.Period == nil {
		return cnt, fmt.Errorf("%w", mpdmodel.ErrNoPeriod)
	}
	baseURL := getBase(o.AssetURL)
	for _, as := range mpd.Period.AdaptationSets {
		for _, rep := range as.Representations {
			cnt, err = downloadRepresentation(ctx, client, rep, mpd.Period.Duration, baseURL, o.OutDir, cnt, o.Force)
			if err != nil {
				return cnt, err
			}
		}
	}
	return cnt, nil
}

func downloadRepresentation(ctx context.Context, client httpclient.Client, rep *mpdmodel.Representation,
	periodDur time.Duration, baseURL, outDir string, cnt Counts, force bool) (Counts, error) {
	st := rep.SegmentTemplate
	if st == nil {
		return cnt, fmt.Errorf("no SegmentTemplate for representation: %s", rep.ID)
	}
	initRel := st.InitURL(rep.ID, rep.Bandwidth)
	cnt = downloadAndCountRel(ctx, client, baseURL, initRel, outDir, cnt, force)

	switch {
	case st.UsesTimeline():
		var err error
		cnt, err = downloadTimeline(ctx, client, rep, st, baseURL, outDir, cnt, force)
		if err != nil {
			return cnt, err
		}
	case strings.Contains(st.Media, "$Number$"):
		var err error
		cnt, err = downloadByNumber(ctx, client, rep, st, periodDur, baseURL, outDir, cnt, force)
		if err != nil {
			return cnt, err
		}
	default:
		return cnt, fmt.Errorf("unsupported segment addressing for representation: %s", rep.ID)
	}
	return cnt, nil
}

func downloadTimeline(ctx context.Context, client httpclient.Client, rep *mpdmodel.Representation,
	st *mpdmodel.SegmentTemplate, baseURL, outDir string, cnt Counts, force bool) (Counts, error) {
	if !strings.Contains(st.Media, "$Time$") {
		slog.Warn("SegmentTimeline with $Number$ not yet supported", "representation", rep.ID)
		return cnt, nil
	}
	for _, entry := range st.Timeline {
		t := entry.StartTime
		rel := st.MediaURLByTime(rep.ID, rep.Bandwidth, t)
		cnt = downloadAndCountRel(ctx, client, baseURL, rel, outDir, cnt, force)
		for i := 0; i < entry.Repeat; i++ {
			t += entry.Duration
			rel = st.MediaURLByTime(rep.ID, rep.Bandwidth, t)
			cnt = downloadAndCountRel(ctx, client, baseURL, rel, outDir, cnt, force)
		}
	}
	return cnt, nil
}

func downloadByNumber(ctx context.Context, client httpclient.Client, rep *mpdmodel.Representation,
	st *mpdmodel.SegmentTemplate, periodDur time.Duration, baseURL, outDir string, cnt Counts, force bool) (Counts, error) {
	if st.DurationTicks == 0 {
		slog.Warn("segment duration not set", "representation", rep.ID)
		return cnt, nil
	}
	timeScale := st.Timescale
	if timeScale == 0 {
		timeScale = 1
	}
	totDurMS := uint32(periodDur.Milliseconds())
	nrSegments := totDurMS * timeScale / (st.DurationTicks * 1000)
	startNr := uint64(st.StartNumber)
	if startNr == 0 {
		startNr = 1
	}
	for n := startNr; n <= startNr+uint64(nrSegments); n++ { // one extra, rounding slack
		rel := st.MediaURLByNumber(rep.ID, rep.Bandwidth, n)
		cnt = downloadAndCountRel(ctx, client, baseURL, rel, outDir, cnt, force)
	}
	return cnt, nil
}

func downloadMPDFile(ctx context.Context, client httpclient.Client, mpdURL, outDir, mpdName string, cnt Counts, force bool) (Counts, error) {
	outPath := path.Join(outDir, mpdName)
	if fileExists(outPath) && !force {
		slog.Info("file already exists. Skipping", "path", outPath, "url", mpdURL)
		cnt.NrExisting++
		return cnt, nil
	}
	if err := downloadToFile(ctx, client, mpdURL, outPath); err != nil {
		cnt.NrErrors++
		return cnt, fmt.Errorf("download %s: %w", mpdURL, err)
	}
	if err := internal.WriteMPDData(outDir, mpdName, mpdURL); err != nil {
		slog.Warn("could not write mpdlist file", "error", err)
	}
	cnt.NrDownloaded++
	return cnt, nil
}

func downloadAndCountRel(ctx context.Context, client httpclient.Client, baseURL, rel, outDir string, cnt Counts, force bool) Counts {
	u := baseURL + rel
	p := path.Join(outDir, rel)
	if fileExists(p) && !force {
		cnt.NrExisting++
		slog.Info("file already exists. Skipping", "path", p, "url", u)
		return cnt
	}
	if err := downloadToFile(ctx, client, u, p); err != nil {
		cnt.NrErrors++
		slog.Warn("download file", "error", err)
		return cnt
	}
	cnt.NrDownloaded++
	return cnt
}

func getBase(u string) string {
	idx := strings.LastIndex(u, "/")
	if idx == -1 {
		return ""
	}
	return u[:idx+1]
}

// downloadToFile fetches url through the shared httpclient.Client and writes
// the body to outPath, creating parent directories as needed.
func downloadToFile(ctx context.Context, client httpclient.Client, u, outPath string) error {
	slog.Info("downloading", "url", u, "path", outPath)
	resp, err := client.Get(ctx, httpclient.Request{URL: u, RangeStartInc: -1, TimeoutMs: 30_000})
	if err != nil {
		return err
	}
	if resp.State != httpclient.StateCompleted {
		return fmt.Errorf("could not read %s: state %s", u, resp.State)
	}
	if resp.HTTPStatus >= 400 {
		return fmt.Errorf("could not read %s. Code %d", u, resp.HTTPStatus)
	}

	if err := createDirIfNotExists(getBase(outPath)); err != nil {
		return err
	}
	ofh, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer ofh.Close()
	if _, err := io.Copy(ofh, bytes.NewReader(resp.Body)); err != nil {
		return err
	}
	slog.Debug("stored", "path", outPath)
	return nil
}

// AutoDir adds part of MPD URL to outDir, trying to remove matching parts,
// grounded on dashfetcher.AutoDir unchanged.
func AutoDir(rawMPDurl, outDir string) (string, error) {
	u, err := url.Parse(rawMPDurl)
	if err != nil {
		return "", err
	}

	uParts := strings.Split(u.Path, "/")
	uBaseParts := uParts[1 : len(uParts)-1]
	outParts := strings.Split(outDir, "/")

	maxOutEnd := len(outParts) - 1
	minOutEnd := max(1, maxOutEnd-len(uBaseParts)+1)
	bestOutEnd := -1
	for outStart := maxOutEnd; outStart >= minOutEnd; outStart-- {
		match := true
		outRange := maxOutEnd + 1 - outStart
		if outRange > len(uBaseParts) {
			break
		}
		for i := range outRange {
			if outParts[outStart+i] != uBaseParts[i] {
				match = false
				break
			}
		}
		if match {
			bestOutEnd = outStart
		}
	}
	if bestOutEnd >= 0 {
		outParts = outParts[:bestOutEnd]
	}
	outPath := path.Join(strings.Join(outParts, "/"), strings.Join(uBaseParts, "/"))
	return outPath, nil
}
