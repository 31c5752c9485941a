// Command pyjamaz optimizes a single image against a size budget and/or a
// perceptual ceiling.
//
// Usage:
//
//	pyjamaz [flags] <input> [output]
//
// Examples:
//
//	pyjamaz photo.jpg out.jpg
//	pyjamaz -max-bytes 100KB photo.png out.webp
//	pyjamaz -max-diff 0.02 -formats avif,webp photo.jpg out.avif
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pyjamaz/pyjamaz"
)

func main() {
	var (
		maxBytesStr string
		maxDiff     float64
		metricName  string
		formatsStr  string
		concurrency int
		noCache     bool
	)

	flag.StringVar(&maxBytesStr, "max-bytes", "", "Size budget (e.g. 100KB, 2MB); unset means no budget")
	flag.Float64Var(&maxDiff, "max-diff", 0, "Perceptual ceiling on [0,1]; 0 means no ceiling")
	flag.StringVar(&metricName, "metric", "none", "Perceptual metric: none|dssim|ssimulacra2")
	flag.StringVar(&formatsStr, "formats", "avif,webp,jpeg,png", "Comma-separated candidate formats")
	flag.IntVar(&concurrency, "concurrency", 4, "Max concurrent candidate encodes")
	flag.BoolVar(&noCache, "no-cache", false, "Disable the on-disk result cache")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: pyjamaz [flags] <input> [output]")
		flag.PrintDefaults()
		os.Exit(1)
	}
	input := args[0]

	data, err := os.ReadFile(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	opts := []pyjamaz.JobOption{pyjamaz.WithConcurrency(concurrency)}

	if maxBytesStr != "" {
		n, err := parseSize(maxBytesStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid max-bytes %q: %v\n", maxBytesStr, err)
			os.Exit(1)
		}
		opts = append(opts, pyjamaz.WithMaxBytes(uint64(n)))
	}
	if maxDiff > 0 {
		opts = append(opts, pyjamaz.WithMaxDiff(maxDiff))
	}

	metric, err := parseMetric(metricName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	opts = append(opts, pyjamaz.WithMetric(metric))

	formats, err := parseFormats(formatsStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	opts = append(opts, pyjamaz.WithFormats(formats...))

	if !noCache {
		cache, err := pyjamaz.OpenCache(pyjamaz.DefaultCacheConfig())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cache unavailable: %v\n", err)
		} else {
			opts = append(opts, pyjamaz.WithCache(cache))
		}
	}

	result, err := pyjamaz.OptimizeBuffer(context.Background(), data, opts...)
	if err != nil {
		if pe, ok := err.(*pyjamaz.Error); ok {
			fmt.Fprintf(os.Stderr, "Error: %v\n", pe)
			os.Exit(pe.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	if !result.Success {
		fmt.Fprintln(os.Stderr, "no candidate met the given constraints")
		os.Exit(result.ExitCode())
	}

	output := ""
	if len(args) >= 2 {
		output = args[1]
	} else {
		output = input + ".out." + result.Selected.Format.Ext()
	}
	if err := os.WriteFile(output, result.Selected.Encoded, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", output, err)
		os.Exit(1)
	}

	fmt.Printf("%s: %d -> %d bytes (%s, quality %d, diff %.4f)\n",
		output, len(data), result.Selected.FileSize, result.Selected.Format,
		result.Selected.Quality, result.Selected.DiffScore)
}

func parseMetric(s string) (pyjamaz.MetricKind, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return pyjamaz.MetricNone, nil
	case "dssim":
		return pyjamaz.MetricDSSIM, nil
	case "ssimulacra2":
		return pyjamaz.MetricSSIMULACRA2, nil
	default:
		return pyjamaz.MetricNone, fmt.Errorf("unknown metric %q", s)
	}
}

func parseFormats(s string) ([]pyjamaz.Format, error) {
	var out []pyjamaz.Format
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		switch part {
		case "jpeg", "jpg":
			out = append(out, pyjamaz.JPEG)
		case "png":
			out = append(out, pyjamaz.PNG)
		case "webp":
			out = append(out, pyjamaz.WebP)
		case "avif":
			out = append(out, pyjamaz.AVIF)
		default:
			return nil, fmt.Errorf("unknown format %q", part)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no formats given")
	}
	return out, nil
}

func parseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		s = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		s = strings.TrimSuffix(s, "B")
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	return int64(n * float64(multiplier)), nil
}
