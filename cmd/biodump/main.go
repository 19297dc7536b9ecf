// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// biodump prints the metadata of a microscopy image file and optionally
// converts it to Bio-Rad PIC.
//
// Usage:
//
//	biodump [-format name] [-json] [-planes] [-v] <file> [out.pic]
//
// Exit codes:
//
//	0: OK
//	1: The file could not be decoded or saved
//	2: Usage error
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bep/biodecode"
	"github.com/rs/zerolog"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type config struct {
	format string
	json   bool
	planes bool
	debug  bool
	file   string
	out    string
}

func run(args []string, stdout, stderr io.Writer) int {
	var cfg config
	fs := flag.NewFlagSet("biodump", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.format, "format", "", "file format, detected if not set ("+formatNames()+")")
	fs.BoolVar(&cfg.json, "json", false, "print JSON")
	fs.BoolVar(&cfg.planes, "planes", false, "decode all planes and print min/max/mean per channel")
	fs.BoolVar(&cfg.debug, "v", false, "verbose logging")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: biodump [options] <file> [out.pic]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fs.Usage()
		return 2
	}
	cfg.file = fs.Arg(0)
	cfg.out = fs.Arg(1)

	level := zerolog.InfoLevel
	if cfg.debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: stderr, NoColor: true}).
		Level(level).With().Timestamp().Str("file", cfg.file).Logger()

	format := biodecode.FormatAuto
	if cfg.format != "" {
		f, ok := parseFormat(cfg.format)
		if !ok {
			fmt.Fprintf(stderr, "unknown format %q, expected one of %s\n", cfg.format, formatNames())
			return 2
		}
		format = f
	}

	if err := dump(cfg, format, logger, stdout); err != nil {
		logger.Error().Err(err).Msg("failed")
		return 1
	}
	return 0
}

func dump(cfg config, format biodecode.Format, logger zerolog.Logger, w io.Writer) error {
	opts := biodecode.Options{
		Format: format,
		Warnf: func(format string, args ...any) {
			logger.Warn().Msgf(format, args...)
		},
		HandleTag: func(ti biodecode.TagInfo) error {
			logger.Debug().Str("tag", ti.Tag).Interface("value", ti.Value).Msg("tag")
			return nil
		},
	}

	r, err := biodecode.Open(cfg.file, opts)
	if err != nil {
		return err
	}
	defer r.Close()

	n, err := r.BlockCount()
	if err != nil {
		return err
	}
	meta, err := r.Metadata()
	if err != nil {
		return err
	}
	logger.Debug().Stringer("format", r.Format()).Int("blocks", n).Msg("opened")

	var planes []*biodecode.Plane
	if cfg.planes || cfg.out != "" {
		planes, err = r.OpenAll(context.Background())
		if err != nil {
			return err
		}
	}

	res := result{
		Format:   r.Format().String(),
		Blocks:   n,
		Metadata: meta,
	}
	if cfg.planes {
		for i, p := range planes {
			res.Planes = append(res.Planes, newPlaneStats(i, p))
		}
	}

	if cfg.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		res.print(w)
	}

	if cfg.out != "" {
		if err := biodecode.SaveFile(cfg.out, biodecode.BioRad, planes, meta); err != nil {
			return err
		}
		logger.Info().Str("out", cfg.out).Int("planes", len(planes)).Msg("saved")
	}
	return nil
}

type result struct {
	Format   string              `json:"format"`
	Blocks   int                 `json:"blocks"`
	Metadata *biodecode.Metadata `json:"metadata"`
	Planes   []planeStats        `json:"planes,omitempty"`
}

type planeStats struct {
	Index     int            `json:"index"`
	Width     int            `json:"width"`
	Height    int            `json:"height"`
	PixelType string         `json:"pixelType"`
	Channels  []channelStats `json:"channels"`
}

type channelStats struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

func newPlaneStats(i int, p *biodecode.Plane) planeStats {
	ps := planeStats{
		Index:     i,
		Width:     p.Width,
		Height:    p.Height,
		PixelType: p.PixelType.String(),
	}
	for c := range p.NumChannels() {
		lo, hi, mean := p.Stats(c)
		ps.Channels = append(ps.Channels, channelStats{Min: lo, Max: hi, Mean: mean})
	}
	return ps
}

func (r result) print(w io.Writer) {
	fmt.Fprintf(w, "Format: %s\n", r.Format)
	fmt.Fprintf(w, "Blocks: %d\n", r.Blocks)
	fmt.Fprintln(w, "Metadata:")
	r.Metadata.Range(func(key string, value any) bool {
		fmt.Fprintf(w, "  %s = %v\n", key, value)
		return true
	})
	fmt.Fprintln(w, "Attributes:")
	for _, entity := range r.Metadata.Entities() {
		for _, field := range r.Metadata.Fields(entity) {
			v, _ := r.Metadata.Attribute(entity, field)
			fmt.Fprintf(w, "  %s.%s = %s\n", entity, field, v)
		}
	}
	for _, p := range r.Planes {
		fmt.Fprintf(w, "Plane %d: %dx%d %s\n", p.Index, p.Width, p.Height, p.PixelType)
		for c, s := range p.Channels {
			fmt.Fprintf(w, "  channel %d: min %g max %g mean %g\n", c, s.Min, s.Max, s.Mean)
		}
	}
}

func parseFormat(s string) (biodecode.Format, bool) {
	for _, f := range biodecode.Formats() {
		if strings.EqualFold(f.String(), s) {
			return f, true
		}
	}
	return biodecode.FormatAuto, false
}

func formatNames() string {
	var names []string
	for _, f := range biodecode.Formats() {
		names = append(names, f.String())
	}
	return strings.Join(names, ", ")
}
