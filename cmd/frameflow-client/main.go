// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/frameflow-dev/frameflow/internal/client"
	"github.com/frameflow-dev/frameflow/internal/logging"
)

func main() {
	host := flag.String("host", "localhost", "server host")
	port := flag.Int("port", 9090, "server protocol port")
	ipv4 := flag.Bool("ipv4", false, "force IPv4")
	ipv6 := flag.Bool("ipv6", false, "force IPv6")
	videoPath := flag.String("video", "", "video file to process (required)")
	processing := flag.String("processing", "blur", "filter to apply (blur, faces, edges, motion, custom)")
	outPath := flag.String("out", "output.mp4", "output path for the processed video")
	codec := flag.String("codec", "", "output codec (mp4v, avc1; default: server decides)")
	throttle := flag.Int64("throttle", 0, "upload rate limit in bytes/s (0 = unlimited)")
	kernel := flag.Int("kernel", 0, "blur kernel size (odd, blur filter only)")
	brightness := flag.Float64("brightness", 0, "brightness offset (custom filter only)")
	contrast := flag.Float64("contrast", 1, "contrast multiplier (custom filter only)")
	logLevel := flag.String("log-level", "warn", "log level (debug, info, warn, error)")
	quiet := flag.Bool("quiet", false, "suppress progress bar and summary")
	flag.Parse()

	if *videoPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --video is required")
		flag.Usage()
		os.Exit(1)
	}
	if *ipv4 && *ipv6 {
		fmt.Fprintln(os.Stderr, "Error: --ipv4 and --ipv6 are mutually exclusive")
		os.Exit(1)
	}

	family := "tcp"
	if *ipv4 {
		family = "tcp4"
	}
	if *ipv6 {
		family = "tcp6"
	}

	filters := map[string]any{}
	if *kernel != 0 {
		filters["kernel"] = *kernel
	}
	if *brightness != 0 {
		filters["brightness"] = *brightness
	}
	if *contrast != 1 {
		filters["contrast"] = *contrast
	}

	logger, logCloser := logging.NewLogger(*logLevel, "text", "")
	defer logCloser.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nInterrupted, aborting session")
		cancel()
	}()

	opts := client.Options{
		Host:        *host,
		Port:        *port,
		Family:      family,
		VideoPath:   *videoPath,
		OutputPath:  *outPath,
		Processing:  *processing,
		Filters:     filters,
		Codec:       *codec,
		ThrottleBps: *throttle,
	}
	if !*quiet {
		opts.Progress = os.Stdout
	}

	report, err := client.Run(ctx, opts, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if !*quiet {
		client.PrintSummary(os.Stdout, report)
	}
}
