// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// wordcount counts the words read from stdin with a routed pipeline: one
// counter per distinct word behind an exact-key router, and a pool of sinks
// behind a range router.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"
	"github.com/juju/pubsub/v2"
	"github.com/juju/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/juju/streamrouter/core/routing"
	"github.com/juju/streamrouter/internal/apps/wordcount"
	"github.com/juju/streamrouter/internal/mailbox"
	"github.com/juju/streamrouter/internal/metrics"
)

var logger = loggo.GetLogger("streamrouter.wordcount")

type commandLineArgs struct {
	sinks           int
	threshold       int
	inboxSize       int
	deliveryTimeout time.Duration
	waitTimeout     time.Duration
	loggingConfig   string
	metricsAddr     string
}

func commandLine(args []string, stderr io.Writer) (commandLineArgs, error) {
	flags := gnuflag.NewFlagSet("wordcount", gnuflag.ContinueOnError)
	flags.SetOutput(stderr)

	var a commandLineArgs
	flags.IntVar(&a.sinks, "sinks", 2,
		"number of sink workers the counts are spread across")
	flags.IntVar(&a.threshold, "threshold", 1000,
		"count at which a counter reports early; 0 reports only on flush")
	flags.IntVar(&a.inboxSize, "inbox-size", mailbox.DefaultInboxSize,
		"buffer size of every inbox")
	flags.DurationVar(&a.deliveryTimeout, "delivery-timeout", 5*time.Second,
		"how long a delivery waits on a full inbox")
	flags.DurationVar(&a.waitTimeout, "wait-timeout", time.Minute,
		"how long to wait for the final counts")
	flags.StringVar(&a.loggingConfig, "logging-config", "<root>=WARNING",
		"loggo configuration string")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "",
		"serve prometheus metrics on this address while counting")

	if err := flags.Parse(true, args); err != nil {
		return a, errors.Trace(err)
	}
	if len(flags.Args()) > 0 {
		return a, errors.Errorf("unexpected arguments %q", flags.Args())
	}
	return a, nil
}

func setupLogging(stderr io.Writer, config string) error {
	writer := loggo.NewSimpleWriter(stderr, logFormatter)
	if _, err := loggo.ReplaceDefaultWriter(writer); err != nil {
		return errors.Trace(err)
	}
	return loggo.ConfigureLoggers(config)
}

func logFormatter(entry loggo.Entry) string {
	ts := entry.Timestamp.In(time.UTC).Format("2006-01-02 15:04:05")
	return fmt.Sprintf("%s %s %s %s", ts, entry.Level, entry.Module, entry.Message)
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "wordcount: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	a, err := commandLine(args, stderr)
	if err != nil {
		return errors.Trace(err)
	}
	if err := setupLogging(stderr, a.loggingConfig); err != nil {
		return errors.Annotate(err, "setting up logging")
	}

	directory, err := mailbox.NewDirectory(mailbox.Config{
		Clock:           clock.WallClock,
		DeliveryTimeout: a.deliveryTimeout,
		InboxSize:       a.inboxSize,
	})
	if err != nil {
		return errors.Trace(err)
	}

	hub := pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{
		Logger: loggo.GetLogger("streamrouter.hub"),
	})
	unsubscribe := hub.Subscribe(routing.UnhandledTopic, func(_ string, data any) {
		if report, ok := data.(routing.Unhandled); ok {
			logger.Warningf("%s could not handle %T from %q: %v",
				report.Router, report.Envelope.Message, report.Envelope.Sender, report.Reason)
		}
	})
	defer unsubscribe()

	collector := metrics.NewCollector()
	registry := prometheus.NewRegistry()
	if err := registry.Register(collector); err != nil {
		return errors.Trace(err)
	}
	if a.metricsAddr != "" {
		stop := serveMetrics(a.metricsAddr, registry)
		defer stop()
	}

	pipeline, err := wordcount.NewPipeline(wordcount.Config{
		Sinks:     a.sinks,
		Threshold: a.threshold,
		Directory: directory,
		Hub:       hub,
		Metrics:   collector,
		Logger:    loggo.GetLogger("streamrouter.pipeline"),
	})
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		pipeline.Kill()
		if err := pipeline.Wait(); err != nil {
			logger.Errorf("stopping pipeline: %v", err)
		}
	}()

	total, err := feed(pipeline, stdin)
	if err != nil {
		return errors.Trace(err)
	}
	if err := pipeline.Flush(nil); err != nil {
		return errors.Annotate(err, "flushing counters")
	}
	logger.Infof("sent %d words, waiting for counts", total)

	abort := make(chan struct{})
	timer := clock.WallClock.AfterFunc(a.waitTimeout, func() { close(abort) })
	defer timer.Stop()
	if err := pipeline.Tally().Wait(total, abort); err != nil {
		return errors.Annotate(err, "waiting for counts")
	}

	tally := pipeline.Tally()
	counts := tally.Counts()
	for _, word := range tally.Words() {
		fmt.Fprintf(stdout, "%s\t%d\n", word, counts[word])
	}
	return nil
}

// feed sends every word read from stdin to the pipeline. A word that times
// out on a full inbox is sent again.
func feed(pipeline *wordcount.Pipeline, stdin io.Reader) (int, error) {
	scanner := bufio.NewScanner(stdin)
	scanner.Split(bufio.ScanWords)
	total := 0
	for scanner.Scan() {
		word := scanner.Text()
		err := retry.Call(retry.CallArgs{
			Func: func() error {
				return pipeline.Send(word, nil)
			},
			IsFatalError: func(err error) bool {
				return !errors.Is(err, routing.ErrDeliveryTimeout)
			},
			NotifyFunc: func(err error, attempt int) {
				logger.Debugf("sending %q, attempt %d: %v", word, attempt, err)
			},
			Attempts: 5,
			Delay:    100 * time.Millisecond,
			Clock:    clock.WallClock,
		})
		if err != nil {
			return total, errors.Annotatef(retry.LastError(err), "sending word %d", total+1)
		}
		total++
	}
	return total, errors.Annotate(scanner.Err(), "reading words")
}

func serveMetrics(addr string, registry *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("serving metrics: %v", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}
