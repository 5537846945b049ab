// Command thor performs a single HTTP/1.1 exchange using the engine in
// this repository, printing the response to stdout. It exists to exercise
// the public client/exchange API end to end, the way the original
// library's test_client helper did.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sebastien/thor/client"
	"github.com/sebastien/thor/internal/config"
	"github.com/sebastien/thor/internal/logger"
	"github.com/sebastien/thor/internal/version"
	"github.com/sebastien/thor/loop"
	"github.com/sebastien/thor/pkg/container"
	"github.com/sebastien/thor/pkg/eventbus"
	"github.com/sebastien/thor/pkg/format"
	"github.com/sebastien/thor/pkg/nerdstats"
	"github.com/sebastien/thor/pkg/profiler"
	"github.com/sebastien/thor/wire"
)

func main() {
	startTime := time.Now()
	vlog := log.New(log.Writer(), "", 0)

	method := flag.String("method", "GET", "HTTP method to use")
	url := flag.String("url", "", "target URL (http only)")
	body := flag.String("body", "", "request body, if any")
	header := flag.String("header", "", "extra request header as Name:Value")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		version.PrintVersionInfo(true, vlog)
		os.Exit(0)
	}
	version.PrintVersionInfo(false, vlog)

	if *url == "" {
		fmt.Fprintln(os.Stderr, "usage: thor -url http://host:port/path [-method GET] [-body ...]")
		os.Exit(2)
	}

	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logInstance, styledLogger, cleanup, err := logger.NewWithTheme(&logger.Config{
		Level:      cfg.Logging.Level,
		Theme:      cfg.Logging.Theme,
		PrettyLogs: cfg.Logging.Format != "json",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()
	slog.SetDefault(logInstance)

	if cfg.Engineering.Profile {
		profiler.InitialiseProfiler()
	}
	if container.IsContainerised() {
		styledLogger.Debug("running inside a container")
	}

	l := loop.New()
	defer l.Stop()

	events := eventbus.New[client.Event]()
	defer events.Shutdown()

	c := client.New(l, client.Config{
		IdleTimeout:       cfg.Client.IdleTimeout,
		ConnectTimeout:    cfg.Client.ConnectTimeout,
		ReadTimeout:       cfg.Client.ReadTimeout,
		RetryLimit:        cfg.Client.RetryLimit,
		RetryDelay:        cfg.Client.RetryDelay,
		CircuitThreshold:  cfg.Client.CircuitThreshold,
		CircuitResetAfter: cfg.Client.CircuitResetAfter,
	}, events)

	var hdrs []wire.Header
	if *header != "" {
		if name, value, ok := strings.Cut(*header, ":"); ok {
			hdrs = append(hdrs, wire.Header{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
		}
	}
	if *body != "" {
		hdrs = append(hdrs, wire.Header{Name: "Content-Length", Value: fmt.Sprintf("%d", len(*body))})
	}

	sink := newCLISink(styledLogger)

	exch := c.Exchange(sink)
	exch.RequestStart(*method, *url, hdrs)
	if *body != "" {
		exch.RequestBody([]byte(*body))
	}
	exch.RequestDone(nil)

	sink.wait()

	if cfg.Engineering.ShowNerdStats {
		reportProcessStats(styledLogger, startTime)
	}

	if sink.failed {
		os.Exit(1)
	}
}

// cliSink adapts exchange.Sink to stdout/log output for the CLI.
type cliSink struct {
	log    logger.StyledLogger
	done   chan struct{}
	once   sync.Once
	failed bool
}

func newCLISink(log logger.StyledLogger) *cliSink {
	return &cliSink{log: log, done: make(chan struct{})}
}

func (s *cliSink) ResponseStart(code int, phrase string, hdrs []wire.Header) {
	s.log.InfoWithStatus("response started", code, "phrase", phrase)
	fmt.Printf("HTTP %d %s\n", code, phrase)
	for _, h := range hdrs {
		fmt.Printf("%s: %s\n", h.Name, h.Value)
	}
	fmt.Println()
}

func (s *cliSink) ResponseBody(chunk []byte) {
	os.Stdout.Write(chunk)
}

func (s *cliSink) ResponseDone(trailers []wire.Header) {
	fmt.Println()
	s.finish(false)
}

func (s *cliSink) Error(err error) {
	s.log.ErrorWithTarget("exchange failed", err.Error())
	s.failed = true
	s.finish(true)
}

func (s *cliSink) Pause(paused bool) {}

func (s *cliSink) finish(failed bool) {
	s.once.Do(func() { close(s.done) })
}

func (s *cliSink) wait() {
	<-s.done
}

func reportProcessStats(log logger.StyledLogger, startTime time.Time) {
	runtime.GC()
	stats := nerdstats.Snapshot(startTime)

	log.Info("process memory",
		"heap_alloc", format.Bytes(stats.HeapAlloc),
		"heap_sys", format.Bytes(stats.HeapSys),
		"memory_pressure", stats.GetMemoryPressure(),
	)
	log.Info("goroutines",
		"num_goroutines", stats.NumGoroutines,
		"goroutine_health", stats.GetGoroutineHealthStatus(),
	)
	log.Info("runtime",
		"uptime", format.Duration(stats.Uptime),
		"go_version", stats.GoVersion,
		"num_cpu", stats.NumCPU,
	)
}
