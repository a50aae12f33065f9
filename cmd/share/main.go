// Command share ingests a single shared post or media file into the same
// database and media directory the server uses.
//
//	share https://x.com/someone/status/1933136925198545287
//	echo "look at this https://x.com/..." | share
//	share -action send_multiple ./a.jpg ./b.png
//	share -sweep authors
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/iconidentify/xstash/internal/app"
	"github.com/iconidentify/xstash/internal/config"
	"github.com/iconidentify/xstash/internal/domain"
)

const (
	exitSaved   = 0
	exitFailed  = 1
	exitSkipped = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Path to config file")
	action := flag.String("action", "", "Share action: send or send_multiple (default: send, or send_multiple for several files)")
	mimeType := flag.String("mime", "", "MIME type of shared files")
	sweep := flag.String("sweep", "", "Run a reconcile job (authors, expand, source, sync) instead of a share")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logger := newLogger(*debug)
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return exitFailed
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		return exitFailed
	}
	defer a.Close()

	if *sweep != "" {
		report, err := a.Reconcile.Run(ctx, *sweep)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Sweep failed: %v\n", err)
			return exitFailed
		}
		fmt.Printf("%s: scanned %d, updated %d, failed %d (%s)\n",
			report.Job, report.Scanned, report.Updated, report.Failed, report.Elapsed.Round(time.Millisecond))
		return exitSaved
	}

	ev, err := buildEvent(flag.Args(), *action, *mimeType, os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		flag.Usage()
		return exitFailed
	}

	outcome := a.Shares.Ingest(ctx, ev)
	fmt.Println(outcome.Message)

	switch outcome.Status {
	case domain.OutcomeSaved:
		return exitSaved
	case domain.OutcomeSkipped:
		return exitSkipped
	default:
		return exitFailed
	}
}

// newLogger logs human-readable text on an interactive stderr and JSON
// otherwise.
func newLogger(debug bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelWarn}
	if debug {
		opts.Level = slog.LevelDebug
	}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// buildEvent turns command-line arguments into a share event. Arguments that
// name existing files become streams; anything else is shared text. With no
// arguments, text is read from a piped stdin.
func buildEvent(args []string, action, mimeType string, stdin *os.File) (domain.ShareEvent, error) {
	ev := domain.ShareEvent{Action: domain.ShareAction(action), MimeType: mimeType}

	var streams, words []string
	for _, arg := range args {
		if isStream(arg) {
			streams = append(streams, arg)
		} else {
			words = append(words, arg)
		}
	}

	switch {
	case len(streams) > 0 && len(words) > 0:
		return ev, fmt.Errorf("cannot mix files and text in one share")
	case len(streams) > 0:
		ev.Streams = streams
		ev.LocalStreams = true
		if ev.Action == "" {
			ev.Action = domain.ShareActionSend
			if len(streams) > 1 {
				ev.Action = domain.ShareActionSendMultiple
			}
		}
	case len(words) > 0:
		ev.Text = strings.Join(words, " ")
	default:
		if stdin == nil || term.IsTerminal(int(stdin.Fd())) {
			return ev, fmt.Errorf("nothing to share: pass a URL, text or files")
		}
		data, err := io.ReadAll(io.LimitReader(stdin, 1<<20))
		if err != nil {
			return ev, fmt.Errorf("read stdin: %w", err)
		}
		ev.Text = strings.TrimSpace(string(data))
		if ev.Text == "" {
			return ev, fmt.Errorf("nothing to share: stdin was empty")
		}
	}

	if ev.Action == "" {
		ev.Action = domain.ShareActionSend
	}
	return ev, nil
}

func isStream(arg string) bool {
	if strings.HasPrefix(arg, "file://") {
		return true
	}
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return false
	}
	info, err := os.Stat(arg)
	return err == nil && !info.IsDir()
}
