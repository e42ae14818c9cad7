// Command disposable-refresher periodically fetches the disposable-email-
// domain list and swaps it into a disposable.Set held by this process:
// build a new generation, then publish it atomically so readers never see
// a partial set. The set lives only in this process; it is not shared with
// the email validator in cmd/orbicheckd, which seeds its own set once at
// startup.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/orbicheck/orbicheck/internal/disposable"
)

const (
	httpTimeout      = 30 * time.Second
	maxBodyBytes     = 8 << 20
	defaultInterval  = 1 * time.Hour
	retryMaxAttempts = 3
)

func main() {
	listURL := strings.TrimSpace(os.Getenv("DISPOSABLE_LIST_URL"))
	if listURL == "" {
		fmt.Fprintln(os.Stderr, "missing DISPOSABLE_LIST_URL")
		os.Exit(1)
	}

	refresherID := strings.TrimSpace(os.Getenv("REFRESHER_ID"))
	if refresherID == "" {
		refresherID = mustUUIDv4()
	}

	interval := defaultInterval
	if v := strings.TrimSpace(os.Getenv("REFRESH_INTERVAL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			interval = d
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logLine("WARN", refresherID, "shutdown_signal_received")
		cancel()
	}()

	set := disposable.NewSet()

	if err := refresh(ctx, set, listURL); err != nil {
		logLine("WARN", refresherID, "initial_refresh_failed err=%s", err.Error())
	} else {
		logLine("INFO", refresherID, "initial_refresh_ok members=%d", set.Size())
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logLine("INFO", refresherID, "shutdown_complete")
			return
		case <-ticker.C:
			if err := refresh(ctx, set, listURL); err != nil {
				logLine("WARN", refresherID, "refresh_failed err=%s", err.Error())
				continue
			}
			logLine("INFO", refresherID, "refresh_ok members=%d", set.Size())
		}
	}
}

// refresh fetches the disposable-domain list, builds a new generation, and
// swaps it into set. The currently active generation stays visible to
// readers for the entire fetch+build window.
func refresh(ctx context.Context, set *disposable.Set, listURL string) error {
	domains, err := fetchDisposableList(ctx, listURL)
	if err != nil {
		return err
	}

	b := disposable.NewBuilder()
	for _, d := range domains {
		b.Add(normalizeDomain(d))
	}
	if b.Len() == 0 {
		return fmt.Errorf("disposable_list_empty url=%s", safeHost(listURL))
	}
	set.Swap(b)
	return nil
}

func normalizeDomain(s string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), ".")
}

func mustUUIDv4() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	s := hex.EncodeToString(b[:])
	return fmt.Sprintf("%s-%s-%s-%s-%s", s[0:8], s[8:12], s[12:16], s[16:20], s[20:32])
}

func logLine(level, refresherID, format string, args ...any) {
	ts := time.Now().UTC().Format(time.RFC3339)
	msg := fmt.Sprintf(format, args...)
	fmt.Printf("%s %s refresher_id=%s %s\n", ts, level, refresherID, msg)
}
