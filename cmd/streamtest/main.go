// streamtest connects to a depth stream and prints each frame to the console
// without maintaining a book.
// Usage: go run ./cmd/streamtest --url wss://stream.binance.com:9443/ws/bnbbtc@depth
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/depthbook/internal/config"
	"github.com/rickgao/depthbook/internal/connection"
	"github.com/rickgao/depthbook/internal/depth"
)

func main() {
	url := flag.String("url", config.DefaultStreamURL, "depth stream URL")
	verbose := flag.Bool("verbose", false, "print full text payloads")
	limit := flag.Int("n", 0, "stop after n frames (0 = until interrupted)")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	cfg := connection.DefaultClientConfig()
	cfg.URL = *url
	client, err := connection.Dial(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect", "url", *url, "error", err)
		os.Exit(1)
	}
	defer client.Close()
	context.AfterFunc(ctx, func() { client.Close() })

	// Control frames are read inside ReadFrame; print them and answer pings.
	client.SetControlHandler(func(f connection.Frame) error {
		fmt.Printf("[%s] %s %d bytes\n", f.ReceivedAt.Format(time.TimeOnly), f.Kind, len(f.Payload))
		if f.Kind == connection.FramePing {
			return client.WriteFrame(connection.Frame{Kind: connection.FramePong, Payload: f.Payload})
		}
		return nil
	})

	logger.Info("streaming started - press Ctrl+C to stop", "url", *url)

	for n := 0; *limit == 0 || n < *limit; n++ {
		f, err := client.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("read failed", "error", err)
				os.Exit(1)
			}
			break
		}
		printFrame(f, *verbose)
		if f.Kind == connection.FrameClose {
			break
		}
	}

	logger.Info("shutdown complete")
}

func printFrame(f connection.Frame, verbose bool) {
	ts := f.ReceivedAt.Format(time.TimeOnly)
	if f.Kind != connection.FrameText {
		fmt.Printf("[%s] %s %d bytes\n", ts, f.Kind, len(f.Payload))
		return
	}

	msg, err := depth.Parse(f.Payload)
	if err != nil {
		fmt.Printf("[%s] text MALFORMED %v\n", ts, err)
		return
	}
	bids, _ := msg.Entries(depth.KeyBids)
	asks, _ := msg.Entries(depth.KeyAsks)
	fmt.Printf("[%s] %s %s U=%d u=%d bids=%d asks=%d\n",
		ts, msg.EventType(), msg.Symbol(), msg.FirstUpdateID(), msg.FinalUpdateID(), len(bids), len(asks))
	if verbose {
		fmt.Printf("%s\n", f.Payload)
	}
}
