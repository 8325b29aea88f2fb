// Command roomwatch joins a relay room from the terminal. Each stdin line
// replaces the shared buffer; "/cursor X Y" moves the local cursor to a
// normalized position.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/nameishyam/code-together/client"
	"github.com/nameishyam/code-together/domain"
	"github.com/nameishyam/code-together/wire"
)

const snapshotInterval = 5 * time.Second

var unitBox = client.Rect{Width: 1, Height: 1}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	url := flag.String("url", envOr("RELAY_URL", "ws://localhost:4000/ws"), "relay websocket URL")
	room := flag.String("room", "", "room key, e.g. <roomId>:<problemId>:editor")
	clientID := flag.String("client-id", uuid.NewString(), "identity announced to peers")
	color := flag.String("color", "", "cursor color")
	name := flag.String("name", "", "display name")
	codec := flag.String("codec", wire.JSON, "wire codec: json or msgpack")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *room == "" {
		fmt.Fprintln(os.Stderr, "roomwatch: -room is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	surface := client.NewTextSurface("")
	session, err := client.Dial(ctx, client.Options{
		URL:      *url,
		Room:     *room,
		ClientID: *clientID,
		Color:    *color,
		Name:     *name,
		Codec:    *codec,
		OnRemote: func(event, peer string) {
			slog.Info("remote", "event", event, "clientId", peer)
			if event == domain.EventCodeChange {
				fmt.Printf("--- buffer from %s ---\n%s\n", peer, surface.Value())
			}
		},
	}, surface)
	if err != nil {
		slog.Error("connect failed", "error", err)
		os.Exit(1)
	}
	slog.Info("joined", "room", *room, "clientId", *clientID, "codec", *codec)

	go readInput(ctx, session, surface)
	go printCursors(ctx, session)

	if err := session.Run(ctx); err != nil {
		slog.Error("session ended", "error", err)
		os.Exit(1)
	}
	slog.Info("left room", "room", *room)
}

func readInput(ctx context.Context, s *client.Session, surface *client.TextSurface) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if rest, ok := strings.CutPrefix(line, "/cursor "); ok {
			x, y, err := parsePoint(rest)
			if err != nil {
				slog.Warn("bad cursor command", "error", err)
				continue
			}
			s.MovePointer(x, y, unitBox)
			continue
		}
		surface.SetValue(line)
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("stdin closed", "error", err)
	}
}

func parsePoint(s string) (float64, float64, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("want two coordinates, got %d", len(fields))
	}
	x, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("x: %w", err)
	}
	y, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("y: %w", err)
	}
	return x, y, nil
}

func printCursors(ctx context.Context, s *client.Session) {
	t := time.NewTicker(snapshotInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			snap := s.Cursors.Snapshot()
			ids := make([]string, 0, len(snap))
			for id := range snap {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				c := snap[id]
				slog.Info("cursor", "clientId", id, "name", c.Name, "x", c.X, "y", c.Y, "color", c.Color)
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
