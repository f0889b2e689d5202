// Package main provides the user CLI entry point for testing.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/ourtube/internal/api/connect"
	"github.com/osa030/ourtube/internal/app/notification"
)

var (
	app    = kingpin.New("ourtube-usercli", "ourtube user client for testing")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	tenant = app.Flag("tenant", "Tenant ID").Short('t').Envar("OURTUBE_TENANT").Required().String()
	user   = app.Flag("user", "User ID").Short('u').Envar("OURTUBE_USER").Default("cli").String()

	// enqueue command
	enqueueCmd     = app.Command("enqueue", "Queue a track (YouTube URL, Spotify link, or search text)").Alias("play")
	enqueueLocator = enqueueCmd.Arg("locator", "Track locator").Required().Strings()

	// skip command
	skipCmd = app.Command("skip", "Skip the playing track")

	// volume command
	volumeCmd   = app.Command("volume", "Set the volume (0-100)")
	volumeValue = volumeCmd.Arg("value", "Volume").Required().Float64()

	// resolve command
	resolveCmd     = app.Command("resolve", "Look up a track without queueing it")
	resolveLocator = resolveCmd.Arg("locator", "Track locator").Required().Strings()

	// queue command
	queueCmd = app.Command("queue", "Show the queue")

	// subscribe command
	subscribeCmd = app.Command("subscribe", "Subscribe to notifications")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := apiconnect.NewQueueClient(http.DefaultClient, *server)

	ctx := context.Background()

	// Execute command
	switch command {
	case enqueueCmd.FullCommand():
		enqueue(ctx, client, strings.Join(*enqueueLocator, " "))
	case skipCmd.FullCommand():
		skip(ctx, client)
	case volumeCmd.FullCommand():
		setVolume(ctx, client, *volumeValue)
	case resolveCmd.FullCommand():
		resolve(ctx, client, strings.Join(*resolveLocator, " "))
	case queueCmd.FullCommand():
		showQueue(ctx, client)
	case subscribeCmd.FullCommand():
		subscribe(ctx, client)
	}
}

func fail(err error) {
	fmt.Printf("Error: %v\n", err)
	os.Exit(1)
}

func enqueue(ctx context.Context, client *apiconnect.QueueClient, locator string) {
	resp, err := client.Enqueue(ctx, &apiconnect.EnqueueRequest{
		Tenant:  *tenant,
		User:    *user,
		Locator: locator,
	})
	if err != nil {
		fail(err)
	}

	if resp.Success {
		fmt.Printf("Success: %s\n", resp.Message)
		printEntry("  ", resp.Entry)
	} else {
		fmt.Printf("Rejected [%s]: %s\n", resp.Code, resp.Message)
	}
}

func skip(ctx context.Context, client *apiconnect.QueueClient) {
	resp, err := client.Skip(ctx, &apiconnect.SkipRequest{Tenant: *tenant, User: *user})
	if err != nil {
		fail(err)
	}
	fmt.Println(resp.Message)
}

func setVolume(ctx context.Context, client *apiconnect.QueueClient, v float64) {
	resp, err := client.SetVolume(ctx, &apiconnect.SetVolumeRequest{Tenant: *tenant, User: *user, Volume: v})
	if err != nil {
		fail(err)
	}
	if !resp.Success {
		fmt.Printf("Rejected [%s]: %s\n", resp.Code, resp.Message)
		return
	}
	if resp.Changed {
		fmt.Printf("Volume set to %g\n", resp.Volume)
	} else {
		fmt.Printf("Volume already %g\n", resp.Volume)
	}
}

func resolve(ctx context.Context, client *apiconnect.QueueClient, locator string) {
	resp, err := client.ResolveTrack(ctx, &apiconnect.ResolveTrackRequest{Locator: locator})
	if err != nil {
		fail(err)
	}
	t := resp.Track
	fmt.Printf("Track ID: %s\n", t.ID)
	fmt.Printf("Name: %s\n", t.Name)
	fmt.Printf("Artists: %s\n", strings.Join(t.Artists, ", "))
	fmt.Printf("Duration: %s\n", time.Duration(t.DurationMs)*time.Millisecond)
	fmt.Printf("Locator: %s\n", t.Locator)
}

func showQueue(ctx context.Context, client *apiconnect.QueueClient) {
	resp, err := client.GetQueue(ctx, &apiconnect.GetQueueRequest{Tenant: *tenant})
	if err != nil {
		fail(err)
	}
	if resp.Playing != nil {
		fmt.Println("Now playing:")
		printEntry("  ", resp.Playing)
	} else {
		fmt.Println("Nothing playing")
	}
	fmt.Printf("Queued (%d):\n", len(resp.Queued))
	for i := range resp.Queued {
		printEntry(fmt.Sprintf("  %2d. ", i+1), &resp.Queued[i])
	}
}

func subscribe(ctx context.Context, client *apiconnect.QueueClient) {
	stream, err := client.Subscribe(ctx, &apiconnect.SubscribeRequest{Tenant: *tenant})
	if err != nil {
		fail(err)
	}

	fmt.Println("Subscribed to notifications. Press Ctrl+C to exit.")

	// Handle shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nUnsubscribing...")
		os.Exit(0)
	}()

	// Receive notifications
	for stream.Receive() {
		printNotification(stream.Msg())
	}

	if err := stream.Err(); err != nil {
		fmt.Printf("Stream error: %v\n", err)
	}
}

func printEntry(prefix string, e *notification.Entry) {
	if e == nil {
		return
	}
	by := e.SubmitterName
	if by == "" {
		by = e.SubmitterID
	}
	fmt.Printf("%s%s - %s [%s] requested by %s\n", prefix,
		e.Name, strings.Join(e.Artists, ", "), time.Duration(e.DurationMs)*time.Millisecond, by)
}

func printNotification(n *notification.Notification) {
	fmt.Printf("\n[Sequence: %d] === %s ===\n", n.SequenceNo, strings.ToUpper(n.Type))

	switch n.Type {
	case notification.TypeSnapshot:
		if s := n.Snapshot; s != nil {
			fmt.Printf("  Channel: %s\n", s.ChannelID)
			fmt.Printf("  Volume: %g\n", s.Volume)
			if s.Playing != nil {
				printEntry("  Playing: ", s.Playing)
				fmt.Printf("  Progress: %.1f%%\n", s.Percent)
			}
			fmt.Printf("  Queued: %d\n", len(s.Queued))
			for i := range s.Queued {
				printEntry("    ", &s.Queued[i])
			}
		}
	case "progress_updated":
		fmt.Printf("  Progress: %.1f%%\n", n.Percent)
	case "volume_changed":
		fmt.Printf("  Volume: %g\n", n.Volume)
	case "channel_changed":
		fmt.Printf("  Channel: %s\n", n.ChannelID)
	default:
		printEntry("  ", n.Entry)
	}
}
