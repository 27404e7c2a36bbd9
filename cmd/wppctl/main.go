package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/matheus3301/wppbridge/internal/api"
	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/config"
	"github.com/matheus3301/wppbridge/internal/instance"
	"github.com/matheus3301/wppbridge/internal/lock"
	"github.com/matheus3301/wppbridge/internal/tui/client"
	"github.com/matheus3301/wppbridge/internal/wa"
	qrcode "github.com/skip2/go-qrcode"
)

func main() {
	instanceFlag := flag.String("instance", "", "instance id (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	layout := instance.DefaultLayout()
	_ = godotenv.Load(layout.EnvPath())
	cfg, err := config.LoadOrDefault(layout.ConfigPath())
	if err != nil {
		fail(err)
	}

	id := instance.Resolve(*instanceFlag, cfg)
	if err := instance.ValidateID(id); err != nil {
		fail(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c, err := client.New(cfg.HTTP.Listen, layout.SocketPath(id))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for instance %q: %v\n", id, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	// watch and qr run until interrupted.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, layout.Dir(id), *jsonFlag)
	case "health":
		cmdHealth(ctx, c)
	case "pending":
		cmdPending(ctx, c, *jsonFlag)
	case "sweep":
		cmdSweep(ctx, c, *jsonFlag)
	case "send":
		cmdSend(ctx, c, args[1:], *jsonFlag)
	case "watch":
		prefix := ""
		if len(args) > 1 {
			prefix = args[1]
		}
		cmdWatch(ctx, c, prefix)
	case "qr":
		cmdQR(ctx, c)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: wppctl [--instance <id>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                        Show instance status")
	fmt.Fprintln(os.Stderr, "  health                        gRPC health of the daemon")
	fmt.Fprintln(os.Stderr, "  pending                       List rows the backend has not acknowledged")
	fmt.Fprintln(os.Stderr, "  sweep                         Run a reconciliation pass now")
	fmt.Fprintln(os.Stderr, "  send <to> <text>              Send a text message")
	fmt.Fprintln(os.Stderr, "  send --file <path> <to> [cap] Send a file")
	fmt.Fprintln(os.Stderr, "  watch [prefix]                Stream events (message., session., sweep.)")
	fmt.Fprintln(os.Stderr, "  qr                            Pair by scanning QR codes in the terminal")
}

func timeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 10*time.Second)
}

func cmdStatus(ctx context.Context, c *client.Client, dir string, jsonOut bool) {
	ctx, cancel := timeout(ctx)
	defer cancel()

	st, err := c.Status(ctx)
	if err != nil {
		// The daemon may be down; the lock file still says who held it last.
		if owner, lerr := lock.Inspect(dir); lerr == nil {
			fmt.Fprintf(os.Stderr, "daemon not answering (lock held by pid %d since %s)\n", owner.PID, owner.Since.Format(time.RFC3339))
		}
		fail(err)
	}
	if jsonOut {
		outputJSON(st)
		return
	}
	fmt.Printf("Instance:   %s\n", st.Instance)
	fmt.Printf("State:      %s (since %s)\n", st.State, st.Since.Format(time.RFC3339))
	fmt.Printf("Queue:      %d\n", st.QueueDepth)
	fmt.Printf("Messages:   %d (%d unsynced)\n", st.Messages, st.Unsynced)
	if st.LastSweep != nil {
		fmt.Printf("Last sweep: %s, %d scanned, %d failed\n",
			st.LastSweep.StartedAt.Format(time.RFC3339), st.LastSweep.Scanned, st.LastSweep.Failed)
	}
	if st.BusDropped > 0 {
		fmt.Printf("Dropped events: %d\n", st.BusDropped)
	}
}

func cmdHealth(ctx context.Context, c *client.Client) {
	ctx, cancel := timeout(ctx)
	defer cancel()

	h, err := c.Health(ctx)
	if err != nil {
		fail(err)
	}
	fmt.Println(h.String())
	if h.String() != "SERVING" {
		os.Exit(2)
	}
}

func cmdPending(ctx context.Context, c *client.Client, jsonOut bool) {
	ctx, cancel := timeout(ctx)
	defer cancel()

	resp, err := c.Unsynced(ctx, 200)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	if resp.Total == 0 {
		fmt.Println("Nothing pending.")
		return
	}
	for _, m := range resp.Messages {
		what := "message"
		if m.SyncMessage {
			what = "status"
		}
		fmt.Printf("%-28s %-30s %-9s %s\n", m.MsgID, m.Counterparty, m.Status, what)
	}
	if int64(len(resp.Messages)) < resp.Total {
		fmt.Printf("... %d more\n", resp.Total-int64(len(resp.Messages)))
	}
}

func cmdSweep(ctx context.Context, c *client.Client, jsonOut bool) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	res, err := c.Sweep(ctx)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(res)
		return
	}
	fmt.Printf("Scanned %d: %d messages, %d statuses forwarded, %d failed (%s)\n",
		res.Scanned, res.Messages, res.Statuses, res.Failed, res.Duration)
}

func cmdSend(ctx context.Context, c *client.Client, args []string, jsonOut bool) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	file := fs.String("file", "", "file to send instead of text")
	quoted := fs.String("quote", "", "message id to reply to")
	_ = fs.Parse(args)
	rest := fs.Args()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	var (
		out any
		err error
	)
	switch {
	case *file != "" && len(rest) >= 1:
		out, err = c.SendFile(ctx, rest[0], *file, strings.Join(rest[1:], " "))
	case *file == "" && len(rest) >= 2:
		out, err = c.SendText(ctx, rest[0], strings.Join(rest[1:], " "), *quoted)
	default:
		fmt.Fprintln(os.Stderr, "usage: wppctl send [--quote <id>] <to> <text> | wppctl send --file <path> <to> [caption]")
		os.Exit(1)
	}
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(out)
		return
	}
	fmt.Println("Accepted.")
}

func cmdWatch(ctx context.Context, c *client.Client, prefix string) {
	err := c.Watch(ctx, prefix, func(f api.EventFrame) {
		fmt.Printf("%s %-24s %s\n", f.Timestamp.Format("15:04:05.000"), f.Kind, f.Payload)
	})
	if err != nil {
		fail(err)
	}
}

// cmdQR starts pairing and prints every code until the flow ends.
func cmdQR(ctx context.Context, c *client.Client) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Subscribe first so no code between POST /auth and the stream is missed.
	done := make(chan error, 1)
	go func() {
		done <- c.Watch(ctx, "session.", func(f api.EventFrame) {
			var evt wa.AuthEvent
			_ = json.Unmarshal(f.Payload, &evt)
			switch f.Kind {
			case bus.KindQRGenerated:
				printQR(evt.QRCode)
			case bus.KindAuthenticated:
				fmt.Println("Paired.")
				cancel()
			case bus.KindAuthFailed:
				fmt.Fprintf(os.Stderr, "pairing failed: %s\n", evt.Message)
				cancel()
			}
		})
	}()

	authCtx, authCancel := context.WithTimeout(ctx, 40*time.Second)
	first, err := c.Auth(authCtx)
	authCancel()
	var apiErr *client.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Status == 409:
		fmt.Println("Already paired.")
		return
	case err != nil:
		fail(err)
	case first.Type == wa.AuthEventQRCode:
		printQR(first.QRCode)
	}

	if err := <-done; err != nil && ctx.Err() == nil {
		fail(err)
	}
}

var (
	qrMu   sync.Mutex
	lastQR string
)

// printQR renders code unless it is the one already on screen; the first
// code can arrive both in the POST /auth answer and on the event stream.
func printQR(code string) {
	qrMu.Lock()
	defer qrMu.Unlock()
	if code == lastQR {
		return
	}
	lastQR = code

	qr, err := qrcode.New(code, qrcode.Low)
	if err != nil {
		fmt.Fprintf(os.Stderr, "render QR: %v\n", err)
		return
	}
	fmt.Println(qr.ToSmallString(false))
	fmt.Println("Scan with WhatsApp > Linked devices. Waiting...")
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
