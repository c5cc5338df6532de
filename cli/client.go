package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	uiclient "github.com/zot/ui-data/lib/go"
)

const defaultServerURL = "http://127.0.0.1:8080"

// clientOptions are the flags shared by the client commands.
type clientOptions struct {
	url    string
	window uiclient.Window
	wait   time.Duration
	count  int
	args   []string
}

// parseClientArgs pulls the known flags out of args, leaving positional args.
func parseClientArgs(args []string) (*clientOptions, error) {
	opts := &clientOptions{
		url:  defaultServerURL,
		wait: 30 * time.Second,
	}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name := strings.TrimLeft(arg, "-")
		if name == arg || name == "" {
			opts.args = append(opts.args, arg)
			continue
		}
		if i+1 >= len(args) {
			return nil, fmt.Errorf("--%s requires a value", name)
		}
		i++
		value := args[i]
		switch name {
		case "url":
			opts.url = strings.TrimRight(value, "/")
		case "skip", "limit":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid --%s %q", name, value)
			}
			if name == "skip" {
				opts.window.Skip = &n
			} else {
				opts.window.Limit = &n
			}
		case "sort":
			opts.window.Sort = value
		case "filter":
			opts.window.Filter = value
		case "wait":
			d, err := time.ParseDuration(value)
			if err != nil {
				return nil, fmt.Errorf("invalid --wait %q: %w", value, err)
			}
			opts.wait = d
		case "count":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("invalid --count %q: %w", value, err)
			}
			opts.count = n
		default:
			return nil, fmt.Errorf("unknown option --%s", name)
		}
	}
	return opts, nil
}

func runClientCommand(command string, args []string) int {
	opts, err := parseClientArgs(args)
	if err == nil {
		c := uiclient.NewClient(opts.url)
		ctx := context.Background()
		switch command {
		case "stores":
			err = listStores(ctx, c)
		case "read":
			err = readStore(ctx, c, opts)
		case "write":
			err = writeStore(ctx, c, opts)
		case "search":
			err = searchStore(ctx, c, opts)
		case "poll":
			err = pollStore(ctx, c, opts)
		}
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func listStores(ctx context.Context, c *uiclient.Client) error {
	ids, err := c.Stores(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintln(stdout, id)
	}
	return nil
}

func readStore(ctx context.Context, c *uiclient.Client, opts *clientOptions) error {
	if len(opts.args) < 1 {
		return fmt.Errorf("read requires a store ID")
	}
	return printPage(c.Read(ctx, opts.args[0], opts.window))
}

func searchStore(ctx context.Context, c *uiclient.Client, opts *clientOptions) error {
	if len(opts.args) < 2 {
		return fmt.Errorf("search requires a store ID and a value")
	}
	return printPage(c.Search(ctx, opts.args[0], opts.args[1]))
}

func writeStore(ctx context.Context, c *uiclient.Client, opts *clientOptions) error {
	if len(opts.args) < 2 {
		return fmt.Errorf("write requires a store ID and JSON data")
	}
	if !json.Valid([]byte(opts.args[1])) {
		return fmt.Errorf("invalid JSON data")
	}
	return printPage(c.Write(ctx, opts.args[0], json.RawMessage(opts.args[1])))
}

// pollStore opens a long-poll feed and prints each frame as a JSON line.
// With --count it stops after that many frames.
func pollStore(ctx context.Context, c *uiclient.Client, opts *clientOptions) error {
	if len(opts.args) < 1 {
		return fmt.Errorf("poll requires a store ID")
	}
	feed, err := c.OpenPoll(ctx, opts.args[0])
	if err != nil {
		return err
	}
	defer feed.Close(ctx)

	seen := 0
	for opts.count == 0 || seen < opts.count {
		frames, err := feed.Next(ctx, opts.wait)
		if err != nil {
			return err
		}
		for _, f := range frames {
			data, err := json.Marshal(f)
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, string(data))
			seen++
			if opts.count > 0 && seen >= opts.count {
				break
			}
		}
	}
	return nil
}

func printPage(page *uiclient.Page, err error) error {
	if err != nil {
		return err
	}
	data, _ := json.MarshalIndent(page, "", "  ")
	fmt.Fprintln(stdout, string(data))
	return nil
}
