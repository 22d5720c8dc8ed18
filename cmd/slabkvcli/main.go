// Command slabkvcli is an interactive client for slabkvd.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chzyer/readline"
	"github.com/tuannm99/slabkv/server/slabkvwire"
)

// Client is a synchronous TCP client for slabkvd.
type Client struct {
	conn net.Conn
	mu   sync.Mutex
	id   atomic.Uint64
}

func Dial(addr string, timeout time.Duration) (*Client, error) {
	d := net.Dialer{Timeout: timeout}
	c, err := d.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: c}, nil
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) call(req slabkvwire.Request) (slabkvwire.Response, error) {
	req.ID = c.id.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := slabkvwire.WriteFrame(c.conn, req); err != nil {
		return slabkvwire.Response{}, err
	}
	var resp slabkvwire.Response
	if err := slabkvwire.ReadFrame(c.conn, &resp); err != nil {
		return slabkvwire.Response{}, err
	}
	if resp.ID != req.ID {
		return slabkvwire.Response{}, fmt.Errorf("slabkvcli: response id mismatch: got=%d want=%d", resp.ID, req.ID)
	}
	if resp.Error != "" {
		return slabkvwire.Response{}, errors.New(resp.Error)
	}
	return resp, nil
}

func (c *Client) Alloc(flags uint8, value []byte) (uint64, error) {
	resp, err := c.call(slabkvwire.Request{Op: slabkvwire.OpAlloc, Flags: flags, Value: value})
	if err != nil {
		return 0, err
	}
	return resp.Key, nil
}

func (c *Client) Free(key uint64) error {
	_, err := c.call(slabkvwire.Request{Op: slabkvwire.OpFree, Key: key})
	return err
}

func (c *Client) Get(key uint64) ([]byte, uint8, int, error) {
	resp, err := c.call(slabkvwire.Request{Op: slabkvwire.OpGet, Key: key})
	if err != nil {
		return nil, 0, 0, err
	}
	return resp.Value, resp.Flags, resp.Bucket, nil
}

func (c *Client) Set(key uint64, value []byte) error {
	_, err := c.call(slabkvwire.Request{Op: slabkvwire.OpSet, Key: key, Value: value})
	return err
}

// ---- History (own file) ----

type History struct {
	path  string
	lines []string
}

func NewHistory(path string) *History { return &History{path: path} }

func (h *History) Load(max int) error {
	if h.path == "" {
		return nil
	}
	f, err := os.Open(h.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" {
			continue
		}
		h.lines = append(h.lines, s)
		if max > 0 && len(h.lines) > max {
			h.lines = h.lines[len(h.lines)-max:]
		}
	}
	return sc.Err()
}

func (h *History) Append(line string) error {
	line = strings.TrimSpace(line)
	if line == "" || h.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprintln(f, line); err != nil {
		return err
	}
	h.lines = append(h.lines, line)
	return nil
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".slabkv_history"
	}
	return filepath.Join(home, ".slabkv_history")
}

// ---- command dispatch ----

func runCommand(cli *Client, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	switch strings.ToLower(fields[0]) {
	case "alloc":
		if len(fields) < 3 {
			fmt.Println("usage: alloc <flags> <value>")
			return
		}
		flags, err := strconv.ParseUint(fields[1], 10, 8)
		if err != nil {
			fmt.Printf("bad flags: %v\n", err)
			return
		}
		value := strings.Join(fields[2:], " ")
		key, err := cli.Alloc(uint8(flags), []byte(value))
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Printf("key: %d\n", key)

	case "get":
		if len(fields) != 2 {
			fmt.Println("usage: get <key>")
			return
		}
		key, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			fmt.Printf("bad key: %v\n", err)
			return
		}
		value, flags, bucket, err := cli.Get(key)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Printf("flags=%d bucket=%d value=%q\n", flags, bucket, value)

	case "set":
		if len(fields) < 3 {
			fmt.Println("usage: set <key> <value>")
			return
		}
		key, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			fmt.Printf("bad key: %v\n", err)
			return
		}
		value := strings.Join(fields[2:], " ")
		if err := cli.Set(key, []byte(value)); err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Println("OK")

	case "free":
		if len(fields) != 2 {
			fmt.Println("usage: free <key>")
			return
		}
		key, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			fmt.Printf("bad key: %v\n", err)
			return
		}
		if err := cli.Free(key); err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Println("OK")

	default:
		fmt.Printf("unknown command %q (try alloc, get, set, free)\n", fields[0])
	}
}

func main() {
	var (
		addr     = flag.String("addr", "127.0.0.1:8866", "server address")
		timeout  = flag.Duration("timeout", 3*time.Second, "dial timeout")
		histPath = flag.String("history", defaultHistoryPath(), "history file path")
		histMax  = flag.Int("history-max", 2000, "max history lines loaded into memory")
		oneShot  = flag.String("c", "", "run one command and exit")
	)
	flag.Parse()

	cli, err := Dial(*addr, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = cli.Close() }()

	if strings.TrimSpace(*oneShot) != "" {
		runCommand(cli, *oneShot)
		return
	}

	h := NewHistory(*histPath)
	_ = h.Load(*histMax)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "slabkv> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "readline: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = rl.Close() }()

	for _, line := range h.lines {
		_ = rl.SaveHistory(line)
	}

	fmt.Printf("connected to %s\n", *addr)
	fmt.Println("commands: alloc <flags> <value> | get <key> | set <key> <value> | free <key> | quit")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}

		runCommand(cli, line)
		_ = h.Append(line)
	}
}
