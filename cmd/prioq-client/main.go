// Command prioq-client talks to a prioq server's HTTP API.
//
// Usage:
//
//	prioq-client --op enqueue --priority high --count 10 --body "job"
//	prioq-client --op count [--priority low]
//	prioq-client --op clear [--priority default]
//	prioq-client --op genkey
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sungwon/prioq/internal/auth"
)

type config struct {
	addr     string
	key      string
	op       string
	priority string
	ttl      string
	delay    string
	body     string
	count    int
	rate     float64
	timeout  time.Duration
}

func parseFlags() config {
	var cfg config
	flag.StringVar(&cfg.addr, "addr", "http://localhost:8080", "server base URL")
	flag.StringVar(&cfg.key, "key", os.Getenv("PRIOQ_API_KEY"), "API key (defaults to $PRIOQ_API_KEY)")
	flag.StringVar(&cfg.op, "op", "enqueue", "operation: enqueue, count, clear, genkey")
	flag.StringVar(&cfg.priority, "priority", "", "priority level: low, default, high")
	flag.StringVar(&cfg.ttl, "ttl", "", "message time-to-live, e.g. 1h")
	flag.StringVar(&cfg.delay, "delay", "", "initial invisibility delay, e.g. 30s")
	flag.StringVar(&cfg.body, "body", "hello", "message body")
	flag.IntVar(&cfg.count, "count", 1, "number of messages to enqueue")
	flag.Float64Var(&cfg.rate, "rate", 0, "messages per second when count > 1 (0 = unlimited)")
	flag.DurationVar(&cfg.timeout, "timeout", 10*time.Second, "HTTP request timeout")
	flag.Parse()
	return cfg
}

func main() {
	cfg := parseFlags()
	client := &http.Client{Timeout: cfg.timeout}

	var err error
	switch cfg.op {
	case "enqueue":
		err = enqueue(client, cfg)
	case "count":
		err = show(client, cfg, http.MethodGet, "/api/v1/messages/count")
	case "clear":
		err = show(client, cfg, http.MethodDelete, "/api/v1/messages")
	case "genkey":
		err = genkey()
	default:
		fmt.Fprintf(os.Stderr, "error: unknown --op %q\n", cfg.op)
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func enqueue(client *http.Client, cfg config) error {
	interval := time.Duration(0)
	if cfg.count > 1 && cfg.rate > 0 {
		interval = time.Duration(float64(time.Second) / cfg.rate)
	}

	var failed int
	start := time.Now()
	for i := 0; i < cfg.count; i++ {
		if i > 0 && interval > 0 {
			time.Sleep(interval)
		}

		body := cfg.body
		if cfg.count > 1 {
			body = fmt.Sprintf("%s [%d/%d]", cfg.body, i+1, cfg.count)
		}

		status, resp, err := do(client, cfg, http.MethodPost, "/api/v1/messages", body)
		switch {
		case err != nil:
			failed++
			fmt.Printf("  [%d/%d] FAIL: %v\n", i+1, cfg.count, err)
		case status != http.StatusCreated:
			failed++
			fmt.Printf("  [%d/%d] FAIL (%d): %s\n", i+1, cfg.count, status, resp)
		default:
			fmt.Printf("  [%d/%d] OK   %s\n", i+1, cfg.count, resp)
		}
	}

	fmt.Printf("\nResults: %d sent, %d failed, total time %s\n", cfg.count-failed, failed, time.Since(start).Round(time.Millisecond))
	if failed > 0 {
		return fmt.Errorf("%d of %d messages failed", failed, cfg.count)
	}
	return nil
}

func show(client *http.Client, cfg config, method, path string) error {
	status, resp, err := do(client, cfg, method, path, "")
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("server returned %d: %s", status, resp)
	}
	if resp == "" {
		resp = http.StatusText(status)
	}
	fmt.Println(resp)
	return nil
}

func genkey() error {
	key, err := auth.GenerateAPIKey()
	if err != nil {
		return err
	}
	hash, err := auth.HashAPIKey(key)
	if err != nil {
		return err
	}
	fmt.Printf("api key:  %s\nkey_hash: %s\n", key, hash)
	return nil
}

func do(client *http.Client, cfg config, method, path, body string) (int, string, error) {
	q := url.Values{}
	if cfg.priority != "" {
		q.Set("priority", cfg.priority)
	}
	if method == http.MethodPost {
		if cfg.ttl != "" {
			q.Set("ttl", cfg.ttl)
		}
		if cfg.delay != "" {
			q.Set("delay", cfg.delay)
		}
	}

	u := strings.TrimRight(cfg.addr, "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequest(method, u, strings.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	if body != "" {
		req.Header.Set("Content-Type", "text/plain")
	}
	if cfg.key != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.key)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, strings.TrimSpace(string(b)), nil
}
