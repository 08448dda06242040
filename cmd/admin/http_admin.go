package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// httpCmd drives the server's loopback admin API.
func httpCmd(name string, args []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8081", "admin API base url")
	agentID := fs.String("agent", "", "agent id (agent, remove)")
	stuckLimit := fs.Uint64("stuck_limit", 0, "ticks without progress before an agent stalls (traffic)")
	swapDelay := fs.Uint64("swap_delay", 0, "grace ticks before a stalled blocker is swapped (traffic)")
	limit := fs.Int("limit", 10, "result limit (blockers)")
	_ = fs.Parse(args)

	method, path, body, err := adminRequest(name, *agentID, *stuckLimit, *swapDelay, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cl := &http.Client{Timeout: 10 * time.Second}
	status, out, err := call(cl, *baseURL, method, path, body)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
	if status/100 != 2 {
		os.Exit(1)
	}
}

// adminRequest maps a subcommand to its route.
func adminRequest(name, agentID string, stuckLimit, swapDelay uint64, limit int) (method, path string, body any, err error) {
	switch name {
	case "state", "tracker", "metrics":
		return http.MethodGet, "/admin/v1/" + name, nil, nil
	case "snapshot":
		return http.MethodPost, "/admin/v1/snapshot", nil, nil
	case "traffic":
		if stuckLimit == 0 || swapDelay == 0 {
			return "", "", nil, fmt.Errorf("traffic needs -stuck_limit and -swap_delay")
		}
		return http.MethodPut, "/admin/v1/traffic", map[string]uint64{"stuck_limit": stuckLimit, "swap_delay": swapDelay}, nil
	case "agent", "remove":
		if strings.TrimSpace(agentID) == "" {
			return "", "", nil, fmt.Errorf("%s needs -agent", name)
		}
		m := http.MethodGet
		if name == "remove" {
			m = http.MethodDelete
		}
		return m, "/admin/v1/agents/" + url.PathEscape(agentID), nil, nil
	case "blockers":
		return http.MethodGet, "/admin/v1/blockers?limit=" + strconv.Itoa(limit), nil, nil
	}
	return "", "", nil, fmt.Errorf("unknown command %q", name)
}

func call(cl *http.Client, baseURL, method, path string, body any) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		rd = bytes.NewReader(b)
	}
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	req, err := http.NewRequest(method, u, rd)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := cl.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	return resp.StatusCode, out, err
}
