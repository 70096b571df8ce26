// Command enginectl is a small operator CLI for the engine's HTTP
// introspection API, rendering runner lists and snapshots as tables via
// olekukonko/tablewriter.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: enginectl [-addr http://host:port] <summary|runners|snapshot|pause|resume|stop> [runner-id]")
	os.Exit(2)
}

func main() {
	addr := "http://localhost:8080"
	args := os.Args[1:]
	if len(args) >= 2 && args[0] == "-addr" {
		addr = args[1]
		args = args[2:]
	}
	if len(args) < 1 {
		usage()
	}

	client := &http.Client{Timeout: 5 * time.Second}
	cmd := args[0]

	switch cmd {
	case "summary":
		printSummary(client, addr)
	case "runners":
		printRunners(client, addr)
	case "snapshot":
		if len(args) < 2 {
			usage()
		}
		printSnapshot(client, addr, args[1])
	case "pause", "resume":
		if len(args) < 2 {
			usage()
		}
		doAction(client, addr, args[1], cmd)
	case "stop":
		if len(args) < 2 {
			usage()
		}
		doDelete(client, addr, args[1])
	default:
		usage()
	}
}

func get(client *http.Client, url string, out any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("enginectl: %s returned %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printSummary(client *http.Client, addr string) {
	var res struct {
		Summary     string   `json:"summary"`
		RunnerCount int      `json:"runnerCount"`
		Symbols     []string `json:"symbols"`
	}
	if err := get(client, addr+"/api/summary", &res); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(res.Summary)
}

func printRunners(client *http.Client, addr string) {
	var res struct {
		RunnerIDs []string `json:"runnerIds"`
		Symbols   []string `json:"symbols"`
	}
	if err := get(client, addr+"/api/runners", &res); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Runner ID", "Symbol")
	for i, id := range res.RunnerIDs {
		symbol := ""
		if i < len(res.Symbols) {
			symbol = res.Symbols[i]
		}
		table.Append(id, symbol)
	}
	table.Render()
}

func printSnapshot(client *http.Client, addr, runnerID string) {
	var snap map[string]any
	if err := get(client, addr+"/api/runners/"+runnerID, &snap); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")
	for _, k := range []string{"runner_id", "symbol", "status", "current_state", "uptime_secs"} {
		v, ok := snap[k]
		if !ok {
			continue
		}
		table.Append(k, fmt.Sprintf("%v", v))
	}
	table.Render()
}

func doAction(client *http.Client, addr, runnerID, action string) {
	req, err := http.NewRequest(http.MethodPost, addr+"/api/runners/"+runnerID+"/"+action, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		fmt.Fprintf(os.Stderr, "enginectl: %s returned %s\n", action, resp.Status)
		os.Exit(1)
	}
	fmt.Printf("%s: %s ok\n", runnerID, action)
}

func doDelete(client *http.Client, addr, runnerID string) {
	req, err := http.NewRequest(http.MethodDelete, addr+"/api/runners/"+runnerID, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		fmt.Fprintf(os.Stderr, "enginectl: stop returned %s\n", resp.Status)
		os.Exit(1)
	}
	fmt.Printf("%s: stopped\n", runnerID)
}
