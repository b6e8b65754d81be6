// Package main provides a CLI client for a running taskflow sidecar: it
// submits a graph configuration, starts it, and polls or streams its
// status.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/samborba/taskflow/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "submit":
		submitCmd(os.Args[2:])
	case "status":
		statusCmd(os.Args[2:])
	case "watch":
		watchCmd(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage:
  workflow-client submit --file <graph.json> --addr <url> [--start]
  workflow-client status --addr <url>
  workflow-client watch --addr <url>`)
}

// submitCmd: POST /graph, optionally followed by POST /control/start.
func submitCmd(args []string) {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	file := fs.String("file", "", "graph configuration JSON file path")
	addr := fs.String("addr", "http://localhost:8080", "sidecar address")
	start := fs.Bool("start", false, "start the graph immediately after submitting it")
	fs.Parse(args)

	if *file == "" {
		fmt.Fprintln(os.Stderr, "error: --file is required")
		os.Exit(1)
	}

	loader := config.NewLoader()
	cfg, err := loader.LoadFromFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	requestID := uuid.New().String()
	data, err := json.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("submitting %s (request %s, %d tasks)\n", *file, requestID, len(cfg.Graph.Tasks))
	stats, err := postJSON(*addr+"/graph", data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	printStats(stats)

	if *start {
		stats, err = postJSON(*addr+"/control/start", nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error starting graph: %v\n", err)
			os.Exit(1)
		}
		printStats(stats)
	}
}

// statusCmd: GET /stats and GET /tasks.
func statusCmd(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "sidecar address")
	fs.Parse(args)

	stats, err := getJSON[statsDTO](*addr + "/stats")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	printStats(stats)

	tasks, err := getJSON[[]taskDTO](*addr + "/tasks")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(*tasks) == 0 {
		return
	}
	sorted := append([]taskDTO(nil), (*tasks)...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	var parts []string
	for _, t := range sorted {
		state := "pending"
		if t.Completed {
			state = "completed"
		}
		parts = append(parts, fmt.Sprintf("%s=%s", t.ID, state))
	}
	fmt.Printf("tasks: %s\n", strings.Join(parts, ", "))
}

// watchCmd streams /events frames as they arrive until the connection
// closes or the process is interrupted.
func watchCmd(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "sidecar address")
	fs.Parse(args)

	wsURL := "ws" + strings.TrimPrefix(*addr, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error connecting to %s: %v\n", wsURL, err)
		os.Exit(1)
	}
	defer conn.Close()

	for {
		var frame eventFrameDTO
		if err := conn.ReadJSON(&frame); err != nil {
			if err != io.EOF {
				fmt.Fprintf(os.Stderr, "connection closed: %v\n", err)
			}
			return
		}
		if frame.TaskID != "" {
			fmt.Printf("%s task=%s\n", frame.Kind, frame.TaskID)
		} else {
			fmt.Printf("%s\n", frame.Kind)
		}
		if frame.Error != "" {
			fmt.Printf("  error: %s\n", frame.Error)
		}
	}
}

func printStats(stats *statsDTO) {
	fmt.Printf("completed=%d failed=%d total=%d running=%d queued=%d concurrency=%d paused=%v processing=%v\n",
		stats.Completed, stats.Failed, stats.Total, stats.Running, stats.Queued,
		stats.Concurrency, stats.Paused, stats.Processing)
}

func postJSON(url string, body []byte) (*statsDTO, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	resp, err := http.Post(url, "application/json", reader)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	var stats statsDTO
	if err := json.Unmarshal(respBody, &stats); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &stats, nil
}

func getJSON[T any](url string) (*T, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &v, nil
}

// statsDTO mirrors monitor's statsView.
type statsDTO struct {
	Completed   int  `json:"completed"`
	Failed      int  `json:"failed"`
	Total       int  `json:"total"`
	Running     int  `json:"running"`
	Queued      int  `json:"queued"`
	Concurrency int  `json:"concurrency"`
	Processing  bool `json:"processing"`
	Paused      bool `json:"paused"`
}

// taskDTO mirrors monitor's taskView.
type taskDTO struct {
	ID        string `json:"id"`
	Completed bool   `json:"completed"`
}

// eventFrameDTO mirrors monitor's eventFrame.
type eventFrameDTO struct {
	Kind   string `json:"kind"`
	TaskID string `json:"taskId,omitempty"`
	Error  string `json:"error,omitempty"`
}
