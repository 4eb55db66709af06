// Package main implements orchestrator-ctl, a thin HTTP client against the
// control plane (C8) for operators who don't want to reach for curl: list
// tasks, claim one by hand, and tail the event stream.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverAddr string
	httpClient = &http.Client{Timeout: 10 * time.Second}
)

var rootCmd = &cobra.Command{
	Use:   "orchestrator-ctl",
	Short: "CLI client for the orchestrator control plane",
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and claim tasks",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks in the project's task store",
	RunE:  runTasksList,
}

var tasksClaimCmd = &cobra.Command{
	Use:   "claim <taskId> <sessionId>",
	Short: "Claim a task on behalf of a session",
	Args:  cobra.ExactArgs(2),
	RunE:  runTasksClaim,
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect the orchestrator's event stream",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Stream /api/events and print one line per snapshot/delta",
	RunE:  runEventsTail,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "http://127.0.0.1:3033", "control-plane base URL")

	tasksCmd.AddCommand(tasksListCmd, tasksClaimCmd)
	eventsCmd.AddCommand(eventsTailCmd)
	rootCmd.AddCommand(tasksCmd, eventsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runTasksList(cmd *cobra.Command, args []string) error {
	resp, err := httpClient.Get(serverAddr + "/api/tasks")
	if err != nil {
		return fmt.Errorf("listing tasks: %w", err)
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func runTasksClaim(cmd *cobra.Command, args []string) error {
	taskID := args[0]
	sessionID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("sessionId must be an integer: %w", err)
	}

	body, err := json.Marshal(map[string]any{"sessionId": sessionID})
	if err != nil {
		return err
	}
	resp, err := httpClient.Post(serverAddr+"/api/tasks/"+taskID+"/claim", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("claiming task %s: %w", taskID, err)
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func runEventsTail(cmd *cobra.Command, args []string) error {
	resp, err := httpClient.Get(serverAddr + "/api/events")
	if err != nil {
		return fmt.Errorf("connecting to event stream: %w", err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if payload, ok := strings.CutPrefix(line, "data: "); ok {
			fmt.Println(payload)
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("reading event stream: %w", err)
	}
	return nil
}

func printResponse(resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		fmt.Fprintf(os.Stderr, "%s: %s\n", resp.Status, data)
		os.Exit(1)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}
