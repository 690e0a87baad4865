package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/stride-io/stride/internal/config"
	"github.com/stride-io/stride/internal/policy"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "chat":
		cmdChat(os.Args[2:])
	case "health":
		cmdHealth()
	case "tickets":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: stridectl tickets <list|show|resolve>")
			os.Exit(1)
		}
		switch os.Args[2] {
		case "list":
			cmdTicketsList(os.Args[3:])
		case "show":
			if len(os.Args) < 4 {
				fmt.Fprintln(os.Stderr, "usage: stridectl tickets show <id>")
				os.Exit(1)
			}
			cmdTicketsShow(os.Args[3])
		case "resolve":
			cmdTicketsResolve(os.Args[3:])
		default:
			fmt.Fprintf(os.Stderr, "unknown tickets subcommand: %s\n", os.Args[2])
			os.Exit(1)
		}
	case "config":
		if len(os.Args) < 4 || os.Args[2] != "validate" {
			fmt.Fprintln(os.Stderr, "usage: stridectl config validate <path>")
			os.Exit(1)
		}
		cmdConfigValidate(os.Args[3])
	case "policy":
		if len(os.Args) < 4 || os.Args[2] != "validate" {
			fmt.Fprintln(os.Stderr, "usage: stridectl policy validate <path>")
			os.Exit(1)
		}
		cmdPolicyValidate(os.Args[3])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// --- chat command ---

func cmdChat(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	orderID := fs.String("order", "", "Order ID the complaint is about")
	message := fs.String("message", "", "Single message (omit for interactive)")
	fs.Parse(args)

	if *message != "" {
		reply, err := postMessage("", *orderID, *message)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		printReply(reply)
		return
	}

	fmt.Println("stridectl interactive complaint session (type 'quit' to exit)")
	var sessionID string
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}

		reply, err := postMessage(sessionID, *orderID, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		sessionID = str(reply["session_id"])
		printReply(reply)
		if str(reply["status"]) == "RESOLVED" {
			break
		}
	}
}

func postMessage(sessionID, orderID, content string) (map[string]any, error) {
	path := "/api/sessions"
	payload := map[string]string{"order_id": orderID, "content": content}
	if sessionID != "" {
		path = "/api/sessions/" + sessionID + "/messages"
	}

	body, err := apiDo("POST", path, payload)
	if err != nil {
		return nil, err
	}
	var reply map[string]any
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func printReply(reply map[string]any) {
	if c := str(reply["clarification"]); c != "" {
		fmt.Println(c)
		return
	}
	if o, ok := reply["outcome"].(map[string]any); ok {
		fmt.Printf("decision: %s\n", str(o["decision"]))
		fmt.Printf("reason:   %s\n", str(o["reason"]))
		if v := str(o["visit_by"]); v != "" {
			fmt.Printf("visit:    %s by %s\n", str(o["outlet_id"]), v)
		}
		if tid := str(o["ticket_id"]); tid != "" {
			fmt.Printf("ticket:   %s\n", tid)
		}
	}
}

// --- API client commands ---

func cmdHealth() {
	body, err := apiDo("GET", "/api/health", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(body))
}

func cmdTicketsList(args []string) {
	fs := flag.NewFlagSet("tickets list", flag.ExitOnError)
	status := fs.String("status", "", "Filter by status (open|resolved|closed)")
	orderID := fs.String("order", "", "Filter by order")
	limit := fs.Int("limit", 50, "Max results")
	fs.Parse(args)

	query := fmt.Sprintf("?limit=%d", *limit)
	if *status != "" {
		query += "&status=" + *status
	}
	if *orderID != "" {
		query += "&order_id=" + *orderID
	}

	body, err := apiDo("GET", "/api/tickets"+query, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	var tickets []map[string]any
	json.Unmarshal(body, &tickets)
	for _, t := range tickets {
		outcome, _ := t["outcome"].(map[string]any)
		fmt.Printf("%-10s %-10s %-12s %s\n", t["id"], t["status"], t["order_id"], str(outcome["reason"]))
	}
}

func cmdTicketsShow(id string) {
	body, err := apiDo("GET", "/api/tickets/"+id, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(body))
}

func cmdTicketsResolve(args []string) {
	fs := flag.NewFlagSet("tickets resolve", flag.ExitOnError)
	actor := fs.String("actor", "stridectl", "Who is resolving the ticket")
	note := fs.String("note", "", "Audit note")
	fs.Parse(args)
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: stridectl tickets resolve <id> [--actor a] [--note n]")
		os.Exit(1)
	}

	payload := map[string]string{"status": "resolved", "actor": *actor, "note": *note}
	if _, err := apiDo("PATCH", "/api/tickets/"+fs.Arg(0), payload); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("ticket resolved")
}

func cmdConfigValidate(path string) {
	_, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("config is valid")
}

func cmdPolicyValidate(path string) {
	table, err := policy.LoadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("policy table %s is valid (%d rules)\n", table.Version, len(table.Rules))
}

// --- Helpers ---

func apiDo(method, path string, payload any) ([]byte, error) {
	base := envOr("STRIDE_API_URL", "http://localhost:8080")

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, base+path, reqBody)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := os.Getenv("STRIDE_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func prettyJSON(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return string(out)
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printUsage() {
	fmt.Println("stridectl - complaint pipeline CLI")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  chat                    Run a complaint session (--order, --message)")
	fmt.Println("  health                  Check daemon health")
	fmt.Println("  tickets list            List tickets (--status, --order, --limit)")
	fmt.Println("  tickets show <id>       Show ticket details")
	fmt.Println("  tickets resolve <id>    Resolve a ticket (--actor, --note)")
	fmt.Println("  config validate <p>     Validate config file")
	fmt.Println("  policy validate <p>     Validate policy table file")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  STRIDE_API_URL   Daemon URL (default: http://localhost:8080)")
	fmt.Println("  STRIDE_API_KEY   API key for authentication")
}
