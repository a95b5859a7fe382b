package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
)

const usage = `mtmctl -addr <host:port> <command> [args]

Commands:
  add-node <id>               enable node <id> within the cluster's fixed node bound
  drop-node <id>               administratively disable node <id>
  recover-node <id>            begin recovery against donor <id>
  poll-node <id>                this node's view of node <id>
  cluster                       get-cluster-state
  nodes                         get-nodes-state
  make-table-local <name>       mark <name> local-only
  lock-graph                    dump-lock-graph
  inject-fault <kind> <prob>    inject-2pc-error (kind: drop-vote|delay-prepare|force-abort)
  csn                            get-csn
  snapshot                       get-snapshot
`

func main() {
	addr := flag.String("addr", "localhost:7070", "target node's administrative HTTP address")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	client := &client{base: "http://" + *addr}

	var err error
	switch args[0] {
	case "add-node":
		err = client.do("POST", "/v1/nodes", map[string]interface{}{"id": mustAtoi(args, 1)})
	case "drop-node":
		err = client.do("DELETE", fmt.Sprintf("/v1/nodes/%s", arg(args, 1)), nil)
	case "recover-node":
		err = client.do("POST", fmt.Sprintf("/v1/nodes/%s/recover", arg(args, 1)), nil)
	case "poll-node":
		err = client.do("GET", fmt.Sprintf("/v1/nodes/%s", arg(args, 1)), nil)
	case "cluster":
		err = client.do("GET", "/v1/cluster", nil)
	case "nodes":
		err = client.do("GET", "/v1/nodes", nil)
	case "make-table-local":
		err = client.do("POST", fmt.Sprintf("/v1/tables/%s/local", arg(args, 1)), nil)
	case "lock-graph":
		err = client.do("GET", "/v1/lock-graph", nil)
	case "inject-fault":
		body := map[string]interface{}{"kind": arg(args, 1)}
		if len(args) > 2 {
			body["probability"] = mustAtof(args, 2)
		}
		err = client.do("POST", "/v1/faults/2pc", body)
	case "csn":
		err = client.do("GET", "/v1/csn", nil)
	case "snapshot":
		err = client.do("GET", "/v1/snapshot", nil)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "mtmctl: %v\n", err)
		os.Exit(1)
	}
}

type client struct {
	base string
}

func (c *client) do(method, path string, body interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.base+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		pretty.Write(data)
	}
	fmt.Println(pretty.String())

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}

func arg(args []string, i int) string {
	if i >= len(args) {
		fmt.Fprintln(os.Stderr, "mtmctl: missing argument")
		os.Exit(2)
	}
	return args[i]
}

func mustAtoi(args []string, i int) int {
	var n int
	if _, err := fmt.Sscanf(arg(args, i), "%d", &n); err != nil {
		fmt.Fprintf(os.Stderr, "mtmctl: invalid integer %q\n", args[i])
		os.Exit(2)
	}
	return n
}

func mustAtof(args []string, i int) float64 {
	var f float64
	if _, err := fmt.Sscanf(arg(args, i), "%f", &f); err != nil {
		fmt.Fprintf(os.Stderr, "mtmctl: invalid number %q\n", args[i])
		os.Exit(2)
	}
	return f
}
