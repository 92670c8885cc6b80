package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"flag"

	"github.com/chzyer/readline"
	"github.com/lesismal/arpc"

	"github.com/DeltaLaboratory/bkv/internal/client"
	"github.com/DeltaLaboratory/bkv/internal/protocol"
	"github.com/DeltaLaboratory/bkv/internal/query"
	"github.com/DeltaLaboratory/bkv/internal/scheduler"

	_ "embed"
)

var (
	addrs       = flag.String("addr", "localhost:8000", "Comma-separated bootstrap addresses")
	callTimeout = flag.Duration("timeout", 5*time.Second, "Per-command timeout")
)

//go:embed help
var helpString string

func main() {
	flag.Parse()

	cfg := client.DefaultConfig()
	cfg.CallTimeout = *callTimeout

	c, err := client.New(context.Background(), strings.Split(*addrs, ","), cfg)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer c.Close(true)

	rl, err := readline.NewEx(&readline.Config{
		Prompt: ">> ",
	})
	if err != nil {
		log.Fatalf("Failed to initalize readline: %v", err)
	}
	defer rl.Close()

	fmt.Println("Client (type 'exit' to quit, 'help' for commands)")
	for {
		line, err := rl.Readline()
		if err != nil {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if !handleCommand(c, line) {
			break
		}
	}
}

// handleCommand runs one shell line; false means exit.
func handleCommand(c *client.Client, line string) bool {
	cmd, err := query.Parse(line)
	if err != nil {
		fmt.Println("Parsing Error:", err)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), *callTimeout)
	defer cancel()

	switch cmd.Kind {
	case query.KindGet:
		results, err := c.GetMany(ctx, toBytes(cmd.Keys), scheduler.Get)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return true
		}
		for i, r := range results {
			switch {
			case r.Err != nil:
				fmt.Printf("GET %s: error: %v\n", cmd.Keys[i], r.Err)
			case !r.Found:
				fmt.Printf("GET %s: (not found)\n", cmd.Keys[i])
			default:
				fmt.Printf("GET %s: %s\n", cmd.Keys[i], string(r.Value))
			}
		}

	case query.KindSet:
		err := c.Set(ctx, []byte(cmd.Keys[0]), []byte(cmd.Value), cmd.TTL)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return true
		}
		if cmd.TTL > 0 {
			fmt.Printf("SET: key=%s, value=%s, ttl=%s\n", cmd.Keys[0], cmd.Value, cmd.TTL)
		} else {
			fmt.Printf("SET: key=%s, value=%s\n", cmd.Keys[0], cmd.Value)
		}

	case query.KindExists:
		results, err := c.ExistsMany(ctx, toBytes(cmd.Keys))
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return true
		}
		for i, r := range results {
			if r.Err != nil {
				fmt.Printf("EXISTS %s: error: %v\n", cmd.Keys[i], r.Err)
			} else {
				fmt.Printf("EXISTS %s: %t\n", cmd.Keys[i], r.Found)
			}
		}

	case query.KindKeys:
		printClusterKeys(c)

	case query.KindNodes:
		for _, n := range c.Nodes() {
			fmt.Printf("%s\t%s\n", n.ID, n.Address)
		}

	case query.KindRefresh:
		if err := c.Refresh(ctx); err != nil {
			fmt.Printf("error: %v\n", err)
		} else {
			fmt.Println("cluster map refreshed")
		}

	case query.KindHelp:
		fmt.Println(helpString)

	case query.KindExit:
		return false
	}

	return true
}

// printClusterKeys asks every node for its locally stored keys.
func printClusterKeys(c *client.Client) {
	for _, n := range c.Nodes() {
		rpc, err := arpc.NewClient(arpcDialer(n.Address))
		if err != nil {
			fmt.Printf("%s: error: %v\n", n.ID, err)
			continue
		}

		var resp protocol.KeysResponse
		err = rpc.Call("/debug/keys", &struct{}{}, &resp, *callTimeout)
		rpc.Stop()
		if err != nil {
			fmt.Printf("%s: error: %v\n", n.ID, err)
			continue
		}
		if resp.Error != "" {
			fmt.Printf("%s: error: %s\n", n.ID, resp.Error)
			continue
		}

		for _, key := range resp.Keys {
			fmt.Printf("%s\t%s\n", n.ID, string(key))
		}
	}
}

func arpcDialer(address string) func() (net.Conn, error) {
	return func() (net.Conn, error) {
		return net.Dial("tcp", address)
	}
}

func toBytes(keys []string) [][]byte {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = []byte(k)
	}
	return out
}
