// vmfleetctl is a demo client for a running vmfleet server. One invocation
// opens one connection, runs one command (authenticating first when the
// command needs a token) and prints the response.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"vmfleet/pkg/client"

	"github.com/spf13/pflag"
)

const usage = `usage: vmfleetctl [flags] <command>

commands:
  ping                  liveness check
  register              register a VM profile (--vm-id, --ram, --cpu, --password, --disk...)
  list <list_type>      active_vms | authenticated_vms | all_vms | all_disks (--vm-id, --password)
  update                update own profile (--vm-id, --password, plus fields to change)
  logout                authenticate, then log the session out again

flags:
`

func main() {
	addr := pflag.String("addr", "127.0.0.1:8888", "server address")
	vmID := pflag.String("vm-id", "", "VM id")
	password := pflag.String("password", "", "VM password")
	ram := pflag.Int("ram", 0, "RAM in MB")
	cpu := pflag.Int("cpu", 0, "CPU cores")
	disks := pflag.IntSlice("disk", nil, "disk size in GB (repeatable)")
	timeout := pflag.Duration("timeout", 10*time.Second, "request timeout")
	pflag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		pflag.PrintDefaults()
	}
	pflag.Parse()

	args := pflag.Args()
	if len(args) == 0 {
		pflag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c, err := client.Dial(ctx, *addr)
	if err != nil {
		fatal(err)
	}
	defer c.Close()

	switch args[0] {
	case "ping":
		resp, err := c.Ping(ctx, map[string]string{"from": "vmfleetctl"})
		if err != nil {
			fatal(err)
		}
		printJSON(resp)

	case "register":
		req := client.RegisterRequest{VMID: *vmID, RAM: *ram, CPU: *cpu, Password: *password}
		for _, size := range *disks {
			req.Disks = append(req.Disks, client.Disk{DiskSize: size})
		}
		if err := c.Register(ctx, req); err != nil {
			fatal(err)
		}
		fmt.Printf("registered %s\n", *vmID)

	case "list":
		if len(args) < 2 {
			fatal(fmt.Errorf("list requires a list_type argument"))
		}
		authenticate(ctx, c, *vmID, *password)
		var out json.RawMessage
		if err := c.List(ctx, args[1], &out); err != nil {
			fatal(err)
		}
		printJSON(out)

	case "update":
		authenticate(ctx, c, *vmID, *password)
		var req client.UpdateRequest
		if pflag.CommandLine.Changed("ram") {
			req.RAM = ram
		}
		if pflag.CommandLine.Changed("cpu") {
			req.CPU = cpu
		}
		if pflag.CommandLine.Changed("disk") {
			for _, size := range *disks {
				req.Disks = append(req.Disks, client.Disk{DiskSize: size})
			}
		}
		if err := c.Update(ctx, req); err != nil {
			fatal(err)
		}
		fmt.Printf("updated %s\n", *vmID)

	case "logout":
		authenticate(ctx, c, *vmID, *password)
		if err := c.Logout(ctx); err != nil {
			fatal(err)
		}
		fmt.Println("logged out")

	default:
		pflag.Usage()
		os.Exit(2)
	}
}

func authenticate(ctx context.Context, c *client.Client, vmID, password string) {
	if vmID == "" || password == "" {
		fatal(fmt.Errorf("--vm-id and --password are required for this command"))
	}
	if _, err := c.Authenticate(ctx, vmID, password); err != nil {
		fatal(err)
	}
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(out))
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "vmfleetctl:", err)
	os.Exit(1)
}
