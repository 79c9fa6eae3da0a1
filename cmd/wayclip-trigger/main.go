// Command wayclip-trigger is a one-shot CLI that sends a single "save"
// command to a running wayclipd and exits. Grounded on
// wayclip_trigger/src/main.rs; unlike the original's hardcoded
// /tmp/wayclip.sock, the socket path here defaults to the same path as
// wayclipd's default daemon_socket_path setting (the settings file itself is
// not read; use -socket for a non-default path).
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"time"
)

const defaultSocketPath = "/tmp/wayclipd.sock"

func main() {
	socketPath := flag.String("socket", defaultSocketPath, "path to the wayclipd control socket")
	flag.Parse()

	conn, err := net.DialTimeout("unix", *socketPath, 2*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to socket, likely the daemon is not running: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("save\n")); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write to socket: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("saved the clip!")
}
