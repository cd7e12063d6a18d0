package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"strings"
	"time"

	"blandpanel-server/emulator"
)

func main() {
	addr := flag.String("addr", ":9999", "Listen address")
	moveDelay := flag.Duration("move-delay", 2*time.Second, "Simulated cover travel time")
	flag.Parse()

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		fmt.Println("Failed to start Mock Panel:", err)
		return
	}
	defer listener.Close()

	fmt.Println("=== Mock Panel Simulator ===")
	fmt.Println("Listening on TCP", *addr)
	fmt.Println("Waiting for connections...")

	// One physical panel shared by every connection
	panel := emulator.NewPanel()

	for {
		conn, err := listener.Accept()
		if err != nil {
			fmt.Println("Accept error:", err)
			continue
		}
		fmt.Println("[MockPanel] Client connected:", conn.RemoteAddr())
		go handleConnection(conn, panel, *moveDelay)
	}
}

func handleConnection(conn net.Conn, panel *emulator.Panel, moveDelay time.Duration) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println("[MockPanel] Connection closed")
			return
		}

		if moveDelay > 0 && movesCover(line) {
			fmt.Printf("[MockPanel] Moving cover (%v)...\n", moveDelay)
			time.Sleep(moveDelay)
		}

		reply, ok := panel.Handle(line)
		if !ok {
			continue
		}
		fmt.Printf("[MockPanel] %q -> %q\n", strings.TrimSpace(line), reply)
		if _, err := conn.Write([]byte(reply + emulator.LineEnding)); err != nil {
			fmt.Println("[MockPanel] Write error:", err)
			return
		}
	}
}

func movesCover(line string) bool {
	cmd := strings.ToUpper(strings.TrimSpace(line))
	return strings.HasPrefix(cmd, "STATE ") || strings.HasPrefix(cmd, "ANGLE ") ||
		cmd == "OPEN" || cmd == "CLOSE"
}
