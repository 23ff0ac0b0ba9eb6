// Package main provides a terminal client that consults over the WebSocket API.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/siegzhong-maker/knowledge/internal/domain"
	"github.com/siegzhong-maker/knowledge/internal/service"
)

func main() {
	addr := flag.String("addr", "ws://localhost:3000/ws", "WebSocket server address")
	apiKey := flag.String("api-key", "", "per-call API key (sk-...), overrides the stored key")
	docPath := flag.String("doc", "", "text file to ground the conversation on")
	title := flag.String("title", "", "document title")
	flag.Parse()

	log.SetFlags(log.Ltime)

	base := service.ConsultRequest{APIKey: *apiKey}
	if *docPath != "" {
		text, err := os.ReadFile(*docPath)
		if err != nil {
			log.Fatalf("Failed to read document: %v", err)
		}
		base.DocumentText = string(text)
		base.DocInfo = &domain.DocInfo{Title: *title}
	}

	fmt.Printf("Connecting to %s...\n", *addr)
	client, err := NewClient(*addr, base)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	fmt.Println("Connected. Type a question and press Enter.")
	fmt.Println("Commands: /reset to start over, /quit to exit")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			return
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/quit":
			fmt.Println("Bye!")
			return
		case "/reset":
			client.Reset()
			fmt.Println("Conversation cleared.")
			continue
		}

		citations, err := client.Ask(input, os.Stdout)
		fmt.Println()
		if err != nil {
			log.Printf("Consult failed: %v", err)
			continue
		}
		for _, c := range citations {
			fmt.Printf("  [%s p.%d] %s\n", c.DocName, c.Page, c.Text)
		}
	}
}
