// Command token mints an operator token for the admin API.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"callbridge/internal/auth"
	"callbridge/internal/config"
)

func main() {
	configPath := flag.String("config", "callbridge.yaml", "path to the YAML config file")
	subject := flag.String("subject", "", "operator identity recorded in the audit log")
	flag.Parse()

	cfg, _ := config.Load(*configPath)
	m, err := auth.NewManager(cfg.Auth)
	if err != nil {
		fmt.Fprintln(os.Stderr, "token:", err)
		os.Exit(1)
	}
	if *subject == "" {
		fmt.Fprintln(os.Stderr, "token: -subject is required")
		os.Exit(2)
	}

	tok, err := m.IssueOperator(time.Now(), *subject)
	if err != nil {
		fmt.Fprintln(os.Stderr, "token:", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
