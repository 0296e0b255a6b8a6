// Command token mints the handshake token an agent console presents to the
// chat server.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/npezzotti/go-livechat/internal/api"
	"github.com/npezzotti/go-livechat/internal/config"
	"github.com/npezzotti/go-livechat/internal/types"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		exitOnError(err)
	}

	agentId := flag.String("agent-id", "", "agent id (required)")
	agentName := flag.String("agent-name", "", "agent display name")
	signingKey := flag.String("signing-key", config.Getenv("LIVECHAT_SIGNING_KEY", ""), "base64 encoded signing key")
	exp := flag.Duration("exp", api.DefaultTokenExpiration, "token lifetime")
	flag.Parse()

	if *agentId == "" {
		fmt.Fprintln(os.Stderr, "Usage: token -agent-id <id> [-agent-name <name>] [-signing-key <key>] [-exp 12h]")
		os.Exit(2)
	}

	key, err := config.DecodeSigningSecret(*signingKey)
	exitOnError(err)

	token, err := api.NewAgentToken(key, types.Agent{Id: *agentId, Name: *agentName}, *exp)
	exitOnError(err)

	fmt.Println(token)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
