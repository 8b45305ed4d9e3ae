package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/meshgate/meshgate/pkg/gatewayclient"
)

var (
	// Global flags
	serverURL string
	agentName string
	token     string
	timeout   time.Duration
	noAuth    bool

	// Global client instance
	client *gatewayclient.Client
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "meshgate-cli",
		Short: "MeshGate HTTP API command line interface",
		Long: `meshgate-cli is a command line interface for the MeshGate HTTP API.
It provides commands for authentication, reading and writing topic samples,
and subscription management.`,
		PersistentPreRunE: initializeClient,
	}

	// Add global flags
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "MeshGate server URL")
	rootCmd.PersistentFlags().StringVar(&agentName, "agent", "", "Agent name for authentication")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "JWT token (if already authenticated)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	rootCmd.PersistentFlags().BoolVar(&noAuth, "no-auth", false, "Skip authentication (for development with --no-auth servers)")

	// Add subcommands
	rootCmd.AddCommand(newAuthCommand())
	rootCmd.AddCommand(newTopicsCommand())
	rootCmd.AddCommand(newReadCommand())
	rootCmd.AddCommand(newWriteCommand())
	rootCmd.AddCommand(newSubscribeCommand())
	rootCmd.AddCommand(newPollCommand())
	rootCmd.AddCommand(newUnsubscribeCommand())
	rootCmd.AddCommand(newAdminCommand())
	rootCmd.AddCommand(newHealthCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// initializeClient sets up the HTTP client with global configuration
func initializeClient(cmd *cobra.Command, args []string) error {
	// Skip client initialization for help commands
	if cmd.Name() == "help" || cmd.Parent() == nil {
		return nil
	}

	// In no-auth mode, agent is not required
	if !noAuth && agentName == "" {
		return fmt.Errorf("agent is required (unless using --no-auth)")
	}

	effectiveAgent := agentName
	if noAuth && effectiveAgent == "" {
		effectiveAgent = "dev-agent"
	}

	config := gatewayclient.Config{
		ServerURL: serverURL,
		AgentName: effectiveAgent,
		Timeout:   timeout,
	}

	var err error
	client, err = gatewayclient.NewClient(config)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	// Set token if provided, or set dummy token in no-auth mode
	if token != "" {
		client.SetToken(token)
	} else if noAuth {
		client.SetToken("no-auth-mode")
	}

	return nil
}

// requireAuthentication checks if the client is authenticated
func requireAuthentication() error {
	if client == nil {
		return fmt.Errorf("client not initialized")
	}

	if noAuth {
		return nil
	}

	if !client.IsAuthenticated() {
		return fmt.Errorf("not authenticated - run 'meshgate-cli auth' first or provide --token")
	}
	return nil
}
