package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newAdminCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Admin commands (requires admin privileges)",
		Long:  "Administrative commands for monitoring and controlling the gateway",
	}

	cmd.AddCommand(newAdminSubscriptionsCommand())
	cmd.AddCommand(newAdminStatsCommand())
	cmd.AddCommand(newAdminRateLimitCommand())

	return cmd
}

func newAdminSubscriptionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscriptions",
		Short: "List all subscriptions across all agents",
		Long:  "List all subscriptions in the system (admin view)",
		RunE:  runAdminSubscriptions,
	}

	return cmd
}

func newAdminStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show gateway statistics",
		Long:  "Display gateway statistics including rate limiter state",
		RunE:  runAdminStats,
	}

	return cmd
}

func newAdminRateLimitCommand() *cobra.Command {
	var enabled bool

	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Enable or disable admission control",
		Long:  "Toggle the gateway's rate limiting at runtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminRateLimit(enabled)
		},
	}

	cmd.Flags().BoolVar(&enabled, "enabled", true, "Whether rate limiting is enabled")

	return cmd
}

func runAdminSubscriptions(cmd *cobra.Command, args []string) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	fmt.Println("Fetching all subscriptions...")

	response, err := client.AdminListSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list subscriptions: %w", err)
	}

	if len(response.Subscriptions) == 0 {
		fmt.Println("No subscriptions found in the system")
		return nil
	}

	fmt.Printf("\nFound %d subscription(s) across all agents:\n\n", len(response.Subscriptions))
	for i, sub := range response.Subscriptions {
		fmt.Printf("%d. Subscription ID: %s\n", i+1, sub.ID)
		fmt.Printf("   Topic: %s\n", sub.Topic)
		fmt.Printf("   Agent: %s\n", sub.AgentName)
		fmt.Printf("   State: %s\n", sub.State)
		fmt.Printf("   Queued: %d, Dropped: %d\n", sub.Queued, sub.Dropped)
		if i < len(response.Subscriptions)-1 {
			fmt.Println()
		}
	}

	return nil
}

func runAdminStats(cmd *cobra.Command, args []string) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	fmt.Println("Fetching gateway statistics...")

	response, err := client.AdminGetStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	fmt.Printf("\n📊 MeshGate Statistics:\n\n")
	fmt.Printf("Topics: %d\n", response.Topics)
	fmt.Printf("Subscriptions: %d\n", response.Subscriptions)
	fmt.Printf("Uptime: %ds\n", response.UptimeSeconds)
	fmt.Printf("\nRate Limiter:\n")
	fmt.Printf("  Enabled: %t\n", response.RateLimiter.Enabled)
	fmt.Printf("  Admitted: %d\n", response.RateLimiter.Admitted)
	fmt.Printf("  Denied: %d\n", response.RateLimiter.Denied)
	fmt.Printf("  Global tokens available: %.1f\n", response.RateLimiter.GlobalAvailable)
	fmt.Printf("  Agent buckets: %d\n", response.RateLimiter.AgentBuckets)

	return nil
}

func runAdminRateLimit(enabled bool) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.AdminSetRateLimit(ctx, enabled); err != nil {
		return fmt.Errorf("failed to toggle rate limiting: %w", err)
	}

	if enabled {
		fmt.Println("✅ Rate limiting enabled")
	} else {
		fmt.Println("✅ Rate limiting disabled")
	}

	return nil
}
