package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newSubscribeCommand() *cobra.Command {
	var (
		topic  string
		follow bool
	)

	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Subscribe to a topic",
		Long: `Create a subscription to a topic. With --follow the command keeps
polling the subscription and prints samples as they arrive; otherwise it
prints the subscription ID for later polling.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscribe(topic, follow)
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "Topic to subscribe to (required)")
	cmd.Flags().BoolVar(&follow, "follow", false, "Keep polling and print samples as they arrive")
	if err := cmd.MarkFlagRequired("topic"); err != nil {
		panic(fmt.Sprintf("Failed to mark topic as required: %v", err))
	}

	return cmd
}

func runSubscribe(topic string, follow bool) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	sub, err := client.Subscribe(ctx, topic)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	fmt.Printf("✅ Subscribed to '%s'\n", topic)
	fmt.Printf("Subscription ID: %s\n", sub.ID)

	if !follow {
		fmt.Printf("\nPoll for samples with:\n")
		fmt.Printf("  meshgate-cli poll --id %s\n", sub.ID)
		return nil
	}

	// Follow mode: poll until interrupted, then unsubscribe
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), timeout)
		defer cleanupCancel()
		if err := client.Unsubscribe(cleanupCtx, sub.ID); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to unsubscribe: %v\n", err)
		} else {
			fmt.Println("👋 Unsubscribed")
		}
	}()

	fmt.Println("📡 Waiting for samples (Ctrl+C to stop)...")
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sigChan:
			return nil
		case <-ticker.C:
			pollCtx, pollCancel := context.WithTimeout(context.Background(), timeout)
			response, err := client.Poll(pollCtx, sub.ID, 50)
			pollCancel()
			if err != nil {
				return fmt.Errorf("failed to poll subscription: %w", err)
			}
			if response.Count > 0 {
				printSamples(response.Samples)
			}
		}
	}
}

func newPollCommand() *cobra.Command {
	var (
		id  string
		max int
	)

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll a subscription for delivered samples",
		Long:  "Drain up to --max samples queued on a subscription.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPoll(id, max)
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Subscription ID (required)")
	cmd.Flags().IntVar(&max, "max", 10, "Maximum samples to poll")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(fmt.Sprintf("Failed to mark id as required: %v", err))
	}

	return cmd
}

func runPoll(id string, max int) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	response, err := client.Poll(ctx, id, max)
	if err != nil {
		return fmt.Errorf("failed to poll subscription: %w", err)
	}

	if response.Count == 0 {
		fmt.Println("📭 No samples queued")
		return nil
	}

	fmt.Printf("📨 %d sample(s):\n\n", response.Count)
	printSamples(response.Samples)

	return nil
}

func newUnsubscribeCommand() *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "unsubscribe",
		Short: "Close a subscription",
		Long:  "Close a subscription by ID. Queued samples are discarded.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnsubscribe(id)
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Subscription ID (required)")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(fmt.Sprintf("Failed to mark id as required: %v", err))
	}

	return cmd
}

func runUnsubscribe(id string) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Unsubscribe(ctx, id); err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}

	fmt.Printf("✅ Subscription %s closed\n", id)
	return nil
}
