package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newTopicsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "List and inspect topics",
		Long:  `Commands for listing accessible topics and inspecting their schemas.`,
	}

	// Add subcommands
	cmd.AddCommand(newTopicsListCommand())
	cmd.AddCommand(newTopicsInfoCommand())

	return cmd
}

func newTopicsListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List topics this agent may access",
		Long:  "List the topics this agent holds read or write grants on.",
		RunE:  runTopicsList,
	}

	return cmd
}

func newTopicsInfoCommand() *cobra.Command {
	var topic string

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show a topic's schema",
		Long: `Display a topic's declared fields, their types and key markers,
and the transport quality-of-service profile.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTopicsInfo(topic)
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "Topic to inspect (required)")
	if err := cmd.MarkFlagRequired("topic"); err != nil {
		panic(fmt.Sprintf("Failed to mark topic flag as required: %v", err))
	}

	return cmd
}

func runTopicsList(cmd *cobra.Command, args []string) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	topics, err := client.ListTopics(ctx)
	if err != nil {
		return fmt.Errorf("failed to list topics: %w", err)
	}

	if len(topics.Readable) == 0 && len(topics.Writable) == 0 {
		fmt.Println("No topic grants for this agent")
		return nil
	}

	if len(topics.Readable) > 0 {
		fmt.Printf("📖 Readable:\n")
		for _, t := range topics.Readable {
			fmt.Printf("   %s\n", t)
		}
	}
	if len(topics.Writable) > 0 {
		fmt.Printf("✏️  Writable:\n")
		for _, t := range topics.Writable {
			fmt.Printf("   %s\n", t)
		}
	}

	return nil
}

func runTopicsInfo(topic string) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	fmt.Printf("🔍 Inspecting topic '%s'...\n\n", topic)

	info, err := client.TopicInfo(ctx, topic)
	if err != nil {
		return fmt.Errorf("failed to inspect topic: %w", err)
	}

	fmt.Printf("📊 Topic: %s\n", info.Name)
	fmt.Printf("   QoS: %s / %s / %s", info.QoS.Reliability, info.QoS.Durability, info.QoS.History)
	if info.QoS.Depth > 0 {
		fmt.Printf(" (depth %d)", info.QoS.Depth)
	}
	fmt.Println()
	fmt.Printf("   Fields:\n")
	for _, f := range info.Fields {
		marker := ""
		if f.Key {
			marker = " 🔑"
		}
		fmt.Printf("     %-20s %s%s\n", f.Name, f.Type, marker)
	}

	return nil
}
