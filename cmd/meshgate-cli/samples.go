package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meshgate/meshgate/pkg/gateway"
)

func newWriteCommand() *cobra.Command {
	var (
		topic  string
		record string
	)

	cmd := &cobra.Command{
		Use:   "write",
		Short: "Write a record to a topic",
		Long: `Write a record to a topic. The record is a JSON object whose fields
must match the topic's declared schema.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(topic, record)
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "Topic to write to (required)")
	cmd.Flags().StringVar(&record, "record", "", "Record as a JSON object (required)")
	if err := cmd.MarkFlagRequired("topic"); err != nil {
		panic(fmt.Sprintf("Failed to mark topic as required: %v", err))
	}
	if err := cmd.MarkFlagRequired("record"); err != nil {
		panic(fmt.Sprintf("Failed to mark record as required: %v", err))
	}

	return cmd
}

func runWrite(topic, recordStr string) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var record gateway.Record
	if err := json.Unmarshal([]byte(recordStr), &record); err != nil {
		return fmt.Errorf("invalid JSON record: %w", err)
	}

	fmt.Printf("Writing record to topic '%s'...\n", topic)

	response, err := client.Write(ctx, topic, record)
	if err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	fmt.Printf("✅ Record written successfully!\n")
	fmt.Printf("Timestamp: %s\n", response.Timestamp.Format("2006-01-02 15:04:05"))

	return nil
}

func newReadCommand() *cobra.Command {
	var (
		topic string
		max   int
	)

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read buffered samples from a topic",
		Long: `Drain up to --max buffered samples from a topic. Reading consumes
the samples; a second read returns only what arrived since.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(topic, max)
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "Topic to read from (required)")
	cmd.Flags().IntVar(&max, "max", 10, "Maximum samples to read")
	if err := cmd.MarkFlagRequired("topic"); err != nil {
		panic(fmt.Sprintf("Failed to mark topic as required: %v", err))
	}

	return cmd
}

func runRead(topic string, max int) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	response, err := client.Read(ctx, topic, max)
	if err != nil {
		return fmt.Errorf("failed to read samples: %w", err)
	}

	if response.Count == 0 {
		fmt.Printf("📭 No buffered samples on topic '%s'\n", topic)
		return nil
	}

	fmt.Printf("📨 %d sample(s) from topic '%s':\n\n", response.Count, topic)
	printSamples(response.Samples)

	return nil
}

// printSamples renders records as indented JSON
func printSamples(samples []gateway.Record) {
	for i, sample := range samples {
		raw, err := json.MarshalIndent(sample, "   ", "  ")
		if err != nil {
			fmt.Printf("%d. (unprintable: %v)\n", i+1, err)
			continue
		}
		fmt.Printf("%d. %s\n", i+1, string(raw))
	}
}
