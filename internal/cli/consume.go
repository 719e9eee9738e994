package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"courserag/internal/source"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Ingest documents from Kafka",
	Long: `Consumes raw course documents from kafka.topic as kafka.consumer_group and
ingests each one. Malformed and already loaded documents are committed and
skipped; other failures leave the message uncommitted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		k := current.cfg.Kafka
		consumer := source.NewKafka(source.KafkaConfig{
			Brokers:       k.Brokers,
			Topic:         k.Topic,
			ConsumerGroup: k.ConsumerGroup,
		})
		return consumer.Consume(cmd.Context(), current.svc.HandleDocument)
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish [dir]",
	Short: "Publish a folder of documents to Kafka",
	Long:  `Reads every .txt and .md file in the folder (default: ingest.docs_dir) and writes it to kafka.topic, keyed by file name.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := current.cfg.Ingest.DocsDir
		if len(args) == 1 {
			dir = args[0]
		}
		var docs []source.Document
		for doc, err := range (source.Dir{Path: dir}).Documents(cmd.Context()) {
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		if len(docs) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No documents in %s.\n", dir)
			return nil
		}
		k := current.cfg.Kafka
		pub := source.NewPublisher(source.KafkaConfig{Brokers: k.Brokers, Topic: k.Topic})
		defer pub.Close()
		if err := pub.Publish(cmd.Context(), docs...); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Published %d documents to %s.\n", len(docs), k.Topic)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(consumeCmd, publishCmd)
}
