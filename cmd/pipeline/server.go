package main

import (
	internal "github.com/queryinside/pipeline/internal/pipeline"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Consuming from RabbitMQ with the HTTP API",
	Run: func(cmd *cobra.Command, args []string) {
		internal.Serve(logLevel)
	},
}
