package main

import (
	internal "github.com/queryinside/pipeline/internal/pipeline"
	"github.com/spf13/cobra"
)

var path string

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Dispatching envelopes from local files and directories",
	Run: func(cmd *cobra.Command, args []string) {
		internal.Local(path, logLevel)
	},
}

func init() {
	localCmd.Flags().StringVarP(&path, "path", "p", ".", "The path to read from. Can be a file or a directory.")
}
