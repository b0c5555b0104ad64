package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCMD = &cobra.Command{
	Use:   "filevault-server",
	Short: "filevault REST API",
	Long:  `multi-user file storage API: accounts, folders and files backed by an object store`,
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCMD.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config file")
}

func main() {
	if err := rootCMD.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
