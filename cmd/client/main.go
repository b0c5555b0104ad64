package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL   string
	sessionFile string
)

var rootCMD = &cobra.Command{
	Use:           "filevault",
	Short:         "filevault command line client",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCMD.PersistentFlags().StringVar(&serverURL, "server", "", "API base url (default http://localhost:5000 or the saved one)")
	rootCMD.PersistentFlags().StringVar(&sessionFile, "state", defaultSessionFile(), "path of the saved client state")
}

func main() {
	if err := rootCMD.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
