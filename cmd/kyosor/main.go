package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "kyosor",
	Short: "Kyosor volunteer mission tracker",
	Long:  "Kyosor tracks volunteer missions: members create and join missions, chiefs finish them, and finished work is settled as volunteer hours.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (e.g. configs/kyosor.yaml); KYOSOR_* env vars override it")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
