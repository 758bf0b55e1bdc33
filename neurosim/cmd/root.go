// Package cmd provides the command-line interface of neurosim.
package cmd

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

var envFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "neurosim",
	Short: "neurosim runs compartmental neuron models on a multi-clock scheduler.",
	Long: `neurosim runs compartmental neuron models on a multi-clock ` +
		`scheduler. Defaults for some flags can be given as NEUROSIM_* ` +
		`variables in the environment or in a .env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return loadEnv(envFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env",
		"file to read NEUROSIM_* defaults from")
}

// loadEnv reads a dotenv file. A missing file is not an error.
func loadEnv(filename string) error {
	err := godotenv.Load(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}

func envString(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}

	return fallback
}

func envInt(name string, fallback int) int {
	v, ok := os.LookupEnv(name)
	if !ok {
		return fallback
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("warning: ignoring %s=%q: %v", name, v, err)
		return fallback
	}

	return n
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}
}
