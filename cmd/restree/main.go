package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/agentic-research/restree/api"
)

var (
	configPath string
	verbose    bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "restree.hcl", "Path to pipeline config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(checkCmd)
}

func newLogger() *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "restree"})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

var rootCmd = &cobra.Command{
	Use:   "restree",
	Short: "Generate typed accessors for a directory of resource files",
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Scan the resource directory and (re)generate the declaration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := api.Load(configPath)
		if err != nil {
			return err
		}
		mgr, err := cfg.Manager(osfs.New("."), newLogger())
		if err != nil {
			return err
		}
		res, err := mgr.Generate(cmd.Context())
		if err != nil {
			return err
		}
		if res.Written {
			fmt.Printf("Wrote %s (%d unresolved leaves)\n", cfg.Out, len(res.Warnings))
		} else {
			fmt.Printf("%s is up to date\n", cfg.Out)
		}
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Exit non-zero when the declaration file needs regeneration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := api.Load(configPath)
		if err != nil {
			return err
		}
		mgr, err := cfg.Manager(osfs.New("."), newLogger())
		if err != nil {
			return err
		}
		stale, err := mgr.Check(cmd.Context())
		if err != nil {
			return err
		}
		if stale {
			return fmt.Errorf("%s is stale, run restree generate", cfg.Out)
		}
		fmt.Printf("%s is up to date\n", cfg.Out)
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
