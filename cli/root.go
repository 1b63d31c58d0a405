// Package cli wires the NoteBase commands. The serve command runs the HTTP
// API and the worker command runs the indexing consumer; both share one
// configuration structure.
package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"notebase.evalgo.org/common"
	"notebase.evalgo.org/config"
)

var cfgFile string

// RootCmd is the notebase entry point.
var RootCmd = &cobra.Command{
	Use:   "notebase",
	Short: "notebook-grounded content indexing and retrieval backend",
	Long: `NoteBase ingests user content (uploaded files, web URLs, raw text),
indexes it into a semantic vector store, and serves notebook-scoped
retrieval for chat agents.

The serve command runs the REST API; the worker command consumes change
events and maintains the vector index. Configuration comes from
config.yaml, .env, and NOTEBASE_-prefixed environment variables.`,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default searches ./config.yaml, ./configs, ~/.notebase, /etc/notebase)")
	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(workerCmd)
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig("NOTEBASE", cfgFile)
}

// configureLogging applies the configured level and format to the shared
// logger.
func configureLogging(cfg config.LoggingConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	common.Logger.SetLevel(level)
	if cfg.Format == "json" {
		common.Logger.SetFormatter(&logrus.JSONFormatter{})
	}
}
