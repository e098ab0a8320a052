// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evidentia-ai/evidentia/pkg/logging"
	"github.com/evidentia-ai/evidentia/services/scoping/config"
)

var (
	configPath string
	cfg        config.Config
	appLogger  *logging.Logger
)

func main() {
	defer func() {
		if appLogger != nil {
			_ = appLogger.Close()
		}
	}()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "evidentia.yaml",
		"Path to the YAML configuration file. Environment variables override it.")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded

		appLogger = logging.Setup(logging.Config{
			Level:   cfg.Logging.Level,
			LogDir:  cfg.Logging.Dir,
			Service: "evidentia",
			JSON:    cfg.Logging.JSON,
		})
	}
}
