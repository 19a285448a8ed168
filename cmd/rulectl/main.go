// Package main 规则集管理命令行：校验、发布与指令预览
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "rulectl",
	Short:         "Manage lesson rule sets",
	Long:          `Validate rule set files, publish them as new versions and preview assembled directives.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var ruleDir string

func init() {
	rootCmd.PersistentFlags().StringVar(&ruleDir, "dir", "configs/rulesets", "rule set YAML directory")
	rootCmd.AddCommand(validateCmd, seedCmd, previewCmd)
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
