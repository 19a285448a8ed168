package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"lesson-forge-api/internal/application/guardrail/registry"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate every rule set file in --dir",
	Args:  cobra.NoArgs,
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, _ []string) error {
	fsys := os.DirFS(ruleDir)
	rulesets, err := registry.ReadRuleSets(fsys, ".")
	if err != nil {
		return err
	}
	// 版本重复与默认 key 冲突只有汇总后才能发现
	if _, err := registry.NewFileSource(rulesets); err != nil {
		return err
	}

	refs := make([]string, 0, len(rulesets))
	for _, rs := range rulesets {
		ref := fmt.Sprintf("%s:%s@%d", rs.Category, rs.Key, rs.Version)
		if rs.IsDefault {
			ref += " (default)"
		}
		refs = append(refs, ref)
	}
	sort.Strings(refs)

	out := cmd.OutOrStdout()
	for _, ref := range refs {
		fmt.Fprintln(out, "ok", ref)
	}
	fmt.Fprintf(out, "%d rule set(s) valid\n", len(refs))
	return nil
}
