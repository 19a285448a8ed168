package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"lesson-forge-api/internal/application/guardrail/assembler"
	"lesson-forge-api/internal/application/guardrail/registry"
	"lesson-forge-api/internal/domain/entity"
	wfmodel "lesson-forge-api/internal/workflow/model"
)

var (
	previewRules   []string
	previewPassage string
	previewTopic   string
	previewSeed    string
	previewJSON    bool
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Assemble and print a directive from the files in --dir",
	Example: `  rulectl preview --passage "Mark 4:35-41" --rule copyright=niv-limited --seed monday
  rulectl preview --passage "Jonah 1" --rule doctrinal=reformed-baptist@1 --json`,
	Args: cobra.NoArgs,
	RunE: runPreview,
}

func init() {
	f := previewCmd.Flags()
	f.StringArrayVar(&previewRules, "rule", nil, "rule selection category=key[@version], repeatable")
	f.StringVar(&previewPassage, "passage", "", "scripture passage")
	f.StringVar(&previewTopic, "topic", "", "lesson topic")
	f.StringVar(&previewSeed, "seed", "preview", "freshness seed")
	f.BoolVar(&previewJSON, "json", false, "print fragments and manifest as JSON")
}

func runPreview(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	selections, err := parseSelections(previewRules)
	if err != nil {
		return err
	}
	src, err := registry.LoadFileSource(os.DirFS(ruleDir), ".")
	if err != nil {
		return err
	}

	directive, err := assembler.New(registry.New(src)).Assemble(ctx, &wfmodel.GenerationRequest{
		RequestID:     "rulectl-preview",
		Selections:    selections,
		Content:       wfmodel.LessonContent{Passage: previewPassage, Topic: previewTopic},
		FreshnessSeed: previewSeed,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if previewJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(directive)
	}
	fmt.Fprintln(out, "manifest:", directive.Manifest.String())
	for _, d := range directive.Dropped {
		fmt.Fprintf(out, "dropped: %s#%s (%s, kept %s)\n", d.Fragment.Ref(), d.Fragment.DirectiveID, d.Reason, d.WinnerRef)
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, directive.Render())
	return nil
}

// parseSelections 解析 category=key[@version]
func parseSelections(flags []string) (map[entity.RuleCategory]wfmodel.RuleSelection, error) {
	out := make(map[entity.RuleCategory]wfmodel.RuleSelection, len(flags))
	for _, f := range flags {
		name, ref, ok := strings.Cut(f, "=")
		if !ok || ref == "" {
			return nil, fmt.Errorf("bad --rule %q: want category=key[@version]", f)
		}
		cat, err := entity.ParseRuleCategory(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		if _, dup := out[cat]; dup {
			return nil, fmt.Errorf("category %s selected twice", cat)
		}

		sel := wfmodel.RuleSelection{Key: strings.TrimSpace(ref)}
		if key, ver, ok := strings.Cut(sel.Key, "@"); ok {
			n, err := strconv.Atoi(ver)
			if err != nil || n < 1 {
				return nil, fmt.Errorf("bad version in --rule %q", f)
			}
			sel = wfmodel.RuleSelection{Key: key, Version: n}
		}
		out[cat] = sel
	}
	return out, nil
}
