package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/callwarden/callwarden/internal/rules"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage compliance rules",
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesImportCmd())
	cmd.AddCommand(rulesValidateCmd())
	cmd.AddCommand(rulesEnableCmd())
	cmd.AddCommand(rulesDisableCmd())

	return cmd
}

func rulesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List compliance rules",
		RunE:  runRulesList,
	}

	cmd.Flags().Bool("all", false, "Include inactive rules")

	return cmd
}

func runRulesList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	all, _ := cmd.Flags().GetBool("all")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close storage", "error", closeErr)
		}
	}()

	ruleList, err := store.ListRules(ctx, all)
	if err != nil {
		return fmt.Errorf("failed to list rules: %w", err)
	}

	if len(ruleList) == 0 {
		fmt.Println("No rules found. Use 'callwarden rules import' to load a rule file.") //nolint:forbidigo // User-facing output
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() {
		if flushErr := w.Flush(); flushErr != nil {
			slog.Error("failed to flush table writer", "error", flushErr)
		}
	}()

	fmt.Fprintln(w, "CODE\tVER\tCATEGORY\tSEVERITY\tRISK\tPATTERNS\tTRIGGERS\tACTIVE")
	for _, rule := range ruleList {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%d\t%d\t%v\n",
			rule.RuleCode, rule.Version, rule.Category, rule.Severity,
			rule.RiskScore, len(rule.Patterns), rule.TriggerCount, rule.IsActive)
	}

	return nil
}

func rulesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import rules from a JSON file",
		Long: `Validate a JSON rule file against the rule schema and upsert its rules
by rule code. Rules whose patterns fail to compile are quarantined and
reported; the rest of the file still imports.`,
		Args: cobra.ExactArgs(1),
		RunE: runRulesImport,
	}
}

func runRulesImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read rule file: %w", err)
	}

	parsed, err := rules.ParseFile(data)
	if err != nil {
		return fmt.Errorf("rule file is invalid: %w", err)
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close storage", "error", closeErr)
		}
	}()

	result, err := rules.Import(ctx, store, parsed)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Printf("Imported %d rules (%d created, %d updated)\n", //nolint:forbidigo // User-facing output
		result.Created+result.Updated, result.Created, result.Updated)
	if len(result.Quarantined) > 0 {
		fmt.Printf("Quarantined: %s\n", strings.Join(result.Quarantined, ", ")) //nolint:forbidigo // User-facing output
	}

	return nil
}

func rulesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a rule file without importing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read rule file: %w", err)
			}

			parsed, err := rules.ParseFile(data)
			if err != nil {
				return fmt.Errorf("rule file is invalid: %w", err)
			}

			fmt.Printf("%s: %d rules, schema valid\n", args[0], len(parsed)) //nolint:forbidigo // User-facing output
			return nil
		},
	}
}

func rulesEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <rule-code>",
		Short: "Activate a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setRuleActive(cmd, args[0], true)
		},
	}
}

func rulesDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <rule-code>",
		Short: "Deactivate a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setRuleActive(cmd, args[0], false)
		},
	}
}

func setRuleActive(cmd *cobra.Command, ruleCode string, active bool) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close storage", "error", closeErr)
		}
	}()

	if err := store.SetRuleActive(ctx, ruleCode, active); err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	state := "disabled"
	if active {
		state = "enabled"
	}
	fmt.Printf("Rule %s %s\n", ruleCode, state) //nolint:forbidigo // User-facing output
	return nil
}
