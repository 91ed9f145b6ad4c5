package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kakei/kakeibot/internal/model"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage standing categorization rules",
		Long: `Rules are pattern-based overrides matched at read time. Adding or
disabling a rule reinterprets every matching past event on the next
read without touching the raw ledger.`,
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesAddCmd())
	cmd.AddCommand(rulesDisableCmd())

	return cmd
}

func rulesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's rules",
		RunE:  runRulesList,
	}
	cmd.Flags().String("user", "", "user handle (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runRulesList(cmd *cobra.Command, _ []string) error {
	handle, _ := cmd.Flags().GetString("user")

	settings, err := loadSettings()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := initStorage(ctx, settings)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	normalizer, err := initNormalizer(settings)
	if err != nil {
		return err
	}
	userID, err := normalizer.Normalize(handle)
	if err != nil {
		return fmt.Errorf("invalid user handle: %w", err)
	}

	rules, err := store.ListRules(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list rules: %w", err)
	}

	if len(rules) == 0 {
		cmd.Println("No rules")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPATTERN\tSETS\tSPECIFICITY\tACTIVE")
	for i := range rules {
		r := &rules[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%t\n",
			r.ID, r.Name, r.MerchantPattern, describeOverwrites(r), r.Specificity, r.Active)
	}
	return w.Flush()
}

func describeOverwrites(r *model.Rule) string {
	var parts []string
	if r.SetCategory != nil {
		parts = append(parts, "category="+*r.SetCategory)
	}
	if r.SetAmount != nil {
		parts = append(parts, fmt.Sprintf("amount=%d", *r.SetAmount))
	}
	if r.SetNote != nil {
		parts = append(parts, "note="+*r.SetNote)
	}
	return strings.Join(parts, ",")
}

func rulesAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a rule",
		RunE:  runRulesAdd,
	}

	cmd.Flags().String("user", "", "user handle (required)")
	cmd.Flags().String("name", "", "rule name (required)")
	cmd.Flags().String("pattern", "", "merchant pattern to match against notes")
	cmd.Flags().Bool("regex", false, "treat pattern as a regular expression")
	cmd.Flags().String("category-equals", "", "only match events with this raw category")
	cmd.Flags().String("set-category", "", "category to apply")
	cmd.Flags().Int64("set-amount", 0, "amount in minor units to apply")
	cmd.Flags().String("set-note", "", "note to apply")
	cmd.Flags().Int("specificity", 0, "tie-break weight, higher wins")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runRulesAdd(cmd *cobra.Command, _ []string) error {
	handle, _ := cmd.Flags().GetString("user")
	name, _ := cmd.Flags().GetString("name")
	pattern, _ := cmd.Flags().GetString("pattern")
	isRegex, _ := cmd.Flags().GetBool("regex")
	specificity, _ := cmd.Flags().GetInt("specificity")

	settings, err := loadSettings()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := initStorage(ctx, settings)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	normalizer, err := initNormalizer(settings)
	if err != nil {
		return err
	}
	userID, err := normalizer.Normalize(handle)
	if err != nil {
		return fmt.Errorf("invalid user handle: %w", err)
	}

	rule := &model.Rule{
		UserID:          userID,
		Name:            name,
		MerchantPattern: pattern,
		IsRegex:         isRegex,
		Specificity:     specificity,
	}
	if v, _ := cmd.Flags().GetString("category-equals"); cmd.Flags().Changed("category-equals") {
		rule.CategoryEquals = &v
	}
	if v, _ := cmd.Flags().GetString("set-category"); cmd.Flags().Changed("set-category") {
		rule.SetCategory = &v
	}
	if v, _ := cmd.Flags().GetInt64("set-amount"); cmd.Flags().Changed("set-amount") {
		rule.SetAmount = &v
	}
	if v, _ := cmd.Flags().GetString("set-note"); cmd.Flags().Changed("set-note") {
		rule.SetNote = &v
	}

	if err := store.CreateRule(ctx, rule); err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}

	cmd.Printf("Created rule %s\n", rule.ID)
	return nil
}

func rulesDisableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disable <rule-id>",
		Short: "Disable a rule",
		Args:  cobra.ExactArgs(1),
		RunE:  runRulesDisable,
	}
	cmd.Flags().String("user", "", "user handle (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runRulesDisable(cmd *cobra.Command, args []string) error {
	handle, _ := cmd.Flags().GetString("user")
	ruleID := args[0]

	settings, err := loadSettings()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := initStorage(ctx, settings)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	normalizer, err := initNormalizer(settings)
	if err != nil {
		return err
	}
	userID, err := normalizer.Normalize(handle)
	if err != nil {
		return fmt.Errorf("invalid user handle: %w", err)
	}

	if err := store.SetRuleActive(ctx, ruleID, userID, false); err != nil {
		return fmt.Errorf("failed to disable rule: %w", err)
	}

	cmd.Printf("Disabled rule %s\n", ruleID)
	return nil
}
