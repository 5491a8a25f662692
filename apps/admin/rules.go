package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/masomo-admin/core"
	"github.com/trezcool/masomo-admin/core/featureswitch"
)

func (cli *commandLine) rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage billing and maintenance restriction rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return usageErr(cmd)
		},
	}
	cmd.AddCommand(
		cli.rulesListCmd(),
		cli.rulesAddCmd(),
		cli.rulesToggleCmd("enable", "Enable a restriction rule", true),
		cli.rulesToggleCmd("disable", "Disable a restriction rule", false),
		cli.rulesDeleteCmd(),
	)
	return cmd
}

func (cli *commandLine) rulesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List restriction rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := featureswitch.QueryFilter{}
			filter.Domain, _ = cmd.Flags().GetString("domain")
			filter.FeatureName, _ = cmd.Flags().GetString("feature")
			if cmd.Flags().Changed("enabled") {
				enabled, _ := cmd.Flags().GetBool("enabled")
				filter.IsEnabled = &enabled
			}
			filter.Clean()
			ordering, _ := cmd.Flags().GetString("ordering")

			rules, err := cli.ruleSvc.QueryRules(context.Background(), filter, core.ParseOrderings(ordering)...)
			if err != nil {
				return err
			}
			return cli.printRules(rules)
		},
	}
	cmd.Flags().String("domain", "", "Only rules of this domain (billing|maintenance)")
	cmd.Flags().String("feature", "", "Only rules of this feature")
	cmd.Flags().Bool("enabled", false, "Only enabled (or disabled, with --enabled=false) rules")
	cmd.Flags().String("ordering", "", "Comma separated fields, prefixed with - for descending order")
	return cmd
}

func (cli *commandLine) rulesAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a restriction rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			var nr featureswitch.NewRule
			nr.Domain, _ = cmd.Flags().GetString("domain")
			nr.FeatureName, _ = cmd.Flags().GetString("feature")
			nr.ScopeType, _ = cmd.Flags().GetString("scope")
			nr.ScopeID, _ = cmd.Flags().GetString("scope-id")
			nr.Message, _ = cmd.Flags().GetString("message")
			if cmd.Flags().Changed("percentage") {
				pct, _ := cmd.Flags().GetInt("percentage")
				nr.Percentage = &pct
			}
			if disabled, _ := cmd.Flags().GetBool("disabled"); disabled {
				enabled := false
				nr.IsEnabled = &enabled
			}

			var err error
			if nr.StartDate, err = dateFlag(cmd, "start"); err != nil {
				return err
			}
			if nr.EndDate, err = dateFlag(cmd, "end"); err != nil {
				return err
			}

			if err = nr.Validate(cli.validate); err != nil {
				return cli.validationErr(err)
			}
			rule, err := cli.ruleSvc.CreateRule(context.Background(), nr)
			if err != nil {
				return err
			}
			return cli.printRules([]featureswitch.Rule{rule})
		},
	}
	cmd.Flags().String("domain", "", "billing|maintenance")
	cmd.Flags().String("feature", "", "Feature name, e.g. admission")
	cmd.Flags().String("scope", string(featureswitch.ScopeGlobal), "global|school|other")
	cmd.Flags().String("scope-id", "", "School ID of school scoped rules")
	cmd.Flags().Int("percentage", 100, "Rollout percentage")
	cmd.Flags().String("message", "", "Message shown to blocked users")
	cmd.Flags().String("start", "", "Start of the restriction (RFC3339)")
	cmd.Flags().String("end", "", "End of the restriction (RFC3339)")
	cmd.Flags().Bool("disabled", false, "Create the rule disabled")
	return cmd
}

func (cli *commandLine) rulesToggleCmd(use, short string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageErr(cmd)
			}
			rule, err := cli.ruleSvc.UpdateRule(context.Background(), args[0], featureswitch.UpdateRule{IsEnabled: &enabled})
			if err != nil {
				return err
			}
			return cli.printRules([]featureswitch.Rule{rule})
		},
	}
}

func (cli *commandLine) rulesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete ID...",
		Aliases: []string{"rm"},
		Short:   "Delete restriction rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return usageErr(cmd)
			}
			if err := cli.ruleSvc.DeleteRules(context.Background(), args...); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cli.out, "%d rule(s) deleted\n", len(args))
			return nil
		},
	}
}

func dateFlag(cmd *cobra.Command, name string) (*time.Time, error) {
	val, _ := cmd.Flags().GetString(name)
	if val == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil, errors.Errorf("--%s must be an RFC3339 date (got '%s')", name, val)
	}
	t = t.UTC()
	return &t, nil
}

// validationErr flattens validator errors into a single "field: message" error.
func (cli *commandLine) validationErr(err error) error {
	vErrs, ok := errors.Cause(err).(validator.ValidationErrors)
	if !ok {
		return err
	}
	fldErrs := core.TranslateValidationErrors(vErrs, cli.translator)
	msgs := make([]string, 0, len(fldErrs))
	for fld, msg := range fldErrs {
		msgs = append(msgs, fld+": "+msg)
	}
	sort.Strings(msgs)
	return errors.New(strings.Join(msgs, "; "))
}

// printRules writes a table on terminals and JSON otherwise.
func (cli *commandLine) printRules(rules []featureswitch.Rule) error {
	if rules == nil {
		rules = []featureswitch.Rule{}
	}
	if !isTerminalFunc(cli.out) {
		enc := json.NewEncoder(cli.out)
		enc.SetIndent("", "  ")
		return enc.Encode(rules)
	}

	w := tabwriter.NewWriter(cli.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tDOMAIN\tFEATURE\tENABLED\tSCOPE\tROLLOUT\tMESSAGE")
	for _, r := range rules {
		scope := string(r.ScopeType)
		if r.ScopeID != nil {
			scope += ":" + *r.ScopeID
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d%%\t%s\n",
			r.ID, r.Domain, r.FeatureName, strconv.FormatBool(r.IsEnabled), scope, r.Percentage, r.Message)
	}
	return w.Flush()
}
