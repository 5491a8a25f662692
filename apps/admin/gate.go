package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/trezcool/masomo-admin/core/featureswitch"
	"github.com/trezcool/masomo-admin/services/featurestatus"
)

func (cli *commandLine) gateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Resolve the admission gate of a school, the way the dashboard does",
		RunE: func(cmd *cobra.Command, args []string) error {
			school, _ := cmd.Flags().GetString("school")
			role, _ := cmd.Flags().GetString("role")
			remote, _ := cmd.Flags().GetBool("remote")
			token, _ := cmd.Flags().GetString("token")
			if school == "" {
				return usageErr(cmd)
			}
			return cli.gate(cmd.Context(), school, role, token, remote)
		},
	}
	cmd.Flags().String("school", "", "School ID")
	cmd.Flags().String("role", "", "Current role of the dashboard user")
	cmd.Flags().Bool("remote", false, "Ask the feature-status API instead of evaluating local rules")
	cmd.Flags().String("token", "", "Bearer token used with --remote")
	return cmd
}

func (cli *commandLine) gate(ctx context.Context, school, role, token string, remote bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	client := cli.ruleSvc.ClientFor(school)
	if remote {
		sess := featureswitch.Session{SchoolID: school, Token: token}
		client = featurestatus.NewClient(cli.conf).ForSession(sess)
	}
	resolver := featureswitch.NewResolver(
		client,
		featureswitch.WithTimeout(cli.conf.FeatureStatus.Timeout),
		featureswitch.WithRootRole(cli.conf.FeatureStatus.RootRole),
	)
	resolver.Resolve(ctx, role)
	snap := resolver.Snapshot()

	if !isTerminalFunc(cli.out) {
		enc := json.NewEncoder(cli.out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	res := snap.Resolution
	w := tabwriter.NewWriter(cli.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "school\t%s\n", school)
	_, _ = fmt.Fprintf(w, "state\t%s\n", snap.State)
	_, _ = fmt.Fprintf(w, "bypassed\t%t\n", snap.Bypassed)
	_, _ = fmt.Fprintf(w, "blocked\t%t\n", res.IsBlocked)
	_, _ = fmt.Fprintf(w, "billing blocked\t%t\n", res.BillingBlocked)
	_, _ = fmt.Fprintf(w, "maintenance blocked\t%t\n", res.MaintenanceBlocked)
	_, _ = fmt.Fprintf(w, "message\t%s\n", res.BlockMessage)
	if snap.Err != "" {
		_, _ = fmt.Fprintf(w, "error\t%s\n", snap.Err)
	}
	return w.Flush()
}
