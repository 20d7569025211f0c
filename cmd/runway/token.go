package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/swayz032/aspire-runway/pkg/auth"
	"github.com/swayz032/aspire-runway/pkg/config"
)

func newTokenCmd() *cobra.Command {
	var (
		cfgPath  string
		p        auth.Principal
		approver bool
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator token signed with auth_secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if cfg.AuthSecret == "" {
				return errors.New("auth_secret is not configured")
			}
			keys, err := auth.NewHMACKeySet("", []byte(cfg.AuthSecret))
			if err != nil {
				return err
			}
			if approver {
				p.Roles = append(p.Roles, auth.RoleApprover)
			}
			tok, err := auth.Issue(cmd.Context(), keys, p, ttl, time.Now())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to a runway.yaml config file")
	cmd.Flags().StringVar(&p.ID, "subject", "", "operator id (required)")
	cmd.Flags().StringVar(&p.SuiteID, "suite", "", "suite the token is bound to (required)")
	cmd.Flags().StringVar(&p.OfficeID, "office", "", "office the token is bound to; empty grants the whole suite")
	cmd.Flags().BoolVar(&approver, "approver", false, "allow approving and denying actions")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("suite")
	return cmd
}
