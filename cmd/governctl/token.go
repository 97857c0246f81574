package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/upb/llm-governance/internal/auth"
)

func newTokenCmd() *cobra.Command {
	var (
		secret   string
		issuer   string
		audience string
		tenant   string
		role     string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue a signed bearer token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return errors.New("a signing secret is required: pass --secret or set JWT_SECRET")
			}

			v, err := auth.NewValidator(secret, issuer, audience)
			if err != nil {
				return err
			}
			token, err := v.Issue(auth.Principal{Subject: args[0], Tenant: tenant, Role: role}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "HMAC signing secret (default: $JWT_SECRET)")
	cmd.Flags().StringVar(&issuer, "issuer", "llm-governance", "token issuer")
	cmd.Flags().StringVar(&audience, "audience", "", "token audience")
	cmd.Flags().StringVar(&tenant, "tenant", "default", "tenant claim")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleAnalyst), "role claim: admin, analyst or viewer")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
