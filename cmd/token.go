package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/satriahrh/oralexam/internal/auth"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a host token for the websocket endpoint",
	Long: `Issue a JWT signed with HOST_JWT_SECRET.

Pass it to /ws as "Authorization: Bearer <token>" or as ?token=<token>.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := os.Getenv("HOST_JWT_SECRET")
		if secret == "" {
			return errors.New("HOST_JWT_SECRET is not set")
		}
		signer, err := auth.NewSigner(secret)
		if err != nil {
			return err
		}
		token, err := signer.GenerateHostToken(tokenSubject, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "host", "host identity stored in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
