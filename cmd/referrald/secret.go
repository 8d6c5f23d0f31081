package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/referral/signature"
)

func secretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "secret",
		Short: "Generate a webhook signing secret",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), signature.GenerateSecret())
		},
	}
}
