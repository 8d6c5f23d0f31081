package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/xraph/referral/event"
	"github.com/xraph/referral/ingest"
)

// signCmd prints a signed sample delivery, for exercising a running
// service with curl.
func (c *cli) signCmd() *cobra.Command {
	var (
		eventType string
		userID    string
		refCode   string
		msgID     string
	)

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print a signed sample webhook delivery",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := c.load()
			if err != nil {
				return err
			}
			if cfg.Service.Secret == "" {
				return errors.New("a signing secret is required (--secret or REFERRAL_SERVICE_SECRET)")
			}

			data := map[string]any{"id": userID}
			if refCode != "" {
				data["unsafe_metadata"] = map[string]any{"referralCode": refCode}
			}
			body, err := json.Marshal(map[string]any{
				"type":   eventType,
				"object": "event",
				"data":   data,
			})
			if err != nil {
				return err
			}

			if msgID == "" {
				msgID = "msg_" + uuid.NewString()
			}
			h, err := ingest.SignedHeaders(cfg.Service.Secret, msgID, time.Now(), body)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			names := make([]string, 0, len(h))
			for name := range h {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "%s: %s\n", name, h.Get(name))
			}
			fmt.Fprintf(out, "\n%s\n", body)
			return nil
		},
	}

	cmd.Flags().String("secret", "", "webhook signing secret (defaults to service.secret)")
	_ = c.v.BindPFlag("service.secret", cmd.Flags().Lookup("secret"))
	cmd.Flags().StringVar(&eventType, "type", event.TypeUserCreated, "event type")
	cmd.Flags().StringVar(&userID, "user", "user_"+uuid.NewString()[:8], "user id")
	cmd.Flags().StringVar(&refCode, "ref", "", "referral code placed in unsafe_metadata")
	cmd.Flags().StringVar(&msgID, "id", "", "delivery id (random when empty)")
	return cmd
}
