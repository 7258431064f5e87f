package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"grantfeed/internal/notifications"
	"grantfeed/internal/preflight"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			if cfg == nil {
				return errors.New("configuration unavailable")
			}
			status := preflight.CheckNotificationsFromConfig(cfg)
			if cfg.Notifications.NtfyTopic == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Notification not sent: %s\n", status.Detail)
				return nil
			}
			if err := notifications.NewService(cfg).Publish(cmd.Context(), notifications.EventTest, nil); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	}
}
