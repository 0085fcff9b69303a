package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-syndication/core"
	"github.com/spf13/cobra"
)

func revokeCmd() *cobra.Command {
	var (
		storyID string
		siteIDs []string
		reason  string
	)
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Notify sites that a story was withdrawn and schedule verification",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				result, err := a.runtime.Facade.RevokeContent(cmd.Context(), core.RevokeRequest{
					StoryID: storyID,
					SiteIDs: splitIDs(siteIDs),
					Reason:  reason,
				})
				if err != nil {
					return err
				}
				if outputJSON() {
					return printJSON(result)
				}
				fmt.Fprintln(stdout(), result.Message)
				if len(result.Results) > 0 {
					printDeliveries(result.Results)
				}
				if result.VerificationScheduled {
					fmt.Fprintf(stdout(), "verification scheduled for %s\n",
						formatTime(result.RevokedAt.Add(a.runtime.Config.Verification.Delay)))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&storyID, "story", "", "story id")
	cmd.Flags().StringSliceVar(&siteIDs, "site", nil, "restrict to these site ids")
	cmd.Flags().StringVar(&reason, "reason", "", "revocation reason sent to partners")
	_ = cmd.MarkFlagRequired("story")
	return cmd
}

func verifyCmd() *cobra.Command {
	var (
		storyID   string
		siteIDs   []string
		revokedAt string
		recheck   bool
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Probe partner APIs to confirm a revoked story is gone",
		RunE: func(cmd *cobra.Command, _ []string) error {
			at := time.Now().UTC()
			if strings.TrimSpace(revokedAt) != "" {
				parsed, err := time.Parse(time.RFC3339, revokedAt)
				if err != nil {
					return fmt.Errorf("--revoked-at: %w", err)
				}
				at = parsed.UTC()
			}
			return withApp(cmd.Context(), func(a *app) error {
				result, err := a.runtime.Facade.VerifyRemoval(cmd.Context(), core.VerifyRequest{
					StoryID:             storyID,
					SiteIDs:             splitIDs(siteIDs),
					RevocationTimestamp: at,
					Recheck:             recheck,
				})
				if err != nil {
					return err
				}
				if outputJSON() {
					return printJSON(result)
				}
				fmt.Fprintf(stdout(), "story %s: all verified %t, within deadline %t, elapsed %.1f min\n",
					result.StoryID, result.AllVerified, result.WithinDeadline, result.ElapsedMinutes)
				printVerifications(result.Results)
				if result.AlertRaised {
					fmt.Fprintln(stdout(), "compliance alert raised")
				}
				if result.RecheckScheduled {
					fmt.Fprintln(stdout(), "recheck scheduled at the compliance deadline")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&storyID, "story", "", "story id")
	cmd.Flags().StringSliceVar(&siteIDs, "site", nil, "site ids to probe")
	cmd.Flags().StringVar(&revokedAt, "revoked-at", "", "revocation time (RFC3339, default now)")
	cmd.Flags().BoolVar(&recheck, "recheck", false, "treat this run as the deadline recheck")
	_ = cmd.MarkFlagRequired("story")
	_ = cmd.MarkFlagRequired("site")
	return cmd
}

func retryCmd() *cobra.Command {
	var batchSize int
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Redeliver failed webhooks that are due",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				result, err := a.runtime.Facade.RetryFailedWebhooks(cmd.Context(), core.RetryRequest{BatchSize: batchSize})
				if err != nil {
					return err
				}
				if outputJSON() {
					return printJSON(result)
				}
				fmt.Fprintf(stdout(), "retried %d: %d succeeded, %d still failing, %d exhausted\n",
					result.Retried, result.Succeeded, result.StillFailing, result.Exhausted)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "events per sweep (default from config)")
	return cmd
}

func notifyCmd() *cobra.Command {
	var (
		event   string
		storyID string
		siteIDs []string
		data    map[string]string
	)
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a content update or consent event to partner sites",
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload := make(map[string]any, len(data))
			for key, value := range data {
				payload[key] = value
			}
			return withApp(cmd.Context(), func(a *app) error {
				result, err := a.runtime.Facade.NotifySites(cmd.Context(), core.NotifyRequest{
					Event:   core.EventType(strings.TrimSpace(event)),
					StoryID: storyID,
					SiteIDs: splitIDs(siteIDs),
					Data:    payload,
				})
				if err != nil {
					return err
				}
				if outputJSON() {
					return printJSON(result)
				}
				fmt.Fprintln(stdout(), result.Message)
				if len(result.Results) > 0 {
					printDeliveries(result.Results)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&event, "event", "", "content_updated, consent_approved or consent_denied")
	cmd.Flags().StringVar(&storyID, "story", "", "story id")
	cmd.Flags().StringSliceVar(&siteIDs, "site", nil, "restrict to these site ids")
	cmd.Flags().StringToStringVar(&data, "data", nil, "extra payload fields (key=value)")
	_ = cmd.MarkFlagRequired("event")
	_ = cmd.MarkFlagRequired("story")
	return cmd
}
