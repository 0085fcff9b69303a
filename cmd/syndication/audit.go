package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func eventsCmd() *cobra.Command {
	var (
		storyID string
		eventID string
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the webhook delivery log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(storyID) == "" && strings.TrimSpace(eventID) == "" {
				return fmt.Errorf("one of --story or --id is required")
			}
			return withApp(cmd.Context(), func(a *app) error {
				if eventID != "" {
					event, err := a.runtime.Facade.GetWebhookEvent(cmd.Context(), eventID)
					if err != nil {
						return err
					}
					if outputJSON() {
						return printJSON(event)
					}
					fmt.Fprintf(stdout(), "%s %s -> %s: %s (http %s, retries %d/%d)\n%s\n",
						event.ID, event.EventType, event.SiteID, event.Status,
						statusOrDash(event.HTTPStatus), event.RetryCount, event.MaxRetries, event.Payload)
					return nil
				}
				events, err := a.runtime.Facade.ListWebhookEvents(cmd.Context(), storyID)
				if err != nil {
					return err
				}
				if outputJSON() {
					return printJSON(events)
				}
				t := newTable("ID", "SITE", "EVENT", "STATUS", "HTTP", "RETRIES", "NEXT RETRY", "CREATED")
				for _, e := range events {
					t.AppendRow(table.Row{
						e.ID, e.SiteID, e.EventType, e.Status, statusOrDash(e.HTTPStatus),
						fmt.Sprintf("%d/%d", e.RetryCount, e.MaxRetries), formatOptionalTime(e.NextRetryAt), formatTime(e.CreatedAt),
					})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&storyID, "story", "", "list events for a story")
	cmd.Flags().StringVar(&eventID, "id", "", "show one event")
	return cmd
}

func alertsCmd() *cobra.Command {
	var storyID string
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List compliance alerts raised for a story",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				alerts, err := a.runtime.Facade.ListComplianceAlerts(cmd.Context(), storyID)
				if err != nil {
					return err
				}
				if outputJSON() {
					return printJSON(alerts)
				}
				t := newTable("ID", "RAISED", "ELAPSED (MIN)", "FAILED SITES")
				for _, alert := range alerts {
					sites := make([]string, 0, len(alert.FailedSites))
					for _, site := range alert.FailedSites {
						sites = append(sites, site.SiteID)
					}
					t.AppendRow(table.Row{alert.ID, formatTime(alert.RaisedAt), fmt.Sprintf("%.1f", alert.ElapsedMinutes), strings.Join(sites, ", ")})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&storyID, "story", "", "story id")
	_ = cmd.MarkFlagRequired("story")
	return cmd
}

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the background job queue",
	}
	var limit int
	pending := &cobra.Command{
		Use:   "pending",
		Short: "List queued and running jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				jobs, err := a.runtime.Stores.JobQueueStore().Pending(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if outputJSON() {
					return printJSON(jobs)
				}
				t := newTable("ID", "JOB", "KEY", "STATUS", "ATTEMPTS", "AVAILABLE", "LAST ERROR")
				for _, job := range jobs {
					t.AppendRow(table.Row{job.ID, job.JobID, job.IdempotencyKey, job.Status, job.Attempts, formatTime(job.AvailableAt), job.LastError})
				}
				t.Render()
				return nil
			})
		},
	}
	pending.Flags().IntVar(&limit, "limit", 50, "maximum jobs to list")

	var drainLimit int
	drain := &cobra.Command{
		Use:   "drain",
		Short: "Run due jobs once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				processed, err := a.runtime.Drain(cmd.Context(), drainLimit)
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout(), "ran %d jobs\n", processed)
				return nil
			})
		},
	}
	drain.Flags().IntVar(&drainLimit, "limit", 0, "stop after this many jobs (0 drains the queue)")

	cmd.AddCommand(pending, drain)
	return cmd
}
