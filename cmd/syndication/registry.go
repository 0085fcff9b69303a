package main

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-syndication/core"
	syndicationquery "github.com/goliatone/go-syndication/query"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func sitesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sites",
		Short: "Manage partner site registrations",
	}
	cmd.AddCommand(sitesUpsertCmd(), sitesListCmd())
	return cmd
}

func sitesUpsertCmd() *cobra.Command {
	var (
		site     core.Site
		inactive bool
	)
	cmd := &cobra.Command{
		Use:   "upsert <site-id>",
		Short: "Register or update a partner site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			site.ID = args[0]
			site.Status = core.SiteStatusActive
			if inactive {
				site.Status = core.SiteStatusInactive
			}
			return withApp(cmd.Context(), func(a *app) error {
				saved, err := a.runtime.Facade.UpsertSite(cmd.Context(), site)
				if err != nil {
					return err
				}
				if outputJSON() {
					return printJSON(saved)
				}
				fmt.Fprintf(stdout(), "site %s saved (%s)\n", saved.ID, saved.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&site.Name, "name", "", "display name")
	cmd.Flags().StringVar(&site.WebhookURL, "webhook-url", "", "endpoint receiving webhook events")
	cmd.Flags().StringVar(&site.APIBaseURL, "api-base-url", "", "partner API used for removal probes")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "register the site as inactive")
	return cmd
}

func sitesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered sites",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				sites, err := a.runtime.Facade.ListSites(cmd.Context())
				if err != nil {
					return err
				}
				if outputJSON() {
					return printJSON(sites)
				}
				t := newTable("ID", "NAME", "STATUS", "WEBHOOK", "API BASE", "UPDATED")
				for _, site := range sites {
					t.AppendRow(table.Row{site.ID, site.Name, site.Status, site.WebhookURL, site.APIBaseURL, formatTime(site.UpdatedAt)})
				}
				t.Render()
				return nil
			})
		},
	}
}

func distributionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "distributions",
		Short: "Record and inspect story distributions",
	}
	cmd.AddCommand(distributionsRecordCmd(), distributionsListCmd())
	return cmd
}

func distributionsRecordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "record <story-id> <site-id>",
		Short: "Record that a story was syndicated to a site",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				dist, err := a.runtime.Facade.RecordDistribution(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if outputJSON() {
					return printJSON(dist)
				}
				fmt.Fprintf(stdout(), "distribution %s: %s -> %s (%s)\n", dist.ID, dist.StoryID, dist.SiteID, dist.Status)
				return nil
			})
		},
	}
}

func distributionsListCmd() *cobra.Command {
	var (
		siteIDs  []string
		statuses []string
	)
	cmd := &cobra.Command{
		Use:   "list <story-id>",
		Short: "List the distributions of a story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg := syndicationquery.ListDistributionsMessage{StoryID: args[0], SiteIDs: splitIDs(siteIDs)}
			for _, status := range splitIDs(statuses) {
				msg.Statuses = append(msg.Statuses, core.DistributionStatus(strings.ToLower(status)))
			}
			return withApp(cmd.Context(), func(a *app) error {
				dists, err := a.runtime.Facade.ListDistributions(cmd.Context(), msg)
				if err != nil {
					return err
				}
				if outputJSON() {
					return printJSON(dists)
				}
				t := newTable("ID", "SITE", "STATUS", "VERIFICATION", "REMOVED", "LAST VERIFIED")
				for _, d := range dists {
					t.AppendRow(table.Row{d.ID, d.SiteID, d.Status, d.VerificationStatus, formatOptionalTime(d.RemovedAt), formatOptionalTime(d.LastVerifiedAt)})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&siteIDs, "site", nil, "filter by site id")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "filter by status")
	return cmd
}
