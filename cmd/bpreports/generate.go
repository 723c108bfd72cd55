package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noah-isme/bp-reports-api/internal/models"
)

func newGenerateCmd() *cobra.Command {
	var (
		msg  models.ReportMessage
		kind string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Build one report synchronously, bypassing the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			msg.RequesterKind = models.RequesterKind(strings.TrimSpace(kind))
			msg.Status = models.ReportStatusInProgress
			key := msg.Key()
			if missing := missingFlags(key); len(missing) > 0 {
				return fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			var surveyID *string
			if msg.SurveyID != "" {
				surveyID = &msg.SurveyID
			}
			if err := a.reports.UpsertInProgress(ctx, key, surveyID, msg.CreatedBy); err != nil {
				return fmt.Errorf("record request: %w", err)
			}
			if err := a.worker.Process(ctx, msg); err != nil {
				return err
			}

			stored, err := a.reports.GetByKey(ctx, key)
			if err != nil {
				return fmt.Errorf("read result: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "status: %s\n", stored.Status)
			fmt.Fprintf(out, "total: %d approved: %d rejected: %d pending: %d\n",
				stored.Total(), stored.Approved, stored.Rejected, stored.Pending)
			if stored.DownloadLink != nil {
				fmt.Fprintf(out, "download: %s\n", *stored.DownloadLink)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&msg.OrgID, "org", "", "requesting organisation id")
	flags.StringVar(&msg.CourseID, "course", "", "course id")
	flags.StringVar(&msg.BatchID, "batch", "", "batch id")
	flags.StringVar(&msg.SurveyID, "survey", "", "survey form id")
	flags.StringVar(&kind, "kind", "", "requester kind (MDO_ADMIN, MDO_LEADER or PC)")
	flags.StringVar(&msg.CreatedBy, "created-by", "cli", "user recorded as the requester")
	return cmd
}

func missingFlags(key models.ReportKey) []string {
	var missing []string
	if key.OrgID == "" {
		missing = append(missing, "--org")
	}
	if key.CourseID == "" {
		missing = append(missing, "--course")
	}
	if key.BatchID == "" {
		missing = append(missing, "--batch")
	}
	if key.RequesterKind == "" {
		missing = append(missing, "--kind")
	}
	return missing
}
