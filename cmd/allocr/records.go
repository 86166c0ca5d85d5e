package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/christopherklint97/allocr/internal/calendar"
	"github.com/christopherklint97/allocr/internal/daterange"
	"github.com/christopherklint97/allocr/internal/store"
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Resend submissions that failed to reach the staffing service",
	RunE:  runRetry,
}

var historyCmd = &cobra.Command{
	Use:   "history [submission-id]",
	Short: "Show recent submissions, or one submission in full",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

var exportCmd = &cobra.Command{
	Use:   "export-ics <user-id>",
	Short: "Export a person's allocations as an iCalendar file",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	historyCmd.Flags().Int("limit", 20, "number of submissions to show")
	historyCmd.Flags().String("since", "", "only show submissions since this date (e.g. \"last monday\")")

	exportCmd.Flags().String("from", "", "window start (default today)")
	exportCmd.Flags().String("to", "", "window end (default six months after the start)")
	exportCmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")
	exportCmd.Flags().String("merge", "", "merge into an existing calendar file or URL")

	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(exportCmd)
}

func runRetry(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	svc, db, err := e.service()
	if err != nil {
		return err
	}
	defer db.Close()

	res, err := svc.RetryFailed(context.Background())
	if err != nil {
		return err
	}
	if res.Attempted == 0 {
		fmt.Println("No failed submissions.")
		return nil
	}
	fmt.Printf("Retried %d: %d submitted, %d rejected, %d still failing\n",
		res.Attempted, res.Submitted, res.Rejected, res.Failed)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	since, _ := cmd.Flags().GetString("since")

	db, err := store.OpenDefault()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if len(args) == 1 {
		id, err := parseID(args[0], "submission id")
		if err != nil {
			return err
		}
		s, err := db.GetSubmission(id)
		if err != nil {
			return fmt.Errorf("fetching submission: %w", err)
		}
		if s == nil {
			return fmt.Errorf("submission %d not found", id)
		}
		printSubmission(s)
		return nil
	}

	var subs []store.Submission
	if since != "" {
		day, err := daterange.Parse(since, time.Now())
		if err != nil {
			return fmt.Errorf("--since: %w", err)
		}
		subs, err = db.SubmissionsSince(day.In(time.Local))
		if err != nil {
			return fmt.Errorf("fetching submissions: %w", err)
		}
	} else {
		subs, err = db.RecentSubmissions(limit)
		if err != nil {
			return fmt.Errorf("fetching submissions: %w", err)
		}
	}

	if len(subs) == 0 {
		fmt.Println("No submissions.")
		return nil
	}

	for _, s := range subs {
		end := "ongoing"
		if s.EndDate != nil {
			end = s.EndDate.String()
		}
		who := s.UserName
		if who == "" {
			who = fmt.Sprintf("user %d", s.UserID)
		}
		line := fmt.Sprintf("  #%-5d %s  %-6s  %-24s  pos %-6d  %3d%%  %s – %s  [%s]",
			s.ID, s.CreatedAt.Local().Format("2006-01-02 15:04"),
			s.Kind, who, s.PositionID, s.Utilization, s.StartDate, end, s.Status)
		if s.Detail != "" {
			line += "  " + s.Detail
		}
		fmt.Println(line)
	}
	return nil
}

func printSubmission(s *store.Submission) {
	end := "ongoing"
	if s.EndDate != nil {
		end = s.EndDate.String()
	}
	fmt.Printf("Submission %d (%s)\n", s.ID, s.RequestID)
	fmt.Printf("  Created:     %s\n", s.CreatedAt.Local().Format("2006-01-02 15:04"))
	fmt.Printf("  Kind:        %s\n", s.Kind)
	if s.AllocationID != 0 {
		fmt.Printf("  Allocation:  %d\n", s.AllocationID)
	}
	fmt.Printf("  User:        %d %s\n", s.UserID, s.UserName)
	fmt.Printf("  Position:    %d\n", s.PositionID)
	fmt.Printf("  Utilization: %d%%\n", s.Utilization)
	fmt.Printf("  Dates:       %s – %s\n", s.StartDate, end)
	if s.KTPeriod > 0 {
		fmt.Printf("  KT days:     %d\n", s.KTPeriod)
	}
	fmt.Printf("  Requester:   %t\n", s.Requester)
	fmt.Printf("  Decision:    %s\n", s.Decision)
	fmt.Printf("  Status:      %s\n", s.Status)
	if s.Detail != "" {
		fmt.Printf("  Detail:      %s\n", s.Detail)
	}
}

func runExport(cmd *cobra.Command, args []string) error {
	userID, err := parseID(args[0], "user id")
	if err != nil {
		return err
	}
	fromFlag, _ := cmd.Flags().GetString("from")
	toFlag, _ := cmd.Flags().GetString("to")
	output, _ := cmd.Flags().GetString("output")
	mergeSrc, _ := cmd.Flags().GetString("merge")

	now := time.Now()
	from := daterange.FromTime(now)
	if fromFlag != "" {
		if from, err = daterange.Parse(fromFlag, now); err != nil {
			return fmt.Errorf("--from: %w", err)
		}
	}
	to := from.AddDays(182)
	if toFlag != "" {
		if to, err = daterange.Parse(toFlag, now); err != nil {
			return fmt.Errorf("--to: %w", err)
		}
	}
	window := daterange.Closed(from, to)

	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := context.Background()
	candidate, err := e.source.Candidate(ctx, userID)
	if err != nil {
		return fmt.Errorf("fetching user: %w", err)
	}
	events := calendar.Events(*candidate, window)

	if mergeSrc != "" {
		r, err := calendar.Open(ctx, mergeSrc)
		if err != nil {
			return err
		}
		existing, err := calendar.Decode(r, window)
		r.Close()
		if err != nil {
			return err
		}
		events = calendar.Merge(existing, events)
	}

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if err := calendar.Export(w, events, now); err != nil {
		return err
	}
	if output != "" {
		fmt.Printf("Wrote %d events to %s\n", len(events), output)
	}
	return nil
}
