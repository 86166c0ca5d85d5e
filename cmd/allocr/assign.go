package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/christopherklint97/allocr/internal/allocate"
	"github.com/christopherklint97/allocr/internal/assign"
	"github.com/christopherklint97/allocr/internal/conflict"
	"github.com/christopherklint97/allocr/internal/daterange"
	"github.com/christopherklint97/allocr/internal/fill"
	"github.com/christopherklint97/allocr/internal/match"
	"github.com/christopherklint97/allocr/internal/staffing"
	"github.com/christopherklint97/allocr/internal/store"
	"github.com/christopherklint97/allocr/internal/tui"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend <position-id>",
	Short: "Browse ranked candidates for a position",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecommend,
}

var checkCmd = &cobra.Command{
	Use:   "check <user-id> <position-id>",
	Short: "Check a proposed allocation against the person's capacity",
	Args:  cobra.ExactArgs(2),
	RunE:  runCheck,
}

var assignCmd = &cobra.Command{
	Use:   "assign <user-id> <position-id>",
	Short: "Allocate a person to a position",
	Args:  cobra.ExactArgs(2),
	RunE:  runAssign,
}

var adjustCmd = &cobra.Command{
	Use:   "adjust <user-id> <allocation-id>",
	Short: "Change the utilization or dates of an existing allocation",
	Args:  cobra.ExactArgs(2),
	RunE:  runAdjust,
}

func init() {
	recommendCmd.Flags().String("search", "", "filter candidates by name or skill")
	recommendCmd.Flags().StringSlice("location", nil, "only show candidates in these locations")
	recommendCmd.Flags().Bool("plain", false, "print every page instead of opening the browser")

	for _, c := range []*cobra.Command{checkCmd, assignCmd, adjustCmd} {
		c.Flags().Int("utilization", 0, "utilization percent (default: the position's)")
		c.Flags().String("start", "", "start date, ISO or natural language (default: position start or today)")
		c.Flags().String("end", "", "end date, ISO or natural language (default: position end)")
		c.Flags().Int("kt", 0, "knowledge-transfer days before the start")
	}
	assignCmd.Flags().BoolP("yes", "y", false, "continue without asking when utilization would exceed the limit")
	adjustCmd.Flags().BoolP("yes", "y", false, "continue without asking when utilization would exceed the limit")

	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(assignCmd)
	rootCmd.AddCommand(adjustCmd)
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", what, s)
	}
	return id, nil
}

func runRecommend(cmd *cobra.Command, args []string) error {
	positionID, err := parseID(args[0], "position id")
	if err != nil {
		return err
	}
	search, _ := cmd.Flags().GetString("search")
	locations, _ := cmd.Flags().GetStringSlice("location")
	plain, _ := cmd.Flags().GetBool("plain")

	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := context.Background()
	position, err := e.source.Position(ctx, positionID)
	if err != nil {
		return fmt.Errorf("fetching position: %w", err)
	}

	if plain {
		return printRecommendations(ctx, e, *position, search, locations)
	}

	opts := tui.Options{
		Source:      e.source,
		Resolver:    e.resolver(),
		Position:    *position,
		PageSize:    e.cfg.Search.PageSize,
		Dedupe:      e.cfg.Search.Dedupe,
		Debounce:    e.cfg.Search.Debounce(),
		SwitchDelay: e.cfg.Search.SwitchDelay(),
		Locations:   locations,
		Search:      search,
	}
	if position.ProjectID != 0 {
		if staffed, err := e.source.ProjectPositions(ctx, position.ProjectID); err == nil {
			for _, sp := range staffed {
				if sp.Position.ID == position.ID {
					r := fill.OccupantSum{}.Compute(sp.Position, sp.Allocations)
					opts.Fill = &r
				}
			}
		} else {
			e.logger.Debug("fetching project positions", "project", position.ProjectID, "error", err)
		}
	}
	if e.client != nil {
		svc, db, err := e.service()
		if err != nil {
			return err
		}
		defer db.Close()
		opts.Service = svc
	}

	app := tui.NewApp(opts)
	p := tea.NewProgram(app)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running TUI: %w", err)
	}

	for _, out := range app.GetResult().Outcomes {
		fmt.Printf("%s [%s]\n", out.Decision.Message(), out.Status)
	}
	return nil
}

// printRecommendations pages through both channels and prints the buckets.
func printRecommendations(ctx context.Context, e *env, position staffing.Position, search string, locations []string) error {
	opts := []match.Option{match.WithPageSize(e.cfg.Search.PageSize)}
	if !e.cfg.Search.Dedupe {
		opts = append(opts, match.WithDuplicates())
	}
	agg := match.New(opts...)
	agg.Reset(match.Key{PositionID: position.ID, Search: search, Locations: locations})

	for {
		req, ok := agg.Next()
		if !ok {
			break
		}
		page, err := e.source.SearchTalents(ctx, staffing.SearchQuery{
			PositionID: position.ID,
			Related:    req.Channel.Related(),
			Page:       req.Page,
			Size:       req.Size,
			Search:     search,
			Locations:  locations,
		})
		if err != nil {
			return fmt.Errorf("searching talents: %w", err)
		}
		agg.IngestPage(req.Channel, match.Page{Token: req.Token, Number: req.Page, Candidates: page.Candidates, TotalCount: page.Count})
	}

	fmt.Printf("Recommendations for %s: %s (#%d)\n", position.ProjectName, position.RoleName, position.ID)
	for _, ch := range agg.View().Channels {
		fmt.Printf("\n%s (%d)\n", ch.DisplayName, ch.TotalCount)
		if ch.Buckets.Len() == 0 {
			fmt.Println("  no matches")
			continue
		}
		for _, pct := range ch.Buckets.Keys() {
			fmt.Printf("  %s match\n", pct)
			for _, c := range ch.Buckets.Get(pct) {
				fmt.Printf("    %6d  %-30s  %s\n", c.ID, c.DisplayName, c.RoleName)
			}
		}
	}
	return nil
}

// proposalFromFlags reads the proposal flags, defaulting to the position's
// utilization and dates. Start never defaults to a past day.
func proposalFromFlags(cmd *cobra.Command, position staffing.Position) (conflict.Proposal, error) {
	now := time.Now()
	util, _ := cmd.Flags().GetInt("utilization")
	if util == 0 {
		util = position.UtilizationCap
	}
	kt, _ := cmd.Flags().GetInt("kt")

	startFlag, _ := cmd.Flags().GetString("start")
	start, err := daterange.ParseOptional(startFlag, now)
	if err != nil {
		return conflict.Proposal{}, fmt.Errorf("--start: %w", err)
	}
	if start == nil {
		d := daterange.MaxDate(position.StartDate, daterange.FromTime(now))
		start = &d
	}

	endFlag, _ := cmd.Flags().GetString("end")
	end, err := daterange.ParseOptional(endFlag, now)
	if err != nil {
		return conflict.Proposal{}, fmt.Errorf("--end: %w", err)
	}
	if end == nil && !cmd.Flags().Changed("end") {
		end = position.EndDate
	}

	return assign.ProposalFor(util, start, end, kt), nil
}

func loadPair(ctx context.Context, e *env, userArg, positionArg string) (*staffing.Candidate, *staffing.Position, error) {
	userID, err := parseID(userArg, "user id")
	if err != nil {
		return nil, nil, err
	}
	positionID, err := parseID(positionArg, "position id")
	if err != nil {
		return nil, nil, err
	}
	candidate, err := e.source.Candidate(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching user: %w", err)
	}
	position, err := e.source.Position(ctx, positionID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching position: %w", err)
	}
	return candidate, position, nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := context.Background()
	candidate, position, err := loadPair(ctx, e, args[0], args[1])
	if err != nil {
		return err
	}
	proposal, err := proposalFromFlags(cmd, *position)
	if err != nil {
		return err
	}

	d := e.resolver().Evaluate(*candidate, *position, proposal)
	printDecision(*candidate, proposal, d)
	return nil
}

func printDecision(c staffing.Candidate, p conflict.Proposal, d conflict.Decision) {
	fmt.Printf("%s: %d%% from %s\n", c.DisplayName, p.Utilization, p.Range)
	fmt.Printf("Current utilization: %d%%\n", d.CurrentUtilization)
	fmt.Printf("Decision: %s\n", d.Kind)
	fmt.Println(d.Message())
	if d.Conflicting != nil {
		a := d.Conflicting
		fmt.Printf("Conflicts with allocation %d on %s (%s, %d%%)\n", a.ID, a.ProjectName, a.Range(), a.Utilization)
	}
}

func runAssign(cmd *cobra.Command, args []string) error {
	yes, _ := cmd.Flags().GetBool("yes")

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

	ctx := context.Background()
	candidate, position, err := loadPair(ctx, e, args[0], args[1])
	if err != nil {
		return err
	}
	proposal, err := proposalFromFlags(cmd, *position)
	if err != nil {
		return err
	}

	out, err := svc.Propose(ctx, *candidate, *position, proposal)
	return finish(ctx, svc, out, err, yes)
}

func runAdjust(cmd *cobra.Command, args []string) error {
	yes, _ := cmd.Flags().GetBool("yes")

	userID, err := parseID(args[0], "user id")
	if err != nil {
		return err
	}
	allocationID, err := parseID(args[1], "allocation id")
	if err != nil {
		return err
	}

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

	ctx := context.Background()
	candidate, err := e.source.Candidate(ctx, userID)
	if err != nil {
		return fmt.Errorf("fetching user: %w", err)
	}

	var current *staffing.Allocation
	for i := range candidate.Allocations {
		if candidate.Allocations[i].ID == allocationID {
			current = &candidate.Allocations[i]
		}
	}
	if current == nil {
		return fmt.Errorf("allocation %d not found for user %d", allocationID, userID)
	}
	position, err := e.source.Position(ctx, current.PositionID)
	if err != nil {
		return fmt.Errorf("fetching position: %w", err)
	}

	// Unset flags keep the allocation's current values.
	if !cmd.Flags().Changed("utilization") {
		cmd.Flags().Set("utilization", strconv.Itoa(current.Utilization))
	}
	if !cmd.Flags().Changed("start") {
		cmd.Flags().Set("start", current.StartDate.String())
	}
	if !cmd.Flags().Changed("end") && current.EndDate != nil {
		cmd.Flags().Set("end", current.EndDate.String())
	}
	if !cmd.Flags().Changed("kt") {
		cmd.Flags().Set("kt", strconv.Itoa(current.KTPeriodDays))
	}
	proposal, err := proposalFromFlags(cmd, *position)
	if err != nil {
		return err
	}

	out, err := svc.Adjust(ctx, *candidate, *position, allocationID, proposal)
	return finish(ctx, svc, out, err, yes)
}

// finish asks for confirmation when needed and reports the outcome.
func finish(ctx context.Context, svc *assign.Service, out assign.Outcome, err error, yes bool) error {
	if err != nil && out.Status == "" {
		return err
	}

	if out.Pending != nil {
		fmt.Println(out.Decision.Message())
		if !yes && !confirm("Continue?") {
			declined, derr := svc.Decline(out.Pending)
			if derr != nil {
				return derr
			}
			fmt.Printf("Cancelled (submission %d).\n", declined.SubmissionID)
			return nil
		}
		out, err = svc.Confirm(ctx, out.Pending)
	}

	switch out.Status {
	case store.StatusSubmitted:
		if out.Allocation != nil {
			fmt.Printf("Submitted allocation %d", out.Allocation.ID)
			if out.Allocation.Tentative {
				fmt.Print(" as a request")
			}
			fmt.Println(".")
		} else {
			fmt.Println("Submitted.")
		}
		return nil
	case store.StatusRejected:
		var apiErr *allocate.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("rejected by the staffing service (%d): %s", apiErr.Status, apiErr.Detail)
		}
		return fmt.Errorf("rejected: %s", out.Detail)
	case store.StatusFailed:
		return fmt.Errorf("submission failed and was saved for 'allocr retry': %w", err)
	}
	return err
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
