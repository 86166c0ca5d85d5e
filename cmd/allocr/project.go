package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/christopherklint97/allocr/internal/assign"
	"github.com/christopherklint97/allocr/internal/fill"
	"github.com/christopherklint97/allocr/internal/store"
	"github.com/christopherklint97/allocr/internal/tui"
	"github.com/christopherklint97/allocr/internal/watch"
)

var fillCmd = &cobra.Command{
	Use:   "fill <project-id>",
	Short: "Show how full each position of a project is",
	Args:  cobra.ExactArgs(1),
	RunE:  runFill,
}

var watchCmd = &cobra.Command{
	Use:   "watch <project-id>",
	Short: "Periodically check a project and notify about under-filled positions",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running watcher",
	RunE:  runStop,
}

func init() {
	fillCmd.Flags().Bool("union", false, "count each day once however many people cover it")
	watchCmd.Flags().Bool("union", false, "count each day once however many people cover it")
	watchCmd.Flags().Int("threshold", 0, "unfilled percentage to notify at (default from config)")

	rootCmd.AddCommand(fillCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(stopCmd)
}

func calculator(cmd *cobra.Command) fill.Calculator {
	if union, _ := cmd.Flags().GetBool("union"); union {
		return fill.DateUnion{}
	}
	return fill.OccupantSum{}
}

func runFill(cmd *cobra.Command, args []string) error {
	projectID, err := parseID(args[0], "project id")
	if err != nil {
		return err
	}

	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	staffed, err := e.source.ProjectPositions(context.Background(), projectID)
	if err != nil {
		return fmt.Errorf("fetching project positions: %w", err)
	}
	if len(staffed) == 0 {
		fmt.Println("No positions found.")
		return nil
	}

	fmt.Print(tui.RenderFillReport(staffed, calculator(cmd), e.cfg.Watch.Threshold))
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	projectID, err := parseID(args[0], "project id")
	if err != nil {
		return err
	}

	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	var (
		retrier watch.Retrier
		db      *store.DB
	)
	if e.client != nil {
		var svc *assign.Service
		svc, db, err = e.service()
		retrier = svc
	} else {
		db, err = store.OpenDefault()
	}
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	w := watch.New(e.source, calculator(cmd), projectID, retrier, db, e.logger)
	w.Interval = e.cfg.Watch.Interval()
	w.Threshold = e.cfg.Watch.Threshold
	if t, _ := cmd.Flags().GetInt("threshold"); t > 0 {
		w.Threshold = t
	}
	w.Notify = e.cfg.Notifications.Enabled

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return w.Run(ctx)
}

func runStop(cmd *cobra.Command, args []string) error {
	pid, err := watch.ReadPID()
	if err != nil {
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending stop signal: %w", err)
	}

	fmt.Printf("Sent stop signal to allocr (PID %d)\n", pid)
	return nil
}
