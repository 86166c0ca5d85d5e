package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/christopherklint97/allocr/internal/allocate"
	"github.com/christopherklint97/allocr/internal/assign"
	"github.com/christopherklint97/allocr/internal/config"
	"github.com/christopherklint97/allocr/internal/conflict"
	"github.com/christopherklint97/allocr/internal/snapshot"
	"github.com/christopherklint97/allocr/internal/staffing"
	"github.com/christopherklint97/allocr/internal/store"
)

var rootCmd = &cobra.Command{
	Use:          "allocr",
	Short:        "Find people for project positions and keep positions filled",
	Long:         "allocr ranks candidates for a position, checks proposed allocations against everyone's capacity, and reports how full each position is.",
	SilenceUsage: true,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Open config file in your editor",
	RunE:  runConfig,
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of snapshot files",
	RunE:  runSchema,
}

var dataPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&dataPath, "data", "", "read staffing data from a JSON or YAML snapshot instead of the service")

	configCmd.Flags().String("requester", "", "set requester mode (true or false) without opening the editor")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(schemaCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env is what a command needs to talk to staffing data.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	source staffing.Source
	// client is nil when reading from a snapshot.
	client  *allocate.Client
	closeFn func()
}

func (e *env) Close() {
	if e.closeFn != nil {
		e.closeFn()
	}
}

func (e *env) resolver() *conflict.Resolver {
	return conflict.NewResolver(e.cfg.Capacity.MaxUtilization)
}

// service opens the submission log and returns the assignment workflow.
// The caller closes the returned store.
func (e *env) service() (*assign.Service, *store.DB, error) {
	if e.client == nil {
		return nil, nil, fmt.Errorf("submitting needs the staffing service; drop --data")
	}
	db, err := store.OpenDefault()
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	svc := assign.NewService(e.client, db, e.resolver(), e.logger)
	svc.Requester = e.cfg.API.Requester
	return svc, db, nil
}

func loadEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, closeLog := openLogger(cfg)
	e := &env{cfg: cfg, logger: logger, closeFn: closeLog}

	if dataPath != "" {
		snap, err := snapshot.Load(dataPath)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.source = snap
		logger.Debug("using snapshot", "path", dataPath)
		return e, nil
	}

	if cfg.API.Token == "" {
		e.Close()
		return nil, fmt.Errorf("API token not configured; run 'allocr config' to set it up or pass --data")
	}
	client := allocate.NewClient(cfg.API.Token, cfg.API.BaseURL, cfg.API.CacheTTL(), logger)
	client.SetTimeout(cfg.API.Timeout())
	e.client = client
	e.source = client
	return e, nil
}

// openLogger writes to allocr.log in the config directory; the terminal
// belongs to the TUI.
func openLogger(cfg *config.Config) (*slog.Logger, func()) {
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := config.EnsureConfigDir(); err != nil {
		return discard, nil
	}
	dir, err := config.ConfigDir()
	if err != nil {
		return discard, nil
	}
	f, err := os.OpenFile(filepath.Join(dir, "allocr.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return discard, nil
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	return logger, func() { f.Close() }
}

func runSchema(cmd *cobra.Command, args []string) error {
	out, err := snapshot.Schema()
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	if err := config.EnsureConfigDir(); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath, err := config.ConfigPath()
	if err != nil {
		return err
	}

	if err := config.WriteDefault(configPath); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}

	if v, _ := cmd.Flags().GetString("requester"); v != "" {
		requester := v == "true" || v == "1" || v == "yes"
		if err := config.SaveRequester(configPath, requester); err != nil {
			return fmt.Errorf("saving requester mode: %w", err)
		}
		fmt.Printf("Requester mode: %t\n", requester)
		return nil
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}

	fmt.Printf("Opening %s with %s...\n", configPath, editor)

	proc := os.ProcAttr{
		Files: []*os.File{os.Stdin, os.Stdout, os.Stderr},
	}
	var process *os.Process
	bin, err := exec.LookPath(editor)
	if err == nil {
		process, err = os.StartProcess(bin, []string{editor, configPath}, &proc)
	}
	if err != nil {
		// If editor fails, just print the path
		fmt.Printf("Could not open editor. Config file is at: %s\n", configPath)
		return nil
	}
	_, err = process.Wait()
	return err
}
