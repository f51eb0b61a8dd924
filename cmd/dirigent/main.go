package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kettleworks/dirigent/internal/api"
	"github.com/kettleworks/dirigent/internal/cache"
	"github.com/kettleworks/dirigent/internal/component"
	"github.com/kettleworks/dirigent/internal/components/image"
	"github.com/kettleworks/dirigent/internal/config"
	"github.com/kettleworks/dirigent/internal/joblog"
	"github.com/kettleworks/dirigent/internal/log"
	"github.com/kettleworks/dirigent/internal/schema"
	"github.com/kettleworks/dirigent/internal/status"
	"github.com/kettleworks/dirigent/internal/storage"
	"github.com/kettleworks/dirigent/internal/worker"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	// --- NOUNS ---
	case "job":
		os.Exit(runJobNoun(args))
	case "component":
		os.Exit(runComponentNoun(args))
	case "system":
		os.Exit(runSystemNoun(args))

	case "version":
		fmt.Printf("dirigent version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`dirigent - Fleet component execution framework

Usage:
  dirigent <noun> <action> [flags]

Core Resources (Nouns):
  job        Build and execute component jobs
  component  Registered action families
  system     Local services

Job Commands:
  job build  Parse an exec string into a job record (control side)
  job run    Build a job and execute it locally (worker side)

Component Commands:
  component list  Show registered components

System Commands:
  system serve    Run the inspection API in the foreground

General:
  version    Show version information
  help       Show this help message

Use 'dirigent <noun> help' for resource-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runJobNoun(args []string) int {
	if len(args) < 1 {
		printJobNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printJobNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "build":
		if hasHelpFlag(actionArgs) {
			printJobBuildHelp()
			return 0
		}
		return runJobBuild(actionArgs)
	case "run":
		if hasHelpFlag(actionArgs) {
			printJobRunHelp()
			return 0
		}
		return runJobRun(actionArgs)
	case "help":
		printJobNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown job action: %s\n", action)
		return 1
	}
}

func runComponentNoun(args []string) int {
	if len(args) < 1 {
		printComponentNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printComponentNounHelp(os.Stdout)
		return 0
	}

	switch args[0] {
	case "list":
		registry, err := newRegistry()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to build registry: %v\n", err)
			return 1
		}
		for _, name := range registry.Names() {
			fmt.Println(name)
		}
		return 0
	case "help":
		printComponentNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown component action: %s\n", args[0])
		return 1
	}
}

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	switch args[0] {
	case "serve":
		if hasHelpFlag(args[1:]) {
			printSystemServeHelp()
			return 0
		}
		return runSystemServe(args[1:])
	case "help":
		printSystemNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", args[0])
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printJobNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: dirigent job <action> [flags]")
	fmt.Fprintln(w, "Actions: build, run")
}

func printComponentNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: dirigent component <action>")
	fmt.Fprintln(w, "Actions: list")
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: dirigent system <action> [flags]")
	fmt.Fprintln(w, "Actions: serve")
}

func printJobBuildHelp() {
	fmt.Println("Usage: dirigent job build --component NAME --exec STRING [--var KEY=VALUE]...")
	fmt.Println("Run the component's server operation and print the resulting job record as JSON.")
}

func printJobRunHelp() {
	fmt.Println("Usage: dirigent job run --component NAME --exec STRING [--var KEY=VALUE]... [--config PATH] [--status-file PATH]")
	fmt.Println("Build a job record and execute it locally, streaming status to stderr.")
}

func printSystemServeHelp() {
	fmt.Println("Usage: dirigent system serve [--config PATH]")
	fmt.Println("Serve the read-only inspection API over the job log in the foreground.")
}

// --- ACTION IMPLEMENTATIONS ---

// varFlags collects repeated --var KEY=VALUE pairs.
type varFlags map[string]any

func (v varFlags) String() string { return fmt.Sprintf("%v", map[string]any(v)) }

func (v varFlags) Set(s string) error {
	key, value, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return fmt.Errorf("expected KEY=VALUE, got %q", s)
	}
	v[key] = value
	return nil
}

func runJobBuild(args []string) int {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	name := fs.String("component", "", "Component to build the job for")
	execStr := fs.String("exec", "", "Exec string to parse")
	argVars := varFlags{}
	fs.Var(argVars, "var", "Override a parsed value (repeatable, KEY=VALUE)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	log.Setup(config.Defaults().Service.LogLevel)

	job, code := buildJob(*name, *execStr, argVars)
	if job == nil {
		return code
	}

	out, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode job record: %v\n", err)
		return 1
	}
	fmt.Println(string(out))
	return 0
}

// buildJob runs the named component's server operation over execStr. A nil
// job means the caller should exit with the returned code: 0 after rendered
// help, 1 on any failure.
func buildJob(name, execStr string, argVars map[string]any) (*component.Job, int) {
	if name == "" {
		fmt.Fprintln(os.Stderr, "--component is required")
		return nil, 1
	}

	registry, err := newRegistry()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build registry: %v\n", err)
		return nil, 1
	}
	comp, ok := registry.Get(name)
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown component %q; see 'dirigent component list'\n", name)
		return nil, 1
	}

	job := &component.Job{}
	if err := comp.Server(strings.Fields(execStr), job, argVars); err != nil {
		var help *schema.HelpError
		if errors.As(err, &help) {
			fmt.Println(help.Text)
			return nil, 0
		}
		fmt.Fprintf(os.Stderr, "Invalid exec string: %v\n", err)
		return nil, 1
	}
	return job, 0
}

func runJobRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	name := fs.String("component", "", "Component to run")
	execStr := fs.String("exec", "", "Exec string to parse")
	configPath := fs.String("config", "", "Path to configuration file")
	statusFile := fs.String("status-file", "", "Also write raw status frames to this file")
	argVars := varFlags{}
	fs.Var(argVars, "var", "Override a parsed value (repeatable, KEY=VALUE)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, code := loadConfig(*configPath)
	if cfg == nil {
		return code
	}
	log.Setup(cfg.Service.LogLevel)

	job, code := buildJob(*name, *execStr, argVars)
	if job == nil {
		return code
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var jobs *joblog.Log
	if *configPath != "" {
		db, err := storage.OpenSQLite(ctx, cfg.State.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
			return 1
		}
		defer db.Close()
		jobs = joblog.New(db)
	}

	var ch status.Channel = consoleChannel{}
	if *statusFile != "" {
		f, err := os.Create(*statusFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create status file: %v\n", err)
			return 1
		}
		defer f.Close()
		ch = fanoutChannel{consoleChannel{}, status.NewStreamChannel(f)}
	}

	store := cache.New()
	w := worker.New(registry(), store, jobs, worker.Config{ResultTTL: cfg.Cache.ResultTTL.Std()})

	res, err := w.Execute(ctx, ch, job)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status channel failed: %v\n", err)
		return 1
	}

	if len(res.Output) > 0 {
		os.Stdout.Write(res.Output)
	}
	if len(res.Error) > 0 {
		os.Stderr.Write(res.Error)
	}
	if !res.OK {
		return 1
	}
	return 0
}

func runSystemServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, code := loadConfig(*configPath)
	if cfg == nil {
		return code
	}
	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("dirigent starting", "version", version, "listen", cfg.API.Listen)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	srv := api.New(api.Config{Listen: cfg.API.Listen}, joblog.New(db), cache.New())
	if err := srv.Start(ctx); err != nil {
		logger.Error("inspection server failed", "error", err)
		return 1
	}
	return 0
}

// --- SHARED HELPERS ---

func loadConfig(path string) (*config.Config, int) {
	if path == "" {
		return config.Defaults(), 0
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, 1
	}
	return cfg, 0
}

func newRegistry() (*component.Registry, error) {
	r := component.NewRegistry()
	if err := r.Register(image.New()); err != nil {
		return nil, err
	}
	return r, nil
}

// registry panics on a duplicate registration, which cannot happen with the
// fixed set above; buildJob already validated it constructs cleanly.
func registry() *component.Registry {
	r, err := newRegistry()
	if err != nil {
		panic(err)
	}
	return r
}

// consoleChannel renders status frames on stderr for interactive runs.
type consoleChannel struct{}

func (consoleChannel) SendMultipart(frames ...[]byte) error {
	if len(frames) != 3 {
		return fmt.Errorf("expected 3 status frames, got %d", len(frames))
	}
	info := frames[2]
	if bytes.Equal(info, status.NullByte) {
		info = nil
	}
	fmt.Fprintf(os.Stderr, "[%s] %s %s\n", frames[0], status.StateName(frames[1]), info)
	return nil
}

// fanoutChannel delivers each message to every channel, stopping at the
// first failure.
type fanoutChannel []status.Channel

func (f fanoutChannel) SendMultipart(frames ...[]byte) error {
	for _, ch := range f {
		if err := ch.SendMultipart(frames...); err != nil {
			return err
		}
	}
	return nil
}
