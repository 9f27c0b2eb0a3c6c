package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/config"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/internal/fsutil"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/session"
	"go.uber.org/zap"
)

// 本地运行模式
const (
	DefaultCLIQuery = "Research AI agents and write a brief report about them."
	cliDirPrefix    = "agent_cli_"
	stepSeparator   = "---"
)

// =============================================================================
// 🧪 run 命令
// =============================================================================

func runQuery(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	query := fs.String("query", DefaultCLIQuery, "Query to run")
	limit := fs.Int("recursion-limit", config.DefaultRecursionLimit, "Maximum number of steps")
	apiMode := fs.Bool("api", false, "Run in API server mode")
	host := fs.String("host", "", "API server listen address")
	port := fs.Int("port", 0, "API server listen port")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *apiMode {
		if *host != "" {
			cfg.Server.Host = *host
		}
		if *port > 0 {
			cfg.Server.HTTPPort = *port
		}
		if err := serve(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// 步骤输出占用 stdout
	cfg.Log.OutputPaths = []string{"stderr"}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := sharedDeps{cfg: cfg, logger: logger}
	if err := runLocal(ctx, cfg.Session.BaseDir, deps.SharedFunc(), *query, *limit, os.Stdout, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		os.Exit(1)
	}
}

// runLocal 在临时会话目录中执行一次查询并打印每一步. 目录在返回前删除,
// 删除前列出其中生成的文件.
func runLocal(ctx context.Context, baseDir string, shared session.SharedFunc, query string, limit int, out io.Writer, logger *zap.Logger, opts ...session.StoreOption) error {
	store := session.NewStore(session.StoreConfig{BaseDir: baseDir, DirPrefix: cliDirPrefix}, shared, logger, opts...)
	defer func() { _ = store.Close() }()

	sess, err := store.Create(ctx)
	if err != nil {
		return err
	}

	var runErr error
	for ev := range session.NewPipeline(logger).Stream(ctx, sess, query, limit) {
		printEvent(out, ev)
		if ev.Type == session.EventError {
			runErr = ev.Err
			if runErr == nil {
				runErr = errors.New(ev.Content)
			}
		}
	}

	if files, err := fsutil.ListFiles(sess.WorkDir()); err == nil && len(files) > 0 {
		fmt.Fprintf(out, "files: %s\n", strings.Join(files, ", "))
	}
	return runErr
}

func printEvent(out io.Writer, ev session.Event) {
	switch ev.Type {
	case session.EventStep:
		m := ev.Metadata
		header := fmt.Sprintf("[%d] %s/%s", m.Step, m.Graph, m.Node)
		if m.Next != "" {
			header += " -> " + m.Next
		}
		fmt.Fprintln(out, header)
		if ev.Content != "" {
			fmt.Fprintln(out, ev.Content)
		}
		fmt.Fprintln(out, stepSeparator)
	case session.EventError:
		fmt.Fprintf(out, "ERROR: %s\n", ev.Content)
	case session.EventEnd:
		fmt.Fprintln(out, ev.Content)
	}
}
