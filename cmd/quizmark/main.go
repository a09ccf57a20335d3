package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pavelanni/quizmark/internal/assist"
	"github.com/pavelanni/quizmark/internal/cache"
	"github.com/pavelanni/quizmark/internal/export"
	"github.com/pavelanni/quizmark/internal/grading"
	"github.com/pavelanni/quizmark/internal/handler"
	appI18n "github.com/pavelanni/quizmark/internal/i18n"
	"github.com/pavelanni/quizmark/internal/llm"
	"github.com/pavelanni/quizmark/internal/llm/prompts"
	"github.com/pavelanni/quizmark/internal/metrics"
	"github.com/pavelanni/quizmark/internal/model"
	"github.com/pavelanni/quizmark/internal/quizmd"
	"github.com/pavelanni/quizmark/internal/store"
)

//go:generate templ generate -path ../../internal/handler/views

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "quizmark",
		Short: "Markdown quizzes with AI-assisted grading",
	}

	serve := serveCmd()
	root.AddCommand(serve, checkCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	f.String("log-file", "", "Also write logs to this file, rotated by size")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "quizmark.db", "SQLite database path")
	f.StringP("lang", "l", "fr", "Default UI language (fr, en)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /quiz)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("admin-password", "", "Initial admin password (or set QUIZMARK_ADMIN_PASSWORD)")
	f.String("prompts-dir", "", "Directory with custom prompt files; missing files use the built-in defaults")
	f.String("llm-provider", "openai", "Model backend (openai, ollama)")
	f.String("llm-url", "", "API base URL (empty for the provider default)")
	f.String("llm-key", "", "API key for OpenAI-compatible backends")
	f.String("llm-model", "gpt-4o-mini", "Model name")
	f.Float64("llm-rate", 2, "Maximum model calls per second (0 = unlimited)")
	f.Int("llm-burst", 4, "Burst of model calls allowed above the rate")
	f.Duration("grading-timeout", 60*time.Second, "Timeout of each grading call")
	f.Int("max-concurrent", 4, "Open answers graded in parallel per submission")
	f.Bool("assist", true, "Enable quiz generation and submission analysis")
	f.String("redis-addr", "", "Redis address for the grading cache (empty disables caching)")
	f.String("redis-password", "", "Redis password")
	f.Duration("cache-ttl", 7*24*time.Hour, "Lifetime of cached grading responses (0 = forever)")
	f.Int64("default-tenant", 0, "Tenant whose quota applies to users without a tenant (0 = none)")
	addLogFlags(cmd)
	return cmd
}

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check FILE...",
		Short: "Parse and validate quiz Markdown files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCheck,
	}
	f := cmd.Flags()
	f.StringP("lang", "l", "fr", "Language of the diagnostics (fr, en)")
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the results of a quiz",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "quizmark.db", "SQLite database path")
	f.Int64("quiz", 0, "Quiz ID (required)")
	f.String("format", "json", "Output format (json, xlsx)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("quiz")
	return cmd
}

func setupLogging(v *viper.Viper) {
	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if path := v.GetString("log-file"); path != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	}

	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(out, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(out, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("QUIZMARK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("quizmark")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/quizmark")
	v.AddConfigPath("/etc/quizmark")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// completers builds the model clients: one for grading and analysis, which
// answer in JSON, and one for quiz generation, which answers in Markdown.
func completers(v *viper.Viper) (jsonC, textC llm.Completer, err error) {
	modelName := v.GetString("llm-model")
	switch strings.ToLower(v.GetString("llm-provider")) {
	case "openai":
		base := llm.NewOpenAI(v.GetString("llm-url"), v.GetString("llm-key"), modelName)
		jsonC, textC = base.WithOptions(llm.WithJSONMode(true)), base
	case "ollama":
		c, err := llm.NewOllama(v.GetString("llm-url"), modelName, nil)
		if err != nil {
			return nil, nil, err
		}
		jsonC, textC = c, c
	default:
		return nil, nil, fmt.Errorf("unknown llm provider %q", v.GetString("llm-provider"))
	}

	rps, burst := v.GetFloat64("llm-rate"), v.GetInt("llm-burst")
	return llm.NewLimited(jsonC, rps, burst), llm.NewLimited(textC, rps, burst), nil
}

func openCache(ctx context.Context, v *viper.Viper) (*cache.Redis, error) {
	addr := v.GetString("redis-addr")
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: v.GetString("redis-password")})
	c := cache.NewRedis(client, v.GetString("llm-model"), v.GetDuration("cache-ttl"))
	if err := c.Ping(ctx); err != nil {
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	slog.Info("grading cache enabled", "redis", addr, "ttl", v.GetDuration("cache-ttl"))
	return c, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	var custom fs.FS
	if dir := v.GetString("prompts-dir"); dir != "" {
		custom = os.DirFS(dir)
	}
	catalog, err := prompts.Load(custom)
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}
	for _, name := range catalog.Fallbacks() {
		slog.Warn("using built-in prompt file", "file", name)
	}

	jsonC, textC, err := completers(v)
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}

	responseCache, err := openCache(ctx, v)
	if err != nil {
		return err
	}

	m := metrics.New()
	opts := grading.Options{
		MaxConcurrent: v.GetInt("max-concurrent"),
		Timeout:       v.GetDuration("grading-timeout"),
		Metrics:       m,
	}
	if responseCache != nil {
		opts.Cache = responseCache
	}
	deps := handler.Deps{
		Store:   db,
		Grader:  grading.New(jsonC, catalog, opts),
		Prompts: catalog,
		Metrics: m,
	}
	if v.GetBool("assist") {
		deps.Generator = assist.NewGenerator(textC, catalog)
		deps.Analyzer = assist.NewAnalyzer(jsonC, catalog)
	}

	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	h := handler.New(deps, model.ServerConfig{
		BasePath:       basePath,
		SecureCookies:  v.GetBool("secure-cookies"),
		DefaultTenant:  v.GetInt64("default-tenant"),
		GradingTimeout: v.GetDuration("grading-timeout"),
		MaxConcurrent:  v.GetInt("max-concurrent"),
	})

	go cleanupSessions(ctx, db)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("starting server",
		"addr", addr,
		"provider", v.GetString("llm-provider"),
		"model", v.GetString("llm-model"),
		"lang", lang,
		"base_path", basePath,
		"assist", v.GetBool("assist"),
	)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func cleanupSessions(ctx context.Context, db *store.Store) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := db.CleanupExpiredSessions()
			if err != nil {
				slog.Warn("session cleanup failed", "error", err)
				continue
			}
			slog.Debug("expired sessions removed", "count", n)
		}
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx := appI18n.WithLocalizer(cmd.Context(), appI18n.NewLocalizer(lang))
	out := cmd.OutOrStdout()

	failed := 0
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		lines, ok := checkQuiz(ctx, string(data))
		for _, l := range lines {
			fmt.Fprintf(out, "%s: %s\n", path, l)
		}
		if !ok {
			failed++
		}
	}
	if failed > 0 {
		cmd.SilenceUsage = true
		return fmt.Errorf("%d of %d files are invalid", failed, len(args))
	}
	return nil
}

// checkQuiz returns one localized line per diagnostic, and whether the
// quiz can be used.
func checkQuiz(ctx context.Context, text string) ([]string, bool) {
	quiz, warnings, err := quizmd.Load(text)

	var serr quizmd.StructuralErrors
	var verr *quizmd.ValidationError
	var lines []string
	switch {
	case errors.As(err, &serr):
		for _, e := range serr {
			lines = append(lines, appI18n.Diagnostic(ctx, e.Line, string(e.Code), e.Detail, e.Message()))
		}
		return lines, false
	case errors.As(err, &verr):
		for _, is := range verr.Issues {
			lines = append(lines, appI18n.Diagnostic(ctx, is.Line, string(is.Code), is.Detail, is.Message()))
		}
		return lines, false
	case err != nil:
		return []string{err.Error()}, false
	}

	for _, is := range warnings {
		lines = append(lines, appI18n.Diagnostic(ctx, is.Line, string(is.Code), is.Detail, is.Message()))
	}
	lines = append(lines, fmt.Sprintf("%q: %s, %s",
		quiz.Title,
		appI18n.Tp(ctx, "QuestionsCount", len(quiz.Questions)),
		appI18n.Td(ctx, "PointsCount", map[string]any{"Points": quiz.TotalPoints().String()}),
	))
	return lines, true
}

func runExport(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	format, err := export.ParseFormat(v.GetString("format"))
	if err != nil {
		return err
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	results, err := db.ExportResults(v.GetInt64("quiz"))
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}
	exp := model.QuizExport{ExportedAt: time.Now().UTC(), Results: results}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if err := export.Write(w, format, exp); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	slog.Info("exported results", "quiz", v.GetInt64("quiz"), "submissions", len(results), "format", format)
	return nil
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or QUIZMARK_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
