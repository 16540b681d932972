package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/quizforge/adexam/internal/exam"
	"github.com/quizforge/adexam/internal/handler"
	appI18n "github.com/quizforge/adexam/internal/i18n"
	"github.com/quizforge/adexam/internal/llm"
	"github.com/quizforge/adexam/internal/material"
	"github.com/quizforge/adexam/internal/model"
	"github.com/quizforge/adexam/internal/retrieval"
	"github.com/quizforge/adexam/internal/store"
	"github.com/quizforge/adexam/internal/vecindex"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "adexam",
		Short: "Adaptive examination service grounded in lecture material",
	}

	serve := serveCmd()
	root.AddCommand(serve, seedCmd(), reindexCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `adexam --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addCommonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "adexam.db", "SQLite database path")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addEmbedderFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("embedder", "hash", "Embedding backend (hash, openai)")
	f.String("embed-url", "http://localhost:11434/v1", "OpenAI-compatible embeddings API base URL")
	f.String("embed-key", "ollama", "API key for the embeddings API")
	f.String("embed-model", "nomic-embed-text", "Embedding model name")
	f.Int("embed-dim", 384, "Embedding vector dimension")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the exam HTTP server",
		RunE:  runServe,
	}
	addCommonFlags(cmd)
	addEmbedderFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringP("lang", "l", "en", "Default response language (en, ar)")
	f.String("llm-provider", "openai", "LLM backend (openai, mock)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.1", "LLM model name")
	f.Float32("llm-temperature", 0.2, "LLM sampling temperature")
	f.Int("llm-max-tokens", 700, "LLM completion token limit")
	f.Duration("llm-timeout", 60*time.Second, "Timeout per LLM call")
	f.Bool("llm-fallback-mock", false, "Fall back to the offline mock when the LLM fails")
	f.Bool("llm-check", true, "Verify the LLM endpoint is reachable at startup")
	f.Int("context-max-chars", 6000, "Retrieval context size limit in characters")
	f.Int("context-chunks", 5, "Chunks retrieved per question")
	f.Int("chunk-size", material.DefaultChunkSize, "Lecture chunk size in characters")
	f.Int("chunk-overlap", material.DefaultChunkOverlap, "Overlap between consecutive chunks")
	f.Float64("weight-accuracy", 0.6, "Score weight for answer accuracy")
	f.Float64("weight-speed", 0.2, "Score weight for answer speed")
	f.Float64("weight-consistency", 0.2, "Score weight for answer consistency")
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed demo departments, students, config and lecture material",
		RunE:  runSeed,
	}
	addCommonFlags(cmd)
	addEmbedderFlags(cmd)
	cmd.Flags().String("student-password", "student123", "Password for seeded demo students")
	return cmd
}

func reindexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Re-embed lecture chunks with the configured embedding model",
		RunE:  runReindex,
	}
	addCommonFlags(cmd)
	addEmbedderFlags(cmd)
	f := cmd.Flags()
	f.Int64("department-id", 0, "Limit to one department (0 = all)")
	f.Int("grade-level", 0, "Limit to one grade level (0 = all)")
	f.Bool("force", false, "Re-embed chunks even when their embedding is current")
	f.Int("batch-size", 128, "Chunks per embedding batch")
	f.Int("parallelism", 2, "Concurrent embedding batches")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export attempts with questions and answers as JSON",
		RunE:  runExport,
	}
	addCommonFlags(cmd)
	f := cmd.Flags()
	f.String("subject", "", "Subject name for output (required)")
	f.String("date", "", "Exam date in YYYY-MM-DD format (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")

	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("date")

	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

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
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("ADEXAM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("adexam")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/adexam")
	v.AddConfigPath("/etc/adexam")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func newEmbedder(v *viper.Viper) (vecindex.Embedder, error) {
	switch strings.ToLower(v.GetString("embedder")) {
	case "hash", "":
		return vecindex.NewHashEmbedder(v.GetInt("embed-dim")), nil
	case "openai":
		return vecindex.NewOpenAIEmbedder(
			v.GetString("embed-url"),
			v.GetString("embed-key"),
			v.GetString("embed-model"),
			v.GetInt("embed-dim"),
		), nil
	default:
		return nil, fmt.Errorf("unknown embedder %q", v.GetString("embedder"))
	}
}

func newLLMClient(v *viper.Viper) (llm.Client, error) {
	switch strings.ToLower(v.GetString("llm-provider")) {
	case "mock":
		return llm.NewMockClient(uint64(time.Now().UnixNano())), nil
	case "openai", "":
		client := llm.NewOpenAIClient(
			v.GetString("llm-url"),
			v.GetString("llm-key"),
			v.GetString("llm-model"),
			float32(v.GetFloat64("llm-temperature")),
			v.GetInt("llm-max-tokens"),
		)
		if v.GetBool("llm-check") {
			if err := client.Ping(context.Background()); err != nil {
				return nil, fmt.Errorf("LLM health check: %w", err)
			}
			slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
		}
		var wrapped llm.Client = llm.NewResilientClient(client, llm.DefaultResilientConfig())
		if v.GetBool("llm-fallback-mock") {
			wrapped = llm.NewFallbackClient(wrapped, llm.NewMockClient(uint64(time.Now().UnixNano())))
		}
		return wrapped, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", v.GetString("llm-provider"))
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	embedder, err := newEmbedder(v)
	if err != nil {
		return err
	}
	index := vecindex.New(db, embedder)
	materials := material.NewService(db, index,
		material.NewChunker(v.GetInt("chunk-size"), v.GetInt("chunk-overlap")))

	llmClient, err := newLLMClient(v)
	if err != nil {
		return err
	}

	engineCfg := exam.DefaultConfig()
	engineCfg.ContextMaxChars = v.GetInt("context-max-chars")
	engineCfg.ContextChunks = v.GetInt("context-chunks")
	engineCfg.LLMTimeout = v.GetDuration("llm-timeout")
	engineCfg.Weights = exam.Weights{
		Accuracy:    v.GetFloat64("weight-accuracy"),
		Speed:       v.GetFloat64("weight-speed"),
		Consistency: v.GetFloat64("weight-consistency"),
	}
	engine := exam.NewEngine(db, retrieval.New(index), llmClient, engineCfg)

	h := handler.New(db, engine, materials, index)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"llm_provider", v.GetString("llm-provider"),
		"llm_model", v.GetString("llm-model"),
		"embedder", v.GetString("embedder"),
		"embed_model", embedder.ModelID(),
		"lang", lang,
	)
	return http.ListenAndServe(addr, r)
}

func runReindex(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	embedder, err := newEmbedder(v)
	if err != nil {
		return err
	}
	index := vecindex.New(db, embedder)

	start := time.Now()
	n, err := index.Reindex(context.Background(), vecindex.ReindexOptions{
		DepartmentID: v.GetInt64("department-id"),
		GradeLevel:   v.GetInt("grade-level"),
		Force:        v.GetBool("force"),
		BatchSize:    v.GetInt("batch-size"),
		Parallelism:  v.GetInt("parallelism"),
	})
	if err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	slog.Info("reindex complete",
		"chunks", n, "model", embedder.ModelID(), "took", time.Since(start).Round(time.Millisecond))

	stats, err := index.Stats()
	if err != nil {
		return err
	}
	slog.Info("index state",
		"total_chunks", stats.TotalChunks,
		"embedded", stats.EmbeddedChunks,
		"stale", stats.StaleChunks)
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	results, err := db.ExportAllAttempts()
	if err != nil {
		return fmt.Errorf("export attempts: %w", err)
	}

	export := model.ExamExport{
		Subject:     v.GetString("subject"),
		Date:        v.GetString("date"),
		NumAttempts: len(results),
		Results:     results,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)

	return nil
}

// Demo colleges with a few departments each, trimmed from the full
// university catalog.
var demoDepartments = map[string][]string{
	"College of Engineering and Computer Science": {
		"Department of Information Technology",
		"Department of Computer Engineering",
		"Department of Computer Network",
	},
	"College of Administration and Economics": {
		"Department of Business Administration",
		"Department of Accounting and Finance",
	},
	"College of Education and Languages": {
		"Department of English Language",
		"Department of Arabic Language and Translation",
	},
}

const demoLecture = `Introduction to Networking (Grade 2)

1) The OSI model has 7 layers: Physical, Data Link, Network, Transport, Session, Presentation, Application.
2) IP (Internet Protocol) operates at the Network layer and is responsible for routing packets between networks.
3) TCP (Transmission Control Protocol) is connection-oriented and provides reliable, ordered delivery.
4) UDP (User Datagram Protocol) is connectionless and does not guarantee delivery or ordering.
5) A router forwards packets based on destination IP addresses.
6) A switch forwards frames based on MAC addresses at the Data Link layer.
7) DNS translates domain names (like example.com) into IP addresses.
8) HTTP is an application-layer protocol used for web communication.`

func runSeed(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if n, err := db.StudentCount(); err != nil {
		return fmt.Errorf("check existing students: %w", err)
	} else if n > 0 {
		slog.Info("database already seeded, nothing to do", "students", n)
		return nil
	}

	var itDeptID int64
	for college, depts := range demoDepartments {
		for _, name := range depts {
			id, err := db.CreateDepartment(model.Department{College: college, Name: name})
			if err != nil {
				return fmt.Errorf("create department %q: %w", name, err)
			}
			if name == "Department of Information Technology" {
				itDeptID = id
			}
			slog.Info("seeded department", "college", college, "department", name)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(v.GetString("student-password")), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	for _, s := range []model.Student{
		{UniversityID: "s2001", FullName: "Demo Student One", DepartmentID: itDeptID, GradeLevel: 2},
		{UniversityID: "s2002", FullName: "Demo Student Two", DepartmentID: itDeptID, GradeLevel: 2},
	} {
		s.PasswordHash = string(hash)
		s.Active = true
		id, err := db.CreateStudent(s)
		if err != nil {
			return fmt.Errorf("create student %q: %w", s.UniversityID, err)
		}
		slog.Info("seeded student", "university_id", s.UniversityID, "id", id)
	}

	cfgID, err := db.UpsertConfig(model.ExamConfig{
		DepartmentID:             itDeptID,
		GradeLevel:               2,
		MaxDurationSeconds:       30 * 60,
		MaxAttempts:              3,
		MaxQuestions:             10,
		StopConsecutiveIncorrect: 3,
		StopSlowSeconds:          300,
		DifficultyMin:            2,
		DifficultyMax:            4,
		Active:                   true,
	})
	if err != nil {
		return fmt.Errorf("seed exam config: %w", err)
	}
	slog.Info("seeded exam config", "config_id", cfgID)

	embedder, err := newEmbedder(v)
	if err != nil {
		return err
	}
	index := vecindex.New(db, embedder)
	materials := material.NewService(db, index, nil)

	m, err := materials.Ingest(context.Background(), itDeptID, 2, "Introduction to Networking", demoLecture)
	if err != nil {
		return fmt.Errorf("seed lecture material: %w", err)
	}
	slog.Info("seeded lecture material", "material_id", m.ID, "title", m.Title)

	fmt.Println("Seed complete.")
	fmt.Println("Demo students: s2001, s2002 (password: " + v.GetString("student-password") + ")")
	return nil
}
