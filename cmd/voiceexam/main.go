package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/sneportal/voiceexam/internal/flow"
	"github.com/sneportal/voiceexam/internal/handler"
	appI18n "github.com/sneportal/voiceexam/internal/i18n"
	"github.com/sneportal/voiceexam/internal/model"
	"github.com/sneportal/voiceexam/internal/store"
	"github.com/sneportal/voiceexam/internal/voice"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "voiceexam",
		Short: "Voice-driven exam server for spoken assessments",
	}

	serve := serveCmd()
	root.AddCommand(serve, seedCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `voiceexam --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP exam server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "voiceexam.db", "SQLite database path")
	f.StringSliceP("exams", "e", nil, "Paths to exam fixture JSON files (repeatable)")
	f.String("speech-url", "", "OpenAI-compatible speech API base URL (empty = default endpoint)")
	f.String("speech-key", "", "API key for the speech service")
	f.String("transcribe-model", "", "Transcription model name")
	f.String("speech-model", "", "Text-to-speech model name")
	f.String("speech-voice", "", "Text-to-speech voice name")
	f.Bool("speech-check", true, "Verify the speech endpoint at startup")
	f.String("base-path", "", "URL prefix for sub-path deployments")
	f.Bool("secure-cookies", true, "Set Secure flag on auth cookies")
	f.String("admin-password", "", "Initial supervisor password (or set VOICEEXAM_ADMIN_PASSWORD)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import exam fixtures into the database",
		RunE:  runSeed,
	}
	f := cmd.Flags()
	f.String("db", "voiceexam.db", "SQLite database path")
	f.StringSliceP("exams", "e", nil, "Paths to exam fixture JSON files (repeatable)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("exams")

	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export session results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "voiceexam.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
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

	v.SetEnvPrefix("VOICEEXAM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("voiceexam")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/voiceexam")
	v.AddConfigPath("/etc/voiceexam")
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

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Seed a default supervisor if none exist.
	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed supervisor: %w", err)
	}

	if err := importExams(db, v.GetStringSlice("exams")); err != nil {
		return fmt.Errorf("import exams: %w", err)
	}

	// Default prompt language; per-session prompts follow the exam's language.
	if err := appI18n.Init(string(model.LanguageEnglish)); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	voiceClient := voice.New(
		v.GetString("speech-url"),
		v.GetString("speech-key"),
		v.GetString("transcribe-model"),
		v.GetString("speech-model"),
		v.GetString("speech-voice"),
	)
	if v.GetBool("speech-check") {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := voiceClient.Ping(ctx); err != nil {
			return fmt.Errorf("speech health check: %w", err)
		}
		slog.Info("speech endpoint OK", "url", v.GetString("speech-url"))
	}

	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	h := handler.New(db, flow.New(db, voiceClient), voiceClient, handler.Config{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
	})

	var r http.Handler = h.Routes()
	if basePath != "" {
		r = http.StripPrefix(basePath, r)
	}

	addr := v.GetString("addr")
	examCount, err := db.ExamCount()
	if err != nil {
		return fmt.Errorf("count exams: %w", err)
	}
	slog.Info("starting server",
		"addr", addr,
		"exams", examCount,
		"speech_url", v.GetString("speech-url"),
		"base_path", basePath,
	)
	return http.ListenAndServe(addr, r)
}

func runSeed(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	return importExams(db, v.GetStringSlice("exams"))
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	results, err := db.ExportAllSessions()
	if err != nil {
		return fmt.Errorf("export sessions: %w", err)
	}

	export := model.ResultsExport{
		ExportedAt: time.Now(),
		Sessions:   results,
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
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

// importExams loads exam fixture files, one exam per file. A file whose
// content hash matches a previous import is skipped; a changed file is
// skipped with a warning so existing sessions keep their question set.
func importExams(db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}

		if storedHash == hash {
			slog.Info("exam fixture unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Warn("exam fixture changed since last import, skipping to keep existing sessions consistent",
				"path", path)
			continue
		}

		var imp model.ExamImport
		if err := json.Unmarshal(data, &imp); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if err := insertExam(db, imp); err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}

		if err := db.SetImportedFileHash(path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported exam", "path", path, "title", imp.Title, "questions", len(imp.Questions))
	}

	return nil
}

func insertExam(db *store.Store, imp model.ExamImport) error {
	sub, err := db.GetSubjectByCode(imp.SubjectCode)
	if err != nil {
		return fmt.Errorf("look up subject %s: %w", imp.SubjectCode, err)
	}
	var subjectID int64
	if sub != nil {
		subjectID = sub.ID
	} else {
		subjectID, err = db.CreateSubject(model.Subject{
			Name: imp.Subject,
			Code: imp.SubjectCode,
		})
		if err != nil {
			return fmt.Errorf("create subject %s: %w", imp.SubjectCode, err)
		}
	}

	lang := imp.Language
	if lang == "" {
		lang = model.LanguageEnglish
	}

	examID, err := db.CreateExam(model.Exam{
		SubjectID:       subjectID,
		Title:           imp.Title,
		GradeLevel:      imp.GradeLevel,
		DurationMinutes: imp.DurationMinutes,
		Language:        lang,
		Instructions:    imp.Instructions,
		Active:          true,
	})
	if err != nil {
		return fmt.Errorf("create exam %s: %w", imp.Title, err)
	}

	for i, qi := range imp.Questions {
		points := qi.Points
		if points == 0 {
			points = 1
		}
		if _, err := db.InsertQuestion(model.Question{
			ExamID:        examID,
			Text:          qi.Text,
			Type:          qi.Type,
			Options:       qi.Options,
			CorrectAnswer: qi.CorrectAnswer,
			Order:         i + 1,
			Points:        points,
		}); err != nil {
			return fmt.Errorf("insert question %d: %w", i+1, err)
		}
	}

	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.SupervisorCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("supervisor password is required: set --admin-password flag or VOICEEXAM_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash supervisor password: %w", err)
	}

	_, err = db.CreateSupervisor(model.Supervisor{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create supervisor: %w", err)
	}

	slog.Info("seeded default supervisor", "username", "admin")
	return nil
}
