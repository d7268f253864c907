package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	sqliteadapter "github.com/eventmesa/regsvc/internal/adapters/db/sqlite"
	httpadapter "github.com/eventmesa/regsvc/internal/adapters/http"
	rpcadapter "github.com/eventmesa/regsvc/internal/adapters/rpcjson"
	"github.com/eventmesa/regsvc/internal/application"
	"github.com/eventmesa/regsvc/internal/domain"
	"github.com/urfave/cli/v3"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "regsvc",
		Usage: "Event registration system server and CLI",
		Commands: []*cli.Command{
			serverCommand(),
			authCommand(),
			applicantsCommand(),
			admitCommand(),
			questionsCommand(),
			settingsCommand(),
			auditCommand(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runServer(ctx, ":8080", "/tmp/regsvc.sock", "regsvc.db", "staff@regsvc.local", "staff")
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		log.Fatal(err)
	}
}

func serverCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Run HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: ":8080", Usage: "HTTP listen address"},
			&cli.StringFlag{Name: "rpc-socket", Value: "/tmp/regsvc.sock", Usage: "JSON-RPC unix socket path"},
			&cli.StringFlag{Name: "db-path", Value: "regsvc.db", Usage: "SQLite database path"},
			&cli.StringFlag{Name: "bootstrap-staff-email", Value: "staff@regsvc.local", Usage: "initial staff email"},
			&cli.StringFlag{Name: "bootstrap-staff-password", Value: "staff", Usage: "initial staff password when users are empty"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runServer(ctx, c.String("addr"), c.String("rpc-socket"), c.String("db-path"), c.String("bootstrap-staff-email"), c.String("bootstrap-staff-password"))
		},
	}
}

func runServer(ctx context.Context, addr, rpcSocket, dbPath, bootstrapEmail, bootstrapPassword string) error {
	db, err := sqliteadapter.Open(dbPath)
	if err != nil {
		return err
	}
	if err := sqliteadapter.RunMigrations(ctx, db); err != nil {
		return err
	}

	repo := sqliteadapter.NewRegistrationRepository(db)
	service := application.NewRegistrationService(repo)
	if err := service.BootstrapStaff(ctx, bootstrapEmail, bootstrapPassword); err != nil {
		return err
	}

	router := httpadapter.NewRouter(service)
	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	rpcSrv, err := rpcadapter.Start(rpcSocket, service)
	if err != nil {
		return err
	}

	defer func() {
		_ = rpcSrv.Close()
	}()
	log.Printf("json-rpc listening on unix://%s", rpcSocket)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("received signal %s, shutting down", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authentication commands",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Login and store CLI token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "transport", Value: "uds"},
					&cli.StringFlag{Name: "server", Value: "http://127.0.0.1:8080"},
					&cli.StringFlag{Name: "socket", Value: "/tmp/regsvc.sock"},
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
					&cli.StringFlag{Name: "token-name", Value: "cli"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg := cliConfig{Transport: c.String("transport"), Server: c.String("server"), Socket: c.String("socket")}
					var out struct {
						Token string `json:"token"`
						Email string `json:"email"`
					}
					err := doLogin(ctx, cfg, c.String("email"), c.String("password"), c.String("token-name"), &out)
					if err != nil {
						return err
					}
					cfg.Token = out.Token
					if err := saveConfig(cfg); err != nil {
						return err
					}
					fmt.Printf("logged in as %s\n", out.Email)
					return nil
				},
			},
			{
				Name:  "whoami",
				Usage: "Show current authenticated user",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out struct {
						ID    uint   `json:"id"`
						Email string `json:"email"`
						Role  string `json:"role"`
					}
					if err := doWhoAmI(ctx, cfg, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printKV([][2]string{{"id", uintToString(out.ID)}, {"email", out.Email}, {"role", out.Role}})
					return nil
				},
			},
			{
				Name:  "logout",
				Usage: "Clear local CLI auth token",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					_ = doLogout(ctx, cfg)
					cfg.Token = ""
					if err := saveConfig(cfg); err != nil {
						return err
					}
					fmt.Println("logged out")
					return nil
				},
			},
		},
	}
}

func applicantsCommand() *cli.Command {
	return &cli.Command{
		Name:  "applicants",
		Usage: "Applicant review commands",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List applicant accounts and their submission state",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "q", Usage: "filter by email substring"},
					&cli.IntFlag{Name: "limit", Value: 200},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out []domain.User
					if err := doApplicantsList(ctx, cfg, c.String("q"), c.Int("limit"), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printApplicants(out)
					return nil
				},
			},
		},
	}
}

func admitCommand() *cli.Command {
	return &cli.Command{
		Name:  "admit",
		Usage: "Admit applicants and start their confirmation clocks",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user-ids", Required: true, Usage: "comma-separated user ids"},
			&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ids, err := parseUintList(c.String("user-ids"))
			if err != nil {
				return err
			}
			var out map[string]any
			if err := doAdmit(ctx, cfg, ids, &out); err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(out)
			}
			fmt.Printf("admitted %d applicant(s)\n", len(ids))
			return nil
		},
	}
}

func questionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "questions",
		Usage: "Form question commands",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List questions of a form",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "form", Value: "profile", Usage: "profile or confirmation"},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out []domain.Question
					if err := doQuestionsList(ctx, cfg, c.String("form"), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printQuestions(out)
					return nil
				},
			},
			{
				Name:  "create",
				Usage: "Add a question to a form",
				Flags: questionFlags(false),
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					q, err := questionFromFlags(c)
					if err != nil {
						return err
					}
					var out domain.Question
					if err := doQuestionCreate(ctx, cfg, q, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printQuestions([]domain.Question{out})
					return nil
				},
			},
			{
				Name:  "update",
				Usage: "Update an existing question",
				Flags: questionFlags(true),
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					q, err := questionFromFlags(c)
					if err != nil {
						return err
					}
					q.ID = c.String("id")
					var out domain.Question
					if err := doQuestionUpdate(ctx, cfg, q, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printQuestions([]domain.Question{out})
					return nil
				},
			},
			{
				Name:  "delete",
				Usage: "Delete a question",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Required: true},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out map[string]any
					if err := doQuestionDelete(ctx, cfg, c.String("id"), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					fmt.Println("deleted")
					return nil
				},
			},
		},
	}
}

func questionFlags(forUpdate bool) []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "form", Value: "profile", Usage: "profile or confirmation"},
		&cli.StringFlag{Name: "type", Value: "text", Usage: "text, number, choices or country"},
		&cli.StringFlag{Name: "title", Required: true},
		&cli.StringFlag{Name: "description"},
		&cli.StringFlag{Name: "placeholder"},
		&cli.BoolFlag{Name: "mandatory"},
		&cli.StringFlag{Name: "parent-id", Usage: "id of the parent question"},
		&cli.StringFlag{Name: "show-if", Usage: "parent value that reveals this question"},
		&cli.StringFlag{Name: "choices", Usage: "comma-separated options for a choices question"},
		&cli.BoolFlag{Name: "allow-multiple"},
		&cli.BoolFlag{Name: "dropdown"},
		&cli.FloatFlag{Name: "min"},
		&cli.FloatFlag{Name: "max"},
		&cli.BoolFlag{Name: "allow-decimals"},
		&cli.IntFlag{Name: "sort-index"},
		&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
	}
	if forUpdate {
		flags = append([]cli.Flag{&cli.StringFlag{Name: "id", Required: true}}, flags...)
	}
	return flags
}

func questionFromFlags(c *cli.Command) (domain.Question, error) {
	q := domain.Question{
		FormKind:    domain.FormKind(c.String("form")),
		Type:        domain.QuestionType(c.String("type")),
		Title:       c.String("title"),
		Description: c.String("description"),
		Placeholder: c.String("placeholder"),
		Mandatory:   c.Bool("mandatory"),
		SortIndex:   c.Int("sort-index"),
	}
	if parent := strings.TrimSpace(c.String("parent-id")); parent != "" {
		q.ParentID = &parent
		showIf := c.String("show-if")
		q.ShowIfParentHasValue = &showIf
	}

	switch q.Type {
	case domain.QuestionTypeNumber:
		cfg := &domain.NumberConfig{AllowDecimals: c.Bool("allow-decimals")}
		if c.IsSet("min") {
			v := c.Float("min")
			cfg.MinValue = &v
		}
		if c.IsSet("max") {
			v := c.Float("max")
			cfg.MaxValue = &v
		}
		q.Number = cfg
	case domain.QuestionTypeChoices:
		options := splitCSVFlag(c.String("choices"))
		if len(options) == 0 {
			return domain.Question{}, fmt.Errorf("a choices question needs --choices")
		}
		q.Choices = &domain.ChoicesConfig{
			Choices:           options,
			AllowMultiple:     c.Bool("allow-multiple"),
			DisplayAsDropdown: c.Bool("dropdown"),
		}
	}
	return q, nil
}

func settingsCommand() *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Registration settings commands",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the current settings",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out domain.Settings
					if err := doSettingsGet(ctx, cfg, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printSettings(out)
					return nil
				},
			},
			{
				Name:  "update",
				Usage: "Update the registration settings",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "event-name", Required: true},
					&cli.StringFlag{Name: "open-from", Required: true, Usage: "RFC3339 timestamp"},
					&cli.StringFlag{Name: "open-until", Required: true, Usage: "RFC3339 timestamp"},
					&cli.IntFlag{Name: "hours-to-confirm", Value: 24},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					from, err := time.Parse(time.RFC3339, c.String("open-from"))
					if err != nil {
						return fmt.Errorf("parse open-from: %w", err)
					}
					until, err := time.Parse(time.RFC3339, c.String("open-until"))
					if err != nil {
						return fmt.Errorf("parse open-until: %w", err)
					}
					settings := domain.Settings{
						EventName:             c.String("event-name"),
						AllowProfileFormFrom:  from,
						AllowProfileFormUntil: until,
						HoursToConfirm:        c.Int("hours-to-confirm"),
					}
					var out domain.Settings
					if err := doSettingsUpdate(ctx, cfg, settings, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printSettings(out)
					return nil
				},
			},
		},
	}
}

func auditCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Audit log commands",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List audit logs",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 200},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out []domain.AuditRecord
					if err := doAuditList(ctx, cfg, c.Int("limit"), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printAuditRecords(out)
					return nil
				},
			},
		},
	}
}

func parseUintList(input string) ([]uint, error) {
	parts := strings.Split(input, ",")
	ids := make([]uint, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parsed, err := strconv.ParseUint(trimmed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q", trimmed)
		}
		ids = append(ids, uint(parsed))
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("at least one user id is required")
	}
	return ids, nil
}

func splitCSVFlag(input string) []string {
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	return result
}

func jsonMarshal(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
