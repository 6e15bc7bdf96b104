package main

import (
	"context"
	"flag"
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-sentinel"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type app struct {
	client  *persistence.Client
	db      *bun.DB
	opts    *sentinel.Options
	logger  sentinel.Logger
	store   sentinel.RepositoryManager
	service *sentinel.Service
}

type command struct {
	help string
	run  func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"migrate":   {help: "apply database migrations", run: runMigrate},
	"seed":      {help: "create the default groups, -fixtures loads data/fixtures", run: runSeed},
	"register":  {help: "register a user", run: runRegister},
	"activate":  {help: "activate a user with its activation code", run: runActivate},
	"resend":    {help: "issue a new activation code", run: runResend},
	"update":    {help: "update a user profile", run: runUpdate},
	"passwd":    {help: "change a user password", run: runPasswd},
	"suspend":   {help: "suspend a user", run: runSuspend},
	"unsuspend": {help: "lift a suspension", run: throttleCommand("unsuspend")},
	"ban":       {help: "ban a user", run: throttleCommand("ban")},
	"unban":     {help: "lift a ban", run: throttleCommand("unban")},
	"show":      {help: "show a user and its throttle", run: runShow},
	"list":      {help: "list users", run: runList},
	"delete":    {help: "delete a user", run: runDelete},
	"login":     {help: "check credentials", run: runLogin},
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// fieldsFlag collects repeated -field name=value pairs.
type fieldsFlag map[string]string

func (f fieldsFlag) String() string {
	parts := make([]string, 0, len(f))
	for k, v := range f {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func (f fieldsFlag) Set(value string) error {
	k, v, ok := strings.Cut(value, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("expected name=value, got %q", value)
	}
	f[strings.TrimSpace(k)] = v
	return nil
}

func parseID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, fmt.Errorf("-id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid -id: %w", err)
	}
	return id, nil
}

func printResult(r sentinel.Result) {
	out := map[string]any{
		"successful": r.Successful(),
		"message":    r.Message(),
	}
	if !r.Successful() {
		out["kind"] = r.Kind()
	}
	if payload := r.Payload(); len(payload) > 0 {
		out["payload"] = payload
	}
	if warnings := r.Warnings(); len(warnings) > 0 {
		msgs := make([]string, 0, len(warnings))
		for _, w := range warnings {
			msgs = append(msgs, w.Error())
		}
		out["warnings"] = msgs
	}
	fmt.Println(print.MaybePrettyJSON(out))
}

// report prints the result and turns business failures into an error so the
// process exits non zero.
func report(r sentinel.Result, err error) error {
	if err != nil {
		return err
	}
	printResult(r)
	if !r.Successful() {
		return r.Err()
	}
	return nil
}

func runMigrate(ctx context.Context, a *app, args []string) error {
	if err := migrateClient(ctx, a.client); err != nil {
		return err
	}
	a.logger.Info("migrations applied")
	return nil
}

func runSeed(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fixtures := fs.Bool("fixtures", false, "reset the groups table from the embedded fixtures first")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *fixtures {
		if err := loadFixtures(ctx, a.client); err != nil {
			return err
		}
		if report := a.client.Report(); report != nil && !report.IsZero() {
			a.logger.Info("fixtures loaded", "report", report.String())
		}
	}

	for _, name := range a.opts.GetDefaultUserGroups() {
		group, err := a.store.Groups().GetOrCreateTx(ctx, a.db, &sentinel.Group{
			Name:        name,
			Permissions: a.opts.GetDefaultPermissions(),
		})
		if err != nil {
			return fmt.Errorf("seed group %s: %w", name, err)
		}
		a.logger.Info("group ready", "name", group.Name, "id", group.ID)
	}
	return nil
}

func runRegister(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fields := fieldsFlag{}
	msg := sentinel.RegisterUserMessage{}
	fs.StringVar(&msg.Email, "email", "", "email address")
	fs.StringVar(&msg.Username, "username", "", "username, when usernames are allowed")
	fs.StringVar(&msg.Password, "password", "", "password")
	fs.BoolVar(&msg.Activate, "activate", false, "activate immediately")
	fs.BoolVar(&msg.UseHashid, "hashid", false, "derive the user id from the email")
	fs.Var(fields, "field", "additional field as name=value, repeatable")
	if err := fs.Parse(args); err != nil {
		return err
	}

	msg.Fields = fields
	msg.OnResponse = printResult
	return sentinel.NewRegisterUserHandler(a.service).Execute(ctx, msg)
}

func runActivate(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("activate", flag.ContinueOnError)
	rawID := fs.String("id", "", "user id")
	code := fs.String("code", "", "activation code")
	if err := fs.Parse(args); err != nil {
		return err
	}

	id, err := parseID(*rawID)
	if err != nil {
		return err
	}

	return sentinel.NewActivateUserHandler(a.service).Execute(ctx, sentinel.ActivateUserMessage{
		UserID:     id,
		Code:       *code,
		OnResponse: printResult,
	})
}

func runResend(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("resend", flag.ContinueOnError)
	email := fs.String("email", "", "email address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return report(a.service.Resend(ctx, sentinel.Input{sentinel.InputEmail: *email}))
}

func runUpdate(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	fields := fieldsFlag{}
	rawID := fs.String("id", "", "user id")
	email := fs.String("email", "", "new email address")
	username := fs.String("username", "", "new username")
	fs.Var(fields, "field", "additional field as name=value, repeatable")
	if err := fs.Parse(args); err != nil {
		return err
	}

	in := sentinel.Input{sentinel.InputID: *rawID}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "email":
			in[sentinel.InputEmail] = *email
		case "username":
			in[sentinel.InputUsername] = *username
		}
	})
	for k, v := range fields {
		in[k] = v
	}
	return report(a.service.Update(ctx, in))
}

func runPasswd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("passwd", flag.ContinueOnError)
	rawID := fs.String("id", "", "user id")
	oldPassword := fs.String("old", "", "current password")
	newPassword := fs.String("new", "", "new password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return report(a.service.ChangePassword(ctx, sentinel.Input{
		sentinel.InputID:          *rawID,
		sentinel.InputOldPassword: *oldPassword,
		sentinel.InputNewPassword: *newPassword,
	}))
}

func runSuspend(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("suspend", flag.ContinueOnError)
	rawID := fs.String("id", "", "user id")
	minutes := fs.Int("minutes", 0, "suspension length, 0 uses SENTINEL_SUSPENSION_TIME")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(*rawID)
	if err != nil {
		return err
	}
	return report(a.service.Suspend(ctx, id, *minutes))
}

func throttleCommand(name string) func(ctx context.Context, a *app, args []string) error {
	return func(ctx context.Context, a *app, args []string) error {
		fs := flag.NewFlagSet(name, flag.ContinueOnError)
		rawID := fs.String("id", "", "user id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		id, err := parseID(*rawID)
		if err != nil {
			return err
		}

		switch name {
		case "unsuspend":
			return report(a.service.Unsuspend(ctx, id))
		case "ban":
			return report(a.service.Ban(ctx, id))
		default:
			return report(a.service.Unban(ctx, id))
		}
	}
}

func runShow(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	rawID := fs.String("id", "", "user id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(*rawID)
	if err != nil {
		return err
	}

	user, err := a.service.RetrieveByID(ctx, id)
	if err != nil {
		return err
	}
	status, err := a.service.ThrottleStatus(ctx, id)
	if err != nil {
		return err
	}
	state, err := a.service.AccountState(ctx, id)
	if err != nil {
		return err
	}

	fmt.Println(print.MaybePrettyJSON(map[string]any{
		"user":     user,
		"state":    state,
		"throttle": status,
	}))
	return nil
}

func runList(ctx context.Context, a *app, args []string) error {
	users, err := a.service.All(ctx)
	if err != nil {
		return err
	}
	fmt.Println(print.MaybePrettyJSON(users))
	return nil
}

func runDelete(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	rawID := fs.String("id", "", "user id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(*rawID)
	if err != nil {
		return err
	}
	return report(a.service.Destroy(ctx, id))
}

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	login := fs.String("login", "", "email or username")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return report(a.service.Authenticate(ctx, *login, *password))
}
