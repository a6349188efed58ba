// Package cli is the operator command line of the authentication core. Each
// command maps onto one UserService operation.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/yanglog/yanglog/internal/flagx"
	"github.com/yanglog/yanglog/internal/server/auth"
	"github.com/yanglog/yanglog/internal/server/services"
)

// ErrUsage is returned for an unknown command or missing flags.
var ErrUsage = errors.New("usage error")

// Service is the part of services.UserService the commands call.
type Service interface {
	CreateUser(ctx context.Context, name, email, password string) error
	VerifyEmail(ctx context.Context, token string) (string, error)
	Login(ctx context.Context, email, password string) (string, error)
	Signin(ctx context.Context, email, password string) (*auth.TokenPair, error)
	RefreshTokens(ctx context.Context, id, refreshToken string) (*auth.TokenPair, error)
	Logout(ctx context.Context, id string) error
	GetUserInfo(ctx context.Context, id string) (*services.UserInfo, error)
	ListUsers(ctx context.Context) ([]*services.UserInfo, error)
}

// RefreshGuard validates a refresh token before the session lookup.
type RefreshGuard interface {
	ParseRefreshToken(token string) (*auth.Claims, error)
}

type Runner struct {
	svc    Service
	guard  RefreshGuard
	out    io.Writer
	errOut io.Writer
}

func NewRunner(svc Service, guard RefreshGuard, out, errOut io.Writer) *Runner {
	return &Runner{svc: svc, guard: guard, out: out, errOut: errOut}
}

// Usage prints the command summary.
func Usage(w io.Writer) {
	fmt.Fprint(w, `usage: authctl <command> [flags]

commands:
  signup        -name NAME -email EMAIL -password PASSWORD
  verify-email  -token TOKEN
  login         -email EMAIL -password PASSWORD
  signin        -email EMAIL -password PASSWORD
  refresh       -refresh REFRESH_TOKEN
  logout        -id USER_ID
  whoami        -id USER_ID
  users
  help

config flags (after the command):
  -c/-config FILE  -d DSN  -as SECRET  -rs SECRET  -t MIN  -r MIN  -m MAILER  -l LEVEL

a value that starts with "-" must use the -flag=value form: -password=-secret
`)
}

// IsHelp reports whether args ask for the usage text only.
func IsHelp(args []string) bool {
	cmd, _ := flagx.Command(args)
	return cmd == "" || cmd == "help" || cmd == "-h" || cmd == "--help"
}

// Run dispatches args ("<command> [flags]") to the matching command.
func (r *Runner) Run(ctx context.Context, args []string) error {
	cmd, rest := flagx.Command(args)

	switch cmd {
	case "", "help":
		Usage(r.out)
		return nil
	case "signup":
		return r.signup(ctx, rest)
	case "verify-email":
		return r.verifyEmail(ctx, rest)
	case "login":
		return r.login(ctx, rest)
	case "signin":
		return r.signin(ctx, rest)
	case "refresh":
		return r.refresh(ctx, rest)
	case "logout":
		return r.logout(ctx, rest)
	case "whoami":
		return r.whoami(ctx, rest)
	case "users":
		return r.users(ctx)
	default:
		Usage(r.errOut)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

// parse reads the named string flags of a command; config flags in args are
// skipped. Every flag is required.
func (r *Runner) parse(cmd string, args []string, names ...string) (map[string]string, error) {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(r.errOut)

	values := make(map[string]*string, len(names))
	allowed := make([]string, 0, 2*len(names))
	for _, n := range names {
		values[n] = fs.String(n, "", n)
		allowed = append(allowed, "-"+n, "--"+n)
	}

	if err := fs.Parse(flagx.FilterArgs(args, allowed)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}

	result := make(map[string]string, len(names))
	for _, n := range names {
		if *values[n] == "" {
			return nil, fmt.Errorf("%w: %s requires -%s", ErrUsage, cmd, n)
		}
		result[n] = *values[n]
	}
	return result, nil
}

func (r *Runner) signup(ctx context.Context, args []string) error {
	f, err := r.parse("signup", args, "name", "email", "password")
	if err != nil {
		return err
	}
	if err := r.svc.CreateUser(ctx, f["name"], f["email"], f["password"]); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "user %s registered, verification mail sent\n", f["email"])
	return nil
}

func (r *Runner) verifyEmail(ctx context.Context, args []string) error {
	f, err := r.parse("verify-email", args, "token")
	if err != nil {
		return err
	}
	access, err := r.svc.VerifyEmail(ctx, f["token"])
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "access_token: %s\n", access)
	return nil
}

func (r *Runner) login(ctx context.Context, args []string) error {
	f, err := r.parse("login", args, "email", "password")
	if err != nil {
		return err
	}
	access, err := r.svc.Login(ctx, f["email"], f["password"])
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "access_token: %s\n", access)
	return nil
}

func (r *Runner) signin(ctx context.Context, args []string) error {
	f, err := r.parse("signin", args, "email", "password")
	if err != nil {
		return err
	}
	pair, err := r.svc.Signin(ctx, f["email"], f["password"])
	if err != nil {
		return err
	}
	r.printPair(pair)
	return nil
}

// refresh takes the user id from the token's subject; the signature and
// expiry are checked before the session store is touched.
func (r *Runner) refresh(ctx context.Context, args []string) error {
	f, err := r.parse("refresh", args, "refresh")
	if err != nil {
		return err
	}
	claims, err := r.guard.ParseRefreshToken(f["refresh"])
	if err != nil {
		return err
	}
	pair, err := r.svc.RefreshTokens(ctx, claims.Subject, f["refresh"])
	if err != nil {
		return err
	}
	r.printPair(pair)
	return nil
}

func (r *Runner) logout(ctx context.Context, args []string) error {
	f, err := r.parse("logout", args, "id")
	if err != nil {
		return err
	}
	if err := r.svc.Logout(ctx, f["id"]); err != nil {
		return err
	}
	fmt.Fprintln(r.out, "logged out")
	return nil
}

func (r *Runner) whoami(ctx context.Context, args []string) error {
	f, err := r.parse("whoami", args, "id")
	if err != nil {
		return err
	}
	info, err := r.svc.GetUserInfo(ctx, f["id"])
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "id: %s\nname: %s\nemail: %s\n", info.ID, info.Name, info.Email)
	return nil
}

func (r *Runner) users(ctx context.Context) error {
	list, err := r.svc.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, u := range list {
		fmt.Fprintf(r.out, "%s\t%s\t%s\n", u.ID, u.Name, u.Email)
	}
	return nil
}

func (r *Runner) printPair(p *auth.TokenPair) {
	fmt.Fprintf(r.out, "access_token: %s\nrefresh_token: %s\n", p.AccessToken, p.RefreshToken)
}
