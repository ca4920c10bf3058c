package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/farouk15160/cargamon/internal/auth"
)

func (a *app) login(ctx context.Context, args []string) error {
	var username, password string
	flagSet := pflag.NewFlagSet("login", pflag.ContinueOnError)
	flagSet.StringVarP(&username, "username", "u", "", "username or email")
	flagSet.StringVarP(&password, "password", "p", "", "password (default: $CARGAMON_PASSWORD, else read from stdin)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if username == "" {
		return errors.New("login: --username is required")
	}
	if password == "" {
		password = os.Getenv("CARGAMON_PASSWORD")
	}
	if password == "" {
		fmt.Fprint(a.stdout, "Password: ")
		line, err := bufio.NewReader(a.stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("login: reading password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	client, err := a.apiClient(false)
	if err != nil {
		return err
	}
	token, err := client.Login(ctx, username, password)
	if err != nil {
		return err
	}
	if err := a.store.Save(token); err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Logged in as %s at %s.", username, client.BaseURL())
	if claims, err := auth.Inspect(token); err == nil && !claims.ExpiresAt.IsZero() {
		fmt.Fprintf(a.stdout, " Session valid until %s.", claims.ExpiresAt.Local().Format(time.DateTime))
	}
	fmt.Fprintln(a.stdout)
	return nil
}

func (a *app) logout() error {
	if err := a.store.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "Logged out.")
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	client, err := a.apiClient(true)
	if err != nil {
		return err
	}
	user, err := client.Me(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%s", user.Username)
	if len(user.Roles) > 0 {
		fmt.Fprintf(a.stdout, " (%s)", strings.Join(user.Roles, ", "))
	}
	fmt.Fprintln(a.stdout)
	return nil
}
