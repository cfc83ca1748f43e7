package main

import (
	"context"
	"time"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/user"
)

func (cli *commandLine) resetPassword(uname, pwd string) error {
	ctx := context.Background()
	usr, err := cli.repos.Users.GetUser(ctx, user.GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
	if err != nil {
		return err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	usr.UpdatedAt = time.Now().UTC()
	if _, err := cli.repos.Users.UpdateUser(ctx, usr); err != nil {
		return err
	}
	return nil
}
