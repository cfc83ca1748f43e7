package main

import (
	"context"
	"time"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(uname, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	now := time.Now().UTC()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.repos.Users.GetUser(ctx, user.GetFilter{Username: uname})
	if err != nil {
		if !core.IsNotFound(err) {
			return err
		}
		usr = user.User{
			Name:      uname,
			Username:  uname,
			Roles:     user.RepresentativeRoles,
			CreatedAt: now,
		}
	}
	usr.Email = email
	usr.UpdatedAt = now
	if isAdmin {
		usr.Roles = user.AllRoles
	}
	usr.SetActive(true)
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	if _, err := cli.repos.Users.UpdateOrCreateUser(ctx, usr); err != nil {
		return err
	}
	cli.logger.Info("saved user " + uname)
	return nil
}
