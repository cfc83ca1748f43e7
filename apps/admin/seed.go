package main

import (
	"context"

	"github.com/trezcool/colegio/storage/database/seed"
)

func (cli *commandLine) seed(pwd string) error {
	err := seed.Run(context.Background(), cli.repos, pwd, cli.logger)
	if err == seed.ErrAlreadySeeded {
		cli.logger.Info(err.Error())
		return nil
	}
	return err
}
