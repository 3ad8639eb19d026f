package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) resetPassword(ctx context.Context, email, pwd string) error {
	if err := cli.accounts.ResetPassword(ctx, email, pwd); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "password of %s reset, its sessions were revoked\n", email)
	return nil
}
