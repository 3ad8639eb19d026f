package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/billing"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")

	// operator is the viewer of the billing edits run from the command line.
	operator = access.Viewer{Role: access.RoleAdmin, UserID: "operator"}
)

type (
	passwordResetter interface {
		ResetPassword(ctx context.Context, email, password string) error
	}

	boletoGenerator interface {
		BatchGenerate(ctx context.Context, viewer access.Viewer, month, year int, amount core.Money) (billing.BatchResult, error)
		MarkOverdue(ctx context.Context, asOf core.Date) (int, error)
	}

	commandLine struct {
		migrator migrator
		accounts passwordResetter
		boletos  boletoGenerator
		out      io.Writer
	}
)

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  resetpassword -email EMAIL - reset an account's password")
	fmt.Fprintln(cli.out, "  generateboletos -month MONTH -year YEAR -amount AMOUNT - bill every guardian not billed yet")
	fmt.Fprintln(cli.out, "  markoverdue [-date YYYY-MM-DD] - mark the pending boletos due before date as overdue")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The account's email. The password will be prompted next.")

	generateCmd := flag.NewFlagSet("generateboletos", flag.ContinueOnError)
	generateMonth := generateCmd.Int("month", 0, "The month billed (1-12).")
	generateYear := generateCmd.Int("year", 0, "The year billed.")
	generateAmount := generateCmd.String("amount", "", "The amount of each boleto, eg. 550,00.")

	overdueCmd := flag.NewFlagSet("markoverdue", flag.ContinueOnError)
	overdueDate := overdueCmd.String("date", "", "Boletos due before this date become overdue (default: today).")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2:])

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(ctx, *resetPasswordEmail, string(pwd))

	case "generateboletos":
		if err := generateCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *generateMonth == 0 || *generateYear == 0 || *generateAmount == "" {
			generateCmd.Usage()
			return errHelp
		}
		amount, err := core.ParseMoney(*generateAmount)
		if err != nil {
			return err
		}
		return cli.generateBoletos(ctx, *generateMonth, *generateYear, amount)

	case "markoverdue":
		if err := overdueCmd.Parse(args[2:]); err != nil {
			return err
		}
		asOf := todayFunc()
		if *overdueDate != "" {
			d, err := core.ParseDate(*overdueDate)
			if err != nil {
				return err
			}
			asOf = d
		}
		return cli.markOverdue(ctx, asOf)

	default:
		cli.printUsage()
		return errHelp
	}
}
