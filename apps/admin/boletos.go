package main

import (
	"context"
	"fmt"
	"time"

	"github.com/trezcool/escola/core"
)

var todayFunc = func() core.Date { return core.DateOf(time.Now().UTC()) } // mockable

func (cli *commandLine) generateBoletos(ctx context.Context, month, year int, amount core.Money) error {
	res, err := cli.boletos.BatchGenerate(ctx, operator, month, year, amount)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%02d/%d: %d boleto(s) created, %d guardian(s) already billed\n", month, year, res.Created, res.Skipped)
	return nil
}

func (cli *commandLine) markOverdue(ctx context.Context, asOf core.Date) error {
	n, err := cli.boletos.MarkOverdue(ctx, asOf)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d boleto(s) due before %s marked overdue\n", n, asOf)
	return nil
}
