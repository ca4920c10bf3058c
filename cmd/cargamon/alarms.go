package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

func (a *app) alarms(ctx context.Context, args []string) error {
	var accept int64
	flagSet := pflag.NewFlagSet("alarms", pflag.ContinueOnError)
	flagSet.Int64Var(&accept, "accept", 0, "acknowledge the alarm with this id")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	client, err := a.apiClient(true)
	if err != nil {
		return err
	}
	if accept != 0 {
		if err := client.Alarms.Accept(ctx, accept); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "Alarm %d accepted.\n", accept)
		return nil
	}

	alarms, err := client.Alarms.List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tORDER\tTEMPERATURE\tTIME\tACCEPTED\tDESCRIPTION")
	for _, al := range alarms {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n",
			al.ID, al.OrderNumber, optional(al.Temperature, "%.1f"), dash(al.DateTime), yesNo(al.Accepted), dash(al.Description))
	}
	return tw.Flush()
}
