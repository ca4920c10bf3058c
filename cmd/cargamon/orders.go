package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/farouk15160/cargamon/internal/api"
)

func (a *app) orders(ctx context.Context, args []string) error {
	var (
		number  int64
		id      int64
		history bool
		create  string
	)
	flagSet := pflag.NewFlagSet("orders", pflag.ContinueOnError)
	flagSet.Int64VarP(&number, "number", "n", 0, "show a single order by its order number")
	flagSet.Int64Var(&id, "id", 0, "show a single order by its database id")
	flagSet.BoolVar(&history, "history", false, "with --number or --id, also print the load history")
	flagSet.StringVar(&create, "create", "", "submit a B2B order from a JSON file (- for stdin)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	client, err := a.apiClient(true)
	if err != nil {
		return err
	}
	switch {
	case create != "":
		return a.createOrder(ctx, client, create)
	case id != 0:
		o, err := client.Orders.Get(ctx, id)
		if err != nil {
			return err
		}
		return a.printOrder(ctx, client, o, history)
	case number != 0:
		o, err := client.Orders.GetByNumber(ctx, number)
		if err != nil {
			return err
		}
		return a.printOrder(ctx, client, o, history)
	}

	orders, err := client.Orders.List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NUMBER\tSTATUS\tTRUCK\tCUSTOMER\tPRODUCT\tPROGRESS\tALARM")
	for _, o := range orders {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%.0f%%\t%s\n",
			o.Number, api.StatusLabel(o.Status), truckPlate(&o), customerName(&o), productName(&o),
			o.Progress()*100, yesNo(o.AlarmActive))
	}
	return tw.Flush()
}

// createOrder posts the order described by the JSON document at path.
func (a *app) createOrder(ctx context.Context, client *api.Client, path string) error {
	var r io.Reader = a.stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open order file '%s': %w", path, err)
		}
		defer f.Close()
		r = f
	}
	var order api.Order
	if err := json.NewDecoder(r).Decode(&order); err != nil {
		return fmt.Errorf("failed to decode order JSON: %w", err)
	}
	created, err := client.Orders.Create(ctx, &order)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Order %d created (id %d, %s).\n", created.Number, created.ID, api.StatusLabel(created.Status))
	return nil
}

func (a *app) printOrder(ctx context.Context, client *api.Client, o *api.Order, history bool) error {
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Order\t%d\n", o.Number)
	fmt.Fprintf(tw, "Status\t%s\n", api.StatusLabel(o.Status))
	fmt.Fprintf(tw, "Truck\t%s\n", truckPlate(o))
	fmt.Fprintf(tw, "Driver\t%s\n", dash(o.Driver.FullName()))
	fmt.Fprintf(tw, "Customer\t%s\n", customerName(o))
	fmt.Fprintf(tw, "Product\t%s\n", productName(o))
	if threshold, ok := o.TemperatureThreshold(); ok {
		fmt.Fprintf(tw, "Threshold\t%.1f °C\n", threshold)
	}
	fmt.Fprintf(tw, "Preset\t%.0f kg\n", o.Preset)
	fmt.Fprintf(tw, "Mass\t%s kg (%.0f%%)\n", optional(o.LastAccumulatedMass, "%.0f"), o.Progress()*100)
	fmt.Fprintf(tw, "Temperature\t%s °C\n", optional(o.LastTemperature, "%.1f"))
	fmt.Fprintf(tw, "Density\t%s\n", optional(o.LastDensity, "%.4f"))
	fmt.Fprintf(tw, "Flow rate\t%s kg/h\n", optional(o.LastFlowRate, "%.1f"))
	fmt.Fprintf(tw, "Alarm\t%s\n", yesNo(o.AlarmActive))
	if err := tw.Flush(); err != nil {
		return err
	}
	if !history {
		return nil
	}

	records, err := client.Orders.LoadHistory(ctx, o.Number)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "\nLoad history (%d samples)\n", len(records))
	tw = tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTEMPERATURE\tMASS\tDENSITY\tFLOW")
	for _, r := range records {
		when := "—"
		if t := r.Time(); !t.IsZero() {
			when = t.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%.1f\t%s\t%s\t%s\n", when, r.Temperature,
			optional(r.Mass, "%.0f"), optional(r.Density, "%.4f"), optional(r.FlowRate, "%.1f"))
	}
	return tw.Flush()
}

func truckPlate(o *api.Order) string {
	if o.Truck == nil {
		return "—"
	}
	return dash(o.Truck.Plate)
}

func customerName(o *api.Order) string {
	if o.Customer == nil {
		return "—"
	}
	return dash(o.Customer.CompanyName)
}

func productName(o *api.Order) string {
	if o.Product == nil {
		return "—"
	}
	return dash(o.Product.Name)
}

func optional(v *float64, format string) string {
	if v == nil {
		return "—"
	}
	return fmt.Sprintf(format, *v)
}

func dash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
