package main

import (
	"net/url"

	"github.com/urfave/cli/v2"
)

var tickets = cli.Command{
	Name:  "tickets",
	Usage: "inspect escrow tickets",
	Subcommands: []*cli.Command{
		{
			Name:   "list",
			Usage:  "list all tickets, optionally filtered by status",
			Action: listTicketsAction,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "status",
					Usage: "only list tickets in the given status (ie. payment_monitoring)",
				},
			},
		},
		{
			Name:      "show",
			Usage:     "show the full state of a ticket",
			ArgsUsage: "<ticket_id>",
			Action:    showTicketAction,
		},
	},
}

func listTicketsAction(ctx *cli.Context) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	path := "/v1/tickets"
	if status := ctx.String("status"); status != "" {
		path += "?status=" + url.QueryEscape(status)
	}

	var resp map[string]interface{}
	if err := client.get(path, &resp); err != nil {
		return err
	}

	printRespJSON(resp)
	return nil
}

func showTicketAction(ctx *cli.Context) error {
	ticketID, err := ticketArg(ctx)
	if err != nil {
		return err
	}

	client, err := getClient()
	if err != nil {
		return err
	}

	var resp map[string]interface{}
	if err := client.get("/v1/tickets/"+url.PathEscape(ticketID), &resp); err != nil {
		return err
	}

	printRespJSON(resp)
	return nil
}

func ticketArg(ctx *cli.Context) (string, error) {
	if ctx.NArg() != 1 {
		return "", &invalidUsageError{ctx, ctx.Command.Name}
	}
	return ctx.Args().First(), nil
}
