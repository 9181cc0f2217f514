package main

import (
	"fmt"
	"net/url"

	"github.com/urfave/cli/v2"
)

var (
	release = cli.Command{
		Name:      "release",
		Usage:     "force the release of a ticket's funds to the seller",
		ArgsUsage: "<ticket_id>",
		Action:    releaseAction,
	}
	cancel = cli.Command{
		Name:      "cancel",
		Usage:     "force the refund of a ticket's funds to the buyer",
		ArgsUsage: "<ticket_id>",
		Action:    cancelAction,
	}
	closeTicket = cli.Command{
		Name:      "close",
		Usage:     "close a ticket",
		ArgsUsage: "<ticket_id>",
		Action:    closeAction,
	}
	restartMonitor = cli.Command{
		Name:      "restart-monitor",
		Usage:     "restart the payment monitor of a ticket whose monitor failed",
		ArgsUsage: "<ticket_id>",
		Action:    restartMonitorAction,
	}
	reload = cli.Command{
		Name:   "reload",
		Usage:  "reload active tickets from the ledger and resume their monitors",
		Action: reloadAction,
	}
	stats = cli.Command{
		Name:   "stats",
		Usage:  "print the daemon's ticket statistics",
		Action: statsAction,
	}
)

func releaseAction(ctx *cli.Context) error {
	return adminTicketAction(ctx, "release")
}

func cancelAction(ctx *cli.Context) error {
	return adminTicketAction(ctx, "cancel")
}

func closeAction(ctx *cli.Context) error {
	return ticketEventAction(ctx, "close")
}

func restartMonitorAction(ctx *cli.Context) error {
	return ticketEventAction(ctx, "restart_monitor")
}

func adminTicketAction(ctx *cli.Context, action string) error {
	ticketID, err := ticketArg(ctx)
	if err != nil {
		return err
	}

	client, err := getClient()
	if err != nil {
		return err
	}

	var resp map[string]interface{}
	path := fmt.Sprintf("/v1/admin/tickets/%s/%s", url.PathEscape(ticketID), action)
	if err := client.post(path, nil, &resp); err != nil {
		return err
	}

	printRespJSON(resp)
	return nil
}

func ticketEventAction(ctx *cli.Context, kind string) error {
	ticketID, err := ticketArg(ctx)
	if err != nil {
		return err
	}

	client, err := getClient()
	if err != nil {
		return err
	}

	var resp map[string]interface{}
	path := fmt.Sprintf("/v1/tickets/%s/events", url.PathEscape(ticketID))
	body := map[string]string{"kind": kind}
	if err := client.post(path, body, &resp); err != nil {
		return err
	}

	printRespJSON(resp)
	return nil
}

func reloadAction(ctx *cli.Context) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	var resp struct {
		Restored int `json:"restored"`
	}
	if err := client.post("/v1/admin/reload", nil, &resp); err != nil {
		return err
	}

	fmt.Printf("restored %d tickets\n", resp.Restored)
	return nil
}

func statsAction(ctx *cli.Context) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	var resp map[string]interface{}
	if err := client.get("/v1/admin/stats", &resp); err != nil {
		return err
	}

	printRespJSON(resp)
	return nil
}
