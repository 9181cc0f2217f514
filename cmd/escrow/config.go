package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"
)

var (
	serverFlag = cli.StringFlag{
		Name:  "server",
		Usage: "escrowd http interface url",
		Value: "http://localhost:9080",
	}

	actorFlag = cli.StringFlag{
		Name:  "actor",
		Usage: "your admin id, as listed in the daemon's ADMIN_IDS",
	}

	apiSecretFlag = cli.StringFlag{
		Name:  "api_secret",
		Usage: "the secret bearer tokens are signed with, if auth is enabled",
	}
)

var config = cli.Command{
	Name:   "config",
	Usage:  "Print local configuration of the escrow CLI",
	Action: configAction,
	Subcommands: []*cli.Command{
		{
			Name:   "set",
			Usage:  "set a <key> <value> in the local state",
			Action: configSetAction,
		},
		{
			Name:   "init",
			Usage:  "initialize the local state with flags",
			Action: configInitAction,
			Flags: []cli.Flag{
				&serverFlag,
				&actorFlag,
				&apiSecretFlag,
			},
		},
	},
}

func configAction(ctx *cli.Context) error {
	state, err := getState()
	if err != nil {
		return err
	}

	for key, value := range state {
		if key == "api_secret" && value != "" {
			value = "********"
		}
		fmt.Println(key + ": " + value)
	}

	return nil
}

func configInitAction(c *cli.Context) error {
	return setState(map[string]string{
		"server":     c.String("server"),
		"actor":      c.String("actor"),
		"api_secret": c.String("api_secret"),
	})
}

func configSetAction(c *cli.Context) error {
	if c.NArg() < 2 {
		return errors.New("key and value are missing")
	}

	key := c.Args().Get(0)
	value := c.Args().Get(1)

	if err := setState(map[string]string{key: value}); err != nil {
		return err
	}

	fmt.Printf("%s has been set\n", key)

	return nil
}
