package main

import (
	"errors"
	"fmt"

	"github.com/layer-3/moduls/core"
	"github.com/urfave/cli/v2"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "sign in with the configured wallet",
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			id, err := rt.identity(c.Context)
			if err != nil {
				return err
			}

			err = rt.session.Connect(c.Context, id)
			if errors.Is(err, core.ErrSignatureRejected) {
				return cli.Exit("signature declined, wallet disconnected", 2)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(c.App.Writer, "signed in as %s on chain %d\n", id.Address.Hex(), id.ChainID)
			return nil
		}),
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "revoke the stored credential and disconnect",
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			// Logout needs a connected session, stored or not
			if err := rt.resume(c.Context); err != nil && !errors.Is(err, core.ErrNoCredential) {
				rt.log.WithError(err).Warn("could not restore session")
			}

			if err := rt.session.Logout(c.Context); err != nil {
				return err
			}

			fmt.Fprintln(c.App.Writer, "signed out")
			return nil
		}),
	}
}

func whoamiCommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "show the signed in user",
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			if err := rt.resume(c.Context); err != nil {
				if errors.Is(err, core.ErrNoCredential) {
					return cli.Exit("not signed in, run `moduls login`", 1)
				}
				return err
			}

			token, err := rt.session.Token(c.Context)
			if err != nil {
				return err
			}
			user, err := rt.api.Me(c.Context, token)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return printJSON(c.App.Writer, user)
			}
			rows := []string{"address\t" + user.Address, "created\t" + formatTime(user.CreatedAt)}
			if user.Username != "" {
				rows = append(rows, "username\t"+user.Username)
			}
			return table(c.App.Writer, "FIELD\tVALUE", rows)
		}),
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show the session state without prompting the wallet",
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			err := rt.resume(c.Context)
			if err != nil && !errors.Is(err, core.ErrNoCredential) {
				rt.log.WithError(err).Debug("resume failed")
			}

			snap := rt.session.Snapshot()
			status := struct {
				State   core.State `json:"state"`
				Address string     `json:"address"`
				ChainID int64      `json:"chain_id"`
				API     string     `json:"api"`
				Error   string     `json:"error,omitempty"`
			}{
				State:   snap.State,
				Address: snap.Address.Hex(),
				ChainID: snap.ChainID,
				API:     rt.cfg.APIURL,
			}
			if snap.Err != nil {
				status.Error = snap.Err.Error()
			}

			if c.Bool("json") {
				return printJSON(c.App.Writer, status)
			}
			rows := []string{
				"state\t" + string(status.State),
				"address\t" + status.Address,
				fmt.Sprintf("chain\t%d", status.ChainID),
				"api\t" + status.API,
			}
			if status.Error != "" {
				rows = append(rows, "error\t"+status.Error)
			}
			return table(c.App.Writer, "FIELD\tVALUE", rows)
		}),
	}
}
