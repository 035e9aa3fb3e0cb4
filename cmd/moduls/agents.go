package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/layer-3/moduls/core"
	"github.com/layer-3/moduls/internal/config"
	"github.com/urfave/cli/v2"
)

func agentsCommand() *cli.Command {
	return &cli.Command{
		Name:  "agents",
		Usage: "list agent tokens, newest first",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "mine", Usage: "only agents you created"},
			&cli.IntFlag{Name: "page", Value: 1},
			&cli.IntFlag{Name: "limit", Value: 20},
		},
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			if c.Bool("mine") {
				if err := rt.ensureSession(c.Context); err != nil {
					return err
				}
				agents, err := rt.catalog.MyAgents(c.Context)
				if err != nil {
					return err
				}
				return printAgents(c, agents)
			}

			page, err := rt.catalog.Agents(c.Context, c.Int("page"), c.Int("limit"))
			if err != nil {
				return err
			}
			if err := printAgents(c, page.Agents); err != nil {
				return err
			}
			if !c.Bool("json") {
				fmt.Fprintf(c.App.ErrWriter, "page %d, %d of %d agents\n", page.Page, len(page.Agents), page.Total)
			}
			return nil
		}),
	}
}

func agentCommand() *cli.Command {
	return &cli.Command{
		Name:      "agent",
		Usage:     "show one agent",
		ArgsUsage: "<id>",
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: moduls agent <id>", 2)
			}

			agent, err := rt.catalog.Agent(c.Context, c.Args().First())
			if errors.Is(err, core.ErrNotFound) {
				return cli.Exit("agent not found", 1)
			}
			if err != nil {
				return err
			}
			return printAgent(c, agent)
		}),
	}
}

func createCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "create an agent token",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Required: true},
			&cli.StringFlag{Name: "symbol", Required: true},
			&cli.StringFlag{Name: "description"},
			&cli.Int64Flag{Name: "chain", Usage: "chain id, defaults to MODULS_CHAIN_ID"},
		},
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			chainID := c.Int64("chain")
			if chainID == 0 {
				chainID = rt.cfg.ChainID
			}
			if _, err := rt.contracts.For(chainID); err != nil {
				return err
			}

			req := core.CreateAgentRequest{
				Name:        c.String("name"),
				Symbol:      c.String("symbol"),
				Description: c.String("description"),
				ChainID:     chainID,
			}
			// Fail on bad input before the wallet is asked to sign
			if err := req.Validate(); err != nil {
				return cli.Exit(err.Error(), 2)
			}

			if err := rt.ensureSession(c.Context); err != nil {
				return err
			}

			agent, err := rt.catalog.CreateAgent(c.Context, req)
			if err != nil {
				var verr core.ValidationError
				if errors.As(err, &verr) {
					return cli.Exit(verr.Error(), 2)
				}
				return err
			}
			return printAgent(c, agent)
		}),
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "find agents by name, symbol or contract",
		ArgsUsage: "<query>",
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: moduls search <query>", 2)
			}

			agents, err := rt.catalog.Search(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			return printAgents(c, agents)
		}),
	}
}

func holdersCommand() *cli.Command {
	return &cli.Command{
		Name:      "holders",
		Usage:     "show the holders of an agent token",
		ArgsUsage: "<token>",
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: moduls holders <token>", 2)
			}

			holders, err := rt.catalog.Holders(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(c.App.Writer, holders)
			}

			rows := make([]string, 0, len(holders))
			for _, h := range holders {
				rows = append(rows, fmt.Sprintf("%s\t%s\t%s%%", h.Address, h.Balance.String(), h.Share.Shift(2).StringFixed(2)))
			}
			return table(c.App.Writer, "ADDRESS\tBALANCE\tSHARE", rows)
		}),
	}
}

func metricsCommand() *cli.Command {
	return &cli.Command{
		Name:      "metrics",
		Usage:     "show trading figures of an agent token",
		ArgsUsage: "<token>",
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: moduls metrics <token>", 2)
			}

			m, err := rt.catalog.Metrics(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(c.App.Writer, m)
			}

			return table(c.App.Writer, "FIELD\tVALUE", []string{
				"price\t" + m.Price.String(),
				"market cap\t" + m.MarketCap.StringFixed(2),
				"volume 24h\t" + m.Volume24h.StringFixed(2),
				fmt.Sprintf("holders\t%d", m.Holders),
				fmt.Sprintf("trades 24h\t%d", m.Trades24h),
				"last trade\t" + formatTime(m.LastTradeAt),
			})
		}),
	}
}

func webhooksCommand() *cli.Command {
	return &cli.Command{
		Name:  "webhooks",
		Usage: "show chain event ingestion status",
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			status, err := rt.catalog.WebhookStatus(c.Context)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(c.App.Writer, status)
			}

			return table(c.App.Writer, "FIELD\tVALUE", []string{
				fmt.Sprintf("healthy\t%t", status.Healthy),
				"last event\t" + formatTime(status.LastEventAt),
				fmt.Sprintf("pending\t%d", status.PendingEvents),
			})
		}),
	}
}

func contractsCommand() *cli.Command {
	return &cli.Command{
		Name:  "contracts",
		Usage: "show the contract addresses per chain",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "all", Usage: "every configured chain"},
		},
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			chains := []int64{rt.cfg.ChainID}
			if c.Bool("all") {
				chains = chains[:0]
				for id := range rt.contracts {
					chains = append(chains, id)
				}
				sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })
			}

			book := make(config.ContractBook, len(chains))
			rows := make([]string, 0, len(chains))
			for _, id := range chains {
				contracts, err := rt.contracts.For(id)
				if err != nil {
					return err
				}
				book[id] = contracts
				rows = append(rows, fmt.Sprintf("%d\t%s\t%s", id, contracts.SalesManager.Hex(), contracts.Deployer.Hex()))
			}
			if c.Bool("json") {
				return printJSON(c.App.Writer, book)
			}
			return table(c.App.Writer, "CHAIN\tSALES MANAGER\tDEPLOYER", rows)
		}),
	}
}
