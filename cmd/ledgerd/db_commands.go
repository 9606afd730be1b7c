package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/ledgercore/ledgerd/service/db"
)

// getStore connects to the database from the --database-url global flag.
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		return nil, nil, fmt.Errorf("--database-url (or DATABASE_URL) is required")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db.NewStore(pool, nil), pool.Close, nil
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the storage agent schema",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.Migrate(context.Background()); err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "schema applied")
			return nil
		},
	}
}

func getAccountCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-account",
		Usage:     "Get an account's balance and committed nonce",
		Aliases:   []string{"account"},
		ArgsUsage: "<address>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: account address")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			account, err := store.GetAccount(context.Background(), c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to get account: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(account)
			}

			fmt.Printf("Address: %s\n", account.Address)
			fmt.Printf("Balance: %d\n", account.Balance)
			fmt.Printf("Nonce:   %d\n", account.Nonce)
			return nil
		},
	}
}

func getTransactionCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-transaction",
		Usage:     "Get a committed transaction record by id",
		Aliases:   []string{"get"},
		ArgsUsage: "<transaction-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction id")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			rec, err := store.GetTransaction(context.Background(), c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to get transaction: %w", err)
			}
			return outputJSON(rec)
		},
	}
}

func listTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "list-transactions",
		Usage:     "List committed transactions for an account",
		Aliases:   []string{"ls"},
		ArgsUsage: "<address>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Value:   50,
				Usage:   "Maximum number of transactions to return",
			},
			&cli.IntFlag{
				Name:  "offset",
				Value: 0,
				Usage: "Number of transactions to skip",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: account address")
			}
			address := c.Args().Get(0)

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			recs, err := store.ListTransactionsByAccount(context.Background(), db.ListTransactionsByAccountParams{
				Address: address,
				Limit:   int32(c.Int("limit")),
				Offset:  int32(c.Int("offset")),
			})
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(recs)
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSENDER\tRECEIVER\tAMOUNT\tNONCE\tFINALIZED")
			for _, rec := range recs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
					shorten(rec.ID),
					shorten(rec.SenderAddress),
					shorten(rec.ReceiverAddress),
					rec.Amount,
					rec.Nonce,
					rec.FinalizedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			total, err := store.CountTransactionsByAccount(context.Background(), address)
			if err != nil {
				return fmt.Errorf("failed to count transactions: %w", err)
			}
			fmt.Fprintf(os.Stderr, "\nTotal: %d transactions\n", total)
			return nil
		},
	}
}

// outputJSON writes a value to stdout as indented JSON.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// shorten truncates long ids and addresses for table display.
func shorten(s string) string {
	if len(s) <= 16 {
		return s
	}
	return s[:8] + ".." + s[len(s)-6:]
}
