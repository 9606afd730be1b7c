package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	"github.com/ledgercore/ledgerd/client"
	"github.com/ledgercore/ledgerd/service/ledger"
)

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "HTTP client commands for interacting with a ledger node",
		Subcommands: []*cli.Command{
			createCommand(),
			getCommand(),
			voteCommand(),
			cancelCommand(),
			accountCommand(),
			historyCommand(),
			mempoolCommand(),
		},
	}
}

// getClient builds an authenticated node client from the global flags.
func getClient(c *cli.Context) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
	return client.NewClient(c.String("server-url"), c.String("identity"), c.String("secret"), nil, logger)
}

func createCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Sign and submit a transaction request",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "key",
				Aliases:  []string{"k"},
				Usage:    "Sender private key (base58)",
				EnvVars:  []string{"LEDGERD_SIGNING_KEY"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "receiver",
				Aliases:  []string{"r"},
				Usage:    "Receiver address (base58)",
				Required: true,
			},
			&cli.Uint64Flag{
				Name:     "amount",
				Aliases:  []string{"a"},
				Usage:    "Amount in base token units",
				Required: true,
			},
			&cli.Uint64Flag{
				Name:  "nonce",
				Usage: "Account nonce (0 = query the node and use last committed + 1)",
			},
			&cli.StringFlag{
				Name:  "token-name",
				Value: "LedgerCoin",
				Usage: "Token name",
			},
			&cli.StringFlag{
				Name:  "token-symbol",
				Value: "LDGR",
				Usage: "Token symbol",
			},
			&cli.UintFlag{
				Name:  "token-decimals",
				Value: 9,
				Usage: "Token decimals",
			},
			&cli.StringSliceFlag{
				Name:    "endorse",
				Aliases: []string{"e"},
				Usage:   "Validator identity to hint as endorsed (repeatable)",
			},
			&cli.StringFlag{
				Name:  "filter",
				Usage: "jq expression applied to the JSON output",
			},
		},
		Action: func(c *cli.Context) error {
			key, err := solanago.PrivateKeyFromBase58(c.String("key"))
			if err != nil {
				return fmt.Errorf("invalid private key: %w", err)
			}
			sender := key.PublicKey().String()

			cl := getClient(c)
			ctx := context.Background()

			nonce := c.Uint64("nonce")
			if nonce == 0 {
				// A fresh account starts at nonce 1; an unknown account reads
				// as last committed 0.
				if account, err := cl.GetAccount(ctx, sender); err == nil {
					nonce = account.Nonce + 1
				} else {
					nonce = 1
				}
			}

			hints := make(map[string]bool)
			for _, v := range c.StringSlice("endorse") {
				hints[v] = true
			}

			req := &ledger.TransactionRequest{
				Timestamp:       time.Now().Unix(),
				SenderAddress:   sender,
				ReceiverAddress: c.String("receiver"),
				Token: ledger.Token{
					Name:     c.String("token-name"),
					Symbol:   c.String("token-symbol"),
					Decimals: uint32(c.Uint("token-decimals")),
				},
				Amount:     c.Uint64("amount"),
				Validators: hints,
				Nonce:      nonce,
			}
			if err := client.SignRequest(req, key); err != nil {
				return err
			}

			result, err := cl.CreateTransaction(ctx, req)
			if err != nil {
				return fmt.Errorf("failed to create transaction: %w", err)
			}
			return outputFiltered(result, c.String("filter"))
		},
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Resolve a transaction id to its committed record or pending snapshot",
		ArgsUsage: "<transaction-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "filter",
				Usage: "jq expression applied to the JSON output",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction id")
			}

			result, err := getClient(c).GetTransaction(context.Background(), c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to get transaction: %w", err)
			}
			return outputFiltered(result, c.String("filter"))
		},
	}
}

func voteCommand() *cli.Command {
	return &cli.Command{
		Name:      "vote",
		Usage:     "Record a validator endorsement on a pending transaction",
		ArgsUsage: "<transaction-id> [validator]",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("transaction id is required")
			}
			// The validator defaults to the caller's own identity on the
			// server side.
			validator := c.Args().Get(1)

			result, err := getClient(c).SubmitVote(context.Background(), c.Args().Get(0), validator)
			if err != nil {
				return fmt.Errorf("failed to submit vote: %w", err)
			}
			return outputJSON(result)
		},
	}
}

func cancelCommand() *cli.Command {
	return &cli.Command{
		Name:      "cancel",
		Usage:     "Withdraw a pending transaction",
		ArgsUsage: "<transaction-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction id")
			}

			if err := getClient(c).CancelTransaction(context.Background(), c.Args().Get(0)); err != nil {
				return fmt.Errorf("failed to cancel transaction: %w", err)
			}
			fmt.Fprintln(os.Stderr, "transaction cancelled")
			return nil
		},
	}
}

func accountCommand() *cli.Command {
	return &cli.Command{
		Name:      "account",
		Usage:     "Get an account's balance and committed nonce from the node",
		ArgsUsage: "<address>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: account address")
			}

			account, err := getClient(c).GetAccount(context.Background(), c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to get account: %w", err)
			}
			return outputJSON(account)
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "Page through an account's committed transactions",
		ArgsUsage: "<address>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Value:   50,
			},
			&cli.IntFlag{
				Name:  "offset",
				Value: 0,
			},
			&cli.StringFlag{
				Name:  "filter",
				Usage: "jq expression applied to the JSON output",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: account address")
			}

			history, err := getClient(c).ListAccountTransactions(
				context.Background(), c.Args().Get(0), c.Int("limit"), c.Int("offset"))
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}
			return outputFiltered(history, c.String("filter"))
		},
	}
}

func mempoolCommand() *cli.Command {
	return &cli.Command{
		Name:  "mempool",
		Usage: "Show pool occupancy and pending transactions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "filter",
				Usage: "jq expression applied to the JSON output",
			},
		},
		Action: func(c *cli.Context) error {
			snapshot, err := getClient(c).GetMempool(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get mempool: %w", err)
			}
			return outputFiltered(snapshot, c.String("filter"))
		},
	}
}

// outputFiltered prints v as JSON, optionally transformed by a jq
// expression.
func outputFiltered(v interface{}, filter string) error {
	if filter == "" {
		return outputJSON(v)
	}

	query, err := gojq.Parse(filter)
	if err != nil {
		return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}

	// Round-trip through JSON so gojq sees plain maps and slices.
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to decode output: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	iter := code.Run(doc)
	for {
		result, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := result.(error); isErr {
			return fmt.Errorf("jq filter error: %w", err)
		}
		if err := enc.Encode(result); err != nil {
			return err
		}
	}
	return nil
}
