package main

import (
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"

	"github.com/ledgercore/ledgerd/service/ledger"
)

func keysCommands() *cli.Command {
	return &cli.Command{
		Name:  "keys",
		Usage: "Signing key management commands",
		Subcommands: []*cli.Command{
			generateKeyCommand(),
			signCommand(),
		},
	}
}

func generateKeyCommand() *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "Generate a new ed25519 keypair",
		Action: func(c *cli.Context) error {
			key, err := solanago.NewRandomPrivateKey()
			if err != nil {
				return fmt.Errorf("failed to generate keypair: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(map[string]string{
					"public_key":  key.PublicKey().String(),
					"private_key": key.String(),
				})
			}

			fmt.Printf("Public key:  %s\n", key.PublicKey().String())
			fmt.Printf("Private key: %s\n", key.String())
			return nil
		},
	}
}

func signCommand() *cli.Command {
	return &cli.Command{
		Name:  "sign",
		Usage: "Sign a transaction payload without submitting it",
		Description: `Computes the canonical signing payload from the given fields and signs
it. Useful for driving the HTTP API directly with curl.`,
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
				Required: true,
			},
			&cli.Uint64Flag{
				Name:     "amount",
				Aliases:  []string{"a"},
				Required: true,
			},
			&cli.Uint64Flag{
				Name:     "nonce",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "token-name",
				Value: "LedgerCoin",
			},
			&cli.StringFlag{
				Name:  "token-symbol",
				Value: "LDGR",
			},
			&cli.UintFlag{
				Name:  "token-decimals",
				Value: 9,
			},
		},
		Action: func(c *cli.Context) error {
			key, err := solanago.PrivateKeyFromBase58(c.String("key"))
			if err != nil {
				return fmt.Errorf("invalid private key: %w", err)
			}

			req := &ledger.TransactionRequest{
				SenderAddress:   key.PublicKey().String(),
				SenderPublicKey: key.PublicKey().String(),
				ReceiverAddress: c.String("receiver"),
				Token: ledger.Token{
					Name:     c.String("token-name"),
					Symbol:   c.String("token-symbol"),
					Decimals: uint32(c.Uint("token-decimals")),
				},
				Amount: c.Uint64("amount"),
				Nonce:  c.Uint64("nonce"),
			}

			sig, err := key.Sign(ledger.SigningPayload(req))
			if err != nil {
				return fmt.Errorf("failed to sign payload: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(map[string]string{
					"sender_address":    req.SenderAddress,
					"sender_public_key": req.SenderPublicKey,
					"signature":         sig.String(),
				})
			}

			fmt.Printf("Sender:    %s\n", req.SenderAddress)
			fmt.Printf("Signature: %s\n", sig.String())
			return nil
		},
	}
}
