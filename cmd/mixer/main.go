package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yourorg/shieldpool/pkg/chain"
	"github.com/yourorg/shieldpool/pkg/mixer"
	"github.com/yourorg/shieldpool/pkg/prover"
)

func main() {
	var (
		rpcURL      string
		keyHex      string
		contractS   string
		deployBlock uint64
		denomWei    string
		keyDir      string
	)

	newSession := func(ctx context.Context) (*mixer.Session, func(), error) {
		if rpcURL == "" {
			_ = godotenv.Load()
			rpcURL = os.Getenv("RPC_URL")
			if rpcURL == "" {
				return nil, nil, fmt.Errorf("--rpc flag or RPC_URL env var is required")
			}
		}
		if keyHex == "" {
			_ = godotenv.Load()
			keyHex = os.Getenv("PRIVATE_KEY")
		}
		denomination, ok := new(big.Int).SetString(denomWei, 10)
		if !ok {
			return nil, nil, fmt.Errorf("--denomination must be a decimal wei amount")
		}
		ledger, err := chain.NewEthLedger(ctx, rpcURL, common.HexToAddress(contractS), keyHex)
		if err != nil {
			return nil, nil, err
		}
		pool := mixer.Pool{
			Denomination:    denomination,
			Contract:        common.HexToAddress(contractS),
			DeploymentBlock: deployBlock,
		}
		return mixer.NewSession(ledger, prover.NewGroth16Backend(keyDir), pool), ledger.Close, nil
	}

	rootCmd := &cobra.Command{
		Use:   "mixer",
		Short: "Deposit into and withdraw from the shielded pool",
	}
	rootCmd.PersistentFlags().StringVar(&rpcURL, "rpc", "", "Ledger RPC URL")
	rootCmd.PersistentFlags().StringVar(&keyHex, "key", "", "Sender private key (hex)")
	rootCmd.PersistentFlags().StringVar(&contractS, "contract", "", "Pool contract address")
	rootCmd.PersistentFlags().Uint64Var(&deployBlock, "from-block", 0, "Pool deployment block")
	rootCmd.PersistentFlags().StringVar(&denomWei, "denomination", "100000000000000000", "Pool denomination in wei")
	rootCmd.PersistentFlags().StringVar(&keyDir, "keydir", "./keys", "Directory for cached setup keys")

	depositCmd := &cobra.Command{
		Use:   "deposit",
		Short: "Lock the pool denomination under a fresh commitment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, closeLedger, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer closeLedger()
			noteStr, tx, err := s.Deposit(cmd.Context())
			if noteStr != "" {
				// Print the note before reporting any error: it is the
				// only record of the deposit.
				fmt.Printf("note: %s\n", noteStr)
			}
			if err != nil {
				return err
			}
			fmt.Printf("deposit confirmed: %s\n", tx.Hex())
			return nil
		},
	}

	var noteStr, recipient, relayURL string
	withdrawCmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw a note to an unlinked recipient",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, closeLedger, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer closeLedger()
			var tx common.Hash
			if relayURL != "" {
				tx, err = s.WithdrawViaRelay(cmd.Context(), noteStr, recipient, relayURL)
			} else {
				tx, err = s.WithdrawDirect(cmd.Context(), noteStr, recipient)
			}
			if err != nil {
				return err
			}
			fmt.Printf("withdrawal confirmed: %s\n", tx.Hex())
			return nil
		},
	}
	withdrawCmd.Flags().StringVar(&noteStr, "note", "", "Deposit note")
	withdrawCmd.Flags().StringVar(&recipient, "to", "", "Recipient address")
	withdrawCmd.Flags().StringVar(&relayURL, "relay", "", "Relay URL (direct withdrawal when empty)")
	_ = withdrawCmd.MarkFlagRequired("note")
	_ = withdrawCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(depositCmd, withdrawCmd)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal(err)
	}
}
