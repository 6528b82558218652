package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/bloomfund/relayer/internal/alerts"
	"github.com/bloomfund/relayer/internal/blockchain"
	"github.com/bloomfund/relayer/internal/config"
	"github.com/bloomfund/relayer/internal/http_api"
	"github.com/bloomfund/relayer/internal/relayer"
	"github.com/bloomfund/relayer/internal/repository"
	"github.com/bloomfund/relayer/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "relayer",
		Usage: "BloomFund premium relayer: batches signed payment authorizations into one on-chain transaction",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.StringFlag{Name: "rpc-url", Aliases: []string{"r"}, Usage: "JSON-RPC endpoint URL"},
			&cli.StringFlag{Name: "contract-address", Aliases: []string{"s"}, Usage: "Insurance fund contract address"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
			&cli.IntFlag{Name: "run-interval", Aliases: []string{"i"}, Usage: "Seconds between relayer runs"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Simulate batches before submitting"},
		},
		Action: func(c *cli.Context) error {
			return run(c)
		},
		Commands: []*cli.Command{
			approveClaimCommand(),
			payInstallmentCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %v", err)
	}

	// Override with flags if set
	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("rpc-url") {
		cfg.RPCURL = c.String("rpc-url")
	}
	if c.IsSet("contract-address") {
		cfg.ContractAddress = c.String("contract-address")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}
	if c.IsSet("run-interval") {
		cfg.RunInterval = time.Duration(c.Int("run-interval")) * time.Second
	}
	if c.IsSet("dry-run") {
		cfg.DryRun = c.Bool("dry-run")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}

	// Initialize database
	db, err := repository.NewPostgresDB(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize chain service
	chain := blockchain.NewEthereum(cfg, log)
	if err := chain.Run(); err != nil {
		return fmt.Errorf("failed to initialize chain service: %v", err)
	}
	defer chain.Close()

	// Initialize operator alerts
	var telegramAlerter *alerts.TelegramAlerter
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		telegramAlerter, err = alerts.NewTelegramAlerter(log, cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			return fmt.Errorf("failed to initialize telegram alerter: %v", err)
		}
	}
	alerter := alerts.NewAlerter(log, telegramAlerter)

	// Create relayer instance
	relayerApp := relayer.NewRelayer(db, chain, alerter, log, cfg)

	apiServer := http_api.NewHTTPServer(relayerApp, cfg.APIPort, log)

	go apiServer.Start()
	defer apiServer.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start the application
	relayerApp.Start(ctx)

	return nil
}

// adminChain builds the chain service for one-off admin transactions.
func adminChain(c *cli.Context) (*blockchain.Ethereum, *logger.Logger, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %v", err)
	}
	chain := blockchain.NewEthereum(cfg, log)
	if err := chain.Run(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize chain service: %v", err)
	}
	return chain, log, nil
}

func approveClaimCommand() *cli.Command {
	return &cli.Command{
		Name:  "approve-claim",
		Usage: "Approve a claim with a payout specified in Rand and an explicit wei-per-rand rate",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Usage: "Claimant address", Required: true},
			&cli.Uint64Flag{Name: "claim-id", Usage: "Claim identifier", Required: true},
			&cli.StringFlag{Name: "payout-rand", Usage: "Approved payout in Rand (whole units)", Required: true},
			// The rate has no default on purpose: conversion must be an
			// explicit operator input, never a baked-in constant.
			&cli.StringFlag{Name: "rate-wei", Usage: "Exchange rate in wei per Rand", Required: true},
		},
		Action: func(c *cli.Context) error {
			if !common.IsHexAddress(c.String("user")) {
				return fmt.Errorf("invalid user address: %s", c.String("user"))
			}
			payoutRand, ok := new(big.Int).SetString(c.String("payout-rand"), 10)
			if !ok || payoutRand.Sign() <= 0 {
				return fmt.Errorf("invalid payout amount: %s", c.String("payout-rand"))
			}
			rateWei, ok := new(big.Int).SetString(c.String("rate-wei"), 10)
			if !ok || rateWei.Sign() <= 0 {
				return fmt.Errorf("invalid exchange rate: %s", c.String("rate-wei"))
			}
			amountWei := new(big.Int).Mul(payoutRand, rateWei)

			chain, log, err := adminChain(c)
			if err != nil {
				return err
			}
			defer chain.Close()

			txHash, err := chain.ApproveClaim(c.Context, common.HexToAddress(c.String("user")), c.Uint64("claim-id"), amountWei)
			if err != nil {
				return err
			}
			log.Info("Claim approved ", "tx ", txHash, " claim ", c.Uint64("claim-id"), " amount_wei ", amountWei)
			return nil
		},
	}
}

func payInstallmentCommand() *cli.Command {
	return &cli.Command{
		Name:  "pay-installment",
		Usage: "Pay out the next installment of an approved claim",
		Flags: []cli.Flag{
			&cli.Uint64Flag{Name: "claim-id", Usage: "Claim identifier", Required: true},
		},
		Action: func(c *cli.Context) error {
			chain, log, err := adminChain(c)
			if err != nil {
				return err
			}
			defer chain.Close()

			txHash, err := chain.PayInstallment(c.Context, c.Uint64("claim-id"))
			if err != nil {
				return err
			}
			log.Info("Installment paid ", "tx ", txHash, " claim ", c.Uint64("claim-id"))
			return nil
		},
	}
}
