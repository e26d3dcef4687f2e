// Command ledgerctl is a command-line client for the ledger API. It signs
// requests with a raw key from LEDGER_CLIENT_KEY or with a sealed key file.
//
//	ledgerctl seal-key -out key.json            (reads the raw key and password from env)
//	ledgerctl -key-file key.json create-market -q "Rain?" -options Yes,No
//	ledgerctl -key-file key.json buy -market <id> -option 0 -shares 10
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/alanyoungcy/marketledger/internal/auth"
	"github.com/alanyoungcy/marketledger/internal/client"
	"github.com/alanyoungcy/marketledger/internal/service"
)

func main() {
	_ = godotenv.Load()

	server := flag.String("server", envOr("LEDGER_CLIENT_SERVER", "http://localhost:8000"), "ledger API base URL")
	keyFile := flag.String("key-file", os.Getenv("LEDGER_CLIENT_KEY_FILE"), "sealed key file written by seal-key")
	address := flag.String("address", "", "identity for unsigned requests (servers with signatures disabled)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	if cmd == "seal-key" {
		exitOn(sealKey(args))
		return
	}

	c, err := newClient(*server, *keyFile, *address)
	exitOn(err)
	exitOn(run(ctx, c, cmd, args))
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: ledgerctl [flags] <command> [args]

commands:
  seal-key       encrypt LEDGER_CLIENT_KEY into a key file
  whoami         print the signing address
  markets        list markets
  market         show one market
  create-market  open a market
  add-option     add an option to a market
  resolve        resolve a market
  cancel         cancel a market
  buy            buy shares
  sell           sell shares
  claim          claim a payout
  reward         claim the daily reward
  balance        show a token balance

flags:
`)
	flag.PrintDefaults()
}

func newClient(server, keyFile, address string) (*client.Client, error) {
	src := auth.KeySource{
		RawPrivateKey: os.Getenv("LEDGER_CLIENT_KEY"),
		KeyFile:       keyFile,
		Password:      os.Getenv("LEDGER_CLIENT_KEY_PASSWORD"),
	}
	if src.RawPrivateKey == "" && src.KeyFile == "" {
		if address == "" {
			return nil, errors.New("no signing key: set LEDGER_CLIENT_KEY, -key-file or -address")
		}
		return client.New(server, nil).WithAddress(address), nil
	}
	signer, err := auth.LoadSigner(src)
	if err != nil {
		return nil, err
	}
	return client.New(server, signer), nil
}

func sealKey(args []string) error {
	fs := flag.NewFlagSet("seal-key", flag.ExitOnError)
	out := fs.String("out", "ledger-key.json", "output path")
	_ = fs.Parse(args)

	key, password := os.Getenv("LEDGER_CLIENT_KEY"), os.Getenv("LEDGER_CLIENT_KEY_PASSWORD")
	if key == "" || password == "" {
		return errors.New("seal-key: LEDGER_CLIENT_KEY and LEDGER_CLIENT_KEY_PASSWORD must be set")
	}
	sealed, err := auth.SealKey(key, password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, sealed, 0o600); err != nil {
		return fmt.Errorf("seal-key: %w", err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", *out)
	return nil
}

func run(ctx context.Context, c *client.Client, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	market := fs.String("market", "", "market id")

	switch cmd {
	case "whoami":
		fmt.Println(c.Address())
		return nil

	case "markets":
		status := fs.String("status", "", "open, resolved, cancelled or terminal")
		limit := fs.Int("limit", 50, "page size")
		_ = fs.Parse(args)
		return emit(c.ListMarkets(ctx, *status, *limit))

	case "market":
		_ = fs.Parse(args)
		return emit(c.GetMarket(ctx, *market))

	case "create-market":
		question := fs.String("q", "", "question")
		desc := fs.String("d", "", "description")
		options := fs.String("options", "Yes,No", "comma-separated option names")
		index := fs.Int("index", -1, "market index (default: next counter value)")
		_ = fs.Parse(args)
		req := service.CreateMarketRequest{
			Question:    *question,
			Description: *desc,
			Options:     splitList(*options),
		}
		if *index >= 0 {
			i := uint16(*index)
			req.Index = &i
		}
		return emit(c.CreateMarket(ctx, req))

	case "add-option":
		name := fs.String("name", "", "option name")
		_ = fs.Parse(args)
		return emit(c.AddOption(ctx, *market, *name))

	case "resolve":
		winner := fs.Int("winner", -1, "winning option index")
		_ = fs.Parse(args)
		return emit(c.Resolve(ctx, *market, *winner))

	case "cancel":
		_ = fs.Parse(args)
		return emit(c.Cancel(ctx, *market))

	case "buy":
		option := fs.Int("option", 0, "option index")
		shares := fs.Uint64("shares", 0, "shares to buy")
		_ = fs.Parse(args)
		return emit(c.Buy(ctx, *market, *option, *shares))

	case "sell":
		shares := fs.Uint64("shares", 0, "shares to sell")
		_ = fs.Parse(args)
		return emit(c.Sell(ctx, *market, *shares))

	case "claim":
		_ = fs.Parse(args)
		return emit(c.Claim(ctx, *market))

	case "reward":
		_ = fs.Parse(args)
		return emit(c.ClaimReward(ctx))

	case "balance":
		account := fs.String("account", c.Address(), "account id (address or escrow:<market>)")
		_ = fs.Parse(args)
		amount, err := c.Balance(ctx, *account)
		return emit(map[string]any{"account": *account, "amount": amount}, err)

	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func emit[T any](v T, err error) error {
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "ledgerctl: %v\n", err)
		os.Exit(1)
	}
}
