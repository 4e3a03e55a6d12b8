package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/term"

	"auctionhouse/cmd/internal/passphrase"
	"auctionhouse/crypto"
	"auctionhouse/rpc"
)

const (
	rpcURLEnv     = "AUCTION_RPC_URL"
	keystoreEnv   = "AUCTION_KEYSTORE"
	passphraseEnv = "AUCTION_KEYSTORE_PASS"
	defaultRPCURL = "http://127.0.0.1:8547"
)

// cli carries what every subcommand needs. Tests replace out and signer.
type cli struct {
	client  *rpc.Client
	out     io.Writer
	pretty  bool
	keyPath string
	signer  func() (*crypto.PrivateKey, error)
	timeout time.Duration
}

type command struct {
	usage string
	run   func(c *cli, args []string) error
}

var commands = map[string]command{
	"keygen":        {"keygen -out FILE [-light]", runKeygen},
	"address":       {"address", runAddress},
	"new-account":   {"new-account", runNewAccount},
	"create-mint":   {"create-mint -mint ACCT [-decimals N] [-max-supply N]", runCreateMint},
	"open-account":  {"open-account -address ACCT -mint ACCT [-authority ID]", runOpenAccount},
	"mint":          {"mint -mint ACCT -account ACCT -amount N", runMintTo},
	"transfer":      {"transfer -from ACCT -to ACCT -amount N", runTransfer},
	"close-account": {"close-account -account ACCT [-destination ID]", runCloseAccount},
	"exhibit":       {"exhibit -auction ID -asset-source ACCT -asset-escrow ACCT -payout ACCT -price N -duration SECONDS", runExhibit},
	"bid":           {"bid -auction ID -bid-source ACCT -bid-escrow ACCT -price N", runBid},
	"cancel":        {"cancel -auction ID -asset-return ACCT", runCancel},
	"close":         {"close -auction ID -receiver ACCT", runClose},
	"get":           {"get -auction ID", runGet},
	"status":        {"status -auction ID", runStatus},
	"events":        {"events [-limit N]", runEvents},
	"account":       {"account -address ACCT", runAccount},
	"reserve":       {"reserve [-identity ID]", runReserve},
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, stdout, stderr io.Writer) int {
	defaultRPC := strings.TrimSpace(os.Getenv(rpcURLEnv))
	if defaultRPC == "" {
		defaultRPC = defaultRPCURL
	}
	root := flag.NewFlagSet("auction-cli", flag.ContinueOnError)
	root.SetOutput(stderr)
	rpcURL := root.String("rpc", defaultRPC, "JSON-RPC endpoint")
	keyPath := root.String("keystore", os.Getenv(keystoreEnv), "Path to the signing keystore")
	timeout := root.Duration("timeout", 10*time.Second, "Per-request timeout")
	root.Usage = func() { fmt.Fprintln(stderr, usage()) }
	if err := root.Parse(args); err != nil {
		return 2
	}
	rest := root.Args()
	if len(rest) == 0 {
		fmt.Fprintln(stderr, usage())
		return 2
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command: %s\n", rest[0])
		fmt.Fprintln(stderr, usage())
		return 2
	}

	c := &cli{
		client:  rpc.NewClient(*rpcURL, nil),
		out:     stdout,
		pretty:  isTerminal(stdout),
		keyPath: strings.TrimSpace(*keyPath),
		timeout: *timeout,
	}
	c.signer = c.loadKey
	if err := cmd.run(c, rest[1:]); err != nil {
		var rpcErr *rpc.RPCError
		if errors.As(err, &rpcErr) {
			fmt.Fprintf(stderr, "RPC error (%d): %s\n", rpcErr.Code, rpcErr.Message)
			if rpcErr.Data != nil {
				fmt.Fprintf(stderr, "Details: %v\n", rpcErr.Data)
			}
			return 1
		}
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "usage: auction-cli %s\n", cmd.usage)
			return 2
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (c *cli) loadKey() (*crypto.PrivateKey, error) {
	if c.keyPath == "" {
		return nil, fmt.Errorf("keystore required; pass -keystore or set %s", keystoreEnv)
	}
	pass, err := passphrase.NewSource(passphraseEnv, "signer keystore").Get()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(c.keyPath, pass)
}

func (c *cli) context() (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), c.timeout)
}

func (c *cli) call(method string, params, out interface{}) error {
	ctx, cancel := c.context()
	defer cancel()
	return c.client.Call(ctx, method, params, out)
}

// submit signs payload with the configured key under its next nonce.
func (c *cli) submit(method string, payload interface{}) error {
	key, err := c.signer()
	if err != nil {
		return err
	}
	ctx, cancel := c.context()
	defer cancel()
	receipt, err := c.client.SubmitNext(ctx, key, method, payload)
	if err != nil {
		return err
	}
	return c.print(receipt)
}

func (c *cli) print(v interface{}) error {
	var (
		data []byte
		err  error
	)
	if c.pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, string(data))
	return err
}

func usage() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("auction-cli usage:\n  auction-cli [-rpc URL] [-keystore FILE] [-timeout D] <command> [options]\n\nCommands:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %s\n", commands[name].usage)
	}
	return b.String()
}
