// Package main provides the dashsend command: build, sign and optionally
// broadcast a single DASH payment with a memo.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
	"golang.org/x/term"

	"github.com/klingon-exchange/dashsend/internal/chain"
	"github.com/klingon-exchange/dashsend/internal/config"
	"github.com/klingon-exchange/dashsend/internal/node"
	"github.com/klingon-exchange/dashsend/internal/rpc"
	"github.com/klingon-exchange/dashsend/internal/transfer"
	"github.com/klingon-exchange/dashsend/internal/txbuilder"
	"github.com/klingon-exchange/dashsend/internal/wallet"
	"github.com/klingon-exchange/dashsend/pkg/helpers"
	"github.com/klingon-exchange/dashsend/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

// Defaults used when send or build is run without arguments.
const (
	defaultRecipient = "XjLxscqf1Z2heBDWXVi2YmACmU53LhtyGA"
	defaultAmount    = "0.001"
	defaultMemo      = "🧧"
)

// sealedSeedName is where seal-seed writes when --out is not given.
const sealedSeedName = "seed.sealed"

type globalOptions struct {
	DataDir  string `short:"d" long:"datadir" description:"Data directory" default:"~/.dashsend"`
	Testnet  bool   `long:"testnet" description:"Use testnet instead of the configured network"`
	Password string `long:"password" env:"DASHSEND_PASSWORD" description:"Password for a sealed seed file"`
	LogLevel string `long:"loglevel" description:"Override the configured log level (debug, info, warn, error)"`
	Version  bool   `short:"V" long:"version" description:"Show version and exit"`
}

var global globalOptions

type paymentArgs struct {
	Address string `positional-arg-name:"address"`
	Amount  string `positional-arg-name:"amount"`
	Memo    string `positional-arg-name:"memo"`
}

func (a *paymentArgs) withDefaults() paymentArgs {
	out := *a
	if out.Address == "" {
		out.Address = defaultRecipient
	}
	if out.Amount == "" {
		out.Amount = defaultAmount
	}
	if out.Memo == "" {
		out.Memo = defaultMemo
	}
	return out
}

type sendCommand struct {
	Broadcast bool        `long:"broadcast" description:"Submit the signed transaction (also requires broadcast.enabled in config)"`
	Args      paymentArgs `positional-args:"yes"`
}

type buildCommand struct {
	From string      `long:"from" description:"Sender address (default: the configured key, which needs the seed)"`
	Args paymentArgs `positional-args:"yes"`
}

type addressCommand struct {
	Account uint32 `long:"account" description:"BIP44 account"`
	Change  uint32 `long:"change" description:"BIP44 change branch"`
	Index   uint32 `long:"index" description:"BIP44 address index"`
}

type historyCommand struct {
	Limit int `short:"n" long:"limit" default:"20" description:"Number of transfers to show"`
}

type sealSeedCommand struct {
	Generate bool   `long:"generate" description:"Generate a new mnemonic instead of reading one"`
	Out      string `long:"out" description:"Output file (default: <datadir>/seed.sealed)"`
}

type serveCommand struct {
	Listen string `long:"listen" description:"JSON-RPC listen address, overrides config"`
}

func main() {
	parser := flags.NewParser(&global, flags.Default)
	parser.SubcommandsOptional = true

	parser.AddCommand("send", "Build and sign a payment",
		"Builds, signs and journals a payment from the configured key. Nothing is broadcast unless --broadcast is given and broadcast.enabled is set.",
		&sendCommand{})
	parser.AddCommand("build", "Build an unsigned payment",
		"Selects coins and prints the unsigned transaction without touching keys.",
		&buildCommand{})
	parser.AddCommand("address", "Show a wallet address", "Derives the address for a BIP44 path.", &addressCommand{})
	parser.AddCommand("history", "List journaled transfers", "Lists transfers, newest first.", &historyCommand{})
	parser.AddCommand("seal-seed", "Encrypt a mnemonic to a seed file",
		"Reads (or generates) a mnemonic and writes it sealed with a password.",
		&sealSeedCommand{})
	parser.AddCommand("serve", "Run the JSON-RPC server", "Serves JSON-RPC and transfer events over WebSocket.", &serveCommand{})

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if global.Version {
		fmt.Printf("dashsend %s (commit: %s)\n", version, commit)
		return
	}
	if parser.Active == nil {
		parser.WriteHelp(os.Stderr)
		os.Exit(1)
	}
}

// setup loads the config and the logger shared by every command.
func setup() (*node.Config, func(), error) {
	cfg, err := node.LoadConfig(global.DataDir)
	if err != nil {
		return nil, nil, err
	}
	if global.Testnet {
		cfg.Network = chain.Testnet
	}
	if global.LogLevel != "" {
		cfg.Logging.Level = global.LogLevel
	}

	output := io.Writer(os.Stderr)
	cleanup := func() {}
	if cfg.Logging.File != "" {
		path := cfg.Logging.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.DataDir(), path)
		}
		f, err := logging.OpenRotatingFile(path, cfg.Logging.MaxSizeKB, cfg.Logging.MaxRolls)
		if err != nil {
			return nil, nil, err
		}
		output = io.MultiWriter(os.Stderr, f)
		cleanup = func() { f.Close() }
	}

	logging.SetDefault(logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		TimeFormat: time.TimeOnly,
		Output:     output,
	}))

	return cfg, cleanup, nil
}

// openNode assembles a node and, when unlock is set, loads the seed.
func openNode(unlock bool) (*node.Node, func(), error) {
	cfg, cleanup, err := setup()
	if err != nil {
		return nil, nil, err
	}

	n, err := node.New(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closeAll := func() {
		n.Close()
		cleanup()
	}

	if unlock {
		password := global.Password
		if cfg.Wallet.SeedFile != "" && password == "" {
			password, err = prompt("Seed password: ")
			if err != nil {
				closeAll()
				return nil, nil, err
			}
		}
		if err := n.UnlockWallet(password); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to unlock wallet: %w", err)
		}
	}

	return n, closeAll, nil
}

// Execute implements flags.Commander.
func (c *sendCommand) Execute(args []string) error {
	n, done, err := openNode(true)
	if err != nil {
		return err
	}
	defer done()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	p := c.Args.withDefaults()
	res, err := n.Transfers().Send(ctx, transfer.SendRequest{
		Recipient: p.Address,
		Amount:    p.Amount,
		Memo:      p.Memo,
		Broadcast: c.Broadcast,
	})
	if res != nil {
		printUnsigned(n, res.Unsigned)
		fmt.Printf("\nTransfer:  %s\n", res.Transfer.ID)
		fmt.Printf("Status:    %s\n", res.Transfer.Status)
		fmt.Printf("TxID:      %s\n", res.Signed.TxID())
		fmt.Printf("Size:      %d bytes\n", res.Signed.Size())
		fmt.Printf("\n%s\n", res.Signed.Hex())
		if url := decodeURL(n); url != "" {
			fmt.Printf("\nInspect at %s\n", url)
		}
		if res.Transfer.BroadcastRef != "" {
			fmt.Printf("\nBroadcast: %s\n", res.Transfer.BroadcastRef)
		} else if !c.Broadcast {
			fmt.Println("\nNot broadcast. Inspect the hex above before sending it anywhere.")
		}
	}
	return err
}

// decodeURL returns the page where raw transactions can be pasted.
func decodeURL(n *node.Node) string {
	network := config.Mainnet
	if n.Config().IsTestnet() {
		network = config.Testnet
	}
	endpoints, ok := config.GetEndpoints(n.Params().Symbol, network)
	if !ok {
		return ""
	}
	return endpoints.DecodeTxURL
}

// Execute implements flags.Commander.
func (c *buildCommand) Execute(args []string) error {
	n, done, err := openNode(c.From == "")
	if err != nil {
		return err
	}
	defer done()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	p := c.Args.withDefaults()
	tx, err := n.Transfers().Build(ctx, transfer.Request{
		Sender:    c.From,
		Recipient: p.Address,
		Amount:    p.Amount,
		Memo:      p.Memo,
	})
	if err != nil {
		return err
	}

	printUnsigned(n, tx)
	return nil
}

func printUnsigned(n *node.Node, tx *txbuilder.UnsignedTx) {
	params := n.Params()
	format := func(v uint64) string {
		return helpers.FormatAmount(v, params.Decimals) + " " + params.Symbol
	}

	fmt.Printf("Inputs (%d):\n", len(tx.Inputs))
	for _, in := range tx.Inputs {
		fmt.Printf("  %s:%d  %s\n", in.TxID, in.Vout, format(in.Amount))
	}

	fmt.Printf("Outputs (%d):\n", len(tx.Outputs))
	for i, out := range tx.Outputs {
		switch {
		case out.IsMemo():
			fmt.Printf("  memo    %q\n", string(out.Memo))
		default:
			addr, _ := wallet.EncodePubKeyHash(out.PubKeyHash, params)
			label := "pay   "
			if i == tx.ChangeIndex {
				label = "change"
			}
			fmt.Printf("  %s  %s  %s\n", label, addr, format(out.Amount))
		}
	}

	fmt.Printf("Fee:       %s\n", format(tx.Fee))
	if tx.Decision.Absorbed {
		fmt.Printf("           (surplus %d below change floor %d, added to fee)\n", tx.Decision.Surplus, tx.Decision.Floor)
	}
}

// Execute implements flags.Commander.
func (c *addressCommand) Execute(args []string) error {
	n, done, err := openNode(true)
	if err != nil {
		return err
	}
	defer done()

	path := n.Params().DerivationPath(c.Account, c.Change, c.Index)
	kp, err := n.Wallet().KeyPair(n.Params().Symbol, path)
	if err != nil {
		return err
	}

	fmt.Printf("%s  %s\n", kp.PathString(), kp.Address)
	return nil
}

// Execute implements flags.Commander.
func (c *historyCommand) Execute(args []string) error {
	n, done, err := openNode(false)
	if err != nil {
		return err
	}
	defer done()

	transfers, err := n.Transfers().History(c.Limit)
	if err != nil {
		return err
	}
	if len(transfers) == 0 {
		fmt.Println("No transfers.")
		return nil
	}

	decimals := n.Params().Decimals
	for _, t := range transfers {
		fmt.Printf("%s  %-9s  %s  %s -> %s  fee %d",
			t.CreatedAt.Format(time.DateTime), t.Status, t.ID,
			helpers.FormatAmount(t.Amount, decimals), t.Recipient, t.Fee)
		if t.FailureReason != "" {
			fmt.Printf("  (%s)", t.FailureReason)
		}
		fmt.Println()
	}
	return nil
}

// Execute implements flags.Commander.
func (c *sealSeedCommand) Execute(args []string) error {
	cfg, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	var mnemonic string
	if c.Generate {
		mnemonic, err = wallet.GenerateMnemonic()
		if err != nil {
			return err
		}
		fmt.Printf("Write this mnemonic down and keep it offline:\n\n  %s\n\n", mnemonic)
	} else {
		mnemonic, err = prompt("Mnemonic: ")
		if err != nil {
			return err
		}
		mnemonic = strings.Join(strings.Fields(mnemonic), " ")
		if !wallet.ValidateMnemonic(mnemonic) {
			return errors.New("invalid mnemonic")
		}
	}

	password := global.Password
	if password == "" {
		password, err = prompt("New password: ")
		if err != nil {
			return err
		}
		confirm, err := prompt("Confirm password: ")
		if err != nil {
			return err
		}
		if confirm != password {
			return errors.New("passwords do not match")
		}
	}
	if err := wallet.ValidatePassword(password); err != nil {
		return err
	}

	sealed, err := wallet.SealMnemonic(mnemonic, password)
	if err != nil {
		return err
	}

	out := c.Out
	if out == "" {
		out = filepath.Join(cfg.DataDir(), sealedSeedName)
	}
	if err := wallet.WriteSealedSeed(sealed, out); err != nil {
		return err
	}

	fmt.Printf("Sealed seed written to %s\n", out)
	fmt.Printf("Set wallet.seed_file in %s to use it.\n", node.ConfigPath(global.DataDir))
	return nil
}

// Execute implements flags.Commander.
func (c *serveCommand) Execute(args []string) error {
	n, done, err := openNode(true)
	if err != nil {
		return err
	}
	defer done()

	log := logging.GetDefault().Component("dashsend")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := n.Connect(ctx); err != nil {
		log.Warn("Explorer not reachable", "error", err)
	}

	addr := n.Config().RPC.Listen
	if c.Listen != "" {
		addr = c.Listen
	}

	log.Info("dashsend started",
		"version", version,
		"network", n.Config().Network,
		"rpc", addr,
		"broadcast", n.Transfers().BroadcastAllowed())

	if err := rpc.NewServer(n).Serve(ctx, addr); err != nil {
		return err
	}

	log.Info("Shutdown complete")
	return nil
}

// prompt reads a line without echo when stdin is a terminal.
func prompt(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, label)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
