// cardano-signtx CLI - streaming Cardano transaction signer
//
// The device half keeps the keys, checks every item of the transaction body
// as it streams in and signs the resulting body hash. The host half turns a
// JSON transaction request into that stream.
//
// Example usage:
//
//	# Sign with an in-process device
//	SIGNTX_ENTROPY=<hex> cardano-signtx sign tx.json
//
//	# Run the device on a websocket and send a request to it
//	SIGNTX_ENTROPY=<hex> cardano-signtx serve
//	cardano-signtx send tx.json
//
//	# Turn a payment URI into a request output
//	cardano-signtx output "web+cardano:addr1...?amount=1.5"
//
//	# Derive an address
//	SIGNTX_ENTROPY=<hex> cardano-signtx address base "m/1852'/1815'/0'/0/0" "m/1852'/1815'/0'/2/0"
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/decred/slog"

	"github.com/suffix-labs/cardano-signtx/pkg/addresses"
	"github.com/suffix-labs/cardano-signtx/pkg/hostclient"
	"github.com/suffix-labs/cardano-signtx/pkg/keychain"
	"github.com/suffix-labs/cardano-signtx/pkg/link"
	"github.com/suffix-labs/cardano-signtx/pkg/messages"
	"github.com/suffix-labs/cardano-signtx/pkg/paths"
	"github.com/suffix-labs/cardano-signtx/pkg/signer"
	"github.com/suffix-labs/cardano-signtx/pkg/ui"
)

const version = "v0.1.0"

// configFileEnv names an optional config file read before the environment.
const configFileEnv = "SIGNTX_CONFIG"

// loggers are the per-subsystem loggers, all writing to stderr.
type loggers struct {
	signer, link, host, cli slog.Logger
}

func newLoggers(level string) loggers {
	backend := slog.NewBackend(os.Stderr)
	lvl, _ := slog.LevelFromString(strings.ToLower(level))
	logger := func(tag string) slog.Logger {
		l := backend.Logger(tag)
		l.SetLevel(lvl)
		return l
	}
	return loggers{
		signer: logger("SGNR"),
		link:   logger("LINK"),
		host:   logger("HOST"),
		cli:    logger("CLI"),
	}
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	var err error
	switch command {
	case "sign":
		err = withConfig(cmdSign)
	case "serve":
		err = withConfig(cmdServe)
	case "send":
		err = withConfig(cmdSend)
	case "address":
		err = withConfig(cmdAddress)
	case "output":
		err = cmdOutput(os.Stdout, os.Args[2:])
	case "version":
		cmdVersion()
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`cardano-signtx - streaming Cardano transaction signer

Usage:
  cardano-signtx <command> [arguments]

Commands:
  sign <request.json>                  Sign a request with an in-process device
  serve                                Run the device on a websocket
  send <request.json>                  Send a request to a device started with serve
  address <type> <path> [staking-path] Derive an address
  output <web+cardano:uri>             Print the request output for a payment URI
  version                              Show version information
  help                                 Show this help message

Configuration is read from the file named by SIGNTX_CONFIG and from:`)
	fmt.Println(Usage())
}

func cmdVersion() {
	fmt.Println("cardano-signtx " + version)
	fmt.Println("Streaming transaction signer for Cardano hardware wallets")
}

type command func(ctx context.Context, cfg Config, logs loggers, args []string) error

func withConfig(run command) error {
	cfg, err := LoadConfig(os.Getenv(configFileEnv))
	if err != nil {
		return err
	}
	logs := newLoggers(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, cfg, logs, os.Args[2:])
}

// deviceConfig builds the signer configuration from cfg. Screens go to out.
func deviceConfig(cfg Config, logs loggers, out io.Writer) (signer.Config, func(), error) {
	if cfg.Entropy == "" {
		return signer.Config{}, nil, errors.New("SIGNTX_ENTROPY is required to sign")
	}
	kc, err := keychain.NewSoftwareFromHex(cfg.Entropy, cfg.Passphrase)
	if err != nil {
		return signer.Config{}, nil, err
	}
	safety, err := ui.ParseSafetyChecks(cfg.SafetyChecks)
	if err != nil {
		return signer.Config{}, nil, err
	}

	var confirmer ui.UI = &ui.Terminal{In: os.Stdin, Out: out}
	if cfg.AutoConfirm {
		confirmer = ui.AutoConfirm{Details: cfg.ShowDetails}
	}
	return signer.Config{
		Keychain:     kc,
		UI:           confirmer,
		SafetyChecks: safety,
		Logger:       logs.signer,
	}, kc.Wipe, nil
}

func readSession(cfg Config, args []string) (*hostclient.Session, error) {
	if len(args) < 1 {
		return nil, errors.New("request file argument required")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, err
	}
	req, err := hostclient.ParseRequest(data)
	if err != nil {
		return nil, err
	}
	if nw := networks[cfg.Network]; req.ProtocolMagic != nw.ProtocolMagic || req.NetworkID != nw.NetworkID {
		return nil, fmt.Errorf("request is not for %s", cfg.Network)
	}
	return req.Build()
}

func cmdSign(ctx context.Context, cfg Config, logs loggers, args []string) error {
	s, err := readSession(cfg, args)
	if err != nil {
		return err
	}
	devCfg, wipe, err := deviceConfig(cfg, logs, os.Stderr)
	if err != nil {
		return err
	}
	defer wipe()

	res, err := hostclient.New(logs.host).RunInProcess(ctx, devCfg, s)
	if err != nil {
		return err
	}
	return printResult(os.Stdout, res)
}

func cmdServe(ctx context.Context, cfg Config, logs loggers, _ []string) error {
	devCfg, wipe, err := deviceConfig(cfg, logs, os.Stdout)
	if err != nil {
		return err
	}
	defer wipe()

	// One confirmation surface, so one session at a time.
	sessions := make(chan struct{}, 1)
	mux := http.NewServeMux()
	mux.Handle("/sign", link.Handler(logs.link, func(ctx context.Context, dev *link.DeviceConn) error {
		select {
		case sessions <- struct{}{}:
			defer func() { <-sessions }()
		default:
			return dev.Abort(ctx, "BUSY", "Another session is in progress")
		}
		res, err := signer.Serve(ctx, devCfg, dev)
		if err != nil {
			return err
		}
		logs.cli.Infof("Connection %s: signed %x", dev.ID, res.TxHash)
		return nil
	}))

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errs := make(chan error, 1)
	go func() { errs <- srv.ListenAndServe() }()
	logs.cli.Infof("Device listening on ws://%s/sign", cfg.ListenAddr)

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	logs.cli.Infof("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func cmdSend(ctx context.Context, cfg Config, logs loggers, args []string) error {
	s, err := readSession(cfg, args)
	if err != nil {
		return err
	}
	host, err := link.Dial(ctx, cfg.DeviceURL)
	if err != nil {
		return err
	}
	defer host.Close()

	res, err := hostclient.New(logs.host).Run(ctx, host, s)
	if err != nil {
		return err
	}
	return printResult(os.Stdout, res)
}

func cmdAddress(_ context.Context, cfg Config, _ loggers, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: address <type> <path> [staking-path]")
	}
	typ, err := addresses.ParseType(args[0])
	if err != nil {
		return err
	}
	params := addresses.Parameters{Type: typ}
	if params.Path, err = paths.Parse(args[1]); err != nil {
		return err
	}
	if len(args) > 2 {
		if params.StakingPath, err = paths.Parse(args[2]); err != nil {
			return err
		}
	}
	if cfg.Entropy == "" {
		return errors.New("SIGNTX_ENTROPY is required to derive addresses")
	}
	kc, err := keychain.NewSoftwareFromHex(cfg.Entropy, cfg.Passphrase)
	if err != nil {
		return err
	}
	defer kc.Wipe()

	nw := networks[cfg.Network]
	raw, err := addresses.Derive(kc, params, nw.ProtocolMagic, nw.NetworkID)
	if err != nil {
		return err
	}
	encoded, err := addresses.Encode(raw)
	if err != nil {
		return err
	}
	fmt.Println(encoded)
	return nil
}

func cmdOutput(w io.Writer, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: output <web+cardano:uri>")
	}
	out, err := hostclient.OutputFromURI(args[0])
	if err != nil {
		return err
	}
	return json.NewEncoder(w).Encode(out)
}

type witnessJSON struct {
	Type      string              `json:"type"`
	PubKey    hostclient.HexBytes `json:"pub_key"`
	Signature hostclient.HexBytes `json:"signature"`
	ChainCode hostclient.HexBytes `json:"chain_code,omitempty"`
}

type resultJSON struct {
	TxHash                  hostclient.HexBytes `json:"tx_hash"`
	Witnesses               []witnessJSON       `json:"witnesses"`
	AuxiliaryDataSupplement *string             `json:"auxiliary_data_supplement,omitempty"`
}

func printResult(w io.Writer, res *hostclient.Result) error {
	out := resultJSON{TxHash: res.TxHash}
	for _, wit := range res.Witnesses {
		out.Witnesses = append(out.Witnesses, witnessJSON{
			Type:      wit.Type.String(),
			PubKey:    wit.PubKey,
			Signature: wit.Signature,
			ChainCode: wit.ChainCode,
		})
	}
	if supp := res.AuxiliaryDataSupplement; supp != nil {
		kind := "none"
		if supp.Type != messages.SupplementNone {
			kind = "governance_registration_signature"
		}
		out.AuxiliaryDataSupplement = &kind
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
