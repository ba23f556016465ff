// Package main is a thin command-line caller for the vault operations.
// Connection settings come from the environment (see internal/platform/config).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"cardvault/internal/platform/config"
	"cardvault/internal/platform/logger"
	"cardvault/internal/vault/client"
	"cardvault/internal/vault/tracer"
	"cardvault/internal/vault/transport"
	"cardvault/internal/vault/transport/soap"
	"cardvault/pkg/platform/circuit"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return exitUsage
	}

	cmd, ok := commands[args[0]]
	if !ok {
		if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
			printUsage(stdout)
			return exitOK
		}
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[0])
		printUsage(stderr)
		return exitUsage
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	exec := cmd(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return exitUsage
	}

	cfg, err := config.FromEnv()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	vault, err := newClient(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	result, err := exec(ctx, vault)
	if err != nil {
		var usage usageError
		if errors.As(err, &usage) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			fs.Usage()
			return exitUsage
		}
		fmt.Fprintf(stderr, "Error: %v (category: %s, retryable: %t)\n",
			err, transport.CategoryOf(err), transport.IsRetryable(err))
		return exitError
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(render(result)); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	return exitOK
}

func newClient(cfg config.Vault, stderr io.Writer) (*client.Client, error) {
	log := logger.NewWithWriter(stderr, cfg.LogLevel, cfg.LogFormat)

	endpoint := cfg.Endpoint
	if endpoint == "" {
		var err error
		if endpoint, err = soap.EndpointFromWSDL(cfg.ManagementWSDL); err != nil {
			return nil, err
		}
	}

	var t transport.Transport = soap.New(endpoint,
		soap.WithCredentials(soap.Credentials{
			ClientCode: cfg.ClientCode,
			UserName:   cfg.UserName,
			Password:   cfg.Password,
			LocationID: cfg.LocationID,
		}),
		soap.WithNamespace(cfg.Namespace),
		soap.WithTimeout(cfg.Timeout),
		soap.WithLogger(log),
	)
	if cfg.BreakerEnabled() {
		breaker := circuit.New("vault", circuit.WithFailureThreshold(cfg.BreakerFailures))
		t = transport.WithBreaker(t, breaker, transport.WithBreakerLogger(log))
	}

	return client.New(cfg.ManagementWSDL, t,
		client.WithLogger(log),
		client.WithTracer(tracer.NewOTel()),
	)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `vaultctl - call the card vault management service

Usage:
  vaultctl <command> [flags]

Commands:
  create-customer   Register a customer (-name, optional -key)
  add-card          Store a card for a customer and print its token
  get-card          Retrieve a stored card by token (-include-number to unmask)
  find-token        Look up the token of a stored card by its number
  update-card       Change expiration, cardholder name or nickname of a stored card

Environment:
  VAULT_MANAGEMENT_WSDL (required), VAULT_ENDPOINT, VAULT_CLIENT_CODE, VAULT_USER_NAME,
  VAULT_PASSWORD, VAULT_LOCATION_ID, VAULT_TIMEOUT, VAULT_BREAKER_FAILURES,
  VAULT_LOG_LEVEL, VAULT_LOG_FORMAT. A .env file in the working directory is read first.

The result is printed as JSON. Rejections by the vault exit 0 with "success": false;
transport failures exit 1.

Use "vaultctl <command> -h" for the flags of a command.`)
}
