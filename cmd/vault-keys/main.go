// vault-keys manages the custody signing key and signs API request bodies.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chainsafe/custody-vault/pkg/auth"
	"github.com/chainsafe/custody-vault/pkg/keys"
)

const usageText = `Usage:
  vault-keys <command> [flags]

Supported commands are:
  - generate - creates a custody key and prints it encrypted under the master key
  - encrypt  - encrypts an existing hex key under the master key
  - sign     - prints the signature headers for a request body read from stdin
`

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	var err error
	switch os.Args[1] {
	case "generate":
		err = generate(os.Args[2:])
	case "encrypt":
		err = encrypt(os.Args[2:])
	case "sign":
		err = sign(os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Print(usageText)
	os.Exit(2)
}

func keyFlags(name string) (*flag.FlagSet, *string, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	masterEnv := fs.String("master-key-env", "VAULT_MASTER_KEY", "Environment variable holding the base64 master key")
	info := fs.String("info", "custody-vault/custody-key", "HKDF derivation info")
	return fs, masterEnv, info
}

func generate(args []string) error {
	fs, masterEnv, info := keyFlags("generate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	return printEncrypted(crypto.FromECDSA(key), *masterEnv, *info)
}

func encrypt(args []string) error {
	fs, masterEnv, info := keyFlags("encrypt")
	hexKey := fs.String("key", "", "Hex private key to encrypt")
	if err := fs.Parse(args); err != nil {
		return err
	}

	key, err := keys.ParseHexKey(*hexKey)
	if err != nil {
		return err
	}
	return printEncrypted(crypto.FromECDSA(key), *masterEnv, *info)
}

func printEncrypted(raw []byte, masterEnv, info string) error {
	encKey, err := keys.MasterEncryptionKey(os.Getenv(masterEnv), info)
	if err != nil {
		return fmt.Errorf("%s: %w", masterEnv, err)
	}
	encrypted, err := keys.EncryptPrivateKey(raw, encKey)
	if err != nil {
		return err
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return err
	}

	fmt.Printf("address: %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
	fmt.Printf("encrypted_custody_key: %s\n", encrypted)
	return nil
}

func sign(args []string) error {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	hexKey := fs.String("key", "", "Hex private key of the caller")
	method := fs.String("method", "POST", "HTTP method of the request")
	target := fs.String("path", "", "Request path, including any query string")
	ttl := fs.Duration("ttl", time.Minute, "How long the signature stays valid")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *target == "" {
		return fmt.Errorf("-path is required")
	}

	key, err := keys.ParseHexKey(*hexKey)
	if err != nil {
		return err
	}
	body, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}
	deadline := time.Now().Add(*ttl).Unix()
	sig, err := auth.SignRequest(key, *method, *target, deadline, body)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", auth.SignerHeader, crypto.PubkeyToAddress(key.PublicKey).Hex())
	fmt.Printf("%s: %d\n", auth.DeadlineHeader, deadline)
	fmt.Printf("%s: %s\n", auth.SignatureHeader, sig)
	return nil
}
