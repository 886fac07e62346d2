// Command termarb-keytool creates and inspects encrypted wallet key files.
//
//	termarb-keytool encrypt -out wallet.json   # key and password from env
//	termarb-keytool address -in wallet.json
//	termarb-keytool verify -in wallet.json     # password from env
//
// The private key is read from TERMARB_WALLET_PRIVATE_KEY and the password
// from TERMARB_WALLET_KEY_PASSWORD so neither lands in shell history.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/alanyoungcy/termarb/internal/config"
	"github.com/alanyoungcy/termarb/internal/crypto"
)

const (
	envKey      = config.EnvPrefix + "WALLET_PRIVATE_KEY"
	envPassword = config.EnvPrefix + "WALLET_KEY_PASSWORD"
)

func main() {
	_ = godotenv.Load()
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "termarb-keytool: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: termarb-keytool encrypt|address|verify [flags]")
	}
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	switch args[0] {
	case "encrypt":
		path := fs.String("out", "wallet.json", "key file to create")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return encrypt(*path, os.Getenv(envKey), os.Getenv(envPassword), out)
	case "address":
		path := fs.String("in", "wallet.json", "key file to read")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return address(*path, out)
	case "verify":
		path := fs.String("in", "wallet.json", "key file to read")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return verify(*path, os.Getenv(envPassword), out)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func encrypt(path, key, password string, out io.Writer) error {
	if key == "" {
		return fmt.Errorf("%s is not set", envKey)
	}
	data, err := crypto.EncryptKey(key, password)
	if err != nil {
		return err
	}
	if err := crypto.WriteKeyFile(path, data); err != nil {
		return err
	}
	addr, err := crypto.KeyFileAddress(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s for %s\n", path, addr.Hex())
	return nil
}

func address(path string, out io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	addr, err := crypto.KeyFileAddress(data)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, addr.Hex())
	return nil
}

func verify(path, password string, out io.Writer) error {
	key, err := crypto.LoadKey(crypto.KeyConfig{EncryptedKeyPath: path, KeyPassword: password})
	if err != nil {
		return err
	}
	signer, err := crypto.NewSigner(key, 1)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	recorded, err := crypto.KeyFileAddress(data)
	if err != nil {
		return err
	}
	if recorded != signer.Address() {
		return fmt.Errorf("key file address %s does not match decrypted key %s", recorded.Hex(), signer.Address().Hex())
	}
	fmt.Fprintf(out, "ok %s\n", recorded.Hex())
	return nil
}
