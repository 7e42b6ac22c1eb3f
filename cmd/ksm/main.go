// Command ksm is a small operator CLI over the secrets-manager SDK: bind a
// device, list and read records, resolve keeper:// notation, download
// attachments and generate TOTP codes.
//
// Configuration resolves flags over KSM_* environment variables over an
// optional config file (~/.config/ksm/config.yaml).
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	secretsmanager "github.com/Keeper-Security/secrets-manager-sub005"
	"github.com/Keeper-Security/secrets-manager-sub005/internal/platform"
)

var cfgFile string

func main() {
	if err := platform.DisableCoreDumps(); err != nil {
		log.Warn("could not disable core dumps", "err", err)
	}
	if err := rootCmd().Execute(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ksm",
		Short:         "device-bound secrets manager client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ~/.config/ksm/config.yaml)")
	pf.String("hostname", "", "API host or region code (US, EU, AU, CA, JP, GOV)")
	pf.String("token", "", "one-time binding token")
	pf.String("store", "file", "identity store backend: memory, file, encrypted, keyring, bolt")
	pf.String("store-path", defaultStorePath(), "path for file-backed stores")
	pf.String("keyring-account", "default", "account name for the keyring store")
	pf.String("cache", "", "path of the offline response cache (disabled when empty)")
	pf.String("key-id", "", "pin a server public key id")
	pf.Bool("verbose", false, "log requests and decode warnings")

	root.AddCommand(
		bindCmd(),
		listCmd(),
		getCmd(),
		notationCmd(),
		fileCmd(),
		totpCmd(),
	)
	return root
}

func initConfig(cmd *cobra.Command) error {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "ksm"))
		v.SetConfigName("config")
	}
	v.SetEnvPrefix("KSM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Root().PersistentFlags()); err != nil {
		return err
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && cfgFile == "" {
			// A malformed default config should not brick the CLI.
			log.Warn("ignoring config file", "err", err)
		} else if cfgFile != "" {
			return err
		}
	}
	viper.Reset()
	for key, val := range v.AllSettings() {
		viper.Set(key, val)
	}
	if viper.GetBool("verbose") {
		log.SetLevel(log.DebugLevel)
	}
	return nil
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "ksm-identity.json"
	}
	return filepath.Join(home, ".config", "ksm", "identity.json")
}

// newClient assembles an SDK client from the resolved configuration.
func newClient() (*secretsmanager.Client, error) {
	store, err := openStore()
	if err != nil {
		return nil, err
	}

	opts := []secretsmanager.Option{secretsmanager.WithStore(store)}
	if h := viper.GetString("hostname"); h != "" {
		opts = append(opts, secretsmanager.WithHostname(h))
	}
	if t := viper.GetString("token"); t != "" {
		opts = append(opts, secretsmanager.WithToken(t))
	}
	if id := viper.GetString("key-id"); id != "" {
		opts = append(opts, secretsmanager.WithKeyID(id))
	}
	if path := viper.GetString("cache"); path != "" {
		opts = append(opts, secretsmanager.WithCache(secretsmanager.NewFileCache(path)))
	}
	if viper.GetBool("verbose") {
		opts = append(opts, secretsmanager.WithLogger(log.Default()))
	}
	return secretsmanager.New(opts...)
}

func openStore() (secretsmanager.Store, error) {
	path := viper.GetString("store-path")
	switch backend := viper.GetString("store"); backend {
	case "memory":
		return secretsmanager.NewMemoryStore(), nil
	case "file":
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
		return secretsmanager.NewFileStore(path), nil
	case "encrypted":
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
		pass, err := readPassphrase()
		if err != nil {
			return nil, err
		}
		return secretsmanager.NewEncryptedFileStore(path, pass), nil
	case "keyring":
		return secretsmanager.NewKeyringStore(viper.GetString("keyring-account")), nil
	case "bolt":
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
		return secretsmanager.OpenBoltStore(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func readPassphrase() ([]byte, error) {
	if pass := os.Getenv("KSM_PASSPHRASE"); pass != "" {
		return []byte(pass), nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, errors.New("store passphrase required: set KSM_PASSPHRASE or run interactively")
	}
	fmt.Fprint(os.Stderr, "store passphrase: ")
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return pass, nil
}
