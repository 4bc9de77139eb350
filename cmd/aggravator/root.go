// Copyright (c) 2026 Aggravator Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aggravator/aggravator/decode"
	"github.com/aggravator/aggravator/inventory"
	"github.com/aggravator/aggravator/vault"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// wellKnownConfigPaths are probed, in order, when neither --uri nor
// INVENTORY_URI name a root config.
var wellKnownConfigPaths = []string{
	"/etc/aggravator/config.yaml",
	"/usr/local/etc/aggravator/config.yaml",
}

type rootOptions struct {
	env       string
	uri       string
	vaultFile string
	verbose   bool

	list    bool
	host    string
	linkDir string
	show    bool
	tree    bool
}

// NewRootCommand builds the aggravator CLI.
func NewRootCommand() *cobra.Command {
	var opts rootOptions

	cmd := &cobra.Command{
		Use:           "aggravator",
		Short:         "Ansible file based dynamic inventory script",
		Long: `Aggravator reads a root config, locally or over HTTP(S), and resolves an
environment's inventory by deep merging its declared include files in order.
The merged inventory is printed as a single JSON object for Ansible.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.env, "env", inferEnvironment(os.Getenv, os.Args[0]),
		"platform name to pull inventory for")
	cmd.Flags().StringVar(&opts.uri, "uri", defaultConfigURI(os.Getenv),
		"URI of the inventory root config, supports file:// and http(s)://")
	cmd.Flags().StringVar(&opts.vaultFile, "vault-password-file", defaultVaultPasswordFile(os.Getenv),
		"vault password file, the null device disables secret decryption")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false,
		"log pipeline progress to stderr")

	cmd.Flags().BoolVar(&opts.list, "list", false,
		"print inventory information as a JSON object")
	cmd.Flags().StringVar(&opts.host, "host", "",
		"retrieve host variables (not implemented)")
	cmd.Flags().StringVar(&opts.linkDir, "createlinks", "",
		"create symlinks in DIRECTORY to this executable for each environment")
	cmd.Flags().BoolVar(&opts.show, "show", false,
		"list environments, or groups when an environment is selected")
	cmd.Flags().BoolVar(&opts.tree, "tree", false,
		"print the include layout for all environments, or the selected one")

	cmd.MarkFlagsMutuallyExclusive("list", "host", "createlinks", "show", "tree")

	return cmd
}

func run(cmd *cobra.Command, opts rootOptions) error {
	log, err := newLogger(opts.verbose)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck // stderr sync failures are unactionable

	ctx := cmd.Context()

	switch {
	case opts.linkDir != "":
		r, err := inventory.New(ctx, opts.uri, inventory.WithLogger(log))
		if err != nil {
			return err
		}
		return createLinks(log, r.EnvironmentNames(), opts.linkDir)

	case opts.show && opts.env == "":
		r, err := inventory.New(ctx, opts.uri, inventory.WithLogger(log))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Upstream environments:")
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(r.EnvironmentNames(), "\n"))
		return nil

	case opts.show:
		// group listing needs no secret values, so resolve with
		// decryption disabled and let encrypted scalars degrade
		doc, err := resolve(ctx, log, opts, vault.New(os.DevNull))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(inventory.Groups(doc), "\n"))
		return nil

	case opts.tree:
		r, err := inventory.New(ctx, opts.uri, inventory.WithLogger(log))
		if err != nil {
			return err
		}
		tree, err := r.Tree(opts.env)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		defer enc.Close()
		return enc.Encode(tree)

	case opts.host != "":
		return errors.New("--host is not implemented, host variables are served through _meta in --list")

	case opts.list:
		if opts.env == "" {
			return inventory.EnvironmentRequiredError{}
		}
		doc, err := resolve(ctx, log, opts, vault.New(expandHome(opts.vaultFile)))
		if err != nil {
			return err
		}
		out, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil

	default:
		return errors.New("missing operation, use --list, --host, --show, --tree or --createlinks")
	}
}

func resolve(ctx context.Context, log *zap.Logger, opts rootOptions, decryptor decode.Decryptor) (map[string]any, error) {
	if opts.env == "" {
		return nil, inventory.EnvironmentRequiredError{}
	}

	r, err := inventory.New(ctx, opts.uri,
		inventory.WithLogger(log),
		inventory.WithDecryptor(decryptor),
		inventory.WithBase(inventory.AnsibleBase(opts.env)),
		inventory.WithNormalize(inventory.NormalizeHostGroups),
	)
	if err != nil {
		return nil, err
	}
	return r.Resolve(ctx, opts.env)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return cfg.Build()
}

// inferEnvironment resolves the environment name from ambient inputs:
// the INVENTORY_ENV variable wins, then the invocation name when the
// executable was called through a symlink created by --createlinks.
func inferEnvironment(getenv func(string) string, argv0 string) string {
	if env := getenv("INVENTORY_ENV"); env != "" {
		return env
	}
	info, err := os.Lstat(argv0)
	if err == nil && info.Mode()&os.ModeSymlink != 0 {
		return filepath.Base(argv0)
	}
	return ""
}

func defaultConfigURI(getenv func(string) string) string {
	if uri := getenv("INVENTORY_URI"); uri != "" {
		return uri
	}

	paths := wellKnownConfigPaths
	if exe, err := os.Executable(); err == nil {
		paths = append([]string{
			filepath.Join(filepath.Dir(exe), "..", "etc", "config.yaml"),
		}, paths...)
	}
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return "config.yaml"
}

func defaultVaultPasswordFile(getenv func(string) string) string {
	if p := getenv("VAULT_PASSWORD_FILE"); p != "" {
		return p
	}
	return "~/.vault_pass.txt"
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// createLinks symlinks every environment name in dir to this
// executable, so invoking the link selects that environment.
func createLinks(log *zap.Logger, environments []string, dir string) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	target, err := filepath.Rel(dir, exe)
	if err != nil {
		target = exe
	}

	failed := 0
	for _, env := range environments {
		err := os.Symlink(target, filepath.Join(dir, env))
		if err != nil {
			log.Warn("leaving existing link unchanged",
				zap.String("environment", env),
				zap.Error(err))
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to create %d of %d links", failed, len(environments))
	}
	return nil
}
