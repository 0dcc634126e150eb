// Command pyvmctl is the operator CLI over core/loader: compile a manifest,
// run a method against it, inspect an encoded IR blob, or dump the gas
// table. Grounded on cmd/synnergy/main.go's cobra tree shape and
// cmd/cli/full_node.go's viper-bound config precedence (env overrides
// config file overrides built-in default).
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/animica-labs/pyvm/core/codec"
	"github.com/animica-labs/pyvm/core/gas"
	"github.com/animica-labs/pyvm/core/loader"
	"github.com/animica-labs/pyvm/core/vmtypes"
	"github.com/animica-labs/pyvm/pkg/logging"
)

var log = logging.New("PYVM_LOG_LEVEL")

func main() {
	root := rootCmd()
	if err := root.Execute(); err != nil {
		log.WithError(err).Error("pyvmctl failed")
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "pyvmctl",
		Short:             "compile and run pyvm contracts",
		PersistentPreRunE: ctlInit,
	}
	cmd.PersistentFlags().String("config", "", "config file (json or yaml)")
	cmd.PersistentFlags().String("output", "json", "output format: json or yaml")
	_ = viper.BindPFlag("config", cmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("output", cmd.PersistentFlags().Lookup("output"))

	cmd.AddCommand(compileCmd(), runCmd(), inspectIRCmd(), gasTableCmd())
	return cmd
}

// ctlInit wires viper's precedence: explicit flags, then PYVM_* environment
// variables, then an optional --config file, then built-in defaults.
func ctlInit(cmd *cobra.Command, _ []string) error {
	viper.SetEnvPrefix("PYVM")
	viper.AutomaticEnv()
	if path := viper.GetString("config"); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func render(cmd *cobra.Command, v any) error {
	switch viper.GetString("output") {
	case "yaml":
		out, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(out))
	default:
		out, err := jsonIndent(v)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	}
	return nil
}

func compileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compile <manifest>",
		Short: "compile a contract manifest and report its code hash and exports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loader.LoadFile(args[0])
			if err != nil {
				return err
			}
			return render(cmd, struct {
				Name     string            `json:"name" yaml:"name"`
				CodeHash string            `json:"code_hash" yaml:"code_hash"`
				Exports  []string          `json:"exports" yaml:"exports"`
				GasBound map[string]uint64 `json:"gas_upper_bound" yaml:"gas_upper_bound"`
			}{c.Name, c.CodeHash, c.Exports, c.GasBound})
		},
	}
}

func runCmd() *cobra.Command {
	var gasLimit uint64
	cmd := &cobra.Command{
		Use:   "run <manifest> <method> [args...]",
		Short: "load a manifest and call one of its exported methods",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loader.LoadFile(args[0])
			if err != nil {
				return err
			}
			method := args[1]
			callArgs := make([]vmtypes.Value, 0, len(args)-2)
			for _, raw := range args[2:] {
				callArgs = append(callArgs, parseArg(raw))
			}
			res, err := c.Call(context.Background(), method, callArgs, &loader.Session{GasLimit: gasLimit})
			if err != nil {
				log.WithFields(logging.CallFields(c.Name, method, c.CodeHash)).WithError(err).Error("call failed")
				return err
			}
			return render(cmd, struct {
				Return  string `json:"return" yaml:"return"`
				GasUsed uint64 `json:"gas_used" yaml:"gas_used"`
				Steps   uint64 `json:"steps" yaml:"steps"`
			}{returnString(res.ReturnValue), res.GasUsed, res.Steps})
		},
	}
	cmd.Flags().Uint64Var(&gasLimit, "gas-limit", 0, "gas limit (0 uses the engine default step limit)")
	return cmd
}

func inspectIRCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect-ir <blob-file>",
		Short: "decode a canonical IR blob and print its structure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if prog, err := codec.DecodeProg(data); err == nil {
				return render(cmd, describeProg(prog))
			}
			mod, err := codec.DecodeModule(data)
			if err != nil {
				return fmt.Errorf("blob is neither a valid encoded Prog nor Module: %w", err)
			}
			return render(cmd, describeModule(mod))
		},
	}
}

func gasTableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gas-table",
		Short: "print the built-in opcode gas schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t := gas.DefaultTable()
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			ordered := make([]struct {
				Op   string `json:"op" yaml:"op"`
				Cost uint64 `json:"cost" yaml:"cost"`
			}, len(keys))
			for i, k := range keys {
				ordered[i] = struct {
					Op   string `json:"op" yaml:"op"`
					Cost uint64 `json:"cost" yaml:"cost"`
				}{k, t[k]}
			}
			return render(cmd, ordered)
		},
	}
}

func parseArg(raw string) vmtypes.Value {
	if raw == "true" {
		return vmtypes.NewBool(true)
	}
	if raw == "false" {
		return vmtypes.NewBool(false)
	}
	if len(raw) > 2 && raw[:2] == "0x" {
		b, err := hex.DecodeString(raw[2:])
		if err == nil {
			return vmtypes.NewBytes(b)
		}
	}
	if n, ok := new(big.Int).SetString(raw, 10); ok {
		return vmtypes.NewInt(n)
	}
	return vmtypes.NewBytes([]byte(raw))
}

func returnString(v vmtypes.Value) string {
	switch v.Kind {
	case vmtypes.KindInt:
		return v.Int.String()
	case vmtypes.KindBytes:
		return "0x" + hex.EncodeToString(v.Bytes)
	case vmtypes.KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return "null"
	}
}
