package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gnaf-verify/internal/config"
	"github.com/gnaf-verify/internal/metrics"
	"github.com/gnaf-verify/internal/reference"
	"github.com/gnaf-verify/internal/verify"
	"github.com/gnaf-verify/internal/web"
)

var (
	configPath string
	suburbFlag string
	stateFlag  string
	pcodeFlag  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gnaf-verify",
		Short: "Australian address verification engine",
		Long:  `Verifies free-text Australian addresses against the G-NAF style reference hierarchy with fuzzy matching and geocoding.`,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (YAML)")

	rootCmd.AddCommand(createServeCmd())
	rootCmd.AddCommand(createVerifyCmd())
	rootCmd.AddCommand(createBatchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *verify.Engine, *prometheus.Registry, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, zerolog.Nop(), err
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if cfg.Log.Pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	} else {
		log = zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	}

	var src reference.TableSource
	if cfg.Reference.DatabaseURL != "" {
		dbSrc, err := reference.OpenDB(cfg.Reference.DatabaseURL)
		if err != nil {
			return nil, nil, nil, log, err
		}
		src = dbSrc
	} else {
		src = reference.DirSource{Dir: cfg.Reference.Dir}
	}

	idx, err := reference.Build(src, reference.Options{}, log)
	if err != nil {
		return nil, nil, nil, log, fmt.Errorf("build reference index: %w", err)
	}

	ec, err := cfg.EngineConfig()
	if err != nil {
		return nil, nil, nil, log, err
	}

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)
	engine := verify.NewEngine(idx, ec, met, log)
	return cfg, engine, reg, log, nil
}

func createServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the verification HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, engine, reg, log, err := setup()
			if err != nil {
				return err
			}
			server := web.NewServer(cfg.Address(), engine, reg, log)
			return server.Start()
		},
	}
}

func createVerifyCmd() *cobra.Command {
	verifyCmd := &cobra.Command{
		Use:   "verify [address...]",
		Short: "Verify a single address",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, engine, _, _, err := setup()
			if err != nil {
				return err
			}
			resp := engine.Verify(context.Background(), verify.Request{
				AddressLines: []string{strings.Join(args, " ")},
				Suburb:       suburbFlag,
				State:        stateFlag,
				Postcode:     pcodeFlag,
			})
			return printJSON(resp)
		},
	}
	verifyCmd.Flags().StringVar(&suburbFlag, "suburb", "", "known suburb hint")
	verifyCmd.Flags().StringVar(&stateFlag, "state", "", "known state hint")
	verifyCmd.Flags().StringVar(&pcodeFlag, "postcode", "", "known postcode hint")
	return verifyCmd
}

func createBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch [filename]",
		Short: "Verify addresses from a file, one per line (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, engine, _, log, err := setup()
			if err != nil {
				return err
			}

			in := os.Stdin
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			var reqs []verify.Request
			scanner := bufio.NewScanner(in)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				reqs = append(reqs, verify.Request{AddressLines: []string{line}})
			}
			if err := scanner.Err(); err != nil {
				return err
			}

			log.Info().Int("records", len(reqs)).Msg("verifying batch")
			results := engine.VerifyBatch(context.Background(), reqs)
			for _, resp := range results {
				if err := printJSON(resp); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
