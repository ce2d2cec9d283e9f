// fluxnoded is the chainstate engine's command-line entry point: opening
// the store and flat-file logs, exposing Prometheus metrics, and a handful
// of maintenance subcommands for feeding blocks into the engine and
// checking the resulting chainstate. P2P, JSON-RPC, mempool admission,
// mining, and the operator dashboard are out of scope (Purpose & Scope);
// this binary drives the connect/disconnect pipeline directly.
//
// Usage:
//
//	fluxnoded [--network=mainnet|testnet] [--datadir=...] [--config=...]
//	fluxnoded init-datadir
//	fluxnoded import-blocks <file>
//	fluxnoded verify-chainstate
//
// Grounded on the teacher's cmd/klingnetd/main.go (ordered startup:
// config -> logger -> storage -> engine -> serve), generalized from the
// teacher's single long-lived node process to a Cobra command tree whose
// root command runs the store-plus-metrics-server shell and whose
// subcommands exercise the chainstate engine directly, since this engine
// has no P2P layer of its own to receive blocks from.
package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/fluxd-org/fluxd/internal/chainstate"
	"github.com/fluxd-org/fluxd/internal/config"
	"github.com/fluxd-org/fluxd/internal/consensus"
	"github.com/fluxd-org/fluxd/internal/flatfile"
	klog "github.com/fluxd-org/fluxd/internal/log"
	"github.com/fluxd-org/fluxd/internal/metrics"
	"github.com/fluxd-org/fluxd/internal/store"
	"github.com/fluxd-org/fluxd/internal/validation"
	"github.com/fluxd-org/fluxd/internal/wire"
)

var (
	flagNetwork    string
	flagDataDir    string
	flagConfigFile string
)

func main() {
	root := &cobra.Command{
		Use:   "fluxnoded",
		Short: "fluxd chainstate engine",
		RunE:  runServe,
	}
	root.PersistentFlags().StringVar(&flagNetwork, "network", "mainnet", "network (mainnet or testnet)")
	root.PersistentFlags().StringVar(&flagDataDir, "datadir", "", "data directory (default per-OS, see config.DefaultDataDir)")
	root.PersistentFlags().StringVar(&flagConfigFile, "config", "", "YAML config file path")

	root.AddCommand(
		&cobra.Command{
			Use:   "init-datadir",
			Short: "create the data directory layout for the selected network",
			RunE:  runInitDataDir,
		},
		&cobra.Command{
			Use:   "import-blocks <file>",
			Short: "connect a sequence of length-prefixed encoded blocks from file",
			Args:  cobra.ExactArgs(1),
			RunE:  runImportBlocks,
		},
		&cobra.Command{
			Use:   "verify-chainstate",
			Short: "read the current best block and report its tip, height and chainwork",
			RunE:  runVerifyChainstate,
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.NetworkType(flagNetwork), flagConfigFile)
	if err != nil {
		return nil, err
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	return cfg, nil
}

func initLogger(cfg *config.Config) error {
	logFile := cfg.Log.File
	if logFile == "" {
		if err := os.MkdirAll(cfg.LogsDir(), 0755); err != nil {
			return fmt.Errorf("create logs dir: %w", err)
		}
		logFile = cfg.LogsDir() + "/fluxnoded.log"
	}
	return klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile)
}

// openEngine opens the store and flat-file logs under cfg and constructs
// the Chain. Callers must not call this more than once concurrently
// against the same data directory: the store holds an exclusive lock.
func openEngine(cfg *config.Config) (*chainstate.Chain, store.DB, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, nil, err
	}

	db, err := store.NewBadgerStore(store.BadgerOptions{
		Path:             cfg.StoreDir(),
		WriteBufferLimit: cfg.Store.WriteBufferLimit,
		JournalLimit:     cfg.Store.JournalLimit,
	})
	if err != nil {
		return nil, nil, err
	}

	maxFileSize := uint64(cfg.Store.FlatFileMaxSize)
	blocks, err := flatfile.New(cfg.BlocksDir(), "blk", maxFileSize)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	undos, err := flatfile.New(cfg.UndoDir(), "undo", maxFileSize)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	deps := validation.Deps{
		Pow:      consensus.AcceptAllPowVerifier{},
		Pon:      consensus.AcceptAllPonVerifier{},
		Shielded: consensus.NoopShieldedVerifier{},
		Fluxnode: consensus.AcceptAllFluxnodeLinter{},
		CollateralOwner: func(op wire.OutPoint) ([]byte, error) {
			return nil, fmt.Errorf("collateral owner lookup unavailable outside a wired fluxnode linter")
		},
	}

	chain, err := chainstate.New(db, blocks, undos, cfg.ConsensusParams(), validation.Flags{VerifyShielded: false}, deps)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return chain, db, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := initLogger(cfg); err != nil {
		return err
	}
	logger := klog.WithComponent("node")

	chain, db, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	hash, height, _, ok, err := chain.BestBlock()
	if err != nil {
		return err
	}
	if ok {
		logger.Info().Str("tip", hash.String()).Int32("height", height).Msg("chainstate opened")
	} else {
		logger.Info().Msg("chainstate opened at genesis (no connected blocks yet)")
	}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		logger.Info().Str("addr", cfg.Metrics.Addr).Msg("serving metrics")
		return http.ListenAndServe(cfg.Metrics.Addr, mux)
	}

	logger.Info().Msg("metrics disabled; idling (no P2P/RPC wired: out of scope for the chainstate engine)")
	select {}
}

func runInitDataDir(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}
	fmt.Printf("initialized data directory at %s\n", cfg.ChainDataDir())
	return nil
}

// runImportBlocks reads a sequence of 4-byte-little-endian-length-prefixed
// encoded blocks from file and connects each in order, using the block
// header's own Time field as its blockTime (no external wall clock to
// cross-check against outside a wired P2P layer).
func runImportBlocks(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := initLogger(cfg); err != nil {
		return err
	}
	logger := klog.WithComponent("import")

	chain, db, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var lenBuf [4]byte
	count := 0
	for {
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("read length prefix: %w", err)
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		raw := make([]byte, n)
		if _, err := io.ReadFull(r, raw); err != nil {
			return fmt.Errorf("read block %d: %w", count, err)
		}
		blk, err := wire.DecodeBlock(raw)
		if err != nil {
			return fmt.Errorf("decode block %d: %w", count, err)
		}
		if err := chain.Connect(blk, blk.Header.Time); err != nil {
			return fmt.Errorf("connect block %d (%s): %w", count, blk.Hash(), err)
		}
		count++
	}
	logger.Info().Int("blocks", count).Msg("import complete")
	fmt.Printf("connected %d blocks\n", count)
	return nil
}

func runVerifyChainstate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := initLogger(cfg); err != nil {
		return err
	}

	chain, db, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	hash, height, work, ok, err := chain.BestBlock()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("chainstate is empty (no connected blocks)")
		return nil
	}
	fmt.Printf("tip=%s height=%d chainwork=%s\n", hash.String(), height, work.String())
	return nil
}
