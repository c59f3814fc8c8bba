package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/microbecode/file-merkle-proofs/pkg/client"
	"github.com/microbecode/file-merkle-proofs/pkg/clientstate"
	"github.com/microbecode/file-merkle-proofs/pkg/config"
	"github.com/microbecode/file-merkle-proofs/pkg/fixtures"
	"github.com/microbecode/file-merkle-proofs/pkg/logger"
	"github.com/microbecode/file-merkle-proofs/pkg/merkle"
)

const defaultFileDir = "./client_storage"

func main() {
	app := &cli.App{
		Name:  "merkle-client",
		Usage: "Upload files to a merkle server and verify them later",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Value:   config.DefaultServerURL,
				Usage:   "Merkle server URL",
				EnvVars: []string{config.EnvMerkleServerURL},
			},
			&cli.StringFlag{
				Name:    "state-file",
				Value:   config.DefaultClientStateFile,
				Usage:   "Where the client remembers the root hash and file order",
				EnvVars: []string{config.EnvMerkleClientStateFile},
			},
			&cli.StringFlag{
				Name:    "hash",
				Value:   merkle.DefaultHashAlgorithm,
				Usage:   fmt.Sprintf("Hash algorithm: %s", config.GetSupportedHashAlgorithmsString()),
				EnvVars: []string{config.EnvMerkleHashAlgorithm},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvMerkleVerbose},
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "upload",
				Usage:     "Upload files and remember their merkle root",
				ArgsUsage: "[FILE...]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "dir",
						Value: defaultFileDir,
						Usage: "Directory the files are read from; every file in it when none are named",
					},
					&cli.BoolFlag{
						Name:  "delete-local",
						Usage: "Delete the local copies after a successful upload",
					},
				},
				Action: uploadCommand,
			},
			{
				Name:      "verify",
				Usage:     "Download a file and verify it against the remembered root",
				ArgsUsage: "NAME",
				Action:    verifyCommand,
			},
			{
				Name:   "reset",
				Usage:  "Delete every file on the server and forget the local state",
				Action: resetCommand,
			},
			{
				Name:   "health",
				Usage:  "Print the server health document",
				Action: healthCommand,
			},
			{
				Name:  "generate",
				Usage: "Write sample files for testing",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "dir",
						Value: defaultFileDir,
						Usage: "Output directory",
					},
					&cli.IntFlag{
						Name:  "count",
						Value: 10,
						Usage: "Number of files",
					},
					&cli.IntFlag{
						Name:  "size",
						Value: 1024,
						Usage: "Size of each file in bytes",
					},
					&cli.Uint64Flag{
						Name:  "seed",
						Usage: "Seed for file contents (default: current time)",
					},
				},
				Action: generateCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func parseClientConfig(c *cli.Context) *config.ClientConfig {
	return &config.ClientConfig{
		ServerURL:     c.String("server"),
		StateFile:     c.String("state-file"),
		HashAlgorithm: c.String("hash"),
		Debug:         c.Bool("verbose"),
	}
}

func createClient(c *cli.Context, hashAlgorithm string) (*client.Client, *config.ClientConfig, *zap.Logger, error) {
	cfg := parseClientConfig(c)
	if hashAlgorithm != "" {
		cfg.HashAlgorithm = hashAlgorithm
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	hasher, err := merkle.NewHasher(cfg.HashAlgorithm)
	if err != nil {
		return nil, nil, nil, err
	}

	mc, err := client.NewClient(&client.ClientConfig{
		ServerURL: cfg.ServerURL,
		Hasher:    hasher,
		Logger:    l,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create client: %w", err)
	}
	return mc, cfg, l, nil
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func uploadCommand(c *cli.Context) error {
	mc, cfg, l, err := createClient(c, "")
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	dir := c.String("dir")
	names := c.Args().Slice()
	if len(names) == 0 {
		if names, err = listFiles(dir); err != nil {
			return err
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("no files to upload in %s", dir)
	}

	files, err := fixtures.ReadFiles(dir, names)
	if err != nil {
		return err
	}

	result, err := mc.Upload(c.Context, files)
	if err != nil {
		return err
	}

	root := result.RootHash
	state := &clientstate.State{
		RootHash:      &root,
		HashAlgorithm: result.HashAlgorithm,
		BatchID:       result.BatchID,
		FileNames:     result.FileNames,
		UploadedAt:    time.Now().Unix(),
	}
	if err := state.Save(cfg.StateFile); err != nil {
		return err
	}

	fmt.Printf("Uploaded %d files\n", len(result.FileNames))
	fmt.Printf("Batch ID: %s\n", result.BatchID)
	fmt.Printf("Merkle root (%s): %s\n", result.HashAlgorithm, root.Hex())

	if c.Bool("delete-local") {
		if err := fixtures.RemoveFiles(dir, names); err != nil {
			return err
		}
		fmt.Printf("Deleted local copies from %s\n", dir)
	}
	return nil
}

func verifyCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one file name")
	}
	name := c.Args().First()

	cfg := parseClientConfig(c)
	state, err := clientstate.Load(cfg.StateFile)
	if err != nil {
		return err
	}
	if state.IsEmpty() {
		return fmt.Errorf("no upload recorded in %s", cfg.StateFile)
	}
	index, err := state.IndexOf(name)
	if err != nil {
		return err
	}

	// The root was computed with the algorithm recorded at upload time
	mc, _, l, err := createClient(c, state.HashAlgorithm)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	result, err := mc.VerifyFile(c.Context, index, name, *state.RootHash)
	if err != nil {
		return err
	}

	if !result.Verified {
		return cli.Exit(fmt.Sprintf("Verification failed for %s (index %d)", name, index), 1)
	}

	fmt.Printf("Verified %s (index %d, %d bytes)\n", name, index, len(result.Content))
	fmt.Printf("Merkle root: %s\n", state.RootHash.Hex())
	return nil
}

func resetCommand(c *cli.Context) error {
	mc, cfg, l, err := createClient(c, "")
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	if err := mc.Reset(c.Context); err != nil {
		return err
	}
	if err := clientstate.Clear(cfg.StateFile); err != nil {
		return err
	}

	fmt.Println("Deleted all files on the server and cleared local state")
	return nil
}

func healthCommand(c *cli.Context) error {
	mc, _, l, err := createClient(c, "")
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	health, healthErr := mc.Health(c.Context)
	if health != nil {
		out, err := json.MarshalIndent(health, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}
	return healthErr
}

func generateCommand(c *cli.Context) error {
	seed := c.Uint64("seed")
	if !c.IsSet("seed") {
		seed = uint64(time.Now().UnixNano())
	}

	files, err := fixtures.Generate(fixtures.Options{
		Count: c.Int("count"),
		Size:  c.Int("size"),
		Seed:  seed,
	})
	if err != nil {
		return err
	}

	dir := c.String("dir")
	if _, err := fixtures.WriteFiles(dir, files); err != nil {
		return err
	}

	fmt.Printf("Wrote %d files of %d bytes to %s (seed %d)\n", len(files), c.Int("size"), dir, seed)
	return nil
}
