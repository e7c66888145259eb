package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"infer-mli/src/config"
	"infer-mli/src/internal/common"
	"infer-mli/src/internal/types"
	versionpkg "infer-mli/src/internal/version"
	"infer-mli/src/server"
	"infer-mli/src/workflow"
)

// Flag names
const (
	FlagRootDir = "root-dir"
	FlagFile    = "file"
	FlagConfig  = "config"
	FlagVerbose = "verbose"
)

var (
	rootDir    string
	file       string
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "infer-mli",
	Short: "Infer an OCaml interface file by driving ocamllsp",
	Long: `infer-mli infers a module interface (.mli) for an OCaml source file.

It spawns a language server (ocamllsp by default) in the workspace root,
opens the source file, asks the server to infer the module interface,
formats the result through the server, and writes it next to the source.

On success the written path is printed to stdout. When the server cannot
infer an interface, nothing is written and the exit code is still 0.`,
	RunE:          runInfer,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(versionpkg.GetFullVersionInfo())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&rootDir, FlagRootDir, "r", "", "workspace root directory (required)")
	rootCmd.Flags().StringVarP(&file, FlagFile, "f", "", "source file, relative to the root (required)")
	rootCmd.Flags().StringVarP(&configPath, FlagConfig, "c", "", "YAML config overriding the server command")
	rootCmd.PersistentFlags().BoolVarP(&verbose, FlagVerbose, "v", false, "enable debug logging")

	rootCmd.MarkFlagRequired(FlagRootDir)
	rootCmd.MarkFlagRequired(FlagFile)

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func runInfer(cmd *cobra.Command, args []string) error {
	if verbose {
		common.SetGlobalLevel(common.LogDebug)
	}

	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	root, srcPath, err := resolvePaths(rootDir, file)
	if err != nil {
		return err
	}
	common.CLILogger.Debug("Workspace root: %s, source: %s", root, srcPath)
	common.CLILogger.Debug("Language server: %s %v", cfg.Server.Command, cfg.Server.Args)

	client := server.NewStdioClient(types.ClientConfig{
		Command:               cfg.Server.Command,
		Args:                  cfg.Server.Args,
		WorkspaceRoot:         root,
		InitializationOptions: cfg.Server.InitializationOptions,
	})

	ctx := context.Background()
	if err := client.Start(ctx); err != nil {
		return err
	}
	defer client.Stop()

	outPath, err := workflow.NewRunner(client, cfg).Run(ctx, srcPath)
	if err != nil {
		return err
	}
	if outPath != "" {
		fmt.Println(outPath)
	}
	return nil
}

// resolvePaths canonicalizes the workspace root and checks the source file
// exists inside it
func resolvePaths(root, rel string) (string, string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", "", fmt.Errorf("invalid root directory %q: %w", root, err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", "", fmt.Errorf("invalid root directory %q: %w", root, err)
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return "", "", fmt.Errorf("invalid root directory %q: %w", root, err)
	}
	if !info.IsDir() {
		return "", "", fmt.Errorf("root %q is not a directory", root)
	}

	srcPath := filepath.Join(canonical, rel)
	if _, err := os.Stat(srcPath); err != nil {
		return "", "", fmt.Errorf("invalid source file %q: %w", rel, err)
	}
	return canonical, srcPath, nil
}
