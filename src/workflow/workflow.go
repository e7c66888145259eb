// Package workflow sequences the fixed inference protocol: handshake, open
// the source document, infer the interface, format the result, persist it.
package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lsp "go.lsp.dev/protocol"
	"go.uber.org/multierr"

	"infer-mli/src/config"
	"infer-mli/src/internal/common"
	"infer-mli/src/internal/constants"
	"infer-mli/src/server"
	"infer-mli/src/textedit"
)

// LanguageClient is the slice of the LSP client the workflow drives
type LanguageClient interface {
	Initialize(ctx context.Context) (*lsp.InitializeResult, error)
	Initialized(ctx context.Context) error
	DidOpen(ctx context.Context, path, languageID, text string) error
	Formatting(ctx context.Context, path string) ([]lsp.TextEdit, error)
	InferInterface(ctx context.Context, paths []string) (string, error)
	Shutdown(ctx context.Context) error
	Exit(ctx context.Context) error
	Emit(ev server.Event)
	Wait(ctx context.Context) error
}

// Runner executes the inference workflow for one source file
type Runner struct {
	client LanguageClient
	cfg    *config.Config
}

// NewRunner creates a workflow runner over an already started client
func NewRunner(client LanguageClient, cfg *config.Config) *Runner {
	return &Runner{client: client, cfg: cfg}
}

// Run infers the interface for srcPath and writes it next to the source.
// It returns the written path, or "" when the server could not infer an
// interface; that outcome is user-visible but not an error. The graceful
// shutdown sequence runs on every path after a successful handshake.
func (r *Runner) Run(ctx context.Context, srcPath string) (outPath string, err error) {
	text, err := os.ReadFile(srcPath)
	if err != nil {
		return "", fmt.Errorf("couldn't read file: %w", err)
	}

	// Handshake failure means no further useful work is possible.
	if _, err := r.client.Initialize(ctx); err != nil {
		return "", fmt.Errorf("couldn't initialize: %w", err)
	}
	if err := r.client.Initialized(ctx); err != nil {
		return "", fmt.Errorf("couldn't initialize: %w", err)
	}

	defer func() {
		if shutdownErr := r.shutdown(ctx); shutdownErr != nil {
			common.LSPLogger.Warn("Shutdown sequence incomplete: %v", shutdownErr)
		}
	}()

	if err := r.client.DidOpen(ctx, srcPath, r.cfg.Language, string(text)); err != nil {
		return "", fmt.Errorf("couldn't open file: %w", err)
	}

	inferred, err := r.client.InferInterface(ctx, []string{srcPath})
	if err != nil {
		// No interface could be inferred. Recoverable: nothing is
		// written and the run still succeeds.
		common.LSPLogger.Warn("Couldn't infer interface for %s: %v", srcPath, err)
		return "", nil
	}

	target := interfacePath(srcPath, r.cfg.InterfaceExtension)

	final := r.formatText(ctx, target, inferred)

	if err := os.WriteFile(target, []byte(final), 0o644); err != nil {
		return "", fmt.Errorf("couldn't write file: %w", err)
	}
	return target, nil
}

// formatText opens the inferred text as a document and asks the server to
// format it. Formatting is best effort: on any failure the unformatted
// text is returned verbatim.
func (r *Runner) formatText(ctx context.Context, target, inferred string) string {
	if err := r.client.DidOpen(ctx, target, r.cfg.Language, inferred); err != nil {
		common.LSPLogger.Warn("Couldn't open inferred interface for formatting: %v", err)
		return inferred
	}

	edits, err := r.client.Formatting(ctx, target)
	if err != nil {
		common.LSPLogger.Warn("Formatting failed, keeping unformatted text: %v", err)
		return inferred
	}

	formatted, err := textedit.Apply(inferred, edits)
	if err != nil {
		common.LSPLogger.Warn("Couldn't apply formatting edits, keeping unformatted text: %v", err)
		return inferred
	}
	return formatted
}

// shutdown runs the graceful teardown: shutdown request, exit
// notification, internal stop event, then await loop termination
func (r *Runner) shutdown(ctx context.Context) error {
	var errs error
	if err := r.client.Shutdown(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("shutdown request: %w", err))
	}
	if err := r.client.Exit(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("exit notification: %w", err))
	}

	r.client.Emit(server.StopEvent{})

	// Bounded: a server that stays alive and silent after exit must not
	// hang the teardown. The process itself is killed by the caller.
	waitCtx, cancel := context.WithTimeout(ctx, constants.ProcessShutdownTimeout)
	defer cancel()
	if err := r.client.Wait(waitCtx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("await session loop: %w", err))
	}
	return errs
}

// interfacePath swaps the source file's extension for the interface
// extension, foo.ml becoming foo.mli
func interfacePath(srcPath, ext string) string {
	return strings.TrimSuffix(srcPath, filepath.Ext(srcPath)) + ext
}
