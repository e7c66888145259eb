package server

import (
	"encoding/json"
	"fmt"

	lsp "go.lsp.dev/protocol"

	"infer-mli/src/internal/common"
	"infer-mli/src/internal/types"
)

// progressParams mirrors the $/progress payload. The token is kept raw so
// string tokens can be told apart from numeric ones: ocamllsp reports its
// indexing progress under a string token, while unrelated numeric-token
// streams must not trip the indexing signal.
type progressParams struct {
	Token json.RawMessage `json:"token"`
	Value struct {
		Kind string `json:"kind"`
	} `json:"value"`
}

func isStringToken(token json.RawMessage) bool {
	return len(token) > 0 && token[0] == '"'
}

// registerNotificationHandlers installs the notification routing table for
// one inference session
func registerNotificationHandlers(d *Dispatcher) {
	d.Notification(types.MethodProgress, handleProgress)
	d.Notification(types.MethodPublishDiagnostics, handlePublishDiagnostics)
	d.Notification(types.MethodShowMessage, handleShowMessage)
	d.Notification(types.MethodLogMessage, handleLogMessage)
}

func handleProgress(state *SessionState, params json.RawMessage) error {
	var prog progressParams
	if err := json.Unmarshal(params, &prog); err != nil {
		return fmt.Errorf("invalid $/progress params: %w", err)
	}

	common.LSPLogger.Debug("Progress: token=%s kind=%s", prog.Token, prog.Value.Kind)

	if isStringToken(prog.Token) && prog.Value.Kind == string(lsp.WorkDoneProgressKindEnd) {
		state.MarkIndexed()
	}
	return nil
}

func handlePublishDiagnostics(state *SessionState, params json.RawMessage) error {
	var diags lsp.PublishDiagnosticsParams
	if err := json.Unmarshal(params, &diags); err != nil {
		return fmt.Errorf("invalid publishDiagnostics params: %w", err)
	}

	// Diagnostics do not affect the inference workflow.
	common.LSPLogger.Debug("Diagnostics for %s: %d entries", diags.URI, len(diags.Diagnostics))
	return nil
}

func handleShowMessage(state *SessionState, params json.RawMessage) error {
	var msg lsp.ShowMessageParams
	if err := json.Unmarshal(params, &msg); err != nil {
		return fmt.Errorf("invalid showMessage params: %w", err)
	}

	common.LSPLogger.Info("Server message (%v): %s", msg.Type, msg.Message)
	return nil
}

func handleLogMessage(state *SessionState, params json.RawMessage) error {
	var msg lsp.LogMessageParams
	if err := json.Unmarshal(params, &msg); err != nil {
		return fmt.Errorf("invalid logMessage params: %w", err)
	}

	common.LSPLogger.Debug("Server log (%v): %s", msg.Type, msg.Message)
	return nil
}
