package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	lsp "go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"infer-mli/src/internal/common"
	"infer-mli/src/internal/constants"
	"infer-mli/src/internal/types"
	"infer-mli/src/internal/version"
	"infer-mli/src/server/process"
	"infer-mli/src/server/protocol"
)

// response carries a resolved completion: exactly one of result or rpcErr
type response struct {
	result json.RawMessage
	rpcErr *protocol.RPCError
}

// pendingRequest is one entry of the correlation table
type pendingRequest struct {
	respCh chan response
	done   chan struct{}
}

// StdioClient drives one language server over stdio. It owns the
// correlation table mapping request ids to pending completions and feeds
// server notifications to the dispatcher.
type StdioClient struct {
	config         types.ClientConfig
	processManager process.ProcessManager
	processInfo    *process.ProcessInfo
	jsonrpc        protocol.JSONRPCProtocol
	dispatcher     *Dispatcher

	mu       sync.RWMutex
	writeMu  sync.Mutex
	active   bool
	requests map[string]*pendingRequest
	nextID   int

	stdin        io.Writer
	stdoutCloser io.Closer
	loopDone     chan struct{}
}

// NewStdioClient creates a client for the configured language server
func NewStdioClient(config types.ClientConfig) *StdioClient {
	dispatcher := NewDispatcher(NewSessionState(), constants.MaxConcurrentHandlers)
	registerNotificationHandlers(dispatcher)

	return &StdioClient{
		config:         config,
		processManager: process.NewLSPProcessManager(),
		jsonrpc:        protocol.NewLSPJSONRPCProtocol(),
		dispatcher:     dispatcher,
		requests:       make(map[string]*pendingRequest),
		loopDone:       make(chan struct{}),
	}
}

// Start spawns the language server and begins the session loop. The LSP
// handshake is not part of Start; callers sequence initialize/initialized
// themselves.
func (c *StdioClient) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return fmt.Errorf("client already active")
	}
	c.mu.Unlock()

	info, err := c.processManager.StartProcess(c.config)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.processInfo = info
	c.stdin = info.Stdin
	c.stdoutCloser = info.Stdout
	c.active = true
	c.mu.Unlock()

	c.startSession(info.Stdout)

	go c.processManager.MonitorProcess(info, func(err error) {
		c.mu.Lock()
		c.active = false
		c.mu.Unlock()
	})

	return nil
}

// startSession runs the read loop over the server's output stream. The
// loop exits on EOF, a read error, or the internal stop event; loopDone is
// closed afterwards so pending completions and Wait callers unblock.
func (c *StdioClient) startSession(stdout io.Reader) {
	go func() {
		defer close(c.loopDone)
		if err := c.jsonrpc.HandleResponses(stdout, c, c.dispatcher.StopCh()); err != nil {
			select {
			case <-c.dispatcher.StopCh():
				// The stop event closed the stream under the loop.
				common.LSPLogger.Debug("Session loop closed on stop: %v", err)
			default:
				common.LSPLogger.Error("Session loop terminated with error: %v", err)
			}
		}
		c.dispatcher.Drain()
	}()
}

// Emit delivers an internal control event to the dispatcher. A stop event
// also closes the server-output stream: the read loop's stop check only
// runs between frames, so a loop blocked mid-read needs the read itself to
// fail before it can exit.
func (c *StdioClient) Emit(ev Event) {
	c.dispatcher.Emit(ev)

	if _, ok := ev.(StopEvent); ok {
		c.mu.Lock()
		closer := c.stdoutCloser
		c.stdoutCloser = nil
		c.mu.Unlock()
		if closer != nil {
			closer.Close()
		}
	}
}

// Indexed exposes the one-shot indexing-complete signal
func (c *StdioClient) Indexed() <-chan struct{} {
	return c.dispatcher.state.Indexed()
}

// Wait blocks until the session loop has terminated
func (c *StdioClient) Wait(ctx context.Context) error {
	select {
	case <-c.loopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop tears the session down: it signals the loop, kills the server
// process if it does not exit in time, and closes the pipes. Safe to call
// on every exit path, including after a graceful shutdown.
func (c *StdioClient) Stop() error {
	c.Emit(StopEvent{})

	c.mu.Lock()
	info := c.processInfo
	c.active = false
	c.mu.Unlock()

	if info == nil {
		return nil
	}
	return c.processManager.StopProcess(info, nil)
}

// SendRequest sends a JSON-RPC request and blocks until the matching
// response arrives, the context expires, or the session terminates. A
// terminated session fails the completion; it never hangs.
func (c *StdioClient) SendRequest(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	c.mu.RLock()
	active := c.active
	c.mu.RUnlock()
	if !active {
		return nil, fmt.Errorf("client not active")
	}

	c.mu.Lock()
	c.nextID++
	idVal := c.nextID
	id := fmt.Sprintf("%d", idVal)
	request := &pendingRequest{
		respCh: make(chan response, 1),
		done:   make(chan struct{}),
	}
	c.requests[id] = request
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.requests, id)
		c.mu.Unlock()
		close(request.done)
	}()

	msg := protocol.CreateMessage(method, idVal, params)

	c.writeMu.Lock()
	writeErr := c.jsonrpc.WriteMessage(c.stdin, msg)
	c.writeMu.Unlock()
	if writeErr != nil {
		c.mu.Lock()
		c.active = false
		c.mu.Unlock()
		return nil, fmt.Errorf("failed to send request %s: %w", method, writeErr)
	}

	timeout := constants.DefaultRequestTimeout
	if method == types.MethodInitialize {
		timeout = constants.DefaultInitializeTimeout
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case resp := <-request.respCh:
		if resp.rpcErr != nil {
			return nil, resp.rpcErr
		}
		return resp.result, nil
	case <-ctx.Done():
		// Best effort: tell the server the request is abandoned.
		if cancelErr := c.SendNotification(context.Background(), types.MethodCancelRequest, map[string]interface{}{"id": idVal}); cancelErr != nil {
			common.LSPLogger.Debug("Failed to send cancel for id=%s: %v", id, cancelErr)
		}
		common.LSPLogger.Error("Request timed out: method=%s, id=%s", method, id)
		return nil, fmt.Errorf("request %s timed out: %w", method, ctx.Err())
	case <-c.loopDone:
		return nil, fmt.Errorf("session terminated while %s was pending", method)
	case <-c.dispatcher.StopCh():
		return nil, fmt.Errorf("session stopped while %s was pending", method)
	}
}

// SendNotification sends a JSON-RPC notification (no response expected)
func (c *StdioClient) SendNotification(ctx context.Context, method string, params interface{}) error {
	c.mu.RLock()
	active := c.active
	c.mu.RUnlock()
	if !active {
		return fmt.Errorf("client not active")
	}

	msg := protocol.CreateNotification(method, params)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.jsonrpc.WriteMessage(c.stdin, msg)
}

// HandleRequest implements protocol.MessageHandler for server-initiated
// requests. The server must never stall waiting on us, so unknown requests
// get an explicit null result.
func (c *StdioClient) HandleRequest(method string, id interface{}, params json.RawMessage) error {
	var result interface{}
	if method == "workspace/configuration" {
		result = []interface{}{map[string]interface{}{}}
	} else {
		result = json.RawMessage("null")
	}

	resp := protocol.CreateResponse(id, result, nil)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.jsonrpc.WriteMessage(c.stdin, resp)
}

// HandleResponse implements protocol.MessageHandler. It resolves the
// pending completion matching the response id exactly once; unmatched
// responses are logged and discarded.
func (c *StdioClient) HandleResponse(id interface{}, result json.RawMessage, rpcErr *protocol.RPCError) error {
	idStr := fmt.Sprintf("%v", id)

	c.mu.RLock()
	req, exists := c.requests[idStr]
	c.mu.RUnlock()

	if !exists {
		common.LSPLogger.Warn("No matching request for response: id=%s", idStr)
		return nil
	}

	select {
	case req.respCh <- response{result: result, rpcErr: rpcErr}:
	case <-req.done:
		common.LSPLogger.Warn("Request already completed when response arrived: id=%s", idStr)
	}
	return nil
}

// HandleNotification implements protocol.MessageHandler by routing the
// notification through the dispatcher
func (c *StdioClient) HandleNotification(method string, params json.RawMessage) error {
	c.dispatcher.Dispatch(method, params)
	return nil
}

// Initialize performs the LSP initialize request, advertising work-done
// progress support and the workspace root
func (c *StdioClient) Initialize(ctx context.Context) (*lsp.InitializeResult, error) {
	rootURI := uri.File(c.config.WorkspaceRoot)
	params := lsp.InitializeParams{
		ProcessID: int32(os.Getpid()),
		ClientInfo: &lsp.ClientInfo{
			Name:    "infer-mli",
			Version: version.GetVersion(),
		},
		RootURI: rootURI,
		Capabilities: lsp.ClientCapabilities{
			Window: &lsp.WindowClientCapabilities{
				WorkDoneProgress: true,
			},
		},
		WorkspaceFolders: []lsp.WorkspaceFolder{
			{URI: string(rootURI), Name: "root"},
		},
		InitializationOptions: c.config.InitializationOptions,
	}

	raw, err := c.SendRequest(ctx, types.MethodInitialize, params)
	if err != nil {
		return nil, err
	}

	var result lsp.InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to parse initialize result: %w", err)
	}
	return &result, nil
}

// Initialized sends the initialized notification completing the handshake
func (c *StdioClient) Initialized(ctx context.Context) error {
	return c.SendNotification(ctx, types.MethodInitialized, map[string]interface{}{})
}

// DidOpen opens a document with the server. No incremental edits follow;
// documents in this workflow are immutable once opened.
func (c *StdioClient) DidOpen(ctx context.Context, path, languageID, text string) error {
	params := lsp.DidOpenTextDocumentParams{
		TextDocument: lsp.TextDocumentItem{
			URI:        uri.File(path),
			LanguageID: lsp.LanguageIdentifier(languageID),
			Version:    0,
			Text:       text,
		},
	}
	return c.SendNotification(ctx, types.MethodTextDocumentDidOpen, params)
}

// Formatting requests whole-document formatting and returns the server's
// edits. A null result means the server had nothing to change.
func (c *StdioClient) Formatting(ctx context.Context, path string) ([]lsp.TextEdit, error) {
	params := lsp.DocumentFormattingParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: uri.File(path)},
		Options: lsp.FormattingOptions{
			TabSize:      2,
			InsertSpaces: true,
		},
	}

	raw, err := c.SendRequest(ctx, types.MethodTextDocumentFormatting, params)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var edits []lsp.TextEdit
	if err := json.Unmarshal(raw, &edits); err != nil {
		return nil, fmt.Errorf("failed to parse formatting edits: %w", err)
	}
	return edits, nil
}

// InferInterface invokes the vendor extension that infers a module
// interface for the given source files
func (c *StdioClient) InferInterface(ctx context.Context, paths []string) (string, error) {
	uris := make([]uri.URI, 0, len(paths))
	for _, p := range paths {
		uris = append(uris, uri.File(p))
	}

	raw, err := c.SendRequest(ctx, types.MethodInferInterface, uris)
	if err != nil {
		return "", err
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", fmt.Errorf("failed to parse inferred interface: %w", err)
	}
	return text, nil
}

// Shutdown sends the LSP shutdown request
func (c *StdioClient) Shutdown(ctx context.Context) error {
	_, err := c.SendRequest(ctx, types.MethodShutdown, nil)
	return err
}

// Exit sends the LSP exit notification
func (c *StdioClient) Exit(ctx context.Context) error {
	return c.SendNotification(ctx, types.MethodExit, nil)
}

// SendShutdownRequest implements process.ShutdownSender
func (c *StdioClient) SendShutdownRequest(ctx context.Context) error {
	return c.Shutdown(ctx)
}

// SendExitNotification implements process.ShutdownSender
func (c *StdioClient) SendExitNotification(ctx context.Context) error {
	return c.Exit(ctx)
}
