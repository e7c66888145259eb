package types

// LSP protocol lifecycle methods
const (
	// MethodInitialize is sent as the first request from client to server
	MethodInitialize = "initialize"
	// MethodInitialized is sent from client to server after the initialize response
	MethodInitialized = "initialized"
	// MethodShutdown is sent from client to server to shut down the server
	MethodShutdown = "shutdown"
	// MethodExit is sent from client to server to exit the server process
	MethodExit = "exit"
)

// LSP document methods
const (
	// MethodTextDocumentDidOpen is sent when a document is opened
	MethodTextDocumentDidOpen = "textDocument/didOpen"
	// MethodTextDocumentFormatting requests whole-document formatting
	MethodTextDocumentFormatting = "textDocument/formatting"
)

// LSP server-to-client notifications
const (
	// MethodProgress carries work-done progress streams
	MethodProgress = "$/progress"
	// MethodPublishDiagnostics carries diagnostics for an open document
	MethodPublishDiagnostics = "textDocument/publishDiagnostics"
	// MethodShowMessage asks the client to display a message to the user
	MethodShowMessage = "window/showMessage"
	// MethodLogMessage asks the client to log a message
	MethodLogMessage = "window/logMessage"
	// MethodCancelRequest cancels a previously sent request
	MethodCancelRequest = "$/cancelRequest"
)

// MethodInferInterface is the ocamllsp vendor extension that infers the
// interface of a module. Params are a list of document URIs, the result is
// the inferred interface as plain text.
const MethodInferInterface = "ocamllsp/inferIntf"
