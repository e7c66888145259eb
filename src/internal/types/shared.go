package types

// ClientConfig holds everything needed to spawn and drive one language
// server over stdio.
type ClientConfig struct {
	// Command is the language server executable, resolved via PATH.
	Command string
	// Args are passed to the server verbatim.
	Args []string
	// WorkspaceRoot is the canonicalized workspace directory. It is used as
	// the server's working directory and as the workspace folder sent in
	// the initialize request.
	WorkspaceRoot string
	// InitializationOptions are forwarded untouched in the initialize request.
	InitializationOptions interface{}
}
