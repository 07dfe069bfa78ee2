// Package mcp exposes a project session over the Model Context Protocol, so
// an assistant can look up, match and store translations while it works on
// a document.
package mcp

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	tmdebug "github.com/standardbeagle/tmxmatch/internal/debug"
	"github.com/standardbeagle/tmxmatch/internal/project"
	"github.com/standardbeagle/tmxmatch/internal/version"
)

// Server serves one project session
type Server struct {
	session *project.Session
	server  *mcp.Server
	logger  *zap.Logger
}

// NewServer creates an MCP server over session. The caller keeps ownership
// of the session and closes it after the server stops.
func NewServer(session *project.Session) (*Server, error) {
	if session == nil {
		return nil, fmt.Errorf("mcp server requires a project session")
	}

	s := &Server{
		session: session,
		logger:  tmdebug.Logger("mcp"),
	}
	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    version.ToolName + "-mcp-server",
		Version: version.ServerVersion(),
	}, nil)
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	contextProps := func(props map[string]*jsonschema.Schema) map[string]*jsonschema.Schema {
		props["file"] = &jsonschema.Schema{Type: "string", Description: "Context: document the segment belongs to"}
		props["id"] = &jsonschema.Schema{Type: "string", Description: "Context: segment identifier within the file"}
		props["prev"] = &jsonschema.Schema{Type: "string", Description: "Context: previous segment text"}
		props["next"] = &jsonschema.Schema{Type: "string", Description: "Context: next segment text"}
		props["path"] = &jsonschema.Schema{Type: "string", Description: "Context: structural path of the segment"}
		return props
	}

	s.server.AddTool(&mcp.Tool{
		Name:        ToolMatch,
		Description: "Find translation proposals for a source segment in the project TM and the external reference TMs. Exact matches score 100; fuzzy matches are ranked by token similarity.",
		InputSchema: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"query"},
			Properties: map[string]*jsonschema.Schema{
				"query": {
					Type:        "string",
					Description: "Source segment to translate",
				},
				"limit": {
					Type:        "integer",
					Description: fmt.Sprintf("Maximum proposals (default %d, max %d)", MatchDefaultLimit, MatchMaxLimit),
				},
				"min_score": {
					Type:        "integer",
					Description: "Minimum similarity percentage (0-100)",
				},
				"diff": {
					Type:        "boolean",
					Description: "Include the differing regions of query and proposal",
				},
			},
		},
	}, s.handleMatch)

	s.server.AddTool(&mcp.Tool{
		Name:        ToolLookup,
		Description: "Get the stored project translation of a source segment, with its alternative translations. Pass context fields to address one alternative.",
		InputSchema: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"source"},
			Properties: contextProps(map[string]*jsonschema.Schema{
				"source": {Type: "string", Description: "Source segment text"},
			}),
		},
	}, s.handleLookup)

	s.server.AddTool(&mcp.Tool{
		Name:        ToolSetTranslation,
		Description: "Store a translation in the project TM. Without context fields it becomes the default translation; with them, an alternative for that context.",
		InputSchema: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"source", "target"},
			Properties: contextProps(map[string]*jsonschema.Schema{
				"source": {Type: "string", Description: "Source segment text"},
				"target": {Type: "string", Description: "Translation"},
			}),
		},
	}, s.handleSetTranslation)

	s.server.AddTool(&mcp.Tool{
		Name:        ToolStats,
		Description: "Summarize the project TM (entries, alternatives, orphans, unsaved changes) and the loaded external TMs.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleStats)

	s.server.AddTool(&mcp.Tool{
		Name:        ToolSave,
		Description: "Write the project TM to disk. Nothing is written when there are no changes.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleSave)
}

// recoverFromPanic turns a handler panic or error into a tool error result
func (s *Server) recoverFromPanic(operation string, handler func() (*mcp.CallToolResult, error)) (result *mcp.CallToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic recovered",
				zap.String("operation", operation),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			result, err = createErrorResponse(operation, fmt.Errorf("internal error: %v", r))
		}
	}()

	result, err = handler()
	if err != nil {
		s.logger.Warn("tool failed", zap.String("operation", operation), zap.Error(err))
		return createErrorResponse(operation, err)
	}
	return result, nil
}

// Start serves over stdio until ctx is done or the client disconnects
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting MCP server with stdio transport")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Shutdown saves pending edits. The session stays open.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	saved, err := s.session.Save()
	if err != nil {
		return fmt.Errorf("save on shutdown: %w", err)
	}
	s.logger.Info("MCP server shutdown complete", zap.Bool("saved", saved))
	return nil
}

// GetHandlerForTesting returns a tool handler by name
func (s *Server) GetHandlerForTesting(toolName string) func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	switch toolName {
	case ToolMatch:
		return s.handleMatch
	case ToolLookup:
		return s.handleLookup
	case ToolSetTranslation:
		return s.handleSetTranslation
	case ToolStats:
		return s.handleStats
	case ToolSave:
		return s.handleSave
	default:
		return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return createErrorResponse("GetHandlerForTesting", fmt.Errorf("unknown tool: %s", toolName))
		}
	}
}
