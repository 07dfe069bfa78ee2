package mcp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	tmerrors "github.com/standardbeagle/tmxmatch/internal/errors"
)

// createJSONResponse creates a standardized JSON response for MCP tools
func createJSONResponse(data interface{}) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(content)},
		},
	}, nil
}

// createErrorResponse creates a standardized error response for MCP tools.
// Tool errors are reported inside the result with IsError set so the model
// can see them and correct its call.
func createErrorResponse(operation string, err error) (*mcp.CallToolResult, error) {
	errorData := map[string]interface{}{
		"success":   false,
		"error":     err.Error(),
		"operation": operation,
	}
	if suggestions := generateErrorSuggestions(operation, err); len(suggestions) > 0 {
		errorData["suggestions"] = suggestions
	}

	response, marshalErr := createJSONResponse(errorData)
	if marshalErr != nil {
		return nil, marshalErr
	}
	response.IsError = true
	return response, nil
}

// generateErrorSuggestions generates hints for common errors
func generateErrorSuggestions(operation string, err error) []string {
	var suggestions []string

	var ve *tmerrors.ValidationError
	if errors.As(err, &ve) {
		switch ve.Field {
		case "limit":
			suggestions = append(suggestions, fmt.Sprintf("Use a limit between 1 and %d", MatchMaxLimit))
		case "min score":
			suggestions = append(suggestions, "min_score is a percentage between 0 and 100")
		case "query", "key source":
			suggestions = append(suggestions, "Pass the source segment text exactly as it appears in the document")
		}
	}

	if errors.Is(err, tmerrors.ErrNotFound) && operation == ToolLookup {
		suggestions = append(suggestions, "No stored translation; try tm_match for fuzzy proposals")
	}

	var fe *tmerrors.FileError
	if errors.As(err, &fe) && operation == ToolSave {
		suggestions = append(suggestions, "Check that the project TM directory is writable")
	}

	return suggestions
}
