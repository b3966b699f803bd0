// Package mcp exposes the prediction pipeline as Model Context Protocol tools.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/patient-predict-server/internal/domain"
)

// Tool names
const (
	ToolPredict    = "predict_patient_outcome"
	ToolForm       = "describe_form"
	ToolVocabulary = "list_vocabulary"
)

// Server represents the patient prediction MCP server
type Server struct {
	mcpServer *mcp.Server
	predictor domain.Predictor
	logger    *logrus.Logger
}

// NewServer creates a new MCP server instance with every tool registered.
func NewServer(cfg domain.MCPConfig, predictor domain.Predictor, logger *logrus.Logger) *Server {
	serverInfo := &mcp.Implementation{
		Name:    cfg.ServerName,
		Version: cfg.ServerVersion,
	}

	server := &Server{
		mcpServer: mcp.NewServer(serverInfo, nil),
		predictor: predictor,
		logger:    logger,
	}
	server.registerTools()

	return server
}

// Start serves MCP over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting patient prediction MCP server on stdio")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: ToolPredict,
		Description: "Predict the treatment, expected recovery days and outcome for a patient. " +
			"Every field is required; call describe_form for the accepted values.",
	}, s.handlePredict)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolForm,
		Description: "Describe the patient form: every field with its accepted categories or numeric range.",
	}, s.handleForm)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolVocabulary,
		Description: "List the accepted categories of one categorical field.",
	}, s.handleVocabulary)

	s.logger.WithField("tool_count", 3).Debug("Registered MCP tools")
}
