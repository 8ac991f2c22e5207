// Package mcp exposes the workout tracker to AI assistants over the Model
// Context Protocol: lifecycle tools wrap the session controller, so every
// invariant the controller enforces (single active session, durable
// checkpoints, guarded lifecycle calls) applies to assistant-driven workouts
// too.
package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/claude/liftlog/internal/gateway"
	"github.com/claude/liftlog/internal/session"
)

// New creates an MCP server with all tools and resources registered.
func New(ctrl *session.Controller, gw *gateway.Client, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("LiftLog", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("LiftLog workout tracker. Start, log, and finish workout sessions against the gym platform backend. At most one workout can be active at a time; resolve any pending session before starting a new one."),
	)

	h := &handlers{ctrl: ctrl, gw: gw, log: log}

	s.AddTools(
		server.ServerTool{Tool: toolListRoutines, Handler: h.listRoutines},
		server.ServerTool{Tool: toolStartWorkout, Handler: h.startWorkout},
		server.ServerTool{Tool: toolLogSet, Handler: h.logSet},
		server.ServerTool{Tool: toolWorkoutState, Handler: h.workoutState},
		server.ServerTool{Tool: toolResumeWorkout, Handler: h.resumeWorkout},
		server.ServerTool{Tool: toolSaveWorkout, Handler: h.saveWorkout},
		server.ServerTool{Tool: toolDiscardWorkout, Handler: h.discardWorkout},
	)

	s.AddResources(
		server.ServerResource{Resource: resActiveSession, Handler: h.activeSession},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ctrl *session.Controller
	gw   *gateway.Client
	log  *slog.Logger
}
