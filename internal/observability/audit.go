package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventPassStart            AuditEventType = "pass.start"
	AuditEventPassComplete         AuditEventType = "pass.complete"
	AuditEventPassError            AuditEventType = "pass.error"
	AuditEventConfigurationApplied AuditEventType = "configuration.applied"
	AuditEventConfigurationEmpty   AuditEventType = "configuration.empty"
	AuditEventGraphLoad            AuditEventType = "graph.load"
	AuditEventGraphStore           AuditEventType = "graph.store"
	AuditEventGraphExport          AuditEventType = "graph.export"
)

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	Timestamp   time.Time              `json:"timestamp"`
	EventType   AuditEventType         `json:"event_type"`
	SessionID   string                 `json:"session_id"`
	PassID      string                 `json:"pass_id,omitempty"`
	Module      string                 `json:"module,omitempty"`
	UserID      string                 `json:"user_id,omitempty"`
	Success     bool                   `json:"success"`
	Duration    time.Duration          `json:"duration_ms,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	ErrorCode   string                 `json:"error_code,omitempty"`
	ErrorDetail string                 `json:"error_detail,omitempty"`
}

// AuditLogger handles audit event logging.
type AuditLogger struct {
	mu        sync.Mutex
	writer    io.Writer
	sessionID string
	userID    string
	enabled   bool
}

// AuditConfig configures the audit logger.
type AuditConfig struct {
	Enabled    bool
	OutputPath string // File path or "stdout"/"stderr"
	SessionID  string
	UserID     string
}

// DefaultAuditConfig returns default audit configuration.
func DefaultAuditConfig() *AuditConfig {
	return &AuditConfig{
		Enabled:    true,
		OutputPath: "stdout",
	}
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(config *AuditConfig) (*AuditLogger, error) {
	if config == nil {
		config = DefaultAuditConfig()
	}

	var writer io.Writer
	switch config.OutputPath {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		writer = f
	}

	sessionID := config.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	return &AuditLogger{
		writer:    writer,
		sessionID: sessionID,
		userID:    config.UserID,
		enabled:   config.Enabled,
	}, nil
}

// Log writes an audit event.
func (l *AuditLogger) Log(event *AuditEvent) error {
	if !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Fill in defaults
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.SessionID == "" {
		event.SessionID = l.sessionID
	}
	if event.UserID == "" {
		event.UserID = l.userID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	_, err = fmt.Fprintf(l.writer, "%s\n", data)
	return err
}

// LogPassStart logs the start of an optimization pass.
func (l *AuditLogger) LogPassStart(ctx context.Context, passID string, moduleCount, chunkCount int) {
	l.Log(&AuditEvent{
		EventType: AuditEventPassStart,
		PassID:    passID,
		Success:   true,
		Message:   fmt.Sprintf("Pass %s started on %d modules", passID, moduleCount),
		Details: map[string]interface{}{
			"module_count": moduleCount,
			"chunk_count":  chunkCount,
		},
	})
}

// LogPassComplete logs the end of an optimization pass.
func (l *AuditLogger) LogPassComplete(ctx context.Context, passID string, duration time.Duration, applied, empty, dropped int) {
	l.Log(&AuditEvent{
		EventType: AuditEventPassComplete,
		PassID:    passID,
		Success:   true,
		Duration:  duration,
		Message:   fmt.Sprintf("Pass %s applied %d configurations", passID, applied),
		Details: map[string]interface{}{
			"applied": applied,
			"empty":   empty,
			"dropped": dropped,
		},
	})
}

// LogPassError logs a pass aborted by an error.
func (l *AuditLogger) LogPassError(ctx context.Context, passID string, err error) {
	l.Log(&AuditEvent{
		EventType:   AuditEventPassError,
		PassID:      passID,
		Success:     false,
		Message:     fmt.Sprintf("Pass %s failed", passID),
		ErrorDetail: err.Error(),
	})
}

// LogConfigurationApplied logs a group merged into one module.
func (l *AuditLogger) LogConfigurationApplied(ctx context.Context, passID, root, merged string, members []string) {
	l.Log(&AuditEvent{
		EventType: AuditEventConfigurationApplied,
		PassID:    passID,
		Module:    root,
		Success:   true,
		Message:   fmt.Sprintf("Merged %d modules into %s", len(members), merged),
		Details: map[string]interface{}{
			"merged":  merged,
			"members": members,
		},
	})
}

// LogConfigurationEmpty logs a root that could not absorb any module.
func (l *AuditLogger) LogConfigurationEmpty(ctx context.Context, passID, root string, warnings int) {
	l.Log(&AuditEvent{
		EventType: AuditEventConfigurationEmpty,
		PassID:    passID,
		Module:    root,
		Success:   false,
		Message:   fmt.Sprintf("Root %s bailed out completely", root),
		Details: map[string]interface{}{
			"warnings": warnings,
		},
	})
}

// LogGraphLoad logs reading a graph document.
func (l *AuditLogger) LogGraphLoad(ctx context.Context, path string, moduleCount int, duration time.Duration) {
	l.Log(&AuditEvent{
		EventType: AuditEventGraphLoad,
		Success:   true,
		Duration:  duration,
		Message:   fmt.Sprintf("Loaded graph: %s", path),
		Details: map[string]interface{}{
			"path":         path,
			"module_count": moduleCount,
		},
	})
}

// LogGraphStore logs persisting a graph to the repository.
func (l *AuditLogger) LogGraphStore(ctx context.Context, passID string, moduleCount int, err error) {
	event := &AuditEvent{
		EventType: AuditEventGraphStore,
		PassID:    passID,
		Success:   err == nil,
		Message:   fmt.Sprintf("Stored %d modules", moduleCount),
	}
	if err != nil {
		event.ErrorDetail = err.Error()
	}
	l.Log(event)
}

// LogGraphExport logs writing a graph export.
func (l *AuditLogger) LogGraphExport(ctx context.Context, format, outputPath string, size int) {
	l.Log(&AuditEvent{
		EventType: AuditEventGraphExport,
		Success:   true,
		Message:   fmt.Sprintf("Exported graph as %s", format),
		Details: map[string]interface{}{
			"format":      format,
			"output_path": outputPath,
			"size":        size,
		},
	})
}

// Close closes the audit logger (if using a file).
func (l *AuditLogger) Close() error {
	if closer, ok := l.writer.(io.Closer); ok {
		if closer != os.Stdout && closer != os.Stderr {
			return closer.Close()
		}
	}
	return nil
}

// Global audit logger instance
var globalAuditLogger *AuditLogger
var auditOnce sync.Once

// InitGlobalAuditLogger initializes the global audit logger.
func InitGlobalAuditLogger(config *AuditConfig) error {
	var err error
	auditOnce.Do(func() {
		globalAuditLogger, err = NewAuditLogger(config)
	})
	return err
}

// Audit returns the global audit logger.
func Audit() *AuditLogger {
	if globalAuditLogger == nil {
		// Return a disabled logger if not initialized
		return &AuditLogger{enabled: false}
	}
	return globalAuditLogger
}
