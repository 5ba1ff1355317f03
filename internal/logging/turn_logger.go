package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TurnLogger records one question turn: every line goes to zerolog at debug
// level and, when a transcript directory is configured, to a file named
// after the session and turn. All methods are safe on a nil receiver.
type TurnLogger struct {
	sessionID string
	turnID    string
	logFile   *os.File
	mutex     sync.Mutex
	startTime time.Time
	logger    zerolog.Logger
}

// StartTurnLogging opens a transcript for a turn. With an empty dir only the
// zerolog side is active.
func StartTurnLogging(dir, sessionID, turnID string) (*TurnLogger, error) {
	t := &TurnLogger{
		sessionID: sessionID,
		turnID:    turnID,
		startTime: time.Now(),
		logger:    log.With().Str("session_id", sessionID).Str("turn_id", turnID).Logger(),
	}
	if dir == "" {
		return t, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}
	name := fmt.Sprintf("turn_%s_%s_%s.log", sessionID, turnID, t.startTime.Format("20060102_150405"))
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript file: %w", err)
	}
	t.logFile = f
	t.writeHeader()
	return t, nil
}

// Path returns the transcript file path, or "" when there is none.
func (t *TurnLogger) Path() string {
	if t == nil || t.logFile == nil {
		return ""
	}
	return t.logFile.Name()
}

// Log writes a formatted line.
func (t *TurnLogger) Log(format string, args ...interface{}) {
	if t == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	t.logger.Debug().Msg(msg)

	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.logFile == nil {
		return
	}
	elapsed := time.Since(t.startTime).Round(time.Millisecond)
	fmt.Fprintf(t.logFile, "[%s] [+%v] %s\n", time.Now().Format("15:04:05.000"), elapsed, msg)
}

// LogSection writes a section banner.
func (t *TurnLogger) LogSection(title string) {
	if t == nil {
		return
	}
	sep := strings.Repeat("=", 60)
	t.Log("%s", sep)
	t.Log("= %s", title)
	t.Log("%s", sep)
}

// LogRequest records the prompt sent to the model.
func (t *TurnLogger) LogRequest(tier, model, prompt string) {
	if t == nil {
		return
	}
	t.LogSection(fmt.Sprintf("MODEL REQUEST - %s", tier))
	t.Log("Model: %s", model)
	t.Log("Prompt length: %d characters", len(prompt))
	t.writeBlock("PROMPT", prompt)
}

// LogResponse records a raw model reply.
func (t *TurnLogger) LogResponse(raw string) {
	if t == nil {
		return
	}
	t.LogSection("MODEL RESPONSE")
	t.Log("Response length: %d characters", len(raw))
	t.writeBlock("RESPONSE", raw)
}

// LogError records a failure in the named stage.
func (t *TurnLogger) LogError(stage string, err error) {
	if t == nil {
		return
	}
	t.logger.Warn().Err(err).Str("stage", stage).Msg("Turn stage failed")
	t.Log("ERROR in %s: %v", stage, err)
}

// Close writes the footer and closes the file.
func (t *TurnLogger) Close() {
	if t == nil {
		return
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.logFile == nil {
		return
	}
	fmt.Fprintf(t.logFile, "[%s] Turn completed. Total duration: %v\n",
		time.Now().Format("15:04:05.000"), time.Since(t.startTime).Round(time.Millisecond))
	t.logFile.Close()
	t.logFile = nil
}

func (t *TurnLogger) writeBlock(label, body string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.logFile == nil {
		return
	}
	fmt.Fprintf(t.logFile, "--- %s START ---\n%s\n--- %s END ---\n", label, body, label)
}

func (t *TurnLogger) writeHeader() {
	fmt.Fprintf(t.logFile, "PRCHAT TURN LOG\nSession ID: %s\nTurn ID: %s\nStart Time: %s\nLog Format: [HH:MM:SS.mmm] [+duration] message\n\n",
		t.sessionID, t.turnID, t.startTime.Format("2006-01-02 15:04:05"))
}
