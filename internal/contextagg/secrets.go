package contextagg

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/zricethezav/gitleaks/v8/detect"
)

const redacted = "[REDACTED]"

// Redactor masks secrets in text and reports how many were found.
type Redactor interface {
	Redact(text string) (string, int)
}

// SecretScanner redacts secrets from patch previews with the gitleaks
// default rule set. The detector is built lazily on first use.
type SecretScanner struct {
	once     sync.Once
	detector *detect.Detector
	initErr  error
}

func NewSecretScanner() *SecretScanner { return &SecretScanner{} }

func (s *SecretScanner) init() {
	s.once.Do(func() {
		d, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			s.initErr = fmt.Errorf("gitleaks detector: %w", err)
			log.Warn().Err(s.initErr).Msg("Secret scanning disabled")
			return
		}
		s.detector = d
	})
}

func (s *SecretScanner) Redact(text string) (string, int) {
	if text == "" {
		return text, 0
	}
	s.init()
	if s.detector == nil {
		return text, 0
	}
	findings := s.detector.DetectString(text)
	count := 0
	for _, f := range findings {
		if f.Secret == "" || !strings.Contains(text, f.Secret) {
			continue
		}
		text = strings.ReplaceAll(text, f.Secret, redacted)
		count++
	}
	return text, count
}

// noRedaction is used when scanning is switched off.
type noRedaction struct{}

func (noRedaction) Redact(text string) (string, int) { return text, 0 }
