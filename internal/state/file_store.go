package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/ema-monitor/internal/monitor"
	"github.com/JakeFAU/ema-monitor/internal/storage/local"
)

// File names inside a namespace directory.
const (
	CounterFile    = "execution_counter.txt"
	StatusFile     = "status.txt"
	ReportDateFile = "last_report_date.txt"
	LastItemFile   = "last_item_id.txt"
)

// FileStore keeps each state field in its own plain-text file.
type FileStore struct {
	dir    string
	logger *zap.Logger
}

// NewFileStore returns a store rooted at dir. The directory is created on
// first save.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// Dir returns the namespace directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Load reads every field independently; a missing or corrupt field falls back
// to its default with a warning.
func (s *FileStore) Load(_ context.Context) (monitor.RunState, error) {
	st := monitor.DefaultRunState()

	if raw, ok := s.read(CounterFile); ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.logger.Warn("invalid execution counter, resetting", zap.String("value", raw))
		} else {
			st.ExecutionCount = n
		}
	}

	if raw, ok := s.read(StatusFile); ok {
		status, err := monitor.ParseStatus(raw)
		if err != nil {
			s.logger.Warn("invalid status, assuming not_found", zap.Error(err))
		}
		st.LastStatus = status
	}

	if raw, ok := s.read(ReportDateFile); ok && raw != "" {
		d, err := parseDate(raw)
		if err != nil {
			s.logger.Warn("invalid last report date, ignoring", zap.String("value", raw))
		} else {
			st.LastReportDate = d
		}
	}

	if raw, ok := s.read(LastItemFile); ok {
		st.LastItemID = raw
	}

	return st, nil
}

// Save writes every field via temp file and rename.
func (s *FileStore) Save(_ context.Context, st monitor.RunState) error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	files := map[string]string{
		CounterFile: strconv.Itoa(st.ExecutionCount),
		StatusFile:  string(st.LastStatus),
	}
	if st.HasReportDate() {
		files[ReportDateFile] = formatDate(st.LastReportDate)
	}
	if st.LastItemID != "" {
		files[LastItemFile] = st.LastItemID
	}

	var errs []error
	for name, value := range files {
		if err := local.WriteFileAtomic(filepath.Join(s.dir, name), []byte(value), 0o600); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (s *FileStore) read(name string) (string, bool) {
	// #nosec G304 -- name is one of the fixed state file names.
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read state file", zap.String("file", name), zap.Error(err))
		}
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}
