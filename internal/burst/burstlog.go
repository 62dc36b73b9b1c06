package burst

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
)

// FileLogger writes the per-burst append-only real/predicted prefix logs
// and the bursts_info summary line, one line per completed burst, ported
// directly from the source's line-buffered open(path, 'w', 1) files.
type FileLogger struct {
	dir    string
	info   io.WriteCloser
	logger *zap.Logger
}

// NewFileLogger opens (creating if needed) dir and its bursts_info file
// for append.
func NewFileLogger(dir string, logger *zap.Logger) (*FileLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("burst: creating bursts_dir %s: %w", dir, err)
	}
	info, err := os.OpenFile(filepath.Join(dir, "bursts_info"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("burst: opening bursts_info: %w", err)
	}
	return &FileLogger{dir: dir, info: info, logger: logger}, nil
}

// LogClosed appends b's real/predicted prefix logs and a bursts_info
// summary line: peer, start, last_ts, duration, #prefixes, ts_100th_w.
func (f *FileLogger) LogClosed(b *Burst) {
	base := fmt.Sprintf("%s_%s", b.PeerID, strconv.FormatFloat(b.StartTime, 'f', -1, 64))

	if err := f.writeLines(base+"_real", b.RealPrefixes()); err != nil {
		f.logger.Warn("burst: writing real-prefix log", zap.String("burst", base), zap.Error(err))
	}

	predicted := b.PredictedPrefixes()
	predictedLines := make([]string, len(predicted))
	for i, p := range predicted {
		predictedLines[i] = fmt.Sprintf("%s|%t|%d", p.Prefix, p.Encoded, p.Depth)
	}
	if err := f.writeLines(base+"_predicted", predictedLines); err != nil {
		f.logger.Warn("burst: writing predicted-prefix log", zap.String("burst", base), zap.Error(err))
	}

	line := fmt.Sprintf("%s|%s|%s|%s|%d|%s\n",
		b.PeerID,
		strconv.FormatFloat(b.StartTime, 'f', -1, 64),
		strconv.FormatFloat(b.LastTime, 'f', -1, 64),
		strconv.FormatFloat(b.Duration(), 'f', -1, 64),
		b.RealPrefixCount(),
		strconv.FormatFloat(b.Ts100thW(), 'f', -1, 64),
	)
	if _, err := io.WriteString(f.info, line); err != nil {
		f.logger.Warn("burst: writing bursts_info", zap.Error(err))
	}
}

func (f *FileLogger) writeLines(name string, lines []string) error {
	fh, err := os.OpenFile(filepath.Join(f.dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer fh.Close()
	for _, l := range lines {
		if _, err := io.WriteString(fh, l+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the shared bursts_info handle.
func (f *FileLogger) Close() error { return f.info.Close() }
