package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/bunkerwars/engine/pkg/ledger"
)

// AuditJournal writes one JSONL line per resolved round. It satisfies the
// engine's audit sink; the engine logs append failures without rolling back
// the round, so the journal must never be the only copy.
type AuditJournal struct {
	w   *Writer
	log *zap.Logger
}

func NewAuditJournal(dir string, log *zap.Logger) *AuditJournal {
	return &AuditJournal{
		w:   NewWriter(dir, "audit"),
		log: log.Named("journal"),
	}
}

func (j *AuditJournal) RecordAudit(_ context.Context, entry *ledger.AuditEntry) error {
	if err := j.w.Append(entry); err != nil {
		return err
	}
	j.log.Debug("audit journaled", zap.Uint64("round", entry.Round))
	return nil
}

func (j *AuditJournal) Close() error { return j.w.Close() }

// ReadAudits decodes every entry from the journal files under dir, in
// file-name order. Used by exports and tests.
func ReadAudits(dir string) ([]*ledger.AuditEntry, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "audit-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var out []*ledger.AuditEntry
	for _, path := range paths {
		entries, err := readFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

func readFile(path string) ([]*ledger.AuditEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []*ledger.AuditEntry
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry ledger.AuditEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, err
		}
		out = append(out, &entry)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
