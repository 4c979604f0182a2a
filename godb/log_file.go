package godb

// Append-only before/after-image log. The buffer pool writes one record
// per dirty page on the commit path and forces the log before the data
// page goes to disk. Records are framed so a reader can walk the log, but
// no recovery replay is implemented here; the engine relies on FORCE at
// commit.

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
)

const logMagic uint32 = 0x60DB106F // tag written at the start of every record

type LogFile struct {
	mu   sync.Mutex
	file *os.File
}

func NewLogFile(path string) (*LogFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return &LogFile{file: f}, nil
}

// LogWrite appends an update record for one page: the transaction id,
// the page's before-image, and its after-image. The record is buffered
// by the OS until Force is called.
func (lf *LogFile) LogWrite(tid TransactionID, beforeImage []byte, afterImage []byte) error {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	header := make([]byte, 0, 4+8+4+4)
	header = binary.BigEndian.AppendUint32(header, logMagic)
	header = binary.BigEndian.AppendUint64(header, uint64(tid))
	header = binary.BigEndian.AppendUint32(header, uint32(len(beforeImage)))
	header = binary.BigEndian.AppendUint32(header, uint32(len(afterImage)))

	if _, err := lf.file.Write(header); err != nil {
		return err
	}
	if _, err := lf.file.Write(beforeImage); err != nil {
		return err
	}
	if _, err := lf.file.Write(afterImage); err != nil {
		return err
	}
	return nil
}

// Force flushes all buffered log records to stable storage. The buffer
// pool calls this before writing the corresponding data pages.
func (lf *LogFile) Force() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return lf.file.Sync()
}

func (lf *LogFile) Close() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return lf.file.Close()
}
