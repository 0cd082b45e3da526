package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EntryWriter persists journal entries.
type EntryWriter interface {
	InsertJournalEntry(ctx context.Context, e JournalEntry) error
}

// Journal writes entries asynchronously so callers on the control path never
// wait on the database. Entries are dropped when the buffer is full.
type Journal struct {
	writer       EntryWriter
	logger       *zap.Logger
	writeTimeout time.Duration

	entries  chan JournalEntry
	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool

	now func() time.Time
}

func NewJournal(writer EntryWriter, buffer int, logger *zap.Logger) *Journal {
	if buffer <= 0 {
		buffer = 256
	}
	return &Journal{
		writer:       writer,
		logger:       logger.Named("journal"),
		writeTimeout: 5 * time.Second,
		entries:      make(chan JournalEntry, buffer),
		stopChan:     make(chan struct{}),
		now:          time.Now,
	}
}

// Record queues e. ID and CreatedAt are filled in when empty.
func (j *Journal) Record(e JournalEntry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = j.now()
	}

	select {
	case j.entries <- e:
	default:
		j.logger.Warn("Journal buffer full, dropping entry",
			zap.String("kind", string(e.Kind)),
			zap.String("id", e.ID.String()))
	}
}

func (j *Journal) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return
	}
	j.running = true
	j.wg.Add(1)
	go j.run()

	j.logger.Info("Journal started", zap.Int("buffer", cap(j.entries)))
}

// Stop flushes queued entries and waits for the writer to finish.
func (j *Journal) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.mu.Unlock()

	close(j.stopChan)
	j.wg.Wait()

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()

	j.logger.Info("Journal stopped")
}

func (j *Journal) run() {
	defer j.wg.Done()

	for {
		select {
		case e := <-j.entries:
			j.write(e)
		case <-j.stopChan:
			for {
				select {
				case e := <-j.entries:
					j.write(e)
				default:
					return
				}
			}
		}
	}
}

func (j *Journal) write(e JournalEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), j.writeTimeout)
	defer cancel()

	if err := j.writer.InsertJournalEntry(ctx, e); err != nil {
		j.logger.Error("Failed to write journal entry",
			zap.String("kind", string(e.Kind)),
			zap.Error(err))
	}
}
