package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	stdatomic "sync/atomic"
	"time"

	"github.com/natefinch/atomic"
	"github.com/oklog/ulid/v2"

	"github.com/sentinelworks/sentinel/internal/config"
)

type Operation int

const (
	OpAppendMessage Operation = iota
	OpReadMessages
	OpGetThread
	OpSaveThread
	OpListThreads
	OpDeleteThread
	OpPutMemory
	OpGetMemory
	OpSearchMemory
)

type Request struct {
	Op       Operation
	Payload  interface{}
	Result   chan error
	Response chan interface{}
}

type AppendMessagePayload struct {
	ThreadID string
	Record   MessageRecord
}

type ReadMessagesPayload struct {
	ThreadID string
	Limit    int // 0 = all
}

type GetThreadPayload struct {
	ThreadID string
}

type SaveThreadPayload struct {
	Thread *ThreadMeta
}

type DeleteThreadPayload struct {
	ThreadID string
}

type PutMemoryPayload struct {
	Entry MemoryEntry
}

type GetMemoryPayload struct {
	UserID    string
	Namespace string
}

type SearchMemoryPayload struct {
	UserID string
	Query  string
}

// Worker is the single writer for the workspace directory. All mutations
// flow through its inbox; the flock prevents a second instance from
// opening the same workspace.
type Worker struct {
	basePath    string
	inbox       chan Request
	fileLock    *FileLock
	quit        chan struct{}
	wg          sync.WaitGroup
	threadIndex *ThreadIndex
	memory      []MemoryEntry
	running     stdatomic.Bool
}

func NewWorker(cfg config.StoreConfig) (*Worker, error) {
	basePath := strings.TrimSpace(cfg.Path)
	if basePath == "" {
		basePath = config.DefaultStorePath
	}

	if err := os.MkdirAll(filepath.Join(basePath, "threads"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create threads dir: %w", err)
	}

	lockTimeout, err := config.DurationOrDefault(cfg.LockTimeout, config.DefaultStoreLockTimeout)
	if err != nil {
		return nil, err
	}
	lockRetry, err := config.DurationOrDefault(cfg.LockRetry, config.DefaultStoreLockRetry)
	if err != nil {
		return nil, err
	}
	lockMaxRetry := cfg.LockMaxRetry
	if lockMaxRetry <= 0 {
		lockMaxRetry = config.DefaultStoreLockMaxRetry
	}
	inboxSize := cfg.InboxSize
	if inboxSize <= 0 {
		inboxSize = config.DefaultStoreInboxSize
	}

	fileLock, err := NewFileLock(basePath, FileLockConfig{
		LockTimeout:  lockTimeout,
		LockRetry:    lockRetry,
		LockMaxRetry: lockMaxRetry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	threadIndex := &ThreadIndex{Threads: make(map[string]ThreadMeta)}
	indexPath := filepath.Join(basePath, "threads", "index.json")
	if data, err := os.ReadFile(indexPath); err == nil {
		if err := json.Unmarshal(data, threadIndex); err != nil {
			slog.Warn("Failed to parse thread index, starting fresh", "error", err)
			threadIndex = &ThreadIndex{Threads: make(map[string]ThreadMeta)}
		}
	}

	var memory memoryFile
	memoryPath := filepath.Join(basePath, "memory.json")
	if data, err := os.ReadFile(memoryPath); err == nil {
		if err := json.Unmarshal(data, &memory); err != nil {
			slog.Warn("Failed to parse memory file, starting fresh", "error", err)
		}
	}

	return &Worker{
		basePath:    basePath,
		inbox:       make(chan Request, inboxSize),
		fileLock:    fileLock,
		quit:        make(chan struct{}),
		threadIndex: threadIndex,
		memory:      memory.Entries,
	}, nil
}

func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

func (w *Worker) loop() {
	slog.Info("StoreWorker started", "path", w.basePath)
	w.running.Store(true)
	defer func() {
		w.running.Store(false)
		w.wg.Done()
	}()

	for {
		select {
		case req := <-w.inbox:
			err := w.handle(req)
			if req.Result != nil {
				req.Result <- err
			}
		case <-w.quit:
			slog.Info("StoreWorker stopping")
			return
		}
	}
}

func (w *Worker) handle(req Request) error {
	switch req.Op {
	case OpAppendMessage:
		p, ok := req.Payload.(AppendMessagePayload)
		if !ok {
			return fmt.Errorf("invalid payload for AppendMessage")
		}
		return w.appendMessage(p.ThreadID, p.Record)
	case OpReadMessages:
		p, ok := req.Payload.(ReadMessagesPayload)
		if !ok {
			return fmt.Errorf("invalid payload for ReadMessages")
		}
		records, err := w.readMessages(p.ThreadID, p.Limit)
		if req.Response != nil {
			req.Response <- records
		}
		return err
	case OpGetThread:
		p, ok := req.Payload.(GetThreadPayload)
		if !ok {
			return fmt.Errorf("invalid payload for GetThread")
		}
		if meta, ok := w.threadIndex.Threads[p.ThreadID]; ok {
			if req.Response != nil {
				req.Response <- &meta
			}
		} else if req.Response != nil {
			req.Response <- nil
		}
		return nil
	case OpSaveThread:
		p, ok := req.Payload.(SaveThreadPayload)
		if !ok {
			return fmt.Errorf("invalid payload for SaveThread")
		}
		w.threadIndex.Threads[p.Thread.ID] = *p.Thread
		return w.saveThreadIndex()
	case OpListThreads:
		metas := make([]ThreadMeta, 0, len(w.threadIndex.Threads))
		for _, meta := range w.threadIndex.Threads {
			metas = append(metas, meta)
		}
		sort.Slice(metas, func(i, j int) bool {
			return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
		})
		if req.Response != nil {
			req.Response <- metas
		}
		return nil
	case OpDeleteThread:
		p, ok := req.Payload.(DeleteThreadPayload)
		if !ok {
			return fmt.Errorf("invalid payload for DeleteThread")
		}
		return w.deleteThread(p.ThreadID)
	case OpPutMemory:
		p, ok := req.Payload.(PutMemoryPayload)
		if !ok {
			return fmt.Errorf("invalid payload for PutMemory")
		}
		return w.putMemory(p.Entry)
	case OpGetMemory:
		p, ok := req.Payload.(GetMemoryPayload)
		if !ok {
			return fmt.Errorf("invalid payload for GetMemory")
		}
		if req.Response != nil {
			req.Response <- w.getMemory(p.UserID, p.Namespace)
		}
		return nil
	case OpSearchMemory:
		p, ok := req.Payload.(SearchMemoryPayload)
		if !ok {
			return fmt.Errorf("invalid payload for SearchMemory")
		}
		if req.Response != nil {
			req.Response <- w.searchMemory(p.UserID, p.Query)
		}
		return nil
	default:
		return fmt.Errorf("unknown operation: %d", req.Op)
	}
}

func (w *Worker) appendMessage(threadID string, record MessageRecord) error {
	if record.ID == "" {
		record.ID = ulid.Make().String()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	path := filepath.Join(w.basePath, "threads", threadID+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return err
	}
	if _, err := f.WriteString("\n"); err != nil {
		return err
	}
	return f.Sync()
}

func (w *Worker) readMessages(threadID string, limit int) ([]MessageRecord, error) {
	path := filepath.Join(w.basePath, "threads", threadID+".jsonl")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []MessageRecord{}, nil
		}
		return nil, err
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	records := make([]MessageRecord, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var record MessageRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			slog.Warn("Skipping corrupt message record", "thread_id", threadID, "error", err)
			continue
		}
		records = append(records, record)
	}

	if limit > 0 && len(records) > limit {
		return records[len(records)-limit:], nil
	}
	return records, nil
}

func (w *Worker) deleteThread(threadID string) error {
	path := filepath.Join(w.basePath, "threads", threadID+".jsonl")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	delete(w.threadIndex.Threads, threadID)
	return w.saveThreadIndex()
}

func (w *Worker) saveThreadIndex() error {
	path := filepath.Join(w.basePath, "threads", "index.json")
	data, err := json.MarshalIndent(w.threadIndex, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}

func (w *Worker) putMemory(entry MemoryEntry) error {
	entry.UpdatedAt = time.Now().UTC()

	replaced := false
	for i, existing := range w.memory {
		if existing.UserID == entry.UserID && existing.Namespace == entry.Namespace && existing.Key == entry.Key {
			w.memory[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		w.memory = append(w.memory, entry)
	}

	return w.saveMemory()
}

func (w *Worker) getMemory(userID, namespace string) []MemoryEntry {
	out := make([]MemoryEntry, 0)
	for _, entry := range w.memory {
		if entry.UserID != userID {
			continue
		}
		if namespace != "" && entry.Namespace != namespace {
			continue
		}
		out = append(out, entry)
	}
	return out
}

func (w *Worker) searchMemory(userID, query string) []MemoryEntry {
	needle := strings.ToLower(strings.TrimSpace(query))
	out := make([]MemoryEntry, 0)
	for _, entry := range w.memory {
		if entry.UserID != userID {
			continue
		}
		if needle == "" ||
			strings.Contains(strings.ToLower(entry.Value), needle) ||
			strings.Contains(strings.ToLower(entry.Key), needle) ||
			strings.Contains(strings.ToLower(entry.Namespace), needle) {
			out = append(out, entry)
		}
	}
	return out
}

func (w *Worker) saveMemory() error {
	path := filepath.Join(w.basePath, "memory.json")
	data, err := json.MarshalIndent(memoryFile{Entries: w.memory}, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}

// Public API for other components

func (w *Worker) AppendMessage(threadID string, record MessageRecord) error {
	res := make(chan error, 1)
	w.inbox <- Request{
		Op:      OpAppendMessage,
		Payload: AppendMessagePayload{ThreadID: threadID, Record: record},
		Result:  res,
	}
	return <-res
}

func (w *Worker) ReadMessages(threadID string, limit int) ([]MessageRecord, error) {
	res := make(chan error, 1)
	resp := make(chan interface{}, 1)
	w.inbox <- Request{
		Op:       OpReadMessages,
		Payload:  ReadMessagesPayload{ThreadID: threadID, Limit: limit},
		Result:   res,
		Response: resp,
	}
	if err := <-res; err != nil {
		return nil, err
	}
	val := <-resp
	return val.([]MessageRecord), nil
}

func (w *Worker) GetThread(id string) (*ThreadMeta, error) {
	res := make(chan error, 1)
	resp := make(chan interface{}, 1)
	w.inbox <- Request{
		Op:       OpGetThread,
		Payload:  GetThreadPayload{ThreadID: id},
		Result:   res,
		Response: resp,
	}
	if err := <-res; err != nil {
		return nil, err
	}
	val := <-resp
	if val == nil {
		return nil, nil // Not found
	}
	return val.(*ThreadMeta), nil
}

func (w *Worker) SaveThread(thread *ThreadMeta) error {
	res := make(chan error, 1)
	w.inbox <- Request{
		Op:      OpSaveThread,
		Payload: SaveThreadPayload{Thread: thread},
		Result:  res,
	}
	return <-res
}

func (w *Worker) ListThreads() ([]ThreadMeta, error) {
	res := make(chan error, 1)
	resp := make(chan interface{}, 1)
	w.inbox <- Request{
		Op:       OpListThreads,
		Result:   res,
		Response: resp,
	}
	if err := <-res; err != nil {
		return nil, err
	}
	val := <-resp
	return val.([]ThreadMeta), nil
}

func (w *Worker) DeleteThread(id string) error {
	res := make(chan error, 1)
	w.inbox <- Request{
		Op:      OpDeleteThread,
		Payload: DeleteThreadPayload{ThreadID: id},
		Result:  res,
	}
	return <-res
}

func (w *Worker) PutMemory(entry MemoryEntry) error {
	res := make(chan error, 1)
	w.inbox <- Request{
		Op:      OpPutMemory,
		Payload: PutMemoryPayload{Entry: entry},
		Result:  res,
	}
	return <-res
}

func (w *Worker) GetMemory(userID, namespace string) ([]MemoryEntry, error) {
	res := make(chan error, 1)
	resp := make(chan interface{}, 1)
	w.inbox <- Request{
		Op:       OpGetMemory,
		Payload:  GetMemoryPayload{UserID: userID, Namespace: namespace},
		Result:   res,
		Response: resp,
	}
	if err := <-res; err != nil {
		return nil, err
	}
	val := <-resp
	return val.([]MemoryEntry), nil
}

func (w *Worker) SearchMemory(userID, query string) ([]MemoryEntry, error) {
	res := make(chan error, 1)
	resp := make(chan interface{}, 1)
	w.inbox <- Request{
		Op:       OpSearchMemory,
		Payload:  SearchMemoryPayload{UserID: userID, Query: query},
		Result:   res,
		Response: resp,
	}
	if err := <-res; err != nil {
		return nil, err
	}
	val := <-resp
	return val.([]MemoryEntry), nil
}

func (w *Worker) Stop() {
	slog.Info("StoreWorker Stop called", "path", w.basePath, "lock_held", w.fileLock.IsLocked())

	close(w.quit)
	w.wg.Wait()

	if w.fileLock.IsLocked() {
		w.fileLock.Unlock()
	}
}

func (w *Worker) IsRunning() bool {
	return w.fileLock.IsLocked() && w.running.Load()
}
