package syncengine

import (
	"log/slog"
	"time"
)

// MessageKind tags the six ProgressMessage shapes of spec §4.8.
type MessageKind int

const (
	Todo MessageKind = iota
	StartSync
	DoneSyncing
	SendError
	CheckSyncing
	EndSync
)

// ProgressMessage is the single channel shape flowing from the walker
// and the rsync worker pool to the progress worker (spec §4.8).
type ProgressMessage struct {
	Kind MessageKind
	Path string

	NumFiles int64
	TotSize  int64

	FileDone int64
	FileSize int64

	Outcome Outcome
	SrcHash string
	DstHash string

	Err error
}

// TickReport is the detailed per-tick progress record handed to the
// external Renderer (spec §4.8).
type TickReport struct {
	CurrentFile string
	FileDone    int64
	FileSize    int64
	TotalDone   int64
	TotalSize   int64
	Index       int64
	NumFiles    int64
	ETA         time.Duration
}

// AuditRecord is the per-file shape forwarded to the audit sink for
// FileCopied/ChecksumUpdated outcomes (spec §6 File record).
type AuditRecord struct {
	Path       string
	SrcHash    string
	DstHash    string
	Size       int64
	UpdateKind Outcome
}

// Renderer is the external progress-rendering collaborator (spec §1:
// the progress renderer is a capability interface, not owned by this
// package). internal/api ships one concrete websocket-backed
// implementation.
type Renderer interface {
	Tick(TickReport)
	Summary(*Stats)
}

// AuditSink is the external relational audit sink collaborator (spec
// §1, §6). internal/audit ships one concrete sqlite-backed
// implementation.
type AuditSink interface {
	File(AuditRecord)
	Error(error)
}

// ProgressWorker is the single-consumer aggregator of spec §4.8: it is
// the only writer of Stats, forwards per-file audit records, computes
// the live ETA, and fans out the end-of-run signal once EndSync is
// observed.
type ProgressWorker struct {
	In       <-chan ProgressMessage
	Stats    *Stats
	Renderer Renderer
	Sink     AuditSink
	Log      *slog.Logger

	// OnEnd signals the cluster and rendezvous coordinator to stop
	// (spec §4.8's EndSync fan-out).
	OnEnd func()

	startedAt   time.Time
	currentFile string
	index       int64
	totalDone   int64
}

// Run drains In until an EndSync message arrives, then returns after
// signaling OnEnd.
func (w *ProgressWorker) Run() {
	w.startedAt = time.Now()
	for msg := range w.In {
		switch msg.Kind {
		case Todo:
			w.Stats.AddTodo(msg.NumFiles, msg.TotSize)
		case StartSync:
			w.currentFile = msg.Path
			w.index++
		case DoneSyncing:
			w.Stats.Record(msg.Outcome)
			if (msg.Outcome == FileCopied || msg.Outcome == ChecksumUpdated) && w.Sink != nil {
				w.Sink.File(AuditRecord{
					Path:       msg.Path,
					SrcHash:    msg.SrcHash,
					DstHash:    msg.DstHash,
					Size:       msg.FileSize,
					UpdateKind: msg.Outcome,
				})
			}
		case SendError:
			if w.Sink != nil {
				w.Sink.Error(msg.Err)
			}
			if w.Log != nil {
				w.Log.Warn("syncengine: per-file error", "path", msg.Path, "err", msg.Err)
			}
		case CheckSyncing:
			w.totalDone += msg.FileDone
			w.tick(msg)
		case EndSync:
			if w.Renderer != nil {
				w.Renderer.Summary(w.Stats)
			}
			if w.OnEnd != nil {
				w.OnEnd()
			}
			return
		}
	}
}

// tick computes the ETA formula of spec §4.8: elapsed*totSize/totalDone
// - elapsed once any bytes have moved, or just elapsed before the first
// byte lands (avoids a divide by zero without inventing a fake ETA).
func (w *ProgressWorker) tick(msg ProgressMessage) {
	if w.Renderer == nil {
		return
	}
	elapsed := time.Since(w.startedAt)
	totSize := w.Stats.TotSize
	var eta time.Duration
	if w.totalDone == 0 {
		eta = elapsed
	} else {
		eta = time.Duration(int64(elapsed)*totSize/w.totalDone) - elapsed
	}
	w.Renderer.Tick(TickReport{
		CurrentFile: w.currentFile,
		FileDone:    msg.FileDone,
		FileSize:    msg.FileSize,
		TotalDone:   w.totalDone,
		TotalSize:   totSize,
		Index:       w.index,
		NumFiles:    w.Stats.TotFiles,
		ETA:         eta,
	})
}
