/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// redocore tails Oracle redo files from a destination directory, decodes
// them into logical row/DDL changes, and hands committed transactions to
// a Builder. Wiring style follows the teacher's own entrypoints
// (main.go's "assemble globalenv, load, Repl()" shape and
// server-node-golang/main.go's narrower "init storage, load, Repl()"
// variant) generalized from a Scheme REPL booting a storage engine to a
// flag-configured decoder booting a redo pipeline.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/dc0d/onexit"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/relaycdc/redocore/redo"
	"github.com/relaycdc/redocore/redo/checkpointstore"
	"github.com/relaycdc/redocore/redo/rlog"
)

func main() {
	var (
		redoDir        = flag.String("redo-dir", ".", "directory to watch for redo log sequence files")
		startSeq       = flag.Uint("start-sequence", 1, "redo thread sequence number to start tailing from")
		memoryMinMB    = flag.Int("memory-min-mb", redo.DefaultConfig.MemoryMinMB, "transaction buffer low-watermark, in MB")
		memoryMaxMB    = flag.String("memory-max-mb", "1g", "transaction buffer budget (human size string, e.g. 512mb, 2g)")
		maxMessageMB   = flag.Int("max-message-mb", redo.DefaultConfig.MaxMessageMB, "split a transaction's emitted messages past this many MB")
		onErrorCont    = flag.Bool("on-error-continue", false, "skip recoverable decode errors instead of stopping")
		trackDDL       = flag.Bool("track-ddl", true, "decode and emit 24.1 DDL vectors")
		schemaless     = flag.Bool("schemaless", false, "tolerate objects missing from the dictionary")
		schemaFile     = flag.String("schema-file", "", "JSON schema dump to resolve object ids against (empty runs schemaless)")
		showIncomplete = flag.Bool("show-incomplete-transactions", redo.DefaultConfig.ShowIncompleteTransactions, "emit a transaction synthesized from only its commit marker instead of warning and dropping it")
		dumpLevel      = flag.String("dump-redo-log", "none", "diagnostic dump verbosity: none, summary, full")
		checkpointKind = flag.String("checkpoint-store", "file", "checkpoint backend: file, s3, ceph")
		checkpointPath = flag.String("checkpoint-path", "redocore.checkpoint.json", "checkpoint file path, or S3/Ceph object key")
		s3Bucket       = flag.String("s3-bucket", "", "checkpoint S3 bucket (checkpoint-store=s3)")
		s3Endpoint     = flag.String("s3-endpoint", "", "checkpoint S3-compatible endpoint override")
		s3Region       = flag.String("s3-region", "us-east-1", "checkpoint S3 region")
		lobSpillDir    = flag.String("lob-spill-dir", "", "directory to spill oversized LOB orphan pools to (empty disables spilling)")
		lobSpillMB     = flag.Int("lob-spill-threshold-mb", 64, "per-LOB orphan pool size that triggers a disk spill")
		repl           = flag.Bool("repl", false, "start an interactive dump-inspection shell instead of tailing")
		statusAddr     = flag.String("status-addr", "", "address for the live-status websocket endpoint, e.g. :8088 (empty disables it)")
	)
	flag.Parse()

	cfg := redo.DefaultConfig
	cfg.MemoryMinMB = *memoryMinMB
	if mb, err := redo.ParseSizeMB(*memoryMaxMB); err == nil {
		cfg.MemoryMaxMB = mb
	} else {
		rlog.Warnf(0, "memory-max-mb %q: %v, keeping default", *memoryMaxMB, err)
	}
	cfg.MaxMessageMB = *maxMessageMB
	cfg.OnErrorContinue = *onErrorCont
	cfg.TrackDDL = *trackDDL
	cfg.Schemaless = *schemaless
	cfg.ShowIncompleteTransactions = *showIncomplete
	switch strings.ToLower(*dumpLevel) {
	case "summary":
		cfg.DumpRedoLog = redo.DumpSummary
	case "full":
		cfg.DumpRedoLog = redo.DumpFull
	default:
		cfg.DumpRedoLog = redo.DumpNone
	}

	store, err := openCheckpointStore(*checkpointKind, *checkpointPath, *s3Bucket, *s3Region, *s3Endpoint)
	if err != nil {
		rlog.Errorf(0, "checkpoint store: %v", err)
		os.Exit(1)
	}

	var dict redo.Dictionary
	if *schemaFile != "" {
		sd, err := redo.LoadStaticDictionary(*schemaFile)
		if err != nil {
			rlog.Errorf(0, "%v", err)
			os.Exit(1)
		}
		dict = sd
	} else {
		dict = redo.NewStaticDictionary()
		if !*schemaless {
			rlog.Warnf(0, "no -schema-file given, running schemaless with an empty dictionary")
			cfg.Schemaless = true
		}
	}

	sessionID := uuid.New()
	rlog.Infof("redocore session %s starting, redo-dir=%s start-sequence=%d", sessionID, *redoDir, *startSeq)

	checkpoint := redo.NewCheckpointCoordinator(store)
	checkpoint.Configure(cfg.ShowIncompleteTransactions, func(e *redo.DecoderError) {
		rlog.Warnf(int(e.Code), "%s", e.Error())
	})
	if cp, ok, err := store.LoadCheckpoint(); err != nil {
		rlog.Warnf(0, "loading prior checkpoint: %v", err)
	} else if ok {
		rlog.Infof("resuming from checkpoint: sequence=%d watermark=%s", cp.Sequence, cp.ScnWatermark)
		if cp.Sequence != 0 {
			*startSeq = uint(cp.Sequence)
		}
	}

	lobBuf := redo.NewLobReassembler()
	if *lobSpillDir != "" {
		lobBuf = redo.NewLobReassemblerWithSpill(*lobSpillDir, int64(*lobSpillMB)<<20)
	}

	builder := newLoggingBuilder()
	emitter := redo.NewEmitter(builder, cfg.MaxMessageMB, nil)
	emitter.SetLobReassembler(lobBuf)

	var dump *redo.DumpWriter
	var dumpBuf *bufferedDump
	if cfg.DumpRedoLog != redo.DumpNone {
		dumpBuf = newBufferedDump()
		dump = redo.NewDumpWriter(dumpBuf, cfg.DumpRedoLog)
	}

	pipeline := &redo.Pipeline{
		TxBuffer:   redo.NewTxBuffer(),
		Checkpoint: checkpoint,
		Emitter:    emitter,
		LobBuf:     lobBuf,
		Dict:       dict,
		Config:     &cfg,
		Dump:       dump,
	}
	pipeline.TxBuffer.OnWarning(func(e *redo.DecoderError) {
		rlog.Warnf(int(e.Code), "%s", e.Error())
	})

	onexit.Register(func() {
		rlog.Infof("flushing checkpoint before exit")
		if err := checkpoint.Persist(0, redo.ScnNone, 0); err != nil {
			rlog.Errorf(0, "final checkpoint flush: %v", err)
		}
	})

	if *statusAddr != "" {
		go serveStatus(*statusAddr, builder, dumpBuf)
	}

	if *repl {
		runRepl(pipeline, dumpBuf)
		return
	}

	reader, err := openTailReader(*redoDir, uint32(*startSeq))
	if err != nil {
		rlog.Errorf(0, "%v", err)
		os.Exit(1)
	}
	defer reader.Close()

	framer := redo.NewRecordFramer(reader, uint32(*startSeq), &cfg)
	pipeline.Framer = framer

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := pipeline.Run(ctx); err != nil {
		rlog.Errorf(0, "pipeline stopped: %v", err)
		os.Exit(1)
	}
	rlog.Infof("redocore session %s finished, counters: %+v", sessionID, pipeline.Counters)
}

// openTailReader finds the sequence file for startSeq under dir and opens
// it through the Byte Reader. Oracle redo file names vary by platform;
// this accepts any file in dir whose name contains the sequence number,
// the loosest match that still lets an operator point this at a real
// archive/online destination without renaming anything.
func openTailReader(dir string, startSeq uint32) (*redo.ByteReader, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read redo-dir %q: %w", dir, err)
	}
	needle := strconv.FormatUint(uint64(startSeq), 10)
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		if strings.Contains(ent.Name(), needle) {
			return redo.OpenRedoFile(dir + string(os.PathSeparator) + ent.Name())
		}
	}
	return nil, fmt.Errorf("no redo file for sequence %d found under %q", startSeq, dir)
}

func openCheckpointStore(kind, path, bucket, region, endpoint string) (redo.CheckpointStore, error) {
	switch strings.ToLower(kind) {
	case "file", "":
		return checkpointstore.NewFileStore(path), nil
	case "s3":
		if bucket == "" {
			return nil, fmt.Errorf("checkpoint-store=s3 requires -s3-bucket")
		}
		return &checkpointstore.S3Store{
			Region:         region,
			Endpoint:       endpoint,
			Bucket:         bucket,
			Key:            path,
			ForcePathStyle: endpoint != "",
		}, nil
	case "ceph":
		return &checkpointstore.CephStore{
			ObjectName: path,
		}, nil
	default:
		return nil, fmt.Errorf("unknown checkpoint-store %q", kind)
	}
}

// loggingBuilder is the default Builder: it logs every row/DDL event
// through rlog and also mirrors the same key=value line to anyone attached to the
// status websocket. A real integration swaps this for one that writes to
// its own message bus; this one exists so redocore is runnable standalone,
// the same role server-node-golang/main.go's bare fmt.Print banner plays
// before any real client connects.
type loggingBuilder struct {
	mu   sync.Mutex
	subs map[*websocket.Conn]struct{}
}

func newLoggingBuilder() *loggingBuilder {
	return &loggingBuilder{subs: make(map[*websocket.Conn]struct{})}
}

func (b *loggingBuilder) broadcast(line string) {
	rlog.Infof("%s", line)
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.subs {
		if err := c.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			delete(b.subs, c)
			c.Close()
		}
	}
}

func (b *loggingBuilder) ProcessBegin(xid redo.Xid, scn redo.Scn) error {
	b.broadcast(fmt.Sprintf("begin xid=%s scn=%s", xid, scn))
	return nil
}

func (b *loggingBuilder) ProcessInsert(xid redo.Xid, obj, dataObj, bdba uint32, slot uint16, cols []redo.ColumnImage, meta *redo.TableMeta) error {
	b.broadcast(fmt.Sprintf("insert xid=%s obj=%d table=%s cols=%d", xid, obj, tableName(meta), len(cols)))
	return nil
}

func (b *loggingBuilder) ProcessUpdate(xid redo.Xid, obj, dataObj, bdba uint32, slot uint16, cols []redo.ColumnImage, supp *redo.SuppLog, meta *redo.TableMeta) error {
	b.broadcast(fmt.Sprintf("update xid=%s obj=%d table=%s cols=%d", xid, obj, tableName(meta), len(cols)))
	return nil
}

func (b *loggingBuilder) ProcessDelete(xid redo.Xid, obj, dataObj, bdba uint32, slot uint16, supp *redo.SuppLog, meta *redo.TableMeta) error {
	b.broadcast(fmt.Sprintf("delete xid=%s obj=%d table=%s", xid, obj, tableName(meta)))
	return nil
}

func (b *loggingBuilder) ProcessDDL(xid redo.Xid, obj, dataObj uint32, ddlType uint16, meta *redo.TableMeta) error {
	b.broadcast(fmt.Sprintf("ddl xid=%s obj=%d table=%s type=%d", xid, obj, tableName(meta), ddlType))
	return nil
}

func (b *loggingBuilder) ProcessInsertMultiple(xid redo.Xid, obj, dataObj uint32, rows []redo.Change, meta *redo.TableMeta) error {
	b.broadcast(fmt.Sprintf("insert-multi xid=%s obj=%d table=%s rows=%d", xid, obj, tableName(meta), len(rows)))
	return nil
}

func (b *loggingBuilder) ProcessDeleteMultiple(xid redo.Xid, obj, dataObj uint32, rows []redo.Change, meta *redo.TableMeta) error {
	b.broadcast(fmt.Sprintf("delete-multi xid=%s obj=%d table=%s rows=%d", xid, obj, tableName(meta), len(rows)))
	return nil
}

// tableName renders a resolved TableMeta for log lines, falling back to
// "?" when the Dictionary had no entry for the object (schemaless mode,
// or a genuinely unknown object id).
func tableName(meta *redo.TableMeta) string {
	if meta == nil {
		return "?"
	}
	return meta.Schema + "." + meta.Name
}

func (b *loggingBuilder) ProcessCommit(xid redo.Xid, scn redo.Scn) error {
	b.broadcast(fmt.Sprintf("commit xid=%s scn=%s", xid, scn))
	return nil
}

func (b *loggingBuilder) ProcessCheckpoint(cp redo.Checkpoint) error {
	b.broadcast(fmt.Sprintf("checkpoint sequence=%d watermark=%s", cp.Sequence, cp.ScnWatermark))
	return nil
}

// bufferedDump is an io.Writer the DumpWriter renders into, retained so
// the REPL and the status endpoint can both show the most recent dump
// text without the pipeline having to know either exists.
type bufferedDump struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func newBufferedDump() *bufferedDump { return &bufferedDump{} }

func (d *bufferedDump) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buf.Write(p)
}

func (d *bufferedDump) Tail(maxBytes int) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.buf.String()
	if len(s) > maxBytes {
		return s[len(s)-maxBytes:]
	}
	return s
}

// serveStatus runs a minimal HTTP+websocket endpoint for live status,
// grounded on scm/network.go's HTTPServe/websocket upgrade handler: one
// upgrader, one read-ignoring send loop per connection, removed from the
// builder's subscriber set on any read error or close frame.
func serveStatus(addr string, b *loggingBuilder, dump *bufferedDump) {
	upgrader := websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}
	upgrader.CheckOrigin = func(r *http.Request) bool { return true }

	mux := http.NewServeMux()
	mux.HandleFunc("/dump", func(w http.ResponseWriter, r *http.Request) {
		if dump == nil {
			http.Error(w, "dump-redo-log is disabled", http.StatusNotFound)
			return
		}
		io.WriteString(w, dump.Tail(64<<10))
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			rlog.Warnf(0, "status websocket upgrade: %v", err)
			return
		}
		b.mu.Lock()
		b.subs[conn] = struct{}{}
		b.mu.Unlock()
		defer func() {
			if r := recover(); r != nil {
				rlog.Warnf(0, "status websocket handler panic: %v", r)
			}
			b.mu.Lock()
			delete(b.subs, conn)
			b.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if _, ok := err.(*websocket.CloseError); ok {
					return
				}
				return
			}
		}
	})
	rlog.Infof("status endpoint listening on %s (/status websocket, /dump tail)", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		rlog.Errorf(0, "status endpoint stopped: %v", err)
	}
}

const (
	replPrompt     = "\033[32mredo>\033[0m "
	replContPrompt = "\033[32m ...>\033[0m "
)

// runRepl starts an interactive shell for inspecting the most recent
// dump output and pipeline counters without tailing a live redo stream —
// grounded on scm/prompt.go's Repl(): chzyer/readline with a history file,
// an anti-panic recover wrapper around each evaluated line, and a
// continuation prompt, generalized here from "evaluate Scheme" to
// "run one diagnostic command".
func runRepl(p *redo.Pipeline, dump *bufferedDump) {
	l, err := readline.NewEx(&readline.Config{
		Prompt:            replPrompt,
		HistoryFile:       ".redocore-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		rlog.Errorf(0, "readline init: %v", err)
		return
	}
	defer l.Close()
	l.CaptureExitSignal()

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			break
		} else if err != nil {
			rlog.Errorf(0, "readline: %v", err)
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		runReplCommand(l, line, p, dump)
	}
}

func runReplCommand(l *readline.Instance, line string, p *redo.Pipeline, dump *bufferedDump) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Println("panic:", r, string(debug.Stack()))
		}
	}()
	switch {
	case line == "dump":
		if dump == nil {
			fmt.Println("dump-redo-log is disabled for this session")
			return
		}
		fmt.Print(dump.Tail(32 << 10))
	case line == "counters":
		fmt.Printf("%+v\n", p.Counters)
	case line == "watermark":
		fmt.Println(p.Checkpoint.Watermark())
	case line == "active":
		fmt.Println(p.TxBuffer.ActiveCount())
	case line == "help":
		fmt.Println("commands: dump, counters, watermark, active, help, exit")
	case line == "exit" || line == "quit":
		os.Exit(0)
	default:
		fmt.Printf("unknown command %q, try \"help\"\n", line)
	}
}
