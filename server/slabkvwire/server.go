package slabkvwire

import (
	"context"
	"fmt"
	"log"
	"net"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tuannm99/slabkv/internal/slab"
)

// ServerConfig configures Run.
type ServerConfig struct {
	Addr   string
	SysCtx slab.SysContext
}

// Run opens a single Database and serves it over addr until ctx (SIGINT or
// SIGTERM) cancels it. Every connection shares the one Database instance,
// serialized by a mutex — the store itself is never safe for concurrent
// access, so the network edge is where that serialization has to happen.
func Run(sc ServerConfig) error {
	db, err := slab.Open(sc.SysCtx)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer db.Close()

	ln, err := net.Listen("tcp", sc.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer func() { _ = ln.Close() }()

	log.Printf("slabkvd listening on %s", sc.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var mu sync.Mutex
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			log.Printf("accept: %v", err)
			continue
		}
		go handleConn(ctx, conn, db, &mu)
	}
}

func handleConn(ctx context.Context, conn net.Conn, db *slab.Database, mu *sync.Mutex) {
	defer func() { _ = conn.Close() }()

	// No global deadline; per-request deadlines can be layered on later.
	_ = conn.SetDeadline(time.Time{})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var req Request
		if err := ReadFrame(conn, &req); err != nil {
			// Client closed or sent a malformed frame.
			return
		}

		resp := dispatch(db, mu, req)
		if err := WriteFrame(conn, resp); err != nil {
			return
		}
	}
}

func dispatch(db *slab.Database, mu *sync.Mutex, req Request) Response {
	resp := Response{ID: req.ID}

	mu.Lock()
	defer mu.Unlock()

	switch req.Op {
	case OpAlloc:
		k, err := db.Alloc(req.Flags, req.Value)
		if err != nil {
			resp.Error = err.Error()
			return resp
		}
		resp.Key = k.Uint64()

	case OpFree:
		if err := db.Free(slab.KeyFromUint64(req.Key)); err != nil {
			resp.Error = err.Error()
		}

	case OpGet:
		v, err := db.Get(slab.KeyFromUint64(req.Key))
		if err != nil {
			resp.Error = err.Error()
			return resp
		}
		// Copy out before unlocking: the View's bytes are only valid until
		// the next operation that can extend a bucket.
		resp.Value = append([]byte(nil), v.Bytes()...)
		resp.Flags = v.Flags()
		resp.Bucket = v.Bucket()

	case OpSet:
		if err := db.Set(slab.KeyFromUint64(req.Key), req.Value); err != nil {
			resp.Error = err.Error()
		}

	default:
		resp.Error = fmt.Sprintf("slabkvwire: unknown op %q", req.Op)
	}

	return resp
}
