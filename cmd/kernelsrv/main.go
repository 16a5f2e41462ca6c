// kernelsrv is a demo process that boots a kernel.Runtime and exposes it
// over a tiny line-based TCP protocol: ALLOC/FREE/STAT/QUIT. Every command
// is dispatched onto a single ThreadWorker's mailbox, so the demo doubles as
// a live example of Worker.Call's cross-goroutine FIFO ordering.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"unsafe"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/tuannm99/novakernel/internal/config"
	"github.com/tuannm99/novakernel/internal/slab"
	"github.com/tuannm99/novakernel/internal/worker"
	"github.com/tuannm99/novakernel/pkg/kernel"
	"github.com/tuannm99/novakernel/pkg/util"
)

func main() {
	var cfgPath string
	pflag.StringVar(&cfgPath, "config", "", "path to kernel yaml config (optional)")
	pflag.Parse()

	cfg := config.Default()
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}

	addr := os.Getenv("NOVAKERNEL_ADDR")
	if addr == "" {
		addr = cfg.Server.Addr
	}

	if err := run(addr, cfg); err != nil {
		log.Fatalf("kernelsrv: %v", err)
	}
}

// status is the point-in-time snapshot cmd/kernelsrv's STAT command
// marshals as YAML.
type status struct {
	PageBytesAvailable int `yaml:"page_bytes_available"`
	MailboxDepth       int `yaml:"mailbox_depth"`
}

func run(addr string, cfg *config.KernelConfig) error {
	rt := kernel.New(cfg)
	defer util.CloseLogged("runtime", rt)

	w := rt.NewWorker("kernelsrv")
	tw := rt.NewThreadWorker(w, kernel.PollingBased)
	tw.Start(nil, nil, nil)
	defer tw.Stop(true)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer func() { _ = ln.Close() }()

	log.Printf("kernelsrv listening on %s", addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		tw.Stop(false)
		_ = ln.Close()
	}()

	var tokMu sync.Mutex
	nextConnID := 0

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

		tokMu.Lock()
		nextConnID++
		connID := nextConnID
		tokMu.Unlock()

		go handleConn(ctx, conn, rt, w, connID)
	}
}

func handleConn(ctx context.Context, conn net.Conn, rt *kernel.Runtime, w *worker.Worker, connID int) {
	defer func() { _ = conn.Close() }()

	log.Printf("conn %d: accepted from %s", connID, conn.RemoteAddr())
	defer log.Printf("conn %d: closed", connID)

	tok := rt.SlabToken()
	defer rt.RetireSlabToken(tok)

	live := make(map[int]unsafe.Pointer)
	nextHandle := 0

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)

		reply := make(chan string, 1)
		err := w.Call(func() {
			reply <- dispatch(rt, w, tok, live, &nextHandle, fields)
		})
		if err != nil {
			fmt.Fprintf(conn, "ERR %v\n", err)
			return
		}

		fmt.Fprintln(conn, <-reply)

		if len(fields) > 0 && strings.EqualFold(fields[0], "QUIT") {
			return
		}
	}
}

// dispatch runs on the ThreadWorker's owning goroutine — every command from
// every connection is serialized through the same mailbox.
func dispatch(rt *kernel.Runtime, w *worker.Worker, tok slab.CallerToken, live map[int]unsafe.Pointer, nextHandle *int, fields []string) string {
	if len(fields) == 0 {
		return "ERR empty command"
	}

	switch strings.ToUpper(fields[0]) {
	case "ALLOC":
		if len(fields) != 2 {
			return "ERR usage: ALLOC <bytes>"
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return "ERR " + err.Error()
		}
		p, err := rt.Allocate(tok, n)
		if err != nil {
			return "ERR " + err.Error()
		}
		h := *nextHandle
		*nextHandle++
		live[h] = p
		return fmt.Sprintf("OK handle=%d", h)

	case "FREE":
		if len(fields) != 2 {
			return "ERR usage: FREE <handle>"
		}
		h, err := strconv.Atoi(fields[1])
		if err != nil {
			return "ERR " + err.Error()
		}
		p, ok := live[h]
		if !ok {
			return "ERR unknown handle"
		}
		delete(live, h)
		rt.Deallocate(p)
		return "OK"

	case "STAT":
		st := status{
			PageBytesAvailable: rt.PageBytesAvailable(),
			MailboxDepth:       w.Len(),
		}
		out, err := yaml.Marshal(st)
		if err != nil {
			return "ERR " + err.Error()
		}
		return "OK\n" + string(out)

	case "QUIT":
		return "OK bye"

	default:
		return "ERR unknown command: " + fields[0]
	}
}
