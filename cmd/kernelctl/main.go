// kernelctl is an interactive REPL that drives a kernel.Runtime's Worker and
// ThreadWorker directly, in process — no server involved. Every command line
// is dispatched onto the ThreadWorker's mailbox exactly the way cmd/kernelsrv
// dispatches a connection's command, so interrupt and stop exercise the
// same Worker.Call / ThreadWorker.Interrupt / ThreadWorker.Stop surface a
// remote client would.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"

	"github.com/chzyer/readline"
	"github.com/spf13/pflag"

	"github.com/tuannm99/novakernel/internal/config"
	"github.com/tuannm99/novakernel/internal/slab"
	"github.com/tuannm99/novakernel/internal/threadworker"
	"github.com/tuannm99/novakernel/internal/worker"
	"github.com/tuannm99/novakernel/pkg/kernel"
	"github.com/tuannm99/novakernel/pkg/util"
)

// printHistory shows the last n entries of the history file readline itself
// maintains at path (via readline.Config.HistoryFile), rather than keeping a
// second, parallel copy of the same log in process.
func printHistory(path string, n int) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			lines = append(lines, s)
		}
	}

	start := 0
	if n > 0 && len(lines) > n {
		start = len(lines) - n
	}
	for i := start; i < len(lines); i++ {
		fmt.Printf("%5d  %s\n", i+1, lines[i])
	}
}

func isMetaCommand(line string) bool {
	return strings.HasPrefix(line, "\\") || line == "quit" || line == "exit"
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".kernelctl_history"
	}
	return filepath.Join(home, ".kernelctl_history")
}

// session holds everything one kernelctl run drives: a Runtime, the single
// Worker/ThreadWorker every command dispatches through, a slab caller token,
// and the live allocation handle table.
type session struct {
	rt   *kernel.Runtime
	w    *worker.Worker
	tw   *threadworker.ThreadWorker
	tok  slab.CallerToken
	live map[int]unsafe.Pointer
	next int
}

func newSession(cfg *config.KernelConfig, strategy kernel.Strategy) *session {
	rt := kernel.New(cfg)
	w := rt.NewWorker("kernelctl")
	tw := rt.NewThreadWorker(w, strategy)
	tw.Start(nil, nil, nil)

	s := &session{
		rt:   rt,
		w:    w,
		tok:  rt.SlabToken(),
		live: make(map[int]unsafe.Pointer),
	}
	s.tw = tw
	return s
}

func main() {
	var (
		histPath  string
		histMax   int
		exception bool
		cfgPath   string
	)
	pflag.StringVar(&histPath, "history", defaultHistoryPath(), "history file path")
	pflag.IntVar(&histMax, "history-max", 2000, "max history lines loaded into memory")
	pflag.BoolVar(&exception, "exception", false, "use ExceptionBased interruption instead of PollingBased")
	pflag.StringVar(&cfgPath, "config", "", "path to kernel yaml config (optional)")
	pflag.Parse()

	cfg := config.Default()
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	strategy := kernel.PollingBased
	if exception {
		strategy = kernel.ExceptionBased
	}

	sess := newSession(cfg, strategy)
	defer util.CloseLogged("runtime", sess.rt)
	defer sess.tw.Stop(true)
	defer sess.rt.RetireSlabToken(sess.tok)

	if histPath != "" {
		if err := os.MkdirAll(filepath.Dir(histPath), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "history dir: %v\n", err)
			os.Exit(1)
		}
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "kernel> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		HistoryFile:     histPath,
		HistoryLimit:    histMax,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "readline: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = rl.Close() }()

	fmt.Println("novakernel control shell")
	fmt.Println("type \\help for commands")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			fmt.Println("^C")
			continue
		}
		if err != nil {
			fmt.Println()
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if isMetaCommand(line) {
			switch line {
			case "\\q", "quit", "exit":
				return
			case "\\help":
				printHelp()
			case "\\history":
				printHistory(histPath, 50)
			default:
				fmt.Printf("unknown command: %s\n", line)
			}
			continue
		}

		out := sess.dispatch(strings.Fields(line))
		fmt.Println(out)
	}
}

func printHelp() {
	fmt.Println(`commands:
  alloc <bytes>      allocate bytes from the shared slab, print a handle
  free <handle>       release a previously allocated handle
  stat                 print page pool / mailbox status
  interrupt            interrupt the thread worker's idle wait
  stop                  stop the thread worker (does not wait for it to exit)

meta:
  \history            print command history
  \help               show this text
  \q | quit | exit     quit`)
}

// dispatch runs the command on the ThreadWorker's own goroutine via
// Worker.Call, serializing it against any idle work the same way a
// kernelsrv connection's commands are serialized against every other
// connection.
func (s *session) dispatch(fields []string) string {
	if len(fields) == 0 {
		return "ERR empty command"
	}

	reply := make(chan string, 1)
	err := s.w.Call(func() { reply <- s.run(fields) })
	if err != nil {
		return "ERR " + err.Error()
	}
	return <-reply
}

func (s *session) run(fields []string) string {
	switch strings.ToLower(fields[0]) {
	case "alloc":
		if len(fields) != 2 {
			return "ERR usage: alloc <bytes>"
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return "ERR " + err.Error()
		}
		p, err := s.rt.Allocate(s.tok, n)
		if err != nil {
			return "ERR " + err.Error()
		}
		h := s.next
		s.next++
		s.live[h] = p
		return fmt.Sprintf("OK handle=%d", h)

	case "free":
		if len(fields) != 2 {
			return "ERR usage: free <handle>"
		}
		h, err := strconv.Atoi(fields[1])
		if err != nil {
			return "ERR " + err.Error()
		}
		p, ok := s.live[h]
		if !ok {
			return "ERR unknown handle"
		}
		delete(s.live, h)
		s.rt.Deallocate(p)
		return "OK"

	case "stat":
		return fmt.Sprintf("page_bytes_available=%d mailbox_depth=%d live_allocations=%d",
			s.rt.PageBytesAvailable(), s.w.Len(), len(s.live))

	case "interrupt":
		s.tw.Interrupt()
		return "OK"

	case "stop":
		s.tw.Stop(false)
		return "OK stopping"

	default:
		return "ERR unknown command: " + fields[0]
	}
}
