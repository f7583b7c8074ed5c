// Command bufdebug is a buffer-pool introspection tool: a readline REPL
// for pinning/unpinning pages by hand and inspecting frame state, plus a
// read-only HTTP endpoint for the same stats. It is explicitly not a SQL
// shell — there is no parser, no query execution, just direct calls
// against bufpool.Pool.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/minirel-go/minirel/bufpool"
	"github.com/minirel-go/minirel/config"
	"github.com/minirel-go/minirel/pagefile"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults baked in if omitted)")
	httpAddr := flag.String("http", "", "also serve read-only stats over HTTP at this address, e.g. 127.0.0.1:7890")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bufdebug: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	file, err := pagefile.OpenSize(cfg.Storage.DataFile, cfg.Pool.PageSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bufdebug: open data file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	pool, err := bufpool.NewSize(cfg.Pool.NFrames, cfg.Pool.PageSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bufdebug: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if addr := *httpAddr; addr != "" {
		go serveStats(addr, pool)
	}

	runREPL(pool, file)
}

func serveStats(addr string, pool *bufpool.Pool) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pool.Stats())
	})
	r.Get("/frames", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(pool.PrintSelf()))
	})

	slog.Info("bufdebug: stats endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		slog.Error("bufdebug: stats endpoint stopped", "err", err)
	}
}

const helpText = `verbs:
  stat              show pool-wide counters
  dump              show every frame's state
  pin <page>        pin <page>, printing its first bytes
  unpin <page> [d]  unpin <page>; pass d to mark it dirty
  help              show this text
  quit | exit       quit
`

func runREPL(pool *bufpool.Pool, file *pagefile.File) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "bufdebug> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "bufdebug: readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Println("bufdebug: type 'help' for the verb list")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			fmt.Println("^C")
			continue
		}
		if err != nil {
			return
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "quit", "exit":
			return
		case "help":
			fmt.Print(helpText)
		case "stat":
			fmt.Println(pool.Stats().String())
		case "dump":
			fmt.Print(pool.PrintSelf())
		case "pin":
			handlePin(pool, file, fields)
		case "unpin":
			handleUnpin(pool, file, fields)
		default:
			fmt.Printf("unknown verb %q; type 'help'\n", fields[0])
		}
	}
}

func handlePin(pool *bufpool.Pool, file *pagefile.File, fields []string) {
	if len(fields) != 2 {
		fmt.Println("usage: pin <page>")
		return
	}
	pageNo, err := parsePageNo(fields[1])
	if err != nil {
		fmt.Println(err)
		return
	}
	buf, err := pool.ReadPage(file, pageNo)
	if err != nil {
		fmt.Printf("pin failed: %v\n", err)
		return
	}
	n := len(buf)
	if n > 32 {
		n = 32
	}
	fmt.Printf("pinned page %d, first bytes: %x\n", pageNo, buf[:n])
}

func handleUnpin(pool *bufpool.Pool, file *pagefile.File, fields []string) {
	if len(fields) < 2 || len(fields) > 3 {
		fmt.Println("usage: unpin <page> [d]")
		return
	}
	pageNo, err := parsePageNo(fields[1])
	if err != nil {
		fmt.Println(err)
		return
	}
	dirty := len(fields) == 3 && fields[2] == "d"
	if err := pool.UnpinPage(file, pageNo, dirty); err != nil {
		fmt.Printf("unpin failed: %v\n", err)
		return
	}
	fmt.Printf("unpinned page %d (dirty=%v)\n", pageNo, dirty)
}

func parsePageNo(s string) (pagefile.PageNo, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad page number %q: %w", s, err)
	}
	return pagefile.PageNo(v), nil
}
