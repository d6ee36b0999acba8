// pkg/cli/repl.go
// Package cli implements an interactive shell that spawns processes on
// the memory manager and inspects its frames, swap and trace.
package cli

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"vmkern/pkg/exefile"
	"vmkern/pkg/proc"
	"vmkern/pkg/trace"
	"vmkern/pkg/vm"
)

const (
	// DefaultStringMax bounds .string reads
	DefaultStringMax = 256

	// MaxReadLen bounds .read dumps
	MaxReadLen = 1 << 16
)

var (
	ErrUsage      = errors.New("usage")
	ErrNoSuchProc = errors.New("no such process")
)

// Config wires the REPL to a running kernel
type Config struct {
	Manager    *vm.Manager
	Trace      *trace.Recorder    // Optional; .trace reports it is disabled when nil
	ImageCache *exefile.PageCache // Optional; shared by every spawned image
	StackPages int
}

type process struct {
	*proc.Process
	image *exefile.Reader
}

// REPL provides a Read-Eval-Print Loop over the memory manager.
type REPL struct {
	cfg   Config
	shell *Shell

	output    io.Writer
	errOutput io.Writer

	procs   map[vm.ID]*process
	nextPID vm.ID

	exitRequested bool
}

// NewREPL creates a REPL reading from stdin.
func NewREPL(cfg Config, output, errOutput io.Writer) *REPL {
	return NewREPLWithInput(cfg, os.Stdin, output, errOutput)
}

// NewREPLWithInput creates a REPL with custom input/output streams.
// This is useful for testing or scripted operation.
func NewREPLWithInput(cfg Config, input io.Reader, output, errOutput io.Writer) *REPL {
	if errOutput == nil {
		errOutput = output
	}
	return &REPL{
		cfg:       cfg,
		shell:     NewShell(input, output),
		output:    output,
		errOutput: errOutput,
		procs:     make(map[vm.ID]*process),
		nextPID:   1,
	}
}

// Close kills every process started from the shell. The manager itself
// belongs to the caller.
func (r *REPL) Close() error {
	var firstErr error
	for _, pid := range r.pids() {
		if err := r.kill(pid); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Run reads and executes commands until EOF or .exit.
func (r *REPL) Run() {
	r.exitRequested = false

	fmt.Fprintf(r.output, "vmkern: %d frames of %d bytes\n", r.cfg.Manager.Frames(), r.cfg.Manager.PageSize())
	fmt.Fprintln(r.output, "Enter \".help\" for usage hints.")

	for !r.exitRequested {
		cmd, eof := r.shell.ReadCommand()
		if eof && cmd == "" {
			fmt.Fprintln(r.output)
			break
		}

		if err := r.Execute(cmd); err != nil {
			r.printError(err)
		}

		if eof {
			break
		}
	}
}

// Execute runs one command line.
func (r *REPL) Execute(line string) error {
	args, err := SplitArgs(line)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	if !strings.HasPrefix(args[0], ".") {
		return fmt.Errorf("unknown input %q: commands start with '.'", args[0])
	}

	switch strings.ToLower(args[0]) {
	case ".exit", ".quit":
		r.exitRequested = true
		return nil
	case ".help":
		r.printHelp()
		return nil
	case ".spawn":
		return r.cmdSpawn(args[1:])
	case ".read":
		return r.cmdRead(args[1:])
	case ".write":
		return r.cmdWrite(args[1:])
	case ".string":
		return r.cmdString(args[1:])
	case ".args":
		return r.cmdArgs(args[1:])
	case ".kill":
		return r.cmdKill(args[1:])
	case ".ps":
		r.showProcesses()
		return nil
	case ".frames":
		r.showFrames()
		return nil
	case ".swap":
		r.showSwap()
		return nil
	case ".stats":
		r.showStats()
		return nil
	case ".check":
		return r.cmdCheck()
	case ".trace":
		return r.cmdTrace(args[1:])
	case ".history":
		for i, cmd := range r.shell.History() {
			fmt.Fprintf(r.output, "%4d  %s\n", i+1, cmd)
		}
		return nil
	default:
		return fmt.Errorf("unknown command: %s (use \".help\" for usage hints)", args[0])
	}
}

// printHelp displays help information.
func (r *REPL) printHelp() {
	help := `
.spawn PATH [paged|identity] [ARGS...]  Load an executable image as a new process
.read PID ADDR LEN                      Hex dump LEN bytes of process memory
.write PID ADDR TEXT                    Write TEXT into process memory
.string PID ADDR [MAX]                  Read a NUL-terminated string
.args PID                               Show the argument vector
.kill PID                               Release a process's memory
.ps                                     List processes
.frames                                 Show the physical frame table
.swap                                   Show swap usage
.stats                                  Show paging counters
.check                                  Verify page table consistency
.trace [N]                              Summarise the fault trace
.history                                List commands entered so far
.help                                   Show this help message
.exit                                   Exit this program

Addresses and lengths accept 0x prefixes.
`
	fmt.Fprintln(r.output, help)
}

func (r *REPL) cmdSpawn(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: .spawn PATH [paged|identity] [ARGS...]", ErrUsage)
	}
	path := args[0]
	rest := args[1:]

	kind := vm.DemandPaged
	if len(rest) > 0 {
		if k, err := vm.ParseKind(rest[0]); err == nil && rest[0] != "" {
			kind = k
			rest = rest[1:]
		}
	}

	img, err := exefile.Open(path)
	if err != nil {
		return err
	}
	if r.cfg.ImageCache != nil {
		img.SetCache(r.cfg.ImageCache)
	}

	name := filepath.Base(path)
	argv := append([]string{name}, rest...)
	pid := r.allocPID()
	p, err := proc.Spawn(r.cfg.Manager, pid, name, img, argv, proc.Options{Kind: kind, StackPages: r.cfg.StackPages})
	if err != nil {
		img.Close()
		return err
	}

	r.procs[pid] = &process{Process: p, image: img}
	fmt.Fprintf(r.output, "pid %d: %s (%s, %d pages, entry %#x, sp %#x)\n",
		pid, name, kind, p.Layout().NumPages, p.EntryPoint(), p.InitialSP())
	return nil
}

func (r *REPL) allocPID() vm.ID {
	for {
		pid := r.nextPID
		r.nextPID++
		if _, used := r.cfg.Manager.Space(pid); !used {
			return pid
		}
	}
}

func (r *REPL) cmdRead(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("%w: .read PID ADDR LEN", ErrUsage)
	}
	p, err := r.lookup(args[0])
	if err != nil {
		return err
	}
	addr, err := parseNumber(args[1])
	if err != nil {
		return err
	}
	length, err := parseNumber(args[2])
	if err != nil {
		return err
	}
	if length > MaxReadLen {
		return fmt.Errorf("read length %d exceeds %d", length, MaxReadLen)
	}

	buf := make([]byte, length)
	n, err := p.ReadMemory(addr, buf)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.output, "read %d bytes\n", n)
	if n > 0 {
		fmt.Fprint(r.output, hex.Dump(buf[:n]))
	}
	return nil
}

func (r *REPL) cmdWrite(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("%w: .write PID ADDR TEXT", ErrUsage)
	}
	p, err := r.lookup(args[0])
	if err != nil {
		return err
	}
	addr, err := parseNumber(args[1])
	if err != nil {
		return err
	}

	n, err := p.WriteMemory(addr, []byte(args[2]))
	if err != nil {
		return err
	}
	fmt.Fprintf(r.output, "wrote %d bytes\n", n)
	return nil
}

func (r *REPL) cmdString(args []string) error {
	if len(args) != 2 && len(args) != 3 {
		return fmt.Errorf("%w: .string PID ADDR [MAX]", ErrUsage)
	}
	p, err := r.lookup(args[0])
	if err != nil {
		return err
	}
	addr, err := parseNumber(args[1])
	if err != nil {
		return err
	}
	maxLen := DefaultStringMax
	if len(args) == 3 {
		if maxLen, err = parseNumber(args[2]); err != nil {
			return err
		}
	}

	s, ok := p.ReadString(addr, maxLen)
	if !ok {
		fmt.Fprintln(r.output, "(no terminator)")
		return nil
	}
	fmt.Fprintf(r.output, "%q\n", s)
	return nil
}

func (r *REPL) cmdArgs(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: .args PID", ErrUsage)
	}
	p, err := r.lookup(args[0])
	if err != nil {
		return err
	}
	argv, err := p.Args(DefaultStringMax)
	if err != nil {
		return err
	}
	for i, a := range argv {
		fmt.Fprintf(r.output, "argv[%d] = %q\n", i, a)
	}
	return nil
}

func (r *REPL) cmdKill(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: .kill PID", ErrUsage)
	}
	pid, err := parseNumber(args[0])
	if err != nil {
		return err
	}
	if err := r.kill(vm.ID(pid)); err != nil {
		return err
	}
	fmt.Fprintf(r.output, "pid %d released\n", pid)
	return nil
}

func (r *REPL) kill(pid vm.ID) error {
	p, ok := r.procs[pid]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoSuchProc, pid)
	}
	p.Exit()
	delete(r.procs, pid)
	return p.image.Close()
}

func (r *REPL) cmdCheck() error {
	errs := r.cfg.Manager.Verify()
	if len(errs) == 0 {
		fmt.Fprintln(r.output, "ok")
		return nil
	}
	for _, e := range errs {
		fmt.Fprintln(r.errOutput, e.Error())
	}
	return fmt.Errorf("%d integrity errors", len(errs))
}

func (r *REPL) cmdTrace(args []string) error {
	if r.cfg.Trace == nil {
		fmt.Fprintln(r.output, "tracing disabled (set trace_path)")
		return nil
	}
	top := 5
	if len(args) > 0 {
		n, err := parseNumber(args[0])
		if err != nil {
			return err
		}
		top = n
	}

	s, err := r.cfg.Trace.Summary(top)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.output, "faults %d, evictions %d, swap-outs %d\n", s.Faults, s.Evictions, s.SwapOuts)

	sources := make([]string, 0, len(s.BySource))
	for src := range s.BySource {
		sources = append(sources, src)
	}
	sort.Strings(sources)
	for _, src := range sources {
		fmt.Fprintf(r.output, "  %-6s %d\n", src, s.BySource[src])
	}

	if len(s.Hottest) > 0 {
		rows := make([][]string, len(s.Hottest))
		for i, pc := range s.Hottest {
			rows[i] = []string{itoa(int64(pc.Space)), itoa(int64(pc.VPN)), itoa(pc.Faults)}
		}
		r.displayTable([]string{"pid", "vpn", "faults"}, rows)
	}
	return nil
}

func (r *REPL) showProcesses() {
	pids := r.pids()
	if len(pids) == 0 {
		fmt.Fprintln(r.output, "(no processes)")
		return
	}

	rows := make([][]string, 0, len(pids))
	for _, pid := range pids {
		p := r.procs[pid]
		st := p.Space().Stats()
		rows = append(rows, []string{
			itoa(int64(pid)),
			p.Name(),
			p.Space().Kind().String(),
			itoa(int64(p.Space().NumPages())),
			itoa(int64(st.Resident)),
			itoa(int64(st.Swapped)),
			itoa(st.Faults),
			itoa(st.SwapIns),
			itoa(st.SwapOuts),
		})
	}
	r.displayTable([]string{"pid", "name", "kind", "pages", "resident", "swapped", "faults", "swap-in", "swap-out"}, rows)
}

func (r *REPL) showFrames() {
	hand := r.cfg.Manager.ClockHand()
	frames := r.cfg.Manager.FrameTable()

	rows := make([][]string, 0, len(frames))
	for _, f := range frames {
		owner, vpn := "-", "-"
		if !f.Free && f.VPN >= 0 {
			owner = itoa(int64(f.Owner))
			vpn = itoa(int64(f.VPN))
		}
		var flags strings.Builder
		for _, fl := range []struct {
			set bool
			c   byte
		}{{f.Free, 'F'}, {f.Used, 'U'}, {f.Dirty, 'D'}, {f.Wired, 'W'}, {f.Pinned > 0, 'P'}} {
			if fl.set {
				flags.WriteByte(fl.c)
			}
		}
		mark := ""
		if f.PFN == hand {
			mark = "<"
		}
		rows = append(rows, []string{itoa(int64(f.PFN)), owner, vpn, flags.String(), mark})
	}
	r.displayTable([]string{"pfn", "pid", "vpn", "flags", "hand"}, rows)
}

func (r *REPL) showSwap() {
	sw := r.cfg.Manager.Stats().Swap
	fmt.Fprintf(r.output, "slots %d, free %d, in use %d, reads %d, writes %d\n",
		sw.Slots, sw.FreeSlots, sw.Slots-sw.FreeSlots, sw.Reads, sw.Writes)
	for _, run := range sw.FreeRuns {
		fmt.Fprintf(r.output, "  free %d..%d\n", run.Start, int(run.Start)+run.Length-1)
	}
}

func (r *REPL) showStats() {
	st := r.cfg.Manager.Stats()
	rows := [][]string{
		{"frames", itoa(int64(st.Frames))},
		{"free frames", itoa(int64(st.FreeFrames))},
		{"pinned frames", itoa(int64(st.PinnedFrames))},
		{"address spaces", itoa(int64(st.Spaces))},
		{"faults", itoa(st.Faults)},
		{"evictions", itoa(st.Evictions)},
		{"swap-outs", itoa(st.SwapOuts)},
		{"swap-ins", itoa(st.SwapIns)},
		{"image loads", itoa(st.ImageLoads)},
		{"zero fills", itoa(st.ZeroFills)},
	}
	if r.cfg.ImageCache != nil {
		cs := r.cfg.ImageCache.Stats()
		rows = append(rows,
			[]string{"image cache hits", itoa(cs.Hits)},
			[]string{"image cache misses", itoa(cs.Misses)})
	}
	r.displayTable([]string{"counter", "value"}, rows)
}

func (r *REPL) lookup(arg string) (*process, error) {
	pid, err := parseNumber(arg)
	if err != nil {
		return nil, err
	}
	p, ok := r.procs[vm.ID(pid)]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchProc, pid)
	}
	return p, nil
}

func (r *REPL) pids() []vm.ID {
	pids := make([]vm.ID, 0, len(r.procs))
	for pid := range r.procs {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	return pids
}

// displayTable formats rows as an ASCII table.
func (r *REPL) displayTable(columns []string, rows [][]string) {
	widths := make([]int, len(columns))
	for i, col := range columns {
		widths[i] = len(col)
	}
	for _, row := range rows {
		for i, val := range row {
			if i < len(widths) && len(val) > widths[i] {
				widths[i] = len(val)
			}
		}
	}

	r.printSeparator(widths)
	r.printRow(columns, widths)
	r.printSeparator(widths)
	for _, row := range rows {
		r.printRow(row, widths)
	}
	r.printSeparator(widths)
}

// printSeparator prints a horizontal line separator.
func (r *REPL) printSeparator(widths []int) {
	fmt.Fprint(r.output, "+")
	for _, w := range widths {
		fmt.Fprint(r.output, strings.Repeat("-", w+2))
		fmt.Fprint(r.output, "+")
	}
	fmt.Fprintln(r.output)
}

// printRow prints a row of string values.
func (r *REPL) printRow(values []string, widths []int) {
	fmt.Fprint(r.output, "|")
	for i, val := range values {
		fmt.Fprintf(r.output, " %-*s |", widths[i], val)
	}
	fmt.Fprintln(r.output)
}

// printError prints an error message to the error output.
func (r *REPL) printError(err error) {
	fmt.Fprintf(r.errOutput, "Error: %v\n", err)
}

func parseNumber(s string) (int, error) {
	n, err := strconv.ParseInt(s, 0, 32)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("bad number %q", s)
	}
	return int(n), nil
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
