// Package uci implements the UCI-compatible text protocol front end of
// spec.md section 6, a thin adapter over the engine package's public
// API. It owns no search state of its own, grounded on
// other_examples' herohde-morlock UCI driver and
// easychessanimations-zurichess's command dispatch table, but adapted
// to a single synchronous read loop instead of a channel-driven driver.
package uci

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/crazybeth/crazybeth/engine"
	"github.com/crazybeth/crazybeth/game"
	"github.com/crazybeth/crazybeth/search"
)

// Loop drives one UCI session against eng.
type Loop struct {
	eng  *engine.Engine
	out  *log.Logger
	opts search.Options

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLoop builds a Loop that writes protocol replies to out, seeding its
// local option copy from the engine's current configuration so an early
// "uci" command reports accurate defaults.
func NewLoop(eng *engine.Engine, out io.Writer) *Loop {
	return &Loop{
		eng:  eng,
		out:  log.New(out, "", 0),
		opts: eng.Options(),
	}
}

// Run reads commands from in until "quit" or in is exhausted. Exit codes
// per spec.md section 6: the caller should exit 0 on a normal "quit" and
// nonzero if Run returns a non-nil error from a malformed startup.
func (l *Loop) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if l.dispatch(ctx, line) {
			return nil
		}
	}
	return scanner.Err()
}

// dispatch handles one input line; it returns true when the session
// should terminate (the "quit" command).
func (l *Loop) dispatch(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "uci":
		l.handleUCI()
	case "isready":
		l.handleIsReady(ctx)
	case "ucinewgame":
		l.eng.NewGame()
	case "position":
		l.handlePosition(args)
	case "go":
		l.handleGo(ctx, args)
	case "stop":
		l.handleStop()
	case "setoption":
		l.handleSetOption(args)
	case "quit":
		l.handleStop()
		return true
	default:
		l.out.Printf("info string unknown command %q", cmd)
	}
	return false
}

func (l *Loop) handleUCI() {
	l.out.Printf("id name crazybeth")
	l.out.Printf("id author crazybeth contributors")
	l.printOptions()
	l.out.Printf("uciok")
}

func (l *Loop) printOptions() {
	l.out.Printf("option name Threads type spin default %d min 1 max 512", l.opts.Threads)
	l.out.Printf("option name Batch_Size type spin default %d min 1 max 8192", l.opts.BatchSize)
	l.out.Printf("option name Centi_CPuct_Init type spin default %d min 1 max 99999", int(l.opts.CentiCPuctInit))
	l.out.Printf("option name Move_Overhead type spin default %d min 0 max 5000", l.opts.MoveOverhead)
	l.out.Printf("option name Nodes type spin default %d min 0 max 2147483647", l.opts.Nodes)
	l.out.Printf("option name Max_Search_Depth type spin default %d min 1 max 1000", l.opts.MaxSearchDepth)
	l.out.Printf("option name Centi_Temperature type spin default %d min 0 max 1000", int(l.opts.CentiTemperature))
	l.out.Printf("option name Temperature_Moves type spin default %d min 0 max 1000", l.opts.TemperatureMoves)
	l.out.Printf("option name Use_Raw_Network type check default %v", l.opts.UseRawNetwork)
	l.out.Printf("option name Enhance_Checks type check default %v", l.opts.EnhanceChecks)
	l.out.Printf("option name Enhance_Captures type check default %v", l.opts.EnhanceCaptures)
	l.out.Printf("option name Use_Transposition_Table type check default %v", l.opts.UseTranspositionTable)
}

func (l *Loop) handleIsReady(ctx context.Context) {
	l.eng.IsReady(ctx)
	l.out.Printf("readyok")
}

func (l *Loop) handlePosition(args []string) {
	if len(args) == 0 {
		return
	}
	var fenOrStartpos string
	var rest []string
	if args[0] == "startpos" {
		fenOrStartpos = "startpos"
		rest = args[1:]
	} else if args[0] == "fen" {
		fenFields := args[1:]
		i := 0
		for i < len(fenFields) && fenFields[i] != "moves" {
			i++
		}
		fenOrStartpos = strings.Join(fenFields[:i], " ")
		rest = fenFields[i:]
	} else {
		l.out.Printf("info string unknown_option: malformed position command")
		return
	}

	var moves []string
	if len(rest) > 0 && rest[0] == "moves" {
		moves = rest[1:]
	}
	if err := l.eng.Position(fenOrStartpos, moves); err != nil {
		l.out.Printf("info string %v", err)
	}
}

func (l *Loop) handleGo(parentCtx context.Context, args []string) {
	limits := parseLimits(args)

	ctx, cancel := context.WithCancel(parentCtx)
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.cancel = cancel
	done := make(chan struct{})
	l.done = done
	l.mu.Unlock()

	go func() {
		defer close(done)
		info, err := l.eng.Go(ctx, limits)
		l.mu.Lock()
		if l.cancel != nil {
			l.cancel = nil
		}
		l.mu.Unlock()

		for _, w := range info.Warnings {
			l.out.Printf("info string %s", w)
		}
		if err != nil {
			l.out.Printf("info string error: %v", err)
			l.out.Printf("bestmove (none)")
			return
		}
		if !info.HasMove {
			l.out.Printf("bestmove (none)")
			return
		}
		l.out.Printf("info depth %d nodes %d nps %d score cp %d pv %s",
			info.PVDepth, info.NodesSearched, int64(info.NodesPerSec), info.CentipawnsCP, pvString(info.PV))
		l.out.Printf("bestmove %s", info.BestMove.UCI())
	}()
}

func (l *Loop) handleStop() {
	l.mu.Lock()
	cancel := l.cancel
	done := l.done
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (l *Loop) handleSetOption(args []string) {
	name, value, ok := parseSetOption(args)
	if !ok {
		l.out.Printf("info string unknown_option: malformed setoption command")
		return
	}
	next := l.opts
	if err := applyOption(&next, name, value); err != nil {
		l.out.Printf("info string %v", err)
		return
	}
	if err := next.Validate(); err != nil {
		l.out.Printf("info string %v", err)
		return
	}
	l.opts = next
	l.eng.ApplyOptions(l.opts)
}

func parseSetOption(args []string) (name, value string, ok bool) {
	i := 0
	for i < len(args) && args[i] != "name" {
		i++
	}
	if i >= len(args) {
		return "", "", false
	}
	i++
	var nameParts []string
	for i < len(args) && args[i] != "value" {
		nameParts = append(nameParts, args[i])
		i++
	}
	if i >= len(args) {
		return strings.Join(nameParts, " "), "", true
	}
	i++
	return strings.Join(nameParts, " "), strings.Join(args[i:], " "), true
}

// applyOption mutates opts in place for the option table of spec.md
// section 6, mirroring optionsuci.cpp's OptionsUCI::setoption.
func applyOption(opts *search.Options, name, value string) error {
	switch name {
	case "Threads":
		return setInt(&opts.Threads, value)
	case "Batch_Size":
		return setInt(&opts.BatchSize, value)
	case "Centi_CPuct_Init":
		return setFloat(&opts.CentiCPuctInit, value)
	case "CPuct_Base":
		return setFloat(&opts.CPuctBase, value)
	case "Centi_U_Init":
		return setFloat(&opts.CentiUInit, value)
	case "Centi_U_Min":
		return setFloat(&opts.CentiUMin, value)
	case "U_Base":
		return setFloat(&opts.UBase, value)
	case "Centi_Dirichlet_Epsilon":
		return setFloat(&opts.CentiDirichletEpsilon, value)
	case "Centi_Dirichlet_Alpha":
		return setFloat(&opts.CentiDirichletAlpha, value)
	case "Centi_Q_Value_Weight":
		return setFloat(&opts.CentiQValueWeight, value)
	case "Centi_Q_Thresh_Init":
		return setFloat(&opts.CentiQThreshInit, value)
	case "Centi_Q_Thresh_Max":
		return setFloat(&opts.CentiQThreshMax, value)
	case "Q_Thresh_Base":
		return setFloat(&opts.QThreshBase, value)
	case "Max_Search_Depth":
		return setInt(&opts.MaxSearchDepth, value)
	case "Nodes":
		return setInt(&opts.Nodes, value)
	case "Move_Overhead":
		return setInt(&opts.MoveOverhead, value)
	case "Centi_Temperature":
		return setFloat(&opts.CentiTemperature, value)
	case "Temperature_Moves":
		return setInt(&opts.TemperatureMoves, value)
	case "Virtual_Loss":
		var v int
		if err := setInt(&v, value); err != nil {
			return err
		}
		opts.VirtualLoss = int32(v)
		return nil
	case "Use_Raw_Network":
		return setBool(&opts.UseRawNetwork, value)
	case "Enhance_Checks":
		return setBool(&opts.EnhanceChecks, value)
	case "Enhance_Captures":
		return setBool(&opts.EnhanceCaptures, value)
	case "Use_Transposition_Table":
		return setBool(&opts.UseTranspositionTable, value)
	case "Context", "UCI_Variant":
		return nil // accepted and ignored: external collaborator configuration
	default:
		return fmt.Errorf("unknown_option: %s", name)
	}
}

func setInt(dst *int, value string) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("option_out_of_range: %q is not an integer", value)
	}
	*dst = v
	return nil
}

func setFloat(dst *float32, value string) error {
	v, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return fmt.Errorf("option_out_of_range: %q is not a number", value)
	}
	*dst = float32(v)
	return nil
}

func setBool(dst *bool, value string) error {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("option_out_of_range: %q is not a boolean", value)
	}
	*dst = v
	return nil
}

func pvString(pv []game.Move) string {
	parts := make([]string, len(pv))
	for i, mv := range pv {
		parts[i] = mv.UCI()
	}
	return strings.Join(parts, " ")
}

func parseLimits(args []string) search.Limits {
	var l search.Limits
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "movetime":
			i++
			l.MoveTimeMS = atoiSafe(args, i)
		case "wtime":
			i++
			l.WTimeMS = atoiSafe(args, i)
		case "btime":
			i++
			l.BTimeMS = atoiSafe(args, i)
		case "winc":
			i++
			l.WIncMS = atoiSafe(args, i)
		case "binc":
			i++
			l.BIncMS = atoiSafe(args, i)
		case "movestogo":
			i++
			l.MovesToGo = atoiSafe(args, i)
		case "nodes":
			i++
			l.Nodes = atoiSafe(args, i)
		case "depth":
			i++
			l.Depth = atoiSafe(args, i)
		}
	}
	return l
}

func atoiSafe(args []string, i int) int {
	if i >= len(args) {
		return 0
	}
	v, _ := strconv.Atoi(args[i])
	return v
}
