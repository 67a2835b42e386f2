// Package shell is the interactive SQL shell behind cmd/dbshell.
package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/chzyer/readline"

	"github.com/kasuganosora/sqlsession/pkg/api"
	"github.com/kasuganosora/sqlsession/pkg/config"
	"github.com/kasuganosora/sqlsession/pkg/monitor"
	"github.com/kasuganosora/sqlsession/pkg/sqltext"
)

const continuationPrompt = "   ...> "

// LineReader is the part of *readline.Instance the loop needs.
type LineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

type scanReader struct {
	sc *bufio.Scanner
}

// NewLineReader reads lines from r without terminal editing, for piped input.
func NewLineReader(r io.Reader) LineReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &scanReader{sc: sc}
}

func (r *scanReader) SetPrompt(string) {}

func (r *scanReader) Readline() (string, error) {
	if r.sc.Scan() {
		return r.sc.Text(), nil
	}
	if err := r.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// Shell feeds input lines to a session. SQL is buffered until it forms
// complete statements; lines starting with "." outside a statement are
// dot-commands.
type Shell struct {
	session *api.Session
	out     io.Writer
	errOut  io.Writer
	prompt  string
	format  string
	monitor *monitor.Monitor
	buf     strings.Builder
}

// New returns a shell on s writing results to out and errors to errOut.
func New(s *api.Session, cfg config.ShellConfig, out, errOut io.Writer) *Shell {
	format := cfg.Format
	if format == "" {
		format = "table"
	}
	prompt := cfg.Prompt
	if prompt == "" {
		prompt = "sql> "
	}
	return &Shell{session: s, out: out, errOut: errOut, prompt: prompt, format: format}
}

// SetMonitor makes .stats report m, which should observe the session.
func (sh *Shell) SetMonitor(m *monitor.Monitor) {
	sh.monitor = m
}

// Prompt returns the prompt for the next line.
func (sh *Shell) Prompt() string {
	if sh.buf.Len() > 0 {
		return continuationPrompt
	}
	return sh.prompt
}

// Format returns the current output format.
func (sh *Shell) Format() string {
	return sh.format
}

// Pending reports whether an incomplete statement is buffered.
func (sh *Shell) Pending() bool {
	return sh.buf.Len() > 0
}

// Reset drops a buffered incomplete statement.
func (sh *Shell) Reset() {
	sh.buf.Reset()
}

// Feed handles one input line. It returns true when the shell should exit.
// Errors are printed and never stop the shell.
func (sh *Shell) Feed(line string) bool {
	if sh.buf.Len() == 0 {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			return false
		}
		if strings.HasPrefix(trimmed, ".") {
			return sh.dotCommand(trimmed)
		}
	}

	sh.buf.WriteString(line)
	sh.buf.WriteByte('\n')
	if !sqltext.Complete(sh.buf.String()) {
		return false
	}

	sql := sh.buf.String()
	sh.buf.Reset()
	sh.run(sql)
	return false
}

// Flush runs a buffered statement even though it lacks its semicolon.
func (sh *Shell) Flush() {
	if !sh.Pending() {
		return
	}
	sql := sh.buf.String()
	sh.buf.Reset()
	sh.run(sql)
}

// Run reads lines from rl until EOF or .quit. An interrupt drops the
// buffered statement.
func (sh *Shell) Run(rl LineReader) error {
	for {
		rl.SetPrompt(sh.Prompt())
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			sh.Reset()
			continue
		}
		if errors.Is(err, io.EOF) {
			sh.Flush()
			return nil
		}
		if err != nil {
			return err
		}
		if sh.Feed(line) {
			return nil
		}
	}
}

// Interactive runs the shell on a readline terminal.
func (sh *Shell) Interactive(historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          sh.prompt,
		HistoryFile:     historyFile,
		AutoComplete:    sh.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdout:          sh.out,
		Stderr:          sh.errOut,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize shell: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintf(sh.out, "Connected to %s\n", sh.session.Path())
	_, _ = fmt.Fprintln(sh.out, `Enter ".help" for usage hints.`)
	return sh.Run(rl)
}

// run executes every statement of sql in turn, rendering result sets.
// The first failing statement stops the rest.
func (sh *Shell) run(sql string) {
	rest := sql
	for !sqltext.IsBlank(rest) {
		stmt, tail := sqltext.Split(rest)
		if !sqltext.IsBlank(stmt) {
			if err := sh.execute(stmt); err != nil {
				sh.printError(err)
				return
			}
		}
		rest = tail
	}
}

func (sh *Shell) execute(sql string) error {
	c, err := sh.session.Execute(sql)
	if err != nil {
		return err
	}
	defer c.Close()

	if c.Description() == nil {
		return nil
	}
	rows, err := c.FetchAll()
	if err != nil {
		return err
	}
	return Render(sh.out, c.Description(), rows, sh.format)
}

func (sh *Shell) printError(err error) {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		_, _ = fmt.Fprintf(sh.errOut, "Error: %s: %s\n", apiErr.Code, apiErr.Message)
		return
	}
	_, _ = fmt.Fprintf(sh.errOut, "Error: %v\n", err)
}

func (sh *Shell) dotCommand(line string) bool {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printHelp(sh.out)

	case ".commit":
		if err := sh.session.Commit(); err != nil {
			sh.printError(err)
		}

	case ".rollback":
		if err := sh.session.Rollback(); err != nil {
			sh.printError(err)
		}

	case ".mode":
		if len(args) != 1 || !slices.Contains(config.Formats, args[0]) {
			_, _ = fmt.Fprintf(sh.errOut, "Usage: .mode %s\n", strings.Join(config.Formats, "|"))
			break
		}
		sh.format = args[0]

	case ".tables":
		err := sh.execute(`SELECT name FROM sqlite_master
			WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
			ORDER BY name`)
		if err != nil {
			sh.printError(err)
		}

	case ".schema":
		if err := sh.schema(args); err != nil {
			sh.printError(err)
		}

	case ".stats":
		sh.stats()

	case ".read":
		if len(args) != 1 {
			_, _ = fmt.Fprintln(sh.errOut, "Usage: .read FILE")
			break
		}
		script, err := os.ReadFile(args[0])
		if err != nil {
			sh.printError(err)
			break
		}
		c, err := sh.session.ExecuteScript(string(script))
		if err != nil {
			sh.printError(err)
			break
		}
		_ = c.Close()

	default:
		_, _ = fmt.Fprintf(sh.errOut, "Unknown command: %s (type .help for commands)\n", command)
	}
	return false
}

func (sh *Shell) schema(args []string) error {
	query := "SELECT sql FROM sqlite_master WHERE sql IS NOT NULL"
	var params []any
	if len(args) > 0 {
		query += " AND name = ?"
		params = append(params, args[0])
	}
	query += " ORDER BY type DESC, name"

	rows, err := sh.session.QueryAll(query, params...)
	if err != nil {
		return err
	}
	for _, row := range rows {
		_, _ = fmt.Fprintf(sh.out, "%v;\n", row[0])
	}
	return nil
}

func (sh *Shell) stats() {
	cache, err := sh.session.CacheStats()
	if err != nil {
		sh.printError(err)
		return
	}
	if sh.monitor == nil {
		RenderStats(sh.out, cache, nil, nil)
		return
	}
	snap := sh.monitor.Metrics.Snapshot()
	RenderStats(sh.out, cache, &snap, sh.monitor.SlowLog.Entries())
}

// completer offers dot-commands and the table names known at start-up.
func (sh *Shell) completer() *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	rows, err := sh.session.QueryAll(
		"SELECT name FROM sqlite_master WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err == nil {
		for _, row := range rows {
			items = append(items, readline.PcItem(fmt.Sprint(row[0])))
		}
	}
	for _, cmd := range []string{".help", ".quit", ".exit", ".commit", ".rollback", ".tables", ".schema", ".read", ".stats"} {
		items = append(items, readline.PcItem(cmd))
	}
	modes := make([]readline.PrefixCompleterInterface, 0, len(config.Formats))
	for _, f := range config.Formats {
		modes = append(modes, readline.PcItem(f))
	}
	items = append(items, readline.PcItem(".mode", modes...))
	return readline.NewPrefixCompleter(items...)
}

func printHelp(w io.Writer) {
	help := `Commands:
  .help                      Show this help message
  .commit                    Commit the pending transaction
  .rollback                  Roll back the pending transaction
  .mode table|csv|markdown   Set the output format
  .tables                    List tables and views
  .schema [name]             Show CREATE statements
  .read FILE                 Run the statements in FILE
  .stats                     Show statement cache and execution statistics
  .quit / .exit              Exit the shell

SQL statements run once they end with a semicolon.`
	_, _ = fmt.Fprintln(w, help)
}
