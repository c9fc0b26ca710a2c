// Package repl implements the Read-Eval-Print Loop for the EARL
// programming language.
//
// The REPL provides an interactive interface for users to enter EARL
// code, have it evaluated, and see the results immediately. It uses the
// Charm libraries (Bubbletea, Bubbles, and Lipgloss) to create a modern,
// user-friendly terminal interface with features like syntax
// highlighting and command history.
//
// Key features:
//   - Interactive statement input and execution
//   - Command history tracking
//   - Styled diagnostics, one color per error kind
//   - A persistent evaluation context across statements
//
// The main entry point is the Start function, which initializes and runs
// the REPL with the given username.
package repl

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/malloc-nbytes/earl/errs"
	"github.com/malloc-nbytes/earl/interp"
	"github.com/malloc-nbytes/earl/intrinsics"
	"github.com/malloc-nbytes/earl/lexer"
	"github.com/malloc-nbytes/earl/loader"
	"github.com/malloc-nbytes/earl/token"
	"github.com/malloc-nbytes/earl/value"
)

const (
	// Prompt is the default prompt for the REPL
	Prompt = ">> "

	// ContPrompt is the continuation prompt used in multiline input mode within the REPL.
	ContPrompt = ".. "
)

// Options contains configuration options for the REPL
type Options struct {
	NoColor     bool     // Disable syntax highlighting and colored output
	Debug       bool     // Enable debug mode with more verbose output
	ImportPaths []string // Directories searched by import statements
}

// Start initializes and runs the REPL with the given username and options.
// It creates a new bubbletea program with an initial model and runs it.
// The username is displayed in the welcome message of the REPL.
// If an error occurs while running the program, it is printed to the console.
func Start(username string, options Options) {
	p := tea.NewProgram(initialModel(username, options))
	if _, err := p.Run(); err != nil {
		fmt.Println("Error running program:", err)
	}
}

// Styling
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	historyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#767676"))

	// Error styles, one per error kind
	errorStyles = map[errs.Kind]lipgloss.Style{
		errs.Syntax:     lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true),
		errs.Runtime:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF8700")).Bold(true),
		errs.Types:      lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")).Bold(true),
		errs.Redeclared: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")).Bold(true),
		errs.Undeclared: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")).Bold(true),
		errs.Fatal:      lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true),
		errs.Internal:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true),
		errs.Todo:       lipgloss.NewStyle().Foreground(lipgloss.Color("#767676")),
	}

	fallbackErrorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FF5F87"))

	// Syntax highlighting styles
	keywordStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF79C6")).
			Bold(true)

	literalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F1FA8C"))

	operatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555"))

	delimiterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#BD93F9"))

	stringStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#50FA7B"))

	attrStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFAF00"))
)

// Custom messages for async evaluation
type evalResultMsg struct {
	output  string
	err     *errs.Error
	elapsed time.Duration
}

// The model represents the state of the application
type model struct {
	textInput       textinput.Model
	history         []historyEntry
	ctx             *value.Context
	in              *interp.Interp
	username        string
	evaluating      bool
	currentInput    string
	multilineBuffer string // Buffer for multiline input
	isMultiline     bool   // Flag to indicate if we're in multiline mode
	spinner         spinner.Model
	options         Options
}

// applyStyle applies a lipgloss style to a string, respecting the NoColor option
func (m model) applyStyle(style lipgloss.Style, text string) string {
	if m.options.NoColor {
		return text
	}
	return style.Render(text)
}

// historyEntry represents a single entry in the REPL history
type historyEntry struct {
	input          string
	output         string
	err            *errs.Error
	evaluationTime time.Duration // Time taken to evaluate
}

// initialModel creates a new model with default values
func initialModel(username string, options Options) model {
	ti := textinput.New()
	ti.Placeholder = "Enter EARL code"
	ti.Focus()
	ti.Width = 80
	ti.Prompt = promptStyle.Render(Prompt)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF79C6"))

	searchPaths := append([]string{"."}, options.ImportPaths...)

	return model{
		textInput:       ti,
		history:         []historyEntry{},
		ctx:             value.NewContext(),
		in:              interp.New(loader.New(searchPaths).Load),
		username:        username,
		evaluating:      false,
		multilineBuffer: "",
		isMultiline:     false,
		spinner:         s,
		options:         options,
	}
}

// Init is the first function that will be called
func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// isBalanced checks if brackets, braces, and parentheses are balanced in the input
func isBalanced(input string) bool {
	var stack []rune

	for _, char := range input {
		switch char {
		case '(', '{', '[':
			stack = append(stack, char)
		case ')':
			if len(stack) == 0 || stack[len(stack)-1] != '(' {
				return false
			}
			stack = stack[:len(stack)-1]
		case '}':
			if len(stack) == 0 || stack[len(stack)-1] != '{' {
				return false
			}
			stack = stack[:len(stack)-1]
		case ']':
			if len(stack) == 0 || stack[len(stack)-1] != '[' {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}

	return len(stack) == 0
}

// evalCmd is a command that evaluates EARL code asynchronously against
// the session's persistent context. Program output (print) is routed
// into the history entry instead of the terminal while the TUI owns the
// screen.
func evalCmd(input string, in *interp.Interp, ctx *value.Context, debug bool) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()

		var captured strings.Builder
		prevOut := intrinsics.Out
		intrinsics.Out = &captured
		defer func() { intrinsics.Out = prevOut }()

		program, perr := loader.Parse(input)
		if perr != nil {
			if debug {
				fmt.Printf("DEBUG: Parse error: %v\n", perr)
			}
			return evalResultMsg{err: perr, elapsed: time.Since(start)}
		}

		runErr := in.Run(program, ctx)
		elapsed := time.Since(start)

		if debug {
			fmt.Printf("DEBUG: Eval time: %v\n", elapsed)
			if runErr != nil {
				fmt.Printf("DEBUG: Error: %v\n", runErr)
			}
		}

		return evalResultMsg{
			output:  strings.TrimRight(captured.String(), "\n"),
			err:     runErr,
			elapsed: elapsed,
		}
	}
}

// Update handles all the updates to our model
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.evaluating {
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}

	case evalResultMsg:
		// Evaluation completed
		m.evaluating = false

		m.history = append(m.history, historyEntry{
			input:          m.currentInput,
			output:         msg.output,
			err:            msg.err,
			evaluationTime: msg.elapsed,
		})

		m.currentInput = ""
		return m, nil

	case tea.KeyMsg:
		// If we're evaluating, ignore key presses except for Ctrl+C
		if m.evaluating && msg.Type != tea.KeyCtrlC {
			return m, m.spinner.Tick
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyEnter:
			input := m.textInput.Value()
			if input == "" {
				// An empty line in multiline mode evaluates the buffer
				if m.isMultiline {
					if m.multilineBuffer == "" {
						m.isMultiline = false
						return m, nil
					}

					m.evaluating = true
					m.currentInput = m.multilineBuffer
					m.textInput.SetValue("")
					m.isMultiline = false

					buffer := m.multilineBuffer
					m.multilineBuffer = ""

					return m, evalCmd(buffer, m.in, m.ctx, m.options.Debug)
				}
				return m, nil
			}

			// If we're in multiline mode, append the input to the buffer
			if m.isMultiline {
				m.multilineBuffer += "\n" + input
				m.textInput.SetValue("")

				if isBalanced(m.multilineBuffer) {
					m.evaluating = true
					m.currentInput = m.multilineBuffer
					m.isMultiline = false

					buffer := m.multilineBuffer
					m.multilineBuffer = ""

					return m, evalCmd(buffer, m.in, m.ctx, m.options.Debug)
				}

				return m, nil
			}

			// Unbalanced brackets start multiline mode
			if !isBalanced(input) {
				m.isMultiline = true
				m.multilineBuffer = input
				m.textInput.SetValue("")
				return m, nil
			}

			m.evaluating = true
			m.currentInput = input
			m.textInput.SetValue("")

			return m, evalCmd(input, m.in, m.ctx, m.options.Debug)
		}
	}

	// Only update the text input if we're not evaluating
	if !m.evaluating {
		m.textInput, cmd = m.textInput.Update(msg)
	}

	// Ensure the spinner keeps ticking while evaluating
	if m.evaluating {
		return m, m.spinner.Tick
	}

	return m, cmd
}

// renderError styles an evaluation error by its kind.
func (m model) renderError(e *errs.Error) string {
	if m.options.NoColor {
		return e.Error()
	}
	style, ok := errorStyles[e.Kind]
	if !ok {
		return fallbackErrorStyle.Render(e.Error())
	}
	return fmt.Sprintf("%s:%d:%d: %s", style.Render(string(e.Kind)), e.Tok.Line, e.Tok.Column, e.Message)
}

// View renders the current UI
func (m model) View() string {
	var s strings.Builder

	// Title
	s.WriteString(m.applyStyle(titleStyle, " EARL Programming Language REPL "))
	s.WriteString("\n")

	// Welcome message
	if m.username != "" {
		s.WriteString(fmt.Sprintf("\nHello %s! Feel free to type in EARL statements\n", m.username))
	}
	s.WriteString("\n")

	// History
	for _, entry := range m.history {
		// Handle multiline input in history
		lines := strings.Split(entry.input, "\n")
		for i, line := range lines {
			if i == 0 {
				s.WriteString(m.applyStyle(promptStyle, Prompt))
			} else {
				s.WriteString(m.applyStyle(promptStyle, ContPrompt))
			}
			s.WriteString(m.highlightCode(line))
			s.WriteString("\n")
		}

		if entry.output != "" {
			s.WriteString(m.applyStyle(resultStyle, entry.output))
			s.WriteString("\n")
		}
		if entry.err != nil {
			s.WriteString(m.renderError(entry.err))
			s.WriteString("\n")
		}

		// Show evaluation time if it took more than 10 ms
		if entry.evaluationTime > 10*time.Millisecond {
			timeStr := fmt.Sprintf("(%.2fs)", entry.evaluationTime.Seconds())
			s.WriteString(m.applyStyle(historyStyle, timeStr))
			s.WriteString("\n")
		}

		s.WriteString("\n")
	}

	// Current evaluation
	if m.evaluating {
		s.WriteString(m.applyStyle(promptStyle, Prompt))
		s.WriteString(m.highlightCode(m.currentInput))
		s.WriteString("\n")
		s.WriteString(m.spinner.View())
		s.WriteString(" Evaluating...")
		s.WriteString("\n\n")
	}

	// Show multiline buffer if in multiline mode
	if m.isMultiline && !m.evaluating {
		s.WriteString(m.applyStyle(historyStyle, "Current multiline input:\n"))
		s.WriteString(m.highlightCode(m.multilineBuffer))
		s.WriteString("\n")
	}

	// Input
	if !m.evaluating {
		prompt := Prompt
		if m.isMultiline {
			prompt = ContPrompt
		}
		m.textInput.Prompt = m.applyStyle(promptStyle, prompt)
		s.WriteString(m.textInput.View())
		s.WriteString("\n")
	}

	// Help text
	helpText := "\nPress Esc or Ctrl+C/D to exit"
	if m.isMultiline {
		helpText += " | Multiline mode: Enter empty line to evaluate or continue typing"
	} else {
		helpText += " | Multiline input supported for unbalanced brackets"
	}
	s.WriteString(m.applyStyle(historyStyle, helpText))

	return s.String()
}

func isKeywordToken(t token.Type) bool {
	switch t {
	case token.Let, token.Def, token.Class, token.Import, token.As, token.Module,
		token.If, token.Elif, token.Else, token.While, token.For, token.Foreach,
		token.In, token.Return, token.Break, token.Continue, token.Function,
		token.None, token.Some:
		return true
	}
	return false
}

func isOperatorToken(t token.Type) bool {
	switch t {
	case token.Assign, token.Plus, token.Minus, token.Bang, token.Asterisk,
		token.Slash, token.Percent, token.Lt, token.Gt, token.Lte, token.Gte,
		token.Eq, token.NotEq, token.And, token.Or, token.Amp, token.Pipe,
		token.Caret, token.Shl, token.Shr, token.ColonCol, token.PlusEq,
		token.MinusEq, token.AsteriskEq, token.SlashEq, token.PercentEq,
		token.Arrow:
		return true
	}
	return false
}

func isDelimiterToken(t token.Type) bool {
	switch t {
	case token.Comma, token.Colon, token.Semicolon, token.Dot, token.Lparen,
		token.Rparen, token.Lbrace, token.Rbrace, token.Lbracket, token.Rbracket:
		return true
	}
	return false
}

// highlightCode applies syntax highlighting to a single line of EARL
// code. The lexer's column tracking is used to reproduce the original
// spacing between tokens exactly, so the echoed line matches what the
// user typed.
func (m model) highlightCode(code string) string {
	if m.options.NoColor {
		return code
	}

	var out strings.Builder
	for _, line := range strings.Split(code, "\n") {
		if out.Len() > 0 {
			out.WriteString("\n")
		}
		out.WriteString(m.highlightLine(line))
	}
	return out.String()
}

func (m model) highlightLine(line string) string {
	l := lexer.New(line)
	var s strings.Builder
	col := 1

	for {
		tok := l.NextToken()
		if tok.Type == token.EOF {
			break
		}
		if tok.Column > col {
			s.WriteString(strings.Repeat(" ", tok.Column-col))
		}

		text := tok.Literal
		switch {
		case tok.Type == token.String:
			text = "\"" + text + "\""
			s.WriteString(stringStyle.Render(text))
		case tok.Type == token.Char:
			text = "'" + text + "'"
			s.WriteString(stringStyle.Render(text))
		case isKeywordToken(tok.Type), tok.Type == token.True, tok.Type == token.False:
			s.WriteString(keywordStyle.Render(text))
		case tok.Type == token.Int:
			s.WriteString(literalStyle.Render(text))
		case tok.Type == token.At:
			s.WriteString(attrStyle.Render(text))
		case isOperatorToken(tok.Type):
			s.WriteString(operatorStyle.Render(text))
		case isDelimiterToken(tok.Type):
			s.WriteString(delimiterStyle.Render(text))
		default:
			s.WriteString(text)
		}
		col = tok.Column + len(text)
	}

	return s.String()
}
