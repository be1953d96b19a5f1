package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lookout-sh/lookout/internal/agent"
	"github.com/lookout-sh/lookout/internal/chat"
	"github.com/lookout-sh/lookout/internal/config"
	"github.com/lookout-sh/lookout/internal/notify"
	"github.com/lookout-sh/lookout/internal/version"
	"github.com/lookout-sh/lookout/pkg/logger"
	"github.com/lookout-sh/lookout/sdk"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	args, err := parseFlags(cfg, os.Args[1:])
	if err != nil {
		return err
	}
	if args == nil {
		return nil
	}

	if cfg.Debug {
		logger.SetLevel(logger.LevelDebug)
	}

	cmd := "tail"
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	switch cmd {
	case "pair":
		return pairCommand(cfg)
	case "approve":
		if len(args) < 1 {
			return fmt.Errorf("usage: lookout approve <pair-url>")
		}
		return approveCommand(cfg, args[0])
	case "sessions":
		return sessionsCommand(cfg)
	case "send":
		if len(args) < 1 {
			return fmt.Errorf("usage: lookout send <text>")
		}
		return sendCommand(cfg, strings.Join(args, " "))
	case "tail":
		return tailCommand(cfg)
	case "agent":
		return agentCommand(cfg)
	case "stop":
		return stopCommand(cfg)
	case "delete":
		if len(args) < 1 {
			return fmt.Errorf("usage: lookout delete <session-id>|--all")
		}
		return deleteCommand(cfg, args[0])
	case "version", "--version", "-v":
		fmt.Printf("lookout %s\n", version.RichVersion())
		return nil
	case "help", "--help", "-h":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func parseFlags(cfg *config.Config, args []string) ([]string, error) {
	fs := flag.NewFlagSet("lookout", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	forceNew := fs.Bool("new-session", false, "Force the next prompt to start a new session")
	debug := fs.Bool("debug", false, "Enable debug logging")
	showHelp := fs.Bool("help", false, "Show help")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *showHelp {
		printUsage()
		return nil, nil
	}
	if *forceNew {
		cfg.ForceNewSession = true
	}
	if *debug {
		cfg.Debug = true
	}
	return fs.Args(), nil
}

// ensureCredentials runs the pairing flow when no access key exists yet.
func ensureCredentials(cfg *config.Config) error {
	if _, err := os.Stat(cfg.AccessKey); err == nil {
		return nil
	}
	logger.Infof("No credentials found. Starting pairing...")
	return pairCommand(cfg)
}

func pairCommand(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return sdk.Pair(ctx, cfg, func(pairURL string) {
		art, err := sdk.QRCodeString(pairURL)
		if err != nil {
			logger.Warnf("QR render failed: %v", err)
		} else {
			fmt.Println("\nScan this QR code from an already-paired device:")
			fmt.Println(art)
		}
		fmt.Printf("Or open this URL manually:\n%s\n\nWaiting for approval...\n", pairURL)
	})
}

func approveCommand(cfg *config.Config, pairURL string) error {
	deviceKey, err := sdk.ParsePairURL(pairURL)
	if err != nil {
		return err
	}

	client, err := newConnectedClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()
	if err := client.ApprovePairing(ctx, deviceKey); err != nil {
		return err
	}
	fmt.Println("Pairing approved.")
	return nil
}

// newConnectedClient builds an authenticated client without bringing up the
// real-time transport.
func newConnectedClient(cfg *config.Config) (*sdk.Client, error) {
	if err := ensureCredentials(cfg); err != nil {
		return nil, err
	}
	client, err := sdk.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()
	if err := client.EnsureAuth(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func sessionsCommand(cfg *config.Config) error {
	client, err := newConnectedClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()
	resp, err := client.Sessions(ctx, 50, 0)
	if err != nil {
		return err
	}

	selected, _ := client.SelectedSession()
	for _, s := range resp.Sessions {
		marker := " "
		if s.ID == selected {
			marker = "*"
		}
		fmt.Printf("%s %s  %s  %s\n", marker, s.ID, s.Workspace, s.Title)
	}
	if len(resp.Sessions) == 0 {
		fmt.Println("No sessions.")
	}
	return nil
}

func sendCommand(cfg *config.Config, text string) error {
	client, err := newConnectedClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()
	res, err := client.SendPrompt(ctx, text, "")
	if err != nil {
		return err
	}
	if res.Injected {
		fmt.Printf("Injected into live process (workspace=%s).\n", res.Workspace)
	} else {
		fmt.Printf("Sent to session %s.\n", res.SessionID)
	}
	return nil
}

// tailListener renders client events to the terminal and optionally pushes
// notifications for interactions that need the user.
type tailListener struct {
	client   *sdk.Client
	shown    map[string]bool
	notifier *notify.Pushover
}

func (l *tailListener) OnConnectionState(state string) {
	logger.Infof("connection: %s", state)
}

func (l *tailListener) OnElementsChanged() {
	for _, el := range l.client.Elements() {
		if l.shown[el.ID] {
			continue
		}
		l.shown[el.ID] = true
		printElement(el)
	}
}

func (l *tailListener) OnSessionChanged(sessionID string) {
	fmt.Printf("--- session %s ---\n", sessionID)
	l.shown = make(map[string]bool)
	for _, el := range l.client.Elements() {
		l.shown[el.ID] = true
		printElement(el)
	}
}

func (l *tailListener) OnStatus(state, detail string) {
	if detail != "" {
		logger.Infof("agent: %s (%s)", state, detail)
		return
	}
	logger.Infof("agent: %s", state)
}

func (l *tailListener) OnPermissionRequest(requestID, toolName, inputJSON string) {
	fmt.Printf("\nPermission requested for %s: %s\n", toolName, inputJSON)
	fmt.Println("Reply with y/n:")

	if l.notifier != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := l.notifier.Push(ctx, "permission:"+requestID, "Lookout",
			fmt.Sprintf("Permission requested for %s", toolName))
		if err != nil {
			logger.Warnf("notify: %v", err)
		}
	}
}

func (l *tailListener) OnError(message string) {
	logger.Errorf("server: %s", message)
}

func printElement(el chat.Element) {
	switch el.Type {
	case chat.UserInput:
		fmt.Printf("\n> %s\n", el.Text)
	case chat.AssistantText:
		fmt.Printf("%s\n", el.Text)
	case chat.Thinking:
		// Reasoning is elided from the tail view.
	case chat.ToolCall:
		fmt.Printf("[tool] %s\n", el.ToolName)
	case chat.ToolResult:
		if el.IsError {
			fmt.Printf("[tool failed]\n")
		}
	case chat.Diff:
		fmt.Printf("[edit] %s\n", el.Path)
	case chat.ContextCompaction:
		fmt.Printf("[context compacted]\n")
	case chat.Interrupted:
		fmt.Printf("[interrupted]\n")
	}
}

func tailCommand(cfg *config.Config) error {
	if err := ensureCredentials(cfg); err != nil {
		return err
	}
	client, err := sdk.NewClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	listener := &tailListener{client: client, shown: make(map[string]bool)}
	if cfg.PushoverToken != "" && cfg.PushoverUserKey != "" {
		notifier, err := notify.NewPushover(cfg.PushoverToken, cfg.PushoverUserKey, time.Minute)
		if err != nil {
			return err
		}
		listener.notifier = notifier
	}
	client.SetListener(listener)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		return err
	}
	if !client.WaitForConnect(30 * time.Second) {
		return fmt.Errorf("connection timed out")
	}
	logger.Infof("Connected. Type a prompt and press enter; y/n answers permission requests. Ctrl+C exits.")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := handleTailInput(ctx, cfg, client, line); err != nil {
				logger.Errorf("%v", err)
			}
		}
	}
}

func handleTailInput(ctx context.Context, cfg *config.Config, client *sdk.Client, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()

	switch line {
	case "y", "yes":
		return client.RespondPermission(reqCtx, true, "")
	case "n", "no":
		return client.RespondPermission(reqCtx, false, "")
	}

	_, err := client.SendPrompt(reqCtx, line, "")
	return err
}

// agentCommand spawns the terminal agent under a PTY so remote prompts can be
// injected into it.
func agentCommand(cfg *config.Config) error {
	workspace, err := os.Getwd()
	if err != nil {
		return err
	}

	proc := agent.NewProcess(workspace, "")
	if err := proc.Start(); err != nil {
		return fmt.Errorf("start agent: %w", err)
	}
	return proc.Wait()
}

func stopCommand(cfg *config.Config) error {
	client, err := newConnectedClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()
	if err := client.StopAgent(ctx); err != nil {
		return err
	}
	fmt.Println("Stop requested.")
	return nil
}

func deleteCommand(cfg *config.Config, target string) error {
	client, err := newConnectedClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()
	if target == "--all" {
		if err := client.DeleteAllSessions(ctx); err != nil {
			return err
		}
		fmt.Println("All sessions deleted.")
		return nil
	}
	if err := client.DeleteSession(ctx, target); err != nil {
		return err
	}
	fmt.Printf("Session %s deleted.\n", target)
	return nil
}

func printUsage() {
	fmt.Println(`lookout - observe and drive remote terminal-agent sessions

Usage:
  lookout              Tail the selected session (same as "lookout tail")
  lookout tail         Connect and stream the conversation
  lookout send <text>  Send a prompt (live injection or managed run)
  lookout sessions     List recent sessions
  lookout agent        Run the terminal agent under a PTY in this directory
  lookout pair         Pair this device via QR code
  lookout approve <url> Approve another device's pairing request
  lookout stop         Interrupt the selected session's active turn
  lookout delete <id>  Delete a session (--all deletes everything)
  lookout version      Show version information
  lookout help         Show this help message

Environment Variables:
  LOOKOUT_SERVER_URL   Server URL (default: https://api.lookout.sh)
  LOOKOUT_HOME_DIR     Config directory (default: ~/.lookout)
  LOOKOUT_AGENT_BIN    Terminal agent binary (default: claude)
  LOOKOUT_PUSHOVER_TOKEN  Pushover app token (enables push notifications)
  LOOKOUT_PUSHOVER_USER   Pushover user key
  DEBUG                Enable debug logging (true/1)

Flags:
  --new-session        Force the next prompt to start a new session
  --debug              Enable debug logging`)
}
