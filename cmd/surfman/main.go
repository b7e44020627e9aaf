package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/1broseidon/surfman/internal/config"
	"github.com/1broseidon/surfman/internal/ipc"
	"github.com/1broseidon/surfman/internal/surface"
	"github.com/1broseidon/surfman/internal/tui"
	"github.com/1broseidon/surfman/internal/wm"
)

func main() {
	if len(os.Args) < 2 {
		printMainUsage(os.Stdout)
		os.Exit(0)
	}

	switch os.Args[1] {
	case "daemon":
		os.Exit(runDaemon(os.Args[2:]))
	case "status":
		os.Exit(runStatus(os.Args[2:]))
	case "windows":
		os.Exit(runWindows(os.Args[2:]))
	case "window":
		os.Exit(runWindow(os.Args[2:]))
	case "prop":
		os.Exit(runProp(os.Args[2:]))
	case "release":
		os.Exit(runRelease(os.Args[2:]))
	case "screenshot":
		os.Exit(runScreenshot(os.Args[2:]))
	case "attach":
		os.Exit(runAttach(os.Args[2:]))
	case "detach":
		os.Exit(runDetach(os.Args[2:]))
	case "reload":
		os.Exit(runReload(os.Args[2:]))
	case "config":
		os.Exit(runConfig(os.Args[2:]))
	case "tui":
		os.Exit(runTUI(os.Args[2:]))
	case "mcp":
		os.Exit(runMCP(os.Args[2:]))
	case "help", "-h", "--help":
		printMainUsage(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printMainUsage(os.Stderr)
		os.Exit(2)
	}
}

func printMainUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: surfman <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  daemon              Start the surfman daemon (foreground)")
	fmt.Fprintln(w, "  status              Show daemon status")
	fmt.Fprintln(w, "  reload              Reload the daemon configuration")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  windows             List registered windows")
	fmt.Fprintln(w, "  window              Show the window at a registry index")
	fmt.Fprintln(w, "  prop get            Read a shared window property")
	fmt.Fprintln(w, "  prop set            Write a shared window property")
	fmt.Fprintln(w, "  prop list           List shared window properties")
	fmt.Fprintln(w, "  release             Release a window after it closes")
	fmt.Fprintln(w, "  screenshot          Capture outputs or windows to image files")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  attach              Attach a process to an application id")
	fmt.Fprintln(w, "  detach              Drop a process attachment")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  config validate     Validate configuration")
	fmt.Fprintln(w, "  config print        Print configuration")
	fmt.Fprintln(w, "  config explain      Explain a config value")
	fmt.Fprintln(w, "  config init         Write the default configuration file")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  tui                 Open the interactive window viewer")
	fmt.Fprintln(w, "  mcp serve           Start MCP server (stdio transport)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'surfman <command> --help' for command-specific options.")
}

// parseFlags parses args into fs and returns the exit code to use when
// parsing stopped the command.
func parseFlags(fs *flag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0, false
		}
		return 2, false
	}
	return 0, true
}

func printJSON(v any) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	asJSON := fs.Bool("json", false, "Print raw JSON")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: surfman status [--json]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Show daemon status via IPC.")
	}
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "status takes no arguments")
		fs.Usage()
		return 2
	}

	client := ipc.NewClient()
	status, err := client.GetStatus()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *asJSON {
		return printJSON(status)
	}
	fmt.Printf("daemon_running:  %v\n", status.DaemonRunning)
	fmt.Printf("mode:            %s\n", status.Mode)
	fmt.Printf("window_count:    %d\n", status.WindowCount)
	fmt.Printf("closing_count:   %d\n", status.ClosingCount)
	fmt.Printf("attachments:     %d\n", status.Attachments)
	fmt.Printf("security_checks: %v\n", status.SecurityChecks)
	fmt.Printf("watchdog:        %v\n", status.Watchdog)
	fmt.Printf("uptime_seconds:  %d\n", status.UptimeSeconds)
	for _, o := range status.Outputs {
		fmt.Printf("output[%d]:       %s %dx%d+%d+%d\n", o.Index, o.Name, o.Width, o.Height, o.X, o.Y)
	}
	return 0
}

func runReload(args []string) int {
	if len(args) != 0 {
		fmt.Fprintln(os.Stderr, "Usage: surfman reload")
		return 2
	}
	if err := ipc.NewClient().Reload(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println("config reloaded")
	return 0
}

func runWindows(args []string) int {
	fs := flag.NewFlagSet("windows", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	asJSON := fs.Bool("json", false, "Print raw JSON")
	app := fs.String("app", "", "Only list windows of this application id")
	closing := fs.Bool("closing", false, "Only list closing windows")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: surfman windows [--json] [--app ID] [--closing]")
	}
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	windows, err := ipc.NewClient().ListWindows()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	windows = filterWindows(windows, *app, *closing)
	if *asJSON {
		return printJSON(windows)
	}
	if len(windows) == 0 {
		fmt.Println("no windows")
		return 0
	}
	writeWindowsTable(os.Stdout, windows, terminalWidth())
	return 0
}

func filterWindows(windows []wm.WindowInfo, app string, closingOnly bool) []wm.WindowInfo {
	out := windows[:0:0]
	for _, w := range windows {
		if app != "" && w.ApplicationID != app {
			continue
		}
		if closingOnly && !w.Closing {
			continue
		}
		out = append(out, w)
	}
	return out
}

// terminalWidth returns the stdout width, or 0 when stdout is not a TTY.
func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	w, _, err := term.GetSize(fd)
	if err != nil {
		return 0
	}
	return w
}

func windowState(w wm.WindowInfo) string {
	switch {
	case w.Destroyed:
		return "destroyed"
	case w.Closing:
		return "closing"
	case !w.IsMapped:
		return "unmapped"
	case w.IsFullscreen:
		return "fullscreen"
	default:
		return "ready"
	}
}

// writeWindowsTable prints one row per window. A positive width truncates
// the application column so rows fit the terminal.
func writeWindowsTable(w io.Writer, windows []wm.WindowInfo, width int) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tHANDLE\tSTATE\tPID\tAPPLICATION")

	appWidth := 0
	if width > 0 {
		// index, handle, state and pid columns with padding
		appWidth = width - 48
		if appWidth < 8 {
			appWidth = 8
		}
	}
	for _, win := range windows {
		app := win.ApplicationID
		if app == "" {
			app = "-"
		}
		if appWidth > 0 && len(app) > appWidth {
			app = app[:appWidth-1] + "…"
		}
		pid := "-"
		if win.PID > 0 {
			pid = strconv.Itoa(win.PID)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", win.Index, win.WindowItem, windowState(win), pid, app)
	}
	tw.Flush()
}

func runWindow(args []string) int {
	fs := flag.NewFlagSet("window", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	asJSON := fs.Bool("json", false, "Print raw JSON")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: surfman window [--json] <index>")
	}
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	index, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid index %q\n", fs.Arg(0))
		return 2
	}

	info, err := ipc.NewClient().GetWindow(index)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *asJSON {
		return printJSON(info)
	}
	fmt.Printf("index:       %d\n", info.Index)
	fmt.Printf("handle:      %s\n", info.WindowItem)
	fmt.Printf("id:          %s\n", info.ID)
	fmt.Printf("application: %s\n", info.ApplicationID)
	fmt.Printf("state:       %s\n", windowState(*info))
	if info.PID > 0 {
		fmt.Printf("pid:         %d\n", info.PID)
	}
	if info.ClosingSince != nil {
		fmt.Printf("closing:     %s\n", time.Since(*info.ClosingSince).Truncate(time.Second))
	}
	printProperties(os.Stdout, info.Properties)
	return 0
}

func printProperties(w io.Writer, props map[string]any) {
	if len(props) == 0 {
		return
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(w, "properties:")
	for _, k := range keys {
		data, err := json.Marshal(props[k])
		if err != nil {
			data = []byte(fmt.Sprintf("%v", props[k]))
		}
		fmt.Fprintf(w, "  %s: %s\n", k, data)
	}
}

// parsePropertyValue reads a command-line value as JSON, falling back to a
// plain string.
func parsePropertyValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func printPropUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  surfman prop get <handle> <key>")
	fmt.Fprintln(w, "  surfman prop set <handle> <key> <value>")
	fmt.Fprintln(w, "  surfman prop list <handle>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Handles look like x11:0x1a00003 or inprocess:7. Values are parsed as JSON")
	fmt.Fprintln(w, "when possible and sent as strings otherwise.")
}

func runProp(args []string) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printPropUsage(os.Stderr)
		return 2
	}

	want := map[string]int{"get": 3, "set": 4, "list": 2}
	n, ok := want[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown prop subcommand: %s\n\n", args[0])
		printPropUsage(os.Stderr)
		return 2
	}
	if len(args) != n {
		printPropUsage(os.Stderr)
		return 2
	}
	h, err := surface.ParseHandle(args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	client := ipc.NewClient()
	switch args[0] {
	case "get":
		value, found, err := client.WindowProperty(h, args[2])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if !found {
			fmt.Fprintf(os.Stderr, "property %q not set on %s\n", args[2], h)
			return 1
		}
		return printJSON(value)
	case "set":
		applied, err := client.SetWindowProperty(h, args[2], parsePropertyValue(args[3]))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if !applied {
			fmt.Fprintf(os.Stderr, "no window for %s\n", h)
			return 1
		}
		return 0
	default:
		props, err := client.WindowProperties(h)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if props == nil {
			fmt.Fprintf(os.Stderr, "no window for %s\n", h)
			return 1
		}
		printProperties(os.Stdout, props)
		return 0
	}
}

func runRelease(args []string) int {
	if len(args) != 1 || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprintln(os.Stderr, "Usage: surfman release <handle>")
		return 2
	}
	h, err := surface.ParseHandle(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	released, err := ipc.NewClient().ReleaseWindow(h)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if !released {
		fmt.Printf("%s: nothing to release\n", h)
		return 0
	}
	fmt.Printf("%s: released\n", h)
	return 0
}

func runScreenshot(args []string) int {
	fs := flag.NewFlagSet("screenshot", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	selector := fs.String("selector", "", "Selector: appId[key=value]:outputIndex (empty captures every output)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: surfman screenshot [--selector SEL] <filename>")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "In filename, %s expands to the output index, %i to the application id")
		fmt.Fprintln(os.Stderr, "and %% to a percent sign. Relative names land in the runtime screenshot")
		fmt.Fprintln(os.Stderr, "directory.")
		fmt.Fprintln(os.Stderr, "")
		fs.PrintDefaults()
	}
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	client := ipc.NewClient()
	client.SetTimeout(30 * time.Second)
	res, err := client.MakeScreenshot(fs.Arg(0), *selector)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if !res.OK {
		fmt.Fprintf(os.Stderr, "screenshot failed (%s)\n", res.Filename)
		return 1
	}
	fmt.Println(res.Filename)
	return 0
}

func runAttach(args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: surfman attach <application-id> <pid>")
		return 2
	}
	pid, err := strconv.Atoi(args[1])
	if err != nil || pid <= 0 {
		fmt.Fprintf(os.Stderr, "invalid pid %q\n", args[1])
		return 2
	}
	if err := ipc.NewClient().AttachApplication(args[0], pid); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func runDetach(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: surfman detach <pid>")
		return 2
	}
	pid, err := strconv.Atoi(args[0])
	if err != nil || pid <= 0 {
		fmt.Fprintf(os.Stderr, "invalid pid %q\n", args[0])
		return 2
	}
	detached, err := ipc.NewClient().DetachApplication(pid)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if !detached {
		fmt.Printf("pid %d was not attached\n", pid)
	}
	return 0
}

func loadConfigResult(path string) (*config.LoadResult, error) {
	if path == "" {
		return config.LoadWithSources()
	}
	return config.LoadFromPath(path)
}

func runConfig(args []string) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  surfman config validate [--path PATH]")
		fmt.Fprintln(os.Stderr, "  surfman config print [--path PATH] [--effective|--defaults]")
		fmt.Fprintln(os.Stderr, "  surfman config explain [--path PATH] <yaml.path>")
		fmt.Fprintln(os.Stderr, "  surfman config init [--path PATH] [--force]")
		return 2
	}

	switch args[0] {
	case "validate":
		fs := flag.NewFlagSet("validate", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: ~/.config/surfman/config.yaml)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if _, err := loadConfigResult(*path); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Println("config: ok")
		return 0

	case "print":
		fs := flag.NewFlagSet("print", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: ~/.config/surfman/config.yaml)")
		printDefaults := fs.Bool("defaults", false, "Print built-in defaults (no files)")
		printEffective := fs.Bool("effective", false, "Print effective config (default)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}

		cfg := config.DefaultConfig()
		if !*printDefaults {
			_ = printEffective // default
			res, err := loadConfigResult(*path)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return 1
			}
			for _, f := range res.Files {
				fmt.Printf("# source: %s\n", f)
			}
			cfg = res.Config
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Print(string(data))
		return 0

	case "explain":
		fs := flag.NewFlagSet("explain", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: ~/.config/surfman/config.yaml)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if fs.NArg() < 1 {
			fmt.Fprintln(os.Stderr, "explain requires <yaml.path>")
			return 2
		}
		queryPath := fs.Arg(0)

		res, err := loadConfigResult(*path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		value, src, err := config.Explain(res, queryPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		out, err := yaml.Marshal(value)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}

		fmt.Printf("path: %s\n", queryPath)
		fmt.Printf("source: %s\n", formatSource(src))
		fmt.Printf("value:\n%s", string(out))
		return 0

	case "init":
		fs := flag.NewFlagSet("init", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: ~/.config/surfman/config.yaml)")
		force := fs.Bool("force", false, "Overwrite an existing file")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		target := *path
		if target == "" {
			p, err := config.DefaultConfigPath()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return 1
			}
			target = p
		}
		if _, err := os.Stat(target); err == nil && !*force {
			fmt.Fprintf(os.Stderr, "%s already exists (use --force to overwrite)\n", target)
			return 1
		}
		if err := config.DefaultConfig().SaveTo(target); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Println(target)
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n", args[0])
		return 2
	}
}

func formatSource(src config.Source) string {
	switch src.Kind {
	case config.SourceFile:
		if src.File == "" {
			return "file"
		}
		if src.Line > 0 {
			return fmt.Sprintf("file:%s:%d:%d", src.File, src.Line, src.Column)
		}
		return "file:" + src.File
	case config.SourceDefault:
		if src.Name != "" {
			return "default:" + src.Name
		}
		return "default"
	default:
		return string(src.Kind)
	}
}

func runTUI(args []string) int {
	fs := flag.NewFlagSet("tui", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	refresh := fs.Duration("refresh", tui.DefaultRefresh, "Poll interval")

	if len(args) > 0 && (args[0] == "help" || args[0] == "-h" || args[0] == "--help") {
		fmt.Fprintln(os.Stderr, "Usage: surfman tui [--refresh DURATION]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Live view of the daemon's windows and outputs.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Keybindings:")
		fmt.Fprintln(os.Stderr, "  j/k, ↑/↓  Navigate windows")
		fmt.Fprintln(os.Stderr, "  x         Release selected window")
		fmt.Fprintln(os.Stderr, "  s         Take a screenshot")
		fmt.Fprintln(os.Stderr, "  r         Refresh now")
		fmt.Fprintln(os.Stderr, "  tab, 1-2  Switch tabs")
		fmt.Fprintln(os.Stderr, "  q, Ctrl+C Quit")
		return 0
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if err := tui.New(ipc.NewClient(), *refresh).Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
