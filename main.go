package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/illarion/pagecodec/cmd"
	"github.com/illarion/pagecodec/internal/core"
	"github.com/illarion/pagecodec/internal/logging"
	"github.com/illarion/pagecodec/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit(ctx, os.Args[2:])
	case "read":
		runRead(ctx, os.Args[2:])
	case "write":
		runWrite(ctx, os.Args[2:])
	case "status":
		runStatus(ctx, os.Args[2:])
	case "verify":
		runVerify(ctx, os.Args[2:])
	case "rekey":
		runRekey(ctx, os.Args[2:])
	case "diff":
		runDiff(ctx, os.Args[2:])
	case "compact":
		runCompact(ctx, os.Args[2:])
	case "key":
		runKey(ctx, os.Args[2:])
	case "keyring":
		runKeyring(ctx, os.Args[2:])
	case "completion":
		runCompletion(ctx, os.Args[2:])
	case "help", "-h", "--help":
		if len(os.Args) <= 2 {
			printUsage()
			return
		}
		printCommandHelp(os.Args[2])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// newFlagSet creates a flag set with the logging flags every command shares.
// The returned function must be called after Parse.
func newFlagSet(name string) (*flag.FlagSet, func()) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	verbose := fs.Bool("v", false, "Verbose (debug) logging to stderr")
	logFormat := fs.String("log-format", "text", "Log format: text or json")
	return fs, func() {
		level := logging.LevelWarn
		if *verbose {
			level = logging.LevelDebug
		}
		format, err := logging.ParseFormat(*logFormat)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		cmd.Logger = logging.Init(os.Stderr, level, format)
	}
}

func parse(fs *flag.FlagSet, setup func(), args []string, nargs int, usage string) []string {
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	setup()
	if fs.NArg() != nargs {
		fmt.Fprintf(os.Stderr, "Usage: %s\n", usage)
		os.Exit(1)
	}
	return fs.Args()
}

func parsePgno(s string) uint32 {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 0 {
		fmt.Fprintf(os.Stderr, "Error: invalid page number %q\n", s)
		os.Exit(1)
	}
	return uint32(n)
}

func runInit(_ context.Context, args []string) {
	fs, setup := newFlagSet("init")
	backend := fs.String("backend", storage.BackendFile, "Storage backend: file, bolt or pebble")
	pageSize := fs.Int("page-size", storage.DefaultPageSize, "Page size in bytes (power of two, 512-65536)")
	suite := fs.String("suite", "", "Algorithm suite (default aes-256-cfb-sha256)")
	rest := parse(fs, setup, args, 1, "pagecodec init [-backend name] [-page-size n] [-suite name] <db>")

	cmd.Init(rest[0], core.Options{Backend: *backend, PageSize: *pageSize, Suite: *suite})
}

func runRead(_ context.Context, args []string) {
	fs, setup := newFlagSet("read")
	asHex := fs.Bool("hex", false, "Print a hex dump instead of raw bytes")
	out := fs.String("out", "", "Write the page to a file instead of stdout")
	rest := parse(fs, setup, args, 2, "pagecodec read [-hex] [-out file] <db> <pgno>")

	cmd.Read(rest[0], parsePgno(rest[1]), *asHex, *out)
}

func runWrite(_ context.Context, args []string) {
	fs, setup := newFlagSet("write")
	in := fs.String("in", "", "Read the page from a file instead of stdin")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	setup()

	// Without a page number the page is appended
	var pgno uint32
	switch fs.NArg() {
	case 1:
	case 2:
		pgno = parsePgno(fs.Arg(1))
	default:
		fmt.Fprintln(os.Stderr, "Usage: pagecodec write [-in file] <db> [pgno]")
		os.Exit(1)
	}
	cmd.Write(fs.Arg(0), pgno, *in)
}

func runStatus(_ context.Context, args []string) {
	fs, setup := newFlagSet("status")
	rest := parse(fs, setup, args, 1, "pagecodec status <db>")

	cmd.Status(rest[0])
}

func runVerify(ctx context.Context, args []string) {
	fs, setup := newFlagSet("verify")
	rest := parse(fs, setup, args, 1, "pagecodec verify <db>")

	cmd.Verify(ctx, rest[0])
}

func runRekey(ctx context.Context, args []string) {
	fs, setup := newFlagSet("rekey")
	rest := parse(fs, setup, args, 1, "pagecodec rekey <db>")

	cmd.Rekey(ctx, rest[0])
}

func runDiff(ctx context.Context, args []string) {
	fs, setup := newFlagSet("diff")
	rest := parse(fs, setup, args, 2, "pagecodec diff <db-a> <db-b>")

	cmd.Diff(ctx, rest[0], rest[1])
}

func runCompact(ctx context.Context, args []string) {
	fs, setup := newFlagSet("compact")
	rest := parse(fs, setup, args, 1, "pagecodec compact <db>")

	cmd.Compact(ctx, rest[0])
}

func runKey(_ context.Context, args []string) {
	fs, setup := newFlagSet("key")
	allow := fs.Bool("allow-key-export", false, "Allow printing the raw key")
	rest := parse(fs, setup, args, 1, "pagecodec key -allow-key-export <db>")

	cmd.Key(rest[0], *allow)
}

func runKeyring(_ context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: pagecodec keyring <save|delete|status> <db>")
		os.Exit(1)
	}
	sub := args[0]
	fs, setup := newFlagSet("keyring " + sub)
	rest := parse(fs, setup, args[1:], 1, "pagecodec keyring "+sub+" <db>")

	switch sub {
	case "save":
		cmd.KeyringSave(rest[0])
	case "delete":
		cmd.KeyringDelete(rest[0])
	case "status":
		cmd.KeyringStatus(rest[0])
	default:
		fmt.Fprintf(os.Stderr, "Unknown keyring command: %s\n", sub)
		os.Exit(1)
	}
}

func runCompletion(_ context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: pagecodec completion <bash|zsh|fish>")
		os.Exit(1)
	}
	cmd.Completion(args[0])
}

func printUsage() {
	fmt.Println("pagecodec - Transparent page encryption for paged databases")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  pagecodec <command> [flags] [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init        Create a new encrypted database")
	fmt.Println("  read        Decrypt and print one page")
	fmt.Println("  write       Encrypt and store one page")
	fmt.Println("  status      Show database status (no key required)")
	fmt.Println("  verify      Decrypt every page and check the header")
	fmt.Println("  rekey       Re-encrypt the database under a new key")
	fmt.Println("  diff        Compare the decrypted pages of two databases")
	fmt.Println("  compact     Compact a bolt database to reclaim disk space")
	fmt.Println("  key         Print the raw key (requires -allow-key-export)")
	fmt.Println("  keyring     Manage the key in the OS keyring")
	fmt.Println("  completion  Generate shell completions")
	fmt.Println("  help        Show help for a command")
	fmt.Println()
	fmt.Println("The key is read from $" + core.EnvKey + ", the OS keyring, or a prompt.")
	fmt.Println("A key of the form x'<64 hex digits>' is used as the raw key.")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  pagecodec init app.db                 # Create new database")
	fmt.Println("  pagecodec read -hex app.db 1          # Dump page 1")
	fmt.Println("  pagecodec write -in page.bin app.db   # Append a page")
	fmt.Println("  pagecodec rekey app.db                # Change the key")
	fmt.Println()
	fmt.Println("Use 'pagecodec help <command>' for more information about a command.")
}

func printCommandHelp(command string) {
	switch command {
	case "init":
		fmt.Println("pagecodec init [-backend file|bolt|pebble] [-page-size n] [-suite name] <db>")
		fmt.Println()
		fmt.Println("Creates a new database holding one empty page.")
		fmt.Println("Prompts for a key that will be used for encryption.")
		fmt.Println("The key is not stored anywhere - you must remember it.")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  -backend     Storage backend (default file)")
		fmt.Println("  -page-size   Page size in bytes (default 4096)")
		fmt.Println("  -suite       aes-256-cfb-sha256, aes-256-cfb-blake2b or aes-256-cfb-blake3")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  pagecodec init app.db")
		fmt.Println("  pagecodec init -backend bolt -page-size 8192 app.bolt")
	case "read":
		fmt.Println("pagecodec read [-hex] [-out file] <db> <pgno>")
		fmt.Println()
		fmt.Println("Decrypts page <pgno> and writes it to stdout or a file.")
		fmt.Println("Page 1 is shown with the file magic in place of the salt.")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  pagecodec read -hex app.db 1")
		fmt.Println("  pagecodec read -out page2.bin app.db 2")
	case "write":
		fmt.Println("pagecodec write [-in file] <db> [pgno]")
		fmt.Println()
		fmt.Println("Encrypts exactly one page of input and stores it.")
		fmt.Println("Without <pgno> the page is appended.")
		fmt.Println("Page 1 must keep its header (file magic, page size, zero reserved bytes).")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  pagecodec write -in page.bin app.db")
		fmt.Println("  pagecodec read app.db 1 | pagecodec write app.db 1")
	case "status":
		fmt.Println("pagecodec status <db>")
		fmt.Println()
		fmt.Println("Shows backend, page size, page count, id and size on disk.")
		fmt.Println()
		fmt.Println("Does not require a key.")
	case "verify":
		fmt.Println("pagecodec verify <db>")
		fmt.Println()
		fmt.Println("Decrypts every page and checks the page 1 header.")
		fmt.Println("Pages are not authenticated; verify only catches a wrong key")
		fmt.Println("or damage to page 1.")
	case "rekey":
		fmt.Println("pagecodec rekey <db>")
		fmt.Println()
		fmt.Println("Changes the database key.")
		fmt.Println("Requires both the current and new keys.")
		fmt.Println("Re-encrypts all pages in one atomic rewrite; the id is kept.")
	case "diff":
		fmt.Println("pagecodec diff <db-a> <db-b>")
		fmt.Println()
		fmt.Println("Decrypts both databases and prints a hex diff of every page that differs.")
		fmt.Println("Each database is opened with its own key.")
	case "compact":
		fmt.Println("pagecodec compact <db>")
		fmt.Println()
		fmt.Println("Compacts a bolt database to reclaim unused disk space.")
		fmt.Println("This is automatically done after 'rekey',")
		fmt.Println("but can be run manually if needed.")
	case "key":
		fmt.Println("pagecodec key -allow-key-export <db>")
		fmt.Println()
		fmt.Println("Prints the raw key as an x'...' literal, usable as a key itself.")
	case "keyring":
		fmt.Println("pagecodec keyring <save|delete|status> <db>")
		fmt.Println()
		fmt.Println("Stores the key in the OS keyring under the database id.")
	case "completion":
		fmt.Println("pagecodec completion <bash|zsh|fish>")
		fmt.Println()
		fmt.Println("Outputs shell completion script for the specified shell.")
		fmt.Println()
		fmt.Println("Setup:")
		fmt.Println("  # Bash - add to ~/.bashrc")
		fmt.Println("  eval \"$(pagecodec completion bash)\"")
		fmt.Println()
		fmt.Println("  # Zsh - add to ~/.zshrc")
		fmt.Println("  eval \"$(pagecodec completion zsh)\"")
		fmt.Println()
		fmt.Println("  # Fish - add to ~/.config/fish/config.fish")
		fmt.Println("  pagecodec completion fish | source")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
	}
}
