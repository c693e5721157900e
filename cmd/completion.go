package cmd

import (
	"fmt"
	"os"
)

// Completion outputs shell completion scripts
func Completion(shell string) {
	switch shell {
	case "bash":
		fmt.Print(bashCompletion)
	case "zsh":
		fmt.Print(zshCompletion)
	case "fish":
		fmt.Print(fishCompletion)
	default:
		fmt.Fprintf(os.Stderr, "Unknown shell: %s\nSupported: bash, zsh, fish\n", shell)
		os.Exit(1)
	}
}

const bashCompletion = `_pagecodec() {
    local cur prev words cword
    _init_completion || return

    local commands="init read write status verify rekey diff compact key keyring help completion"

    if [[ $cword -eq 1 ]]; then
        COMPREPLY=($(compgen -W "$commands" -- "$cur"))
        return
    fi

    local cmd="${words[1]}"
    case "$cmd" in
        init)
            case "$prev" in
                -backend)
                    COMPREPLY=($(compgen -W "file bolt pebble" -- "$cur"))
                    return
                    ;;
                -suite)
                    COMPREPLY=($(compgen -W "aes-256-cfb-sha256 aes-256-cfb-blake2b aes-256-cfb-blake3" -- "$cur"))
                    return
                    ;;
            esac
            if [[ "$cur" == -* ]]; then
                COMPREPLY=($(compgen -W "-backend -page-size -suite -v" -- "$cur"))
            else
                _filedir
            fi
            ;;
        read)
            if [[ "$cur" == -* ]]; then
                COMPREPLY=($(compgen -W "-hex -out -v" -- "$cur"))
            else
                _filedir
            fi
            ;;
        write)
            if [[ "$cur" == -* ]]; then
                COMPREPLY=($(compgen -W "-in -v" -- "$cur"))
            else
                _filedir
            fi
            ;;
        key)
            if [[ "$cur" == -* ]]; then
                COMPREPLY=($(compgen -W "-allow-key-export -v" -- "$cur"))
            else
                _filedir
            fi
            ;;
        keyring)
            if [[ $cword -eq 2 ]]; then
                COMPREPLY=($(compgen -W "save delete status" -- "$cur"))
            else
                _filedir
            fi
            ;;
        help)
            COMPREPLY=($(compgen -W "$commands" -- "$cur"))
            ;;
        completion)
            COMPREPLY=($(compgen -W "bash zsh fish" -- "$cur"))
            ;;
        *)
            _filedir
            ;;
    esac
}

complete -F _pagecodec pagecodec
`

const zshCompletion = `#compdef pagecodec

_pagecodec() {
    local -a commands
    commands=(
        'init:Create a new encrypted database'
        'read:Decrypt and print one page'
        'write:Encrypt and store one page'
        'status:Show database status without a key'
        'verify:Decrypt every page'
        'rekey:Re-encrypt the database under a new key'
        'diff:Compare the pages of two databases'
        'compact:Compact a bolt database'
        'key:Print the raw key'
        'keyring:Manage key in OS keyring'
        'help:Show help for a command'
        'completion:Generate shell completions'
    )

    _arguments -C \
        '1: :->command' \
        '*: :->args'

    case "$state" in
        command)
            _describe -t commands 'pagecodec commands' commands
            ;;
        args)
            case "${words[2]}" in
                init)
                    _arguments \
                        '-backend[Storage backend]:backend:(file bolt pebble)' \
                        '-page-size[Page size in bytes]:size:(512 1024 2048 4096 8192 16384 32768 65536)' \
                        '-suite[Algorithm suite]:suite:(aes-256-cfb-sha256 aes-256-cfb-blake2b aes-256-cfb-blake3)' \
                        '-v[Verbose logging]' \
                        '*:database:_files'
                    ;;
                read)
                    _arguments \
                        '-hex[Print a hex dump]' \
                        '-out[Write page to file]:file:_files' \
                        '*:database:_files'
                    ;;
                write)
                    _arguments \
                        '-in[Read page from file]:file:_files' \
                        '*:database:_files'
                    ;;
                key)
                    _arguments \
                        '-allow-key-export[Allow printing the raw key]' \
                        '*:database:_files'
                    ;;
                keyring)
                    _values 'subcommand' save delete status
                    ;;
                help)
                    _describe -t commands 'pagecodec commands' commands
                    ;;
                completion)
                    _values 'shell' bash zsh fish
                    ;;
                *)
                    _files
                    ;;
            esac
            ;;
    esac
}

_pagecodec "$@"
`

const fishCompletion = `# pagecodec fish completions

set -l commands init read write status verify rekey diff compact key keyring help completion

# Commands
complete -c pagecodec -n "not __fish_seen_subcommand_from $commands" -f -a init -d 'Create a new encrypted database'
complete -c pagecodec -n "not __fish_seen_subcommand_from $commands" -f -a read -d 'Decrypt and print one page'
complete -c pagecodec -n "not __fish_seen_subcommand_from $commands" -f -a write -d 'Encrypt and store one page'
complete -c pagecodec -n "not __fish_seen_subcommand_from $commands" -f -a status -d 'Show database status'
complete -c pagecodec -n "not __fish_seen_subcommand_from $commands" -f -a verify -d 'Decrypt every page'
complete -c pagecodec -n "not __fish_seen_subcommand_from $commands" -f -a rekey -d 'Change the key'
complete -c pagecodec -n "not __fish_seen_subcommand_from $commands" -f -a diff -d 'Compare two databases'
complete -c pagecodec -n "not __fish_seen_subcommand_from $commands" -f -a compact -d 'Compact a bolt database'
complete -c pagecodec -n "not __fish_seen_subcommand_from $commands" -f -a key -d 'Print the raw key'
complete -c pagecodec -n "not __fish_seen_subcommand_from $commands" -f -a keyring -d 'Manage key in OS keyring'
complete -c pagecodec -n "not __fish_seen_subcommand_from $commands" -f -a help -d 'Show help'
complete -c pagecodec -n "not __fish_seen_subcommand_from $commands" -f -a completion -d 'Generate completions'

# init flags
complete -c pagecodec -n "__fish_seen_subcommand_from init" -o backend -x -a "file bolt pebble" -d 'Storage backend'
complete -c pagecodec -n "__fish_seen_subcommand_from init" -o page-size -x -d 'Page size in bytes'
complete -c pagecodec -n "__fish_seen_subcommand_from init" -o suite -x -a "aes-256-cfb-sha256 aes-256-cfb-blake2b aes-256-cfb-blake3" -d 'Algorithm suite'

# read/write flags
complete -c pagecodec -n "__fish_seen_subcommand_from read" -o hex -d 'Print a hex dump'
complete -c pagecodec -n "__fish_seen_subcommand_from read" -o out -r -d 'Write page to file'
complete -c pagecodec -n "__fish_seen_subcommand_from write" -o in -r -d 'Read page from file'

# key flags
complete -c pagecodec -n "__fish_seen_subcommand_from key" -o allow-key-export -d 'Allow printing the raw key'

# keyring subcommands
complete -c pagecodec -n "__fish_seen_subcommand_from keyring" -f -a "save delete status"

# help completions
complete -c pagecodec -n "__fish_seen_subcommand_from help" -f -a "$commands"

# completion completions
complete -c pagecodec -n "__fish_seen_subcommand_from completion" -f -a "bash zsh fish"
`
