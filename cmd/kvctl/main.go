// Command kvctl inspects and drives an nvkv key/value store image stored
// in a plain file, for local testing and demos without real NVRAM hardware.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/openenterprise/nvkv"
	"github.com/openenterprise/nvkv/memnvram"
)

const (
	defaultMaxEntries = 64
	defaultAreaSize   = 8192
	defaultReserved   = 4096
)

func main() {
	image := flag.String("image", "nvkv.img", "Path to the NVRAM image file (ignored with -sim)")
	size := flag.Int("size", defaultAreaSize, "Total image size in bytes")
	reserved := flag.Int("reserved", defaultReserved, "Reserved area size in bytes")
	maxEntries := flag.Int("max-entries", defaultMaxEntries, "Directory capacity")
	cmd := flag.String("cmd", "", "Single command to run (interactive mode if empty)")
	sim := flag.Bool("sim", false, "Use a throwaway in-memory medium instead of a file")
	flag.Parse()

	var medium nvkv.Medium
	var simMedium *memnvram.Medium
	if *sim {
		simMedium = memnvram.New(nvkv.Offset(*size), nvkv.Offset(*reserved))
		medium = simMedium
	} else {
		m, err := openFileMedium(*image, nvkv.Offset(*size), nvkv.Offset(*reserved))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer m.Close()
		medium = m
	}

	store := nvkv.New(nvkv.Options{MaxEntries: *maxEntries})
	if cap := store.Init(medium); cap == 0 {
		fmt.Fprintln(os.Stderr, "Error: medium geometry rejected (size/reserved/max-entries out of bounds)")
		os.Exit(1)
	}

	if *cmd != "" {
		if err := runCommand(store, simMedium, *cmd); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := interactive(store, simMedium); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Commands:")
	fmt.Println("  get <key>                     Look up a key")
	fmt.Println("  set <key> <value>             Store a key/value pair")
	fmt.Println("  status                        Show used/free entries and wear-leveling factor")
	fmt.Println("  dump                          List every live entry")
	fmt.Println("  inject disable-erase <area>   Sim only: make erases of <area> (main|reserved) no-ops until enable-erase")
	fmt.Println("  inject enable-erase <area>    Sim only: undo disable-erase")
	fmt.Println("  inject corrupt <area>         Sim only: fill <area> with non-erased noise")
	fmt.Println("  help                          Show this message")
	fmt.Println("  quit                          Exit")
}

// runCommand executes a single whitespace-separated command line against
// store. sim is non-nil only in -sim mode, and is required by "inject".
func runCommand(store *nvkv.Store, sim *memnvram.Medium, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "get":
		if len(fields) != 2 {
			return fmt.Errorf("usage: get <key>")
		}
		key, err := parseKey(fields[1])
		if err != nil {
			return err
		}
		value, err := store.Get(key)
		if err != nil {
			return err
		}
		fmt.Println(value)

	case "set":
		if len(fields) != 3 {
			return fmt.Errorf("usage: set <key> <value>")
		}
		key, err := parseKey(fields[1])
		if err != nil {
			return err
		}
		value, err := strconv.ParseInt(fields[2], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", fields[2], err)
		}
		if err := store.Set(key, nvkv.Value(value)); err != nil {
			return err
		}

	case "status":
		fmt.Printf("used=%d free=%d wear-leveling-factor=%.2f\n",
			store.UsedEntries(), store.FreeEntries(), store.WearLevelingFactor())

	case "dump":
		for _, e := range store.Entries() {
			fmt.Printf("%d = %d\n", e.Key, e.Value)
		}

	case "inject":
		return runInject(sim, fields[1:])

	case "help":
		printUsage()

	default:
		return fmt.Errorf("unknown command %q (try 'help')", fields[0])
	}

	return nil
}

// runInject applies a crash-injection sub-command to a -sim medium. It is
// only meaningful against memnvram, which is why it's kept out of the
// Medium interface entirely.
func runInject(sim *memnvram.Medium, args []string) error {
	if sim == nil {
		return fmt.Errorf("inject requires -sim")
	}
	if len(args) != 2 {
		return fmt.Errorf("usage: inject <disable-erase|enable-erase|corrupt> <main|reserved>")
	}

	area, err := parseArea(args[1])
	if err != nil {
		return err
	}

	switch args[0] {
	case "disable-erase":
		sim.DisableErase(area)
	case "enable-erase":
		sim.EnableErase(area)
	case "corrupt":
		sim.Corrupt(area)
	default:
		return fmt.Errorf("unknown inject sub-command %q", args[0])
	}
	return nil
}

func parseArea(s string) (nvkv.Area, error) {
	switch s {
	case "main":
		return nvkv.AreaMain, nil
	case "reserved":
		return nvkv.AreaReserved, nil
	default:
		return 0, fmt.Errorf("unknown area %q (want main|reserved)", s)
	}
}

func parseKey(s string) (nvkv.Key, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid key %q: %w", s, err)
	}
	return nvkv.Key(n), nil
}

func interactive(store *nvkv.Store, sim *memnvram.Medium) error {
	fmt.Println("nvkv interactive shell. Type 'help' for commands, 'quit' to exit.")
	printUsage()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}

		if err := runCommand(store, sim, line); err != nil {
			fmt.Println("Error:", err)
		}
	}
}
