// Command etherdfs is the CLI entry point: it parses the DOS
// slash-switch grammar (SRVMAC rdrv-ldrv ... /p=HH /n /q /u), installs
// a set of drive-letter mappings against a remote EtherDFS server, and
// runs until interrupted, then clears those mappings. /u is accepted
// but only prints a message: this build keeps nothing resident, so
// there is no earlier instance for it to unload.
//
// This grammar is DOS switch syntax, not compatible with flag/pflag/
// cobra, so os.Args is parsed by hand below; see DESIGN.md for why no
// third-party flag library fits here.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	etherdfs "github.com/etherdfs/etherdfs-go"
	"github.com/etherdfs/etherdfs-go/internal/rawlink"
	"github.com/etherdfs/etherdfs-go/link"
)

type config struct {
	serverMAC  etherdfs.MAC
	discovery  bool
	pairs      map[uint8]uint8
	iface      string
	noChecksum bool
	quiet      bool
	unload     bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := parseArgs(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "etherdfs:", err)
		return 1
	}

	etherdfs.SetVerbose(!cfg.quiet)
	log := logrus.StandardLogger()

	if cfg.unload {
		fmt.Println("etherdfs: unload requested; nothing resident to contact in this build")
		return 0
	}

	driver, err := rawlink.Open(cfg.iface, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "etherdfs:", err)
		return 1
	}
	defer driver.Close()

	eng := etherdfs.NewEngine(driver, driver.LocalMAC(), !cfg.noChecksum, nil)

	if err := etherdfs.Install(eng, cfg.pairs); err != nil {
		fmt.Fprintln(os.Stderr, "etherdfs:", err)
		return 1
	}

	if cfg.discovery {
		if _, err := eng.Discover(); err != nil {
			fmt.Fprintln(os.Stderr, "etherdfs: discovery failed:", err)
			return 1
		}
	} else {
		eng.SetPeerMAC(cfg.serverMAC)
	}

	if !cfg.quiet {
		fmt.Printf("etherdfs: mapped %d drive(s), peer %s\n", len(cfg.pairs), macString(eng.PeerMAC()))
	}

	wait := make(chan os.Signal, 1)
	signal.Notify(wait, os.Interrupt, syscall.SIGTERM)
	<-wait

	etherdfs.Unload(eng)
	return 0
}

func macString(m etherdfs.MAC) string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// parseArgs hand-parses the DOS-style argument list described in spec
// section 6.2.
func parseArgs(args []string) (config, error) {
	cfg := config{pairs: make(map[uint8]uint8), iface: "eth0"}

	if len(args) == 0 {
		return cfg, fmt.Errorf("usage: etherdfs SRVMAC rdrv-ldrv... [/p=HH] [/n] [/q] [/u]")
	}

	for _, a := range args {
		switch {
		case a == "/u":
			cfg.unload = true
		case a == "/n":
			cfg.noChecksum = true
		case a == "/q":
			cfg.quiet = true
		case strings.HasPrefix(a, "/p="):
			// The packet-driver interrupt vector has no Linux analogue;
			// accepted and validated for CLI compatibility, then ignored.
			if _, err := strconv.ParseUint(a[3:], 16, 8); err != nil {
				return cfg, fmt.Errorf("invalid /p= value %q", a)
			}
		case a == "::":
			cfg.discovery = true
		case isMAC(a):
			mac, err := parseMAC(a)
			if err != nil {
				return cfg, err
			}
			cfg.serverMAC = mac
		case isDrivePair(a):
			local, remote, err := parseDrivePair(a)
			if err != nil {
				return cfg, err
			}
			cfg.pairs[local] = remote
		default:
			return cfg, fmt.Errorf("unrecognized argument %q", a)
		}
	}

	if cfg.unload {
		if cfg.discovery || cfg.serverMAC != (etherdfs.MAC{}) || len(cfg.pairs) > 0 {
			return cfg, fmt.Errorf("/u must not be combined with a server MAC or drive mappings")
		}
		return cfg, nil
	}

	if !cfg.discovery && cfg.serverMAC == (etherdfs.MAC{}) {
		return cfg, fmt.Errorf("missing server MAC or '::' for discovery")
	}
	if len(cfg.pairs) == 0 {
		return cfg, fmt.Errorf("at least one rdrv-ldrv mapping is required")
	}

	return cfg, nil
}

func isMAC(s string) bool {
	return strings.Count(s, ":") == 5
}

func parseMAC(s string) (etherdfs.MAC, error) {
	var mac etherdfs.MAC
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return mac, fmt.Errorf("invalid MAC address %q", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return mac, fmt.Errorf("invalid MAC address %q", s)
		}
		mac[i] = byte(v)
	}
	return mac, nil
}

func isDrivePair(s string) bool {
	return len(s) == 3 && s[1] == '-'
}

func parseDrivePair(s string) (local, remote uint8, err error) {
	remote, ok1 := driveOrdinal(s[0])
	local, ok2 := driveOrdinal(s[2])
	if !ok1 || !ok2 {
		return 0, 0, fmt.Errorf("invalid drive mapping %q", s)
	}
	return local, remote, nil
}

func driveOrdinal(c byte) (uint8, bool) {
	switch {
	case c >= 'A' && c <= 'Z':
		return c - 'A', true
	case c >= 'a' && c <= 'z':
		return c - 'a', true
	default:
		return 0, false
	}
}

var _ link.Driver = (*rawlink.Driver)(nil)
