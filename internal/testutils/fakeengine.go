package testutils

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aretw0/enginegate/pkg/adapters/process"
	"github.com/aretw0/enginegate/pkg/frame"
)

// EnvFakeEngine switches a test binary into fake engine mode (see FakeEngineMain).
const EnvFakeEngine = "ENGINEGATE_FAKE_ENGINE"

// FakeEngineConfig points a launcher at the running test binary in fake engine mode.
// The test package must call FakeEngineMain from TestMain.
func FakeEngineConfig() process.Config {
	exe, _ := os.Executable()
	return process.Config{
		BinDir:     filepath.Dir(exe),
		Executable: filepath.Base(exe),
		Env:        map[string]string{EnvFakeEngine: "1"},
	}
}

// FakeEngineMain runs the fake engine and exits when EnvFakeEngine is set; otherwise it
// returns immediately. Call it first thing in TestMain.
func FakeEngineMain() {
	if os.Getenv(EnvFakeEngine) == "" {
		return
	}
	if err := RunFakeEngine(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "fake engine:", err)
		os.Exit(2)
	}
	os.Exit(0)
}

// RunFakeEngine behaves like a minimal engine: it connects back to 127.0.0.1:<args[0]>,
// pings with "?", answers every frame p with "ack:"+p and hangs up after receiving "q".
// Pongs ("!") are not acknowledged.
func RunFakeEngine(args []string, log io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("missing port argument")
	}
	port, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", args[0], err)
	}

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return err
	}
	defer conn.Close()

	send := func(payload string) error {
		f, _ := frame.Encode([]byte(payload))
		_, err := conn.Write(f)
		return err
	}
	if err := send("?"); err != nil {
		return err
	}

	var dec frame.Decoder
	buf := make([]byte, 512)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			_, _ = dec.Write(buf[:n])
			for {
				p, ok := dec.Next()
				if !ok {
					break
				}
				fmt.Fprintf(log, "engine < %s\n", p)
				switch string(p) {
				case "q":
					return nil
				case "!":
				default:
					if err := send("ack:" + string(p)); err != nil {
						return err
					}
				}
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
